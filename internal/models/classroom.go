package models

import "time"

// Classroom represents a physical room where courses take place.
type Classroom struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Location      string    `db:"location" json:"location"`
	RoomNumber    string    `db:"room_number" json:"room_number"`
	EquipmentInfo *string   `db:"equipment_info" json:"equipment_info,omitempty"`
	Capacity      *int      `db:"capacity" json:"capacity,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
