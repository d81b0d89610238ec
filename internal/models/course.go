package models

import "time"

// Course ties a teacher to a classroom for attendance tracking.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	ClassroomID string    `db:"classroom_id" json:"classroom_id"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// CourseDetail extends a course with joined display fields.
type CourseDetail struct {
	Course
	TeacherName   string `db:"teacher_name" json:"teacher_name"`
	ClassroomName string `db:"classroom_name" json:"classroom_name"`
}

// CourseFilter scopes course listing.
type CourseFilter struct {
	TeacherID string
}
