package models

import "time"

// AttendanceStatus represents the outcome recorded for a student.
type AttendanceStatus string

const (
	AttendanceStatusPresent    AttendanceStatus = "present"
	AttendanceStatusAbsent     AttendanceStatus = "absent"
	AttendanceStatusLate       AttendanceStatus = "late"
	AttendanceStatusEarlyLeave AttendanceStatus = "early_leave"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusEarlyLeave:
		return true
	default:
		return false
	}
}

// AttendanceSession is a time-bounded window during which students may sign in.
type AttendanceSession struct {
	ID            string     `db:"id" json:"id"`
	CourseID      string     `db:"course_id" json:"course_id"`
	Name          string     `db:"name" json:"name"`
	StartTime     time.Time  `db:"start_time" json:"start_time"`
	EndTime       *time.Time `db:"end_time" json:"end_time,omitempty"`
	Active        bool       `db:"active" json:"active"`
	DailySequence int        `db:"daily_sequence" json:"daily_sequence"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// SessionFilter scopes session listing.
type SessionFilter struct {
	CourseID  string
	Date      *time.Time
	TeacherID string
}

// AttendanceRecord is an immutable proof of one student's attendance outcome
// for one session. No update or delete path exists.
type AttendanceRecord struct {
	ID          string           `db:"id" json:"id"`
	SessionID   string           `db:"session_id" json:"session_id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	Status      AttendanceStatus `db:"status" json:"status"`
	SignedInAt  time.Time        `db:"signed_in_at" json:"signed_in_at"`
	SignatureID string           `db:"signature_id" json:"signature_id"`
	Notes       *string          `db:"notes" json:"notes,omitempty"`
}

// AttendanceRecordDetail joins display fields for listings and exports.
type AttendanceRecordDetail struct {
	AttendanceRecord
	StudentName   string  `db:"student_name" json:"student_name"`
	StudentNumber *string `db:"student_number" json:"student_number,omitempty"`
	SessionName   string  `db:"session_name" json:"session_name"`
	CourseName    string  `db:"course_name" json:"course_name"`
	ClassroomName string  `db:"classroom_name" json:"classroom_name"`
}

// Signature is a captured consent image stored as an opaque payload. It is
// written strictly before its owning record, in the same transaction.
type Signature struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	Payload   string    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AttendanceStats summarises one session.
type AttendanceStats struct {
	TotalStudents   int     `json:"total_students"`
	PresentCount    int     `json:"present_count"`
	AbsentCount     int     `json:"absent_count"`
	LateCount       int     `json:"late_count"`
	EarlyLeaveCount int     `json:"early_leave_count"`
	AttendanceRate  float64 `json:"attendance_rate"`
}
