package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dualsign/attendance-api/internal/models"
)

const sessionColumns = `id, course_id, name, start_time, end_time, active, daily_sequence, created_at`

// SessionRepository handles persistence for attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// FindByID returns a session by identifier regardless of its active flag.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE id = $1 LIMIT 1`, sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &session, nil
}

// FindActiveByID returns a session only when it is still open.
func (r *SessionRepository) FindActiveByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE id = $1 AND active = TRUE LIMIT 1`, sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find active session: %w", err)
	}
	return &session, nil
}

// FindByCourseAndDate returns the first session for the course whose start
// time falls on the given calendar day. Resolution is first-match: multiple
// same-day sessions are possible via explicit creation.
func (r *SessionRepository) FindByCourseAndDate(ctx context.Context, courseID string, day time.Time) (*models.AttendanceSession, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendance_sessions WHERE course_id = $1 AND DATE(start_time) = $2 ORDER BY start_time ASC LIMIT 1`, sessionColumns)
	var session models.AttendanceSession
	if err := r.db.GetContext(ctx, &session, query, courseID, day.UTC().Format("2006-01-02")); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by course and date: %w", err)
	}
	return &session, nil
}

// List returns sessions ordered by start time descending. A non-empty
// TeacherID restricts results to that teacher's courses.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, error) {
	query := `SELECT s.id, s.course_id, s.name, s.start_time, s.end_time, s.active, s.daily_sequence, s.created_at
        FROM attendance_sessions s`
	where := ""
	var args []interface{}

	appendCond := func(cond string, arg interface{}) {
		if where == "" {
			where = " WHERE "
		} else {
			where += " AND "
		}
		args = append(args, arg)
		where += fmt.Sprintf(cond, len(args))
	}

	if filter.TeacherID != "" {
		query += ` JOIN courses c ON c.id = s.course_id`
		appendCond("c.teacher_id = $%d", filter.TeacherID)
	}
	if filter.CourseID != "" {
		appendCond("s.course_id = $%d", filter.CourseID)
	}
	if filter.Date != nil {
		appendCond("DATE(s.start_time) = $%d", filter.Date.UTC().Format("2006-01-02"))
	}

	query += where + ` ORDER BY s.start_time DESC`

	var sessions []models.AttendanceSession
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Create inserts a new session.
func (r *SessionRepository) Create(ctx context.Context, session *models.AttendanceSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.DailySequence <= 0 {
		session.DailySequence = 1
	}

	const query = `INSERT INTO attendance_sessions (id, course_id, name, start_time, end_time, active, daily_sequence, created_at)
VALUES (:id, :course_id, :name, :start_time, :end_time, :active, :daily_sequence, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Close marks a session inactive and stamps its end time. Closing an already
// closed session simply re-stamps end_time.
func (r *SessionRepository) Close(ctx context.Context, id string, endTime time.Time) error {
	const query = `UPDATE attendance_sessions SET active = FALSE, end_time = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, endTime); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
