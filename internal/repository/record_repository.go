package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dualsign/attendance-api/internal/models"
)

// ErrDuplicateRecord reports a violation of the one-record-per-(session,
// student) invariant, raised by the unique index on attendance_records.
var ErrDuplicateRecord = errors.New("attendance record already exists for session and student")

const pqUniqueViolation = "23505"

// RecordRepository handles persistence for attendance records and their
// signatures.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

// FindBySessionAndStudent returns the record for the pair, if any.
func (r *RecordRepository) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	const query = `SELECT id, session_id, student_id, status, signed_in_at, signature_id, notes
FROM attendance_records WHERE session_id = $1 AND student_id = $2 LIMIT 1`
	var record models.AttendanceRecord
	if err := r.db.GetContext(ctx, &record, query, sessionID, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find record by session and student: %w", err)
	}
	return &record, nil
}

// CreateWithSignature persists the signature and its owning record in a single
// transaction: both commit or both roll back. The signature row is written
// first so the record can reference its id. A concurrent duplicate insert
// surfaces as ErrDuplicateRecord via the (session_id, student_id) unique
// index.
func (r *RecordRepository) CreateWithSignature(ctx context.Context, record *models.AttendanceRecord, signature *models.Signature) error {
	now := time.Now().UTC()
	if signature.ID == "" {
		signature.ID = uuid.NewString()
	}
	signature.CreatedAt = now
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.SignedInAt = now
	record.SignatureID = signature.ID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sign-in tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const signatureQuery = `INSERT INTO signatures (id, student_id, payload, created_at) VALUES ($1, $2, $3, $4)`
	if _, err := tx.ExecContext(ctx, signatureQuery, signature.ID, signature.StudentID, signature.Payload, signature.CreatedAt); err != nil {
		return fmt.Errorf("insert signature: %w", err)
	}

	const recordQuery = `INSERT INTO attendance_records (id, session_id, student_id, status, signed_in_at, signature_id, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.ExecContext(ctx, recordQuery, record.ID, record.SessionID, record.StudentID, record.Status, record.SignedInAt, record.SignatureID, record.Notes); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDuplicateRecord
		}
		return fmt.Errorf("insert record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sign-in tx: %w", err)
	}
	return nil
}

// ListBySession returns records joined with student, session, course and
// classroom display fields, ordered by sign-in time.
func (r *RecordRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error) {
	const query = `SELECT ar.id, ar.session_id, ar.student_id, ar.status, ar.signed_in_at, ar.signature_id, ar.notes,
        u.full_name AS student_name, u.student_number,
        s.name AS session_name, c.name AS course_name, COALESCE(cr.name, '') AS classroom_name
        FROM attendance_records ar
        JOIN users u ON u.id = ar.student_id
        JOIN attendance_sessions s ON s.id = ar.session_id
        JOIN courses c ON c.id = s.course_id
        LEFT JOIN classrooms cr ON cr.id = c.classroom_id
        WHERE ar.session_id = $1
        ORDER BY ar.signed_in_at ASC`
	var records []models.AttendanceRecordDetail
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list records by session: %w", err)
	}
	return records, nil
}

// CountByStatus returns record counts grouped by status for a session.
func (r *RecordRepository) CountByStatus(ctx context.Context, sessionID string) (map[models.AttendanceStatus]int, error) {
	const query = `SELECT status, COUNT(*) AS count FROM attendance_records WHERE session_id = $1 GROUP BY status`
	rows := []struct {
		Status models.AttendanceStatus `db:"status"`
		Count  int                     `db:"count"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, sessionID); err != nil {
		return nil, fmt.Errorf("count records by status: %w", err)
	}
	counts := make(map[models.AttendanceStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// FindSignature returns a stored signature by identifier.
func (r *RecordRepository) FindSignature(ctx context.Context, id string) (*models.Signature, error) {
	const query = `SELECT id, student_id, payload, created_at FROM signatures WHERE id = $1 LIMIT 1`
	var signature models.Signature
	if err := r.db.GetContext(ctx, &signature, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find signature: %w", err)
	}
	return &signature, nil
}
