package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualsign/attendance-api/internal/models"
)

func TestFindBySessionAndStudentMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_records WHERE session_id = $1 AND student_id = $2 LIMIT 1")).
		WithArgs("s1", "u1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindBySessionAndStudent(context.Background(), "s1", "u1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithSignatureCommits(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO signatures").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_records").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &models.AttendanceRecord{SessionID: "s1", StudentID: "u1", Status: models.AttendanceStatusPresent}
	signature := &models.Signature{StudentID: "u1", Payload: "data:image/png;base64,iVBORw0"}
	err := repo.CreateWithSignature(context.Background(), record, signature)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, signature.ID, record.SignatureID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithSignatureDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO signatures").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO attendance_records").
		WillReturnError(&pq.Error{Code: pqUniqueViolation})
	mock.ExpectRollback()

	record := &models.AttendanceRecord{SessionID: "s1", StudentID: "u1", Status: models.AttendanceStatusPresent}
	signature := &models.Signature{StudentID: "u1", Payload: "sig"}
	err := repo.CreateWithSignature(context.Background(), record, signature)
	assert.ErrorIs(t, err, ErrDuplicateRecord)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithSignatureRollsBackOnSignatureFailure(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO signatures").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	record := &models.AttendanceRecord{SessionID: "s1", StudentID: "u1", Status: models.AttendanceStatusPresent}
	signature := &models.Signature{StudentID: "u1", Payload: "sig"}
	err := repo.CreateWithSignature(context.Background(), record, signature)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("present", 2).
		AddRow("late", 1)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status, COUNT(*) AS count FROM attendance_records WHERE session_id = $1 GROUP BY status")).
		WithArgs("s1").
		WillReturnRows(rows)

	counts, err := repo.CountByStatus(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[models.AttendanceStatusPresent])
	assert.Equal(t, 1, counts[models.AttendanceStatusLate])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSignature(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewRecordRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, payload, created_at FROM signatures WHERE id = $1 LIMIT 1")).
		WithArgs("sig1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "payload", "created_at"}).
			AddRow("sig1", "u1", "data:image/png;base64,iVBORw0", time.Now()))

	signature, err := repo.FindSignature(context.Background(), "sig1")
	require.NoError(t, err)
	assert.Equal(t, "u1", signature.StudentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
