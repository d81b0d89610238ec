package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualsign/attendance-api/internal/models"
)

func sessionRows(id, courseID string, active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{"id", "course_id", "name", "start_time", "end_time", "active", "daily_sequence", "created_at"}).
		AddRow(id, courseID, "Algebra 2026-03-02 签到", now, nil, active, 1, now)
}

func TestFindActiveByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_sessions WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("s1").
		WillReturnRows(sessionRows("s1", "c1", true))

	session, err := repo.FindActiveByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, session.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByIDClosed(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM attendance_sessions WHERE id = $1 AND active = TRUE LIMIT 1")).
		WithArgs("s-closed").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByID(context.Background(), "s-closed")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByCourseAndDate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	day := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE course_id = $1 AND DATE(start_time) = $2 ORDER BY start_time ASC LIMIT 1")).
		WithArgs("c1", "2026-03-02").
		WillReturnRows(sessionRows("s1", "c1", true))

	session, err := repo.FindByCourseAndDate(context.Background(), "c1", day)
	require.NoError(t, err)
	assert.Equal(t, "c1", session.CourseID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsTeacherScope(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("JOIN courses c ON c.id = s.course_id WHERE c.teacher_id = $1 ORDER BY s.start_time DESC")).
		WithArgs("t1").
		WillReturnRows(sessionRows("s1", "c1", true))

	sessions, err := repo.List(context.Background(), models.SessionFilter{TeacherID: "t1"})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSessionDefaults(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO attendance_sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.AttendanceSession{CourseID: "c1", Name: "Algebra 2026-03-02 签到", StartTime: time.Now(), Active: true}
	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, 1, session.DailySequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendance_sessions SET active = FALSE, end_time = $2 WHERE id = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Close(context.Background(), "s1", time.Now())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
