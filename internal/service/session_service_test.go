package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dualsign/attendance-api/internal/models"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
)

type mockFullSessionRepo struct {
	byID       *models.AttendanceSession
	byIDErr    error
	byDate     *models.AttendanceSession
	byDateErr  error
	listed     []models.AttendanceSession
	listFilter models.SessionFilter
	created    *models.AttendanceSession
	createErr  error
	closedID   string
	closedAt   time.Time
}

func (m *mockFullSessionRepo) FindByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.byIDErr != nil {
		return nil, m.byIDErr
	}
	return m.byID, nil
}

func (m *mockFullSessionRepo) FindActiveByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	return m.FindByID(ctx, id)
}

func (m *mockFullSessionRepo) FindByCourseAndDate(ctx context.Context, courseID string, day time.Time) (*models.AttendanceSession, error) {
	if m.byDateErr != nil {
		return nil, m.byDateErr
	}
	return m.byDate, nil
}

func (m *mockFullSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.AttendanceSession, error) {
	m.listFilter = filter
	return m.listed, nil
}

func (m *mockFullSessionRepo) Create(ctx context.Context, session *models.AttendanceSession) error {
	if m.createErr != nil {
		return m.createErr
	}
	session.ID = "s-new"
	m.created = session
	return nil
}

func (m *mockFullSessionRepo) Close(ctx context.Context, id string, endTime time.Time) error {
	m.closedID = id
	m.closedAt = endTime
	return nil
}

func newSessionFixture(repo *mockFullSessionRepo, course *models.Course) *SessionService {
	svc := NewSessionService(repo, &mockCourseRepo{course: course}, nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC) }
	return svc
}

func teacherClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTeacher}
}

func TestCreateSessionOwner(t *testing.T) {
	repo := &mockFullSessionRepo{}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1", Name: "Algebra"})

	req := CreateSessionRequest{CourseID: "c1", Name: "Algebra morning", StartTime: time.Now()}
	session, err := svc.Create(context.Background(), req, teacherClaims("t1"))
	require.NoError(t, err)
	assert.True(t, session.Active)
	assert.Equal(t, "Algebra morning", session.Name)
}

func TestCreateSessionForbidden(t *testing.T) {
	repo := &mockFullSessionRepo{}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1"})

	req := CreateSessionRequest{CourseID: "c1", Name: "x", StartTime: time.Now()}
	_, err := svc.Create(context.Background(), req, teacherClaims("t2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Nil(t, repo.created)
}

func TestCreateSessionAdminBypassesOwnership(t *testing.T) {
	repo := &mockFullSessionRepo{}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1"})

	req := CreateSessionRequest{CourseID: "c1", Name: "x", StartTime: time.Now()}
	_, err := svc.Create(context.Background(), req, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	assert.NoError(t, err)
}

func TestResolveOrCreateTodayExisting(t *testing.T) {
	existing := &models.AttendanceSession{ID: "s1", CourseID: "c1"}
	repo := &mockFullSessionRepo{byDate: existing}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1", Name: "Algebra"})

	session, err := svc.ResolveOrCreateToday(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	assert.Nil(t, repo.created)
}

func TestResolveOrCreateTodayCreates(t *testing.T) {
	repo := &mockFullSessionRepo{byDateErr: sql.ErrNoRows}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1", Name: "Algebra"})

	session, err := svc.ResolveOrCreateToday(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Algebra 2026-03-02 签到", session.Name)
	assert.True(t, session.Active)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), session.StartTime)
	assert.NotNil(t, repo.created)
}

func TestCloseSessionOwner(t *testing.T) {
	repo := &mockFullSessionRepo{byID: &models.AttendanceSession{ID: "s1", CourseID: "c1", Active: true}}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1"})

	err := svc.Close(context.Background(), "s1", teacherClaims("t1"))
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.closedID)
	assert.False(t, repo.closedAt.IsZero())
}

func TestCloseSessionForbidden(t *testing.T) {
	repo := &mockFullSessionRepo{byID: &models.AttendanceSession{ID: "s1", CourseID: "c1"}}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1"})

	err := svc.Close(context.Background(), "s1", teacherClaims("t2"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.closedID)
}

func TestCloseSessionMissing(t *testing.T) {
	repo := &mockFullSessionRepo{byIDErr: sql.ErrNoRows}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1"})

	err := svc.Close(context.Background(), "missing", teacherClaims("t1"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestListSessionsScopesTeachers(t *testing.T) {
	repo := &mockFullSessionRepo{}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1"})

	_, err := svc.List(context.Background(), "c1", nil, teacherClaims("t1"))
	require.NoError(t, err)
	assert.Equal(t, "t1", repo.listFilter.TeacherID)
	assert.Equal(t, "c1", repo.listFilter.CourseID)
}

func TestListSessionsAdminUnscoped(t *testing.T) {
	repo := &mockFullSessionRepo{}
	svc := newSessionFixture(repo, &models.Course{ID: "c1", TeacherID: "t1"})

	_, err := svc.List(context.Background(), "", nil, &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Empty(t, repo.listFilter.TeacherID)
}
