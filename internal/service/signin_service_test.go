package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dualsign/attendance-api/internal/models"
	"github.com/dualsign/attendance-api/internal/repository"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
)

type mockSessionRepo struct {
	activeSession *models.AttendanceSession
	activeErr     error
}

func (m *mockSessionRepo) FindActiveByID(ctx context.Context, id string) (*models.AttendanceSession, error) {
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	return m.activeSession, nil
}

type mockStudentRepo struct {
	student *models.User
	err     error
}

func (m *mockStudentRepo) FindStudent(ctx context.Context, id string) (*models.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.student, nil
}

type mockRecordRepo struct {
	existing    *models.AttendanceRecord
	existingErr error
	createErr   error
	created     *models.AttendanceRecord
	signature   *models.Signature
}

func (m *mockRecordRepo) FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error) {
	if m.existingErr != nil {
		return nil, m.existingErr
	}
	return m.existing, nil
}

func (m *mockRecordRepo) CreateWithSignature(ctx context.Context, record *models.AttendanceRecord, signature *models.Signature) error {
	if m.createErr != nil {
		return m.createErr
	}
	record.ID = "r1"
	signature.ID = "sig1"
	record.SignatureID = signature.ID
	record.SignedInAt = time.Now()
	m.created = record
	m.signature = signature
	return nil
}

type mockResolver struct {
	session *models.AttendanceSession
	err     error
	calls   int
}

func (m *mockResolver) ResolveOrCreateToday(ctx context.Context, courseID string) (*models.AttendanceSession, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

type mockCourseRepo struct {
	course *models.Course
	err    error
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.course, nil
}

type mockInvalidator struct {
	sessionIDs []string
}

func (m *mockInvalidator) Invalidate(ctx context.Context, sessionID string) {
	m.sessionIDs = append(m.sessionIDs, sessionID)
}

func hashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func validSignInRequest() SignInRequest {
	return SignInRequest{
		StudentID:        "stu1",
		Password:         "secret",
		SignaturePayload: "data:image/png;base64,iVBORw0",
	}
}

func newSignInFixture(t *testing.T) (*SignInService, *mockSessionRepo, *mockRecordRepo, *mockInvalidator) {
	sessions := &mockSessionRepo{activeSession: &models.AttendanceSession{ID: "s1", CourseID: "c1", Active: true}}
	students := &mockStudentRepo{student: &models.User{ID: "stu1", Role: models.RoleStudent, PasswordHash: hashPassword(t, "secret")}}
	records := &mockRecordRepo{existingErr: sql.ErrNoRows}
	stats := &mockInvalidator{}
	svc := NewSignInService(sessions, nil, nil, students, records, stats, nil, nil)
	return svc, sessions, records, stats
}

func TestSignInSuccess(t *testing.T) {
	svc, _, records, stats := newSignInFixture(t)

	record, err := svc.SignIn(context.Background(), "s1", validSignInRequest())
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusPresent, record.Status)
	assert.Equal(t, "sig1", record.SignatureID)
	require.NotNil(t, records.signature)
	assert.Equal(t, "stu1", records.signature.StudentID)
	assert.Equal(t, []string{"s1"}, stats.sessionIDs)
}

func TestSignInClosedSession(t *testing.T) {
	svc, sessions, records, _ := newSignInFixture(t)
	sessions.activeErr = sql.ErrNoRows

	_, err := svc.SignIn(context.Background(), "s1", validSignInRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
	assert.Nil(t, records.created)
}

func TestSignInWrongPassword(t *testing.T) {
	svc, _, records, stats := newSignInFixture(t)

	req := validSignInRequest()
	req.Password = "wrong"
	_, err := svc.SignIn(context.Background(), "s1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	assert.Nil(t, records.created)
	assert.Nil(t, records.signature)
	assert.Empty(t, stats.sessionIDs)
}

func TestSignInUnknownStudent(t *testing.T) {
	svc, _, _, _ := newSignInFixture(t)
	svc.students = &mockStudentRepo{err: sql.ErrNoRows}

	_, err := svc.SignIn(context.Background(), "s1", validSignInRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSignInAlreadySignedIn(t *testing.T) {
	svc, _, records, _ := newSignInFixture(t)
	records.existingErr = nil
	records.existing = &models.AttendanceRecord{ID: "r0", SessionID: "s1", StudentID: "stu1"}

	_, err := svc.SignIn(context.Background(), "s1", validSignInRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Nil(t, records.created)
}

func TestSignInConcurrentDuplicate(t *testing.T) {
	svc, _, records, _ := newSignInFixture(t)
	records.createErr = repository.ErrDuplicateRecord

	_, err := svc.SignIn(context.Background(), "s1", validSignInRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSignInUnknownStatus(t *testing.T) {
	svc, _, _, _ := newSignInFixture(t)

	req := validSignInRequest()
	req.Status = "vanished"
	_, err := svc.SignIn(context.Background(), "s1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSignInExplicitStatus(t *testing.T) {
	svc, _, records, _ := newSignInFixture(t)

	req := validSignInRequest()
	req.Status = string(models.AttendanceStatusLate)
	record, err := svc.SignIn(context.Background(), "s1", req)
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceStatusLate, record.Status)
	assert.Equal(t, records.created, record)
}

func TestSignInForCourseResolvesSession(t *testing.T) {
	svc, _, records, _ := newSignInFixture(t)
	resolver := &mockResolver{session: &models.AttendanceSession{ID: "s-today", CourseID: "c1", Active: true}}
	svc.resolver = resolver
	svc.courses = &mockCourseRepo{course: &models.Course{ID: "c1", TeacherID: "t1"}}

	claims := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	record, err := svc.SignInForCourse(context.Background(), "c1", validSignInRequest(), claims)
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls)
	assert.Equal(t, "s-today", record.SessionID)
	assert.NotNil(t, records.created)
}

func TestSignInForCourseForbiddenForOtherTeacher(t *testing.T) {
	svc, _, records, _ := newSignInFixture(t)
	resolver := &mockResolver{session: &models.AttendanceSession{ID: "s-today", CourseID: "c1"}}
	svc.resolver = resolver
	svc.courses = &mockCourseRepo{course: &models.Course{ID: "c1", TeacherID: "t1"}}

	claims := &models.JWTClaims{UserID: "t2", Role: models.RoleTeacher}
	_, err := svc.SignInForCourse(context.Background(), "c1", validSignInRequest(), claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 0, resolver.calls)
	assert.Nil(t, records.created)
}

func TestSignInForCourseUnknownCourse(t *testing.T) {
	svc, _, _, _ := newSignInFixture(t)
	svc.resolver = &mockResolver{}
	svc.courses = &mockCourseRepo{err: sql.ErrNoRows}

	claims := &models.JWTClaims{UserID: "a1", Role: models.RoleAdmin}
	_, err := svc.SignInForCourse(context.Background(), "missing", validSignInRequest(), claims)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSignInMissingFields(t *testing.T) {
	svc, _, _, _ := newSignInFixture(t)

	_, err := svc.SignIn(context.Background(), "s1", SignInRequest{StudentID: "stu1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
