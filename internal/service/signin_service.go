package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/dualsign/attendance-api/internal/models"
	"github.com/dualsign/attendance-api/internal/repository"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
)

type signInSessionRepository interface {
	FindActiveByID(ctx context.Context, id string) (*models.AttendanceSession, error)
}

type signInStudentRepository interface {
	FindStudent(ctx context.Context, id string) (*models.User, error)
}

type signInRecordRepository interface {
	FindBySessionAndStudent(ctx context.Context, sessionID, studentID string) (*models.AttendanceRecord, error)
	CreateWithSignature(ctx context.Context, record *models.AttendanceRecord, signature *models.Signature) error
}

type sessionResolver interface {
	ResolveOrCreateToday(ctx context.Context, courseID string) (*models.AttendanceSession, error)
}

type statsInvalidator interface {
	Invalidate(ctx context.Context, sessionID string)
}

// SignInService performs the dual-verification sign-in: the student proves
// credential knowledge with a password and physical consent with a captured
// signature before a record is written.
type SignInService struct {
	sessions  signInSessionRepository
	resolver  sessionResolver
	courses   sessionCourseRepository
	students  signInStudentRepository
	records   signInRecordRepository
	stats     statsInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSignInService constructs the sign-in service.
func NewSignInService(
	sessions signInSessionRepository,
	resolver sessionResolver,
	courses sessionCourseRepository,
	students signInStudentRepository,
	records signInRecordRepository,
	stats statsInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
) *SignInService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignInService{
		sessions:  sessions,
		resolver:  resolver,
		courses:   courses,
		students:  students,
		records:   records,
		stats:     stats,
		validator: validate,
		logger:    logger,
	}
}

// SignInRequest carries the sign-in payload shared by both entry points.
type SignInRequest struct {
	StudentID        string  `json:"student_id" validate:"required"`
	Password         string  `json:"password" validate:"required"`
	SignaturePayload string  `json:"signature_data" validate:"required"`
	Status           string  `json:"status"`
	Notes            *string `json:"notes"`
}

// SignIn records a student's attendance against an explicit, open session.
func (s *SignInService) SignIn(ctx context.Context, sessionID string, req SignInRequest) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-in payload")
	}

	session, err := s.sessions.FindActiveByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found or closed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	return s.signIn(ctx, session, req)
}

// SignInForCourse records attendance against the course's implicit session for
// today, creating it on first use. Only the owning teacher or an admin may
// drive this entry point. The resolved session's active flag is deliberately
// not checked here; duplicate-record rules still apply.
func (s *SignInService) SignInForCourse(ctx context.Context, courseID string, req SignInRequest, caller *models.JWTClaims) (*models.AttendanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid sign-in payload")
	}

	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if !canAccess(caller, course.TeacherID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "sign-ins can only be taken for your own courses")
	}

	session, err := s.resolver.ResolveOrCreateToday(ctx, courseID)
	if err != nil {
		return nil, err
	}

	return s.signIn(ctx, session, req)
}

// signIn applies the shared contract: verify the student's identity and
// password, guard against duplicates, then write signature and record as one
// transactional unit.
func (s *SignInService) signIn(ctx context.Context, session *models.AttendanceSession, req SignInRequest) (*models.AttendanceRecord, error) {
	status := models.AttendanceStatusPresent
	if req.Status != "" {
		status = models.AttendanceStatus(req.Status)
		if !status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
		}
	}

	student, err := s.students.FindStudent(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	// Live re-authentication at sign-in time, independent of any session
	// token the HTTP caller holds.
	if err := bcrypt.CompareHashAndPassword([]byte(student.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "incorrect password")
	}

	if _, err := s.records.FindBySessionAndStudent(ctx, session.ID, student.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already signed in")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing record")
	}

	record := &models.AttendanceRecord{
		SessionID: session.ID,
		StudentID: student.ID,
		Status:    status,
		Notes:     req.Notes,
	}
	signature := &models.Signature{
		StudentID: student.ID,
		Payload:   req.SignaturePayload,
	}

	if err := s.records.CreateWithSignature(ctx, record, signature); err != nil {
		if errors.Is(err, repository.ErrDuplicateRecord) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "already signed in")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record sign-in")
	}

	if s.stats != nil {
		s.stats.Invalidate(ctx, session.ID)
	}

	s.logger.Info("sign-in recorded",
		zap.String("session_id", session.ID),
		zap.String("student_id", student.ID),
		zap.String("status", string(status)))
	return record, nil
}
