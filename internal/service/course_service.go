package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/dualsign/attendance-api/internal/models"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
)

type courseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	List(ctx context.Context, filter models.CourseFilter) ([]models.CourseDetail, error)
	Create(ctx context.Context, course *models.Course) error
}

type courseUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseClassroomRepository interface {
	FindByID(ctx context.Context, id string) (*models.Classroom, error)
}

// CourseService manages the course catalog.
type CourseService struct {
	repo       courseRepository
	users      courseUserRepository
	classrooms courseClassroomRepository
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, users courseUserRepository, classrooms courseClassroomRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, classrooms: classrooms, validator: validate, logger: logger}
}

// CreateCourseRequest carries the course creation payload.
type CreateCourseRequest struct {
	Name        string  `json:"name" validate:"required"`
	TeacherID   string  `json:"teacher_id" validate:"required"`
	ClassroomID string  `json:"classroom_id" validate:"required"`
	Description *string `json:"description"`
}

// List returns courses; teachers see only their own.
func (s *CourseService) List(ctx context.Context, caller *models.JWTClaims, teacherID string) ([]models.CourseDetail, error) {
	filter := models.CourseFilter{}
	if caller != nil && caller.Role == models.RoleTeacher {
		filter.TeacherID = caller.UserID
	} else if teacherID != "" {
		filter.TeacherID = teacherID
	}

	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Get returns a single course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course after validating its teacher and classroom.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
	}

	if _, err := s.classrooms.FindByID(ctx, req.ClassroomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "classroom not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classroom")
	}

	course := &models.Course{
		Name:        req.Name,
		TeacherID:   req.TeacherID,
		ClassroomID: req.ClassroomID,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("teacher_id", course.TeacherID))
	return course, nil
}
