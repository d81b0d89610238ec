package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/dualsign/attendance-api/internal/models"
	appErrors "github.com/dualsign/attendance-api/pkg/errors"
)

type statsRecordRepository interface {
	CountByStatus(ctx context.Context, sessionID string) (map[models.AttendanceStatus]int, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceRecordDetail, error)
	FindSignature(ctx context.Context, id string) (*models.Signature, error)
}

type statsUserRepository interface {
	CountStudents(ctx context.Context) (int, error)
}

type statsSessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.AttendanceSession, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// StatsService derives per-session attendance statistics from finalized
// records and serves record listings for owners.
type StatsService struct {
	records  statsRecordRepository
	users    statsUserRepository
	sessions statsSessionRepository
	courses  sessionCourseRepository
	cache    statsCache
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewStatsService constructs the statistics service. A nil cache disables
// caching.
func NewStatsService(records statsRecordRepository, users statsUserRepository, sessions statsSessionRepository, courses sessionCourseRepository, cache statsCache, cacheTTL time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &StatsService{records: records, users: users, sessions: sessions, courses: courses, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

func statsCacheKey(sessionID string) string {
	return fmt.Sprintf("attendance:stats:%s", sessionID)
}

// Compute aggregates a session's records into counts and a rate.
//
// total_students is the system-wide student count, not a course roster; a
// roster entity does not exist in the data model. absent_count is derived as
// total_students minus everyone who signed, overriding explicit absent
// records. Both behaviours are inherited and kept intact.
func (s *StatsService) Compute(ctx context.Context, sessionID string, caller *models.JWTClaims) (*models.AttendanceStats, error) {
	if err := s.authorize(ctx, sessionID, caller); err != nil {
		return nil, err
	}

	if s.cache != nil {
		var cached models.AttendanceStats
		if err := s.cache.Get(ctx, statsCacheKey(sessionID), &cached); err == nil {
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	counts, err := s.records.CountByStatus(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count records")
	}

	totalStudents, err := s.users.CountStudents(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count students")
	}

	present := counts[models.AttendanceStatusPresent]
	late := counts[models.AttendanceStatusLate]
	earlyLeave := counts[models.AttendanceStatusEarlyLeave]
	signed := present + late + earlyLeave

	rate := 0.0
	if totalStudents > 0 {
		rate = math.Round(float64(signed)/float64(totalStudents)*100*100) / 100
	}

	stats := &models.AttendanceStats{
		TotalStudents:   totalStudents,
		PresentCount:    present,
		AbsentCount:     totalStudents - signed,
		LateCount:       late,
		EarlyLeaveCount: earlyLeave,
		AttendanceRate:  rate,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey(sessionID), stats, s.cacheTTL); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
	}

	return stats, nil
}

// ListRecords returns a session's records joined with display fields.
func (s *StatsService) ListRecords(ctx context.Context, sessionID string, caller *models.JWTClaims) ([]models.AttendanceRecordDetail, error) {
	if err := s.authorize(ctx, sessionID, caller); err != nil {
		return nil, err
	}

	records, err := s.records.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}
	return records, nil
}

// GetSignature returns the stored signature payload for a record.
func (s *StatsService) GetSignature(ctx context.Context, signatureID string) (*models.Signature, error) {
	signature, err := s.records.FindSignature(ctx, signatureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "signature not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load signature")
	}
	return signature, nil
}

// Invalidate drops the cached statistics for a session after a write.
func (s *StatsService) Invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, statsCacheKey(sessionID)); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *StatsService) authorize(ctx context.Context, sessionID string, caller *models.JWTClaims) error {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	course, err := s.courses.FindByID(ctx, session.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	if !canAccess(caller, course.TeacherID) {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	return nil
}
