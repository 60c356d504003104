package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
)

type enrollmentLedger interface {
	Enroll(ctx context.Context, studentID, courseID string) (bool, error)
	Drop(ctx context.Context, studentID, courseID string) (bool, error)
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
}

type courseStatusReader interface {
	FindStatus(ctx context.Context, courseID string) (models.CourseStatus, error)
}

// EnrollmentService guards the enrollment ledger behind the student role.
// All ledger writes go through here; the counter bookkeeping itself lives in
// the repository transaction.
type EnrollmentService struct {
	ledger  enrollmentLedger
	courses courseStatusReader
	metrics *MetricsService
	logger  *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(ledger enrollmentLedger, courses courseStatusReader, logger *zap.Logger) *EnrollmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{ledger: ledger, courses: courses, logger: logger}
}

// AttachMetrics wires the collector counting ledger transactions. The nil
// default keeps the service usable without instrumentation.
func (s *EnrollmentService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// studentID resolves the acting student identity from the claims. Any caller
// that is not a student with a linked student record is rejected.
func studentID(claims *models.JWTClaims) (string, *appErrors.Error) {
	if claims == nil {
		return "", appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleStudent || claims.StudentID == nil || *claims.StudentID == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "only students can manage their enrollments")
	}
	return *claims.StudentID, nil
}

// Enroll activates the caller's enrollment in a course. Enrolling twice is a
// conflict, not an error path that mutates anything.
func (s *EnrollmentService) Enroll(ctx context.Context, claims *models.JWTClaims, courseID string) error {
	sid, authErr := studentID(claims)
	if authErr != nil {
		return authErr
	}

	status, err := s.courses.FindStatus(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if status != models.CourseStatusActive {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "course is not open for enrollment")
	}

	created, err := s.ledger.Enroll(ctx, sid, courseID)
	if err != nil {
		s.metrics.ObserveEnrollment("enroll", "error")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll in course")
	}
	if !created {
		s.metrics.ObserveEnrollment("enroll", "noop")
		return appErrors.Clone(appErrors.ErrConflict, "already enrolled in this course")
	}
	s.metrics.ObserveEnrollment("enroll", "applied")
	s.logger.Info("student enrolled", zap.String("student_id", sid), zap.String("course_id", courseID))
	return nil
}

// Drop deactivates the caller's enrollment in a course.
func (s *EnrollmentService) Drop(ctx context.Context, claims *models.JWTClaims, courseID string) error {
	sid, authErr := studentID(claims)
	if authErr != nil {
		return authErr
	}

	if _, err := s.courses.FindStatus(ctx, courseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	dropped, err := s.ledger.Drop(ctx, sid, courseID)
	if err != nil {
		s.metrics.ObserveEnrollment("drop", "error")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to drop course")
	}
	if !dropped {
		s.metrics.ObserveEnrollment("drop", "noop")
		return appErrors.Clone(appErrors.ErrConflict, "not enrolled in this course")
	}
	s.metrics.ObserveEnrollment("drop", "applied")
	s.logger.Info("student dropped course", zap.String("student_id", sid), zap.String("course_id", courseID))
	return nil
}

// MyEnrollments lists the caller's active enrollments with course context.
func (s *EnrollmentService) MyEnrollments(ctx context.Context, claims *models.JWTClaims) ([]models.EnrollmentDetail, error) {
	sid, authErr := studentID(claims)
	if authErr != nil {
		return nil, authErr
	}
	enrollments, err := s.ledger.ListActiveByStudent(ctx, sid)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	if enrollments == nil {
		enrollments = []models.EnrollmentDetail{}
	}
	return enrollments, nil
}
