package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
)

type attendanceStore interface {
	ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.AttendanceRecord, error)
	Stats(ctx context.Context, studentID, courseID string) (*models.AttendanceStats, error)
	Mark(ctx context.Context, record *models.AttendanceRecord) error
	LessonCourse(ctx context.Context, lessonID string) (string, error)
}

// MarkAttendanceInput is the instructor payload for recording attendance on a
// lesson.
type MarkAttendanceInput struct {
	StudentID string  `json:"student_id"`
	Status    string  `json:"status"`
	Notes     *string `json:"notes"`
}

// AttendanceService exposes a student's own attendance and lets instructors
// record it per lesson.
type AttendanceService struct {
	attendance attendanceStore
	logger     *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(attendance attendanceStore, logger *zap.Logger) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{attendance: attendance, logger: logger}
}

// MyAttendance lists the caller's attendance records within a course.
func (s *AttendanceService) MyAttendance(ctx context.Context, claims *models.JWTClaims, courseID string) ([]models.AttendanceRecord, error) {
	sid, authErr := studentID(claims)
	if authErr != nil {
		return nil, authErr
	}
	records, err := s.attendance.ListByStudentAndCourse(ctx, sid, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

// MyStats summarises the caller's attendance for a course.
func (s *AttendanceService) MyStats(ctx context.Context, claims *models.JWTClaims, courseID string) (*models.AttendanceStats, error) {
	sid, authErr := studentID(claims)
	if authErr != nil {
		return nil, authErr
	}
	stats, err := s.attendance.Stats(ctx, sid, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance stats")
	}
	return stats, nil
}

// Mark records an attendance status for one student on one lesson. Marking the
// same pair again overwrites the previous status.
func (s *AttendanceService) Mark(ctx context.Context, claims *models.JWTClaims, lessonID string, input MarkAttendanceInput) (*models.AttendanceRecord, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleInstructor && claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can mark attendance")
	}

	fields := map[string]string{}
	if strings.TrimSpace(input.StudentID) == "" {
		fields["studentId"] = "Student id is required"
	}
	if !models.ValidAttendanceStatus(input.Status) {
		fields["status"] = "Status must be present, absent, excused, or late"
	}
	if len(fields) > 0 {
		return nil, appErrors.Validation(fields)
	}

	courseID, err := s.attendance.LessonCourse(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve lesson")
	}

	record := &models.AttendanceRecord{
		StudentID: input.StudentID,
		LessonID:  lessonID,
		CourseID:  courseID,
		Status:    models.AttendanceStatus(input.Status),
		MarkedBy:  claims.UserID,
		Notes:     input.Notes,
	}
	if err := s.attendance.Mark(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark attendance")
	}
	s.logger.Info("attendance marked",
		zap.String("lesson_id", lessonID),
		zap.String("student_id", input.StudentID),
		zap.String("status", input.Status))
	return record, nil
}
