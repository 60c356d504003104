package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	"github.com/cdil-edu/lms-api/internal/repository"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
)

type courseStore interface {
	ListForStudent(ctx context.Context, studentID string, page, pageSize int) ([]models.CourseWithDetails, error)
	CountActive(ctx context.Context) (int, error)
	ListForInstructor(ctx context.Context, creatorUserID string, includeAll bool, page, pageSize int) ([]models.CourseWithDetails, error)
	CountForInstructor(ctx context.Context, creatorUserID string, includeAll bool) (int, error)
	FindDetail(ctx context.Context, courseID string, studentID *string) (*models.CourseWithDetails, error)
	FindStatus(ctx context.Context, courseID string) (models.CourseStatus, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
}

type contentReader interface {
	CourseTree(ctx context.Context, courseID string) ([]models.Module, error)
}

type instructorDirectory interface {
	Assign(ctx context.Context, courseID, instructorID, role string) (*models.CourseInstructor, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.CourseInstructor, error)
}

// CourseInput is the write payload for creating or updating a course. Dates
// arrive as YYYY-MM-DD strings and are validated before anything is persisted.
type CourseInput struct {
	Title            string  `json:"title"`
	Description      string  `json:"description"`
	CourseCode       string  `json:"course_code"`
	DepartmentID     *string `json:"department_id"`
	Program          *string `json:"program"`
	StartDate        string  `json:"start_date"`
	EndDate          string  `json:"end_date"`
	DurationWeeks    *int    `json:"duration_weeks"`
	Status           string  `json:"status"`
	DifficultyLevel  *string `json:"difficulty_level"`
	CreditHours      *int    `json:"credit_hours"`
	MaxEnrollment    *int    `json:"max_enrollment"`
	LearningOutcomes *string `json:"learning_outcomes"`
	Prerequisites    *string `json:"prerequisites"`
	Language         string  `json:"language"`
	Campus           *string `json:"campus"`
	DeliveryMode     string  `json:"delivery_mode"`
	Location         *string `json:"location"`
}

// CourseService assembles role-scoped course views and owns course writes.
// Write validation runs in full before any statement is issued, so a rejected
// payload never leaves a partial course behind.
type CourseService struct {
	courses     courseStore
	content     contentReader
	instructors instructorDirectory
	logger      *zap.Logger
}

// NewCourseService constructs CourseService.
func NewCourseService(courses courseStore, content contentReader, logger *zap.Logger) *CourseService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{courses: courses, content: content, logger: logger}
}

// AttachInstructors wires the assignment store used to link an instructor to
// the courses they create and to list a course's instructors on its detail.
func (s *CourseService) AttachInstructors(instructors instructorDirectory) {
	s.instructors = instructors
}

// List returns the course page appropriate to the caller's role. Students see
// active courses annotated with their own enrollment state; instructors see
// the courses they created with live enrollment counts; admins see everything.
func (s *CourseService) List(ctx context.Context, claims *models.JWTClaims, page, pageSize int) ([]models.CourseWithDetails, *models.Pagination, error) {
	if claims == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if pageSize <= 0 {
		pageSize = models.DefaultPageSize
	}

	var (
		courses []models.CourseWithDetails
		total   int
		err     error
	)
	switch claims.Role {
	case models.RoleStudent:
		sid, authErr := studentID(claims)
		if authErr != nil {
			return nil, nil, authErr
		}
		courses, err = s.courses.ListForStudent(ctx, sid, page, pageSize)
		if err == nil {
			total, err = s.courses.CountActive(ctx)
		}
	case models.RoleInstructor:
		courses, err = s.courses.ListForInstructor(ctx, claims.UserID, false, page, pageSize)
		if err == nil {
			total, err = s.courses.CountForInstructor(ctx, claims.UserID, false)
		}
	case models.RoleAdmin:
		courses, err = s.courses.ListForInstructor(ctx, claims.UserID, true, page, pageSize)
		if err == nil {
			total, err = s.courses.CountForInstructor(ctx, claims.UserID, true)
		}
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	if courses == nil {
		courses = []models.CourseWithDetails{}
	}
	return courses, models.NewPagination(page, pageSize, total), nil
}

// GetDetail returns one course with its full content tree and rollups. Lesson
// durations missing a value contribute zero to the total.
func (s *CourseService) GetDetail(ctx context.Context, claims *models.JWTClaims, courseID string) (*models.CourseDetail, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	var viewer *string
	if claims.Role == models.RoleStudent && claims.StudentID != nil && *claims.StudentID != "" {
		viewer = claims.StudentID
	}

	course, err := s.courses.FindDetail(ctx, courseID, viewer)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	modules, err := s.content.CourseTree(ctx, courseID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course content")
	}

	detail := &models.CourseDetail{CourseWithDetails: *course, Modules: modules}
	if s.instructors != nil {
		assignments, err := s.instructors.ListByCourse(ctx, courseID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course instructors")
		}
		detail.Instructors = assignments
	}
	for _, module := range modules {
		detail.TotalLessons += len(module.Lessons)
		for _, lesson := range module.Lessons {
			if lesson.DurationMinutes != nil {
				detail.TotalDurationMinutes += *lesson.DurationMinutes
			}
		}
	}
	return detail, nil
}

// Create validates and persists a new course owned by the caller. Courses are
// created as drafts unless the payload names another valid status.
func (s *CourseService) Create(ctx context.Context, claims *models.JWTClaims, input CourseInput) (*models.CourseWithDetails, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleInstructor && claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can create courses")
	}
	if input.Status == "" {
		input.Status = string(models.CourseStatusDraft)
	}

	course, fields := buildCourse(input)
	if len(fields) > 0 {
		return nil, appErrors.Validation(fields)
	}
	course.CreatedBy = claims.UserID

	if err := s.courses.Create(ctx, course); err != nil {
		if errors.Is(err, repository.ErrDuplicateCourseCode) {
			return nil, appErrors.FieldConflict("courseCode", "Course code already in use")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created",
		zap.String("course_id", course.ID),
		zap.String("course_code", course.CourseCode),
		zap.String("created_by", course.CreatedBy))

	// An instructor creating a course becomes its primary instructor; the
	// listing's instructor_name column reads from that assignment. The course
	// itself is already committed, so a failed assignment is logged, not fatal.
	if s.instructors != nil && claims.InstructorID != nil && *claims.InstructorID != "" {
		if _, err := s.instructors.Assign(ctx, course.ID, *claims.InstructorID, models.InstructorRolePrimary); err != nil {
			s.logger.Warn("failed to assign primary instructor",
				zap.String("course_id", course.ID),
				zap.String("instructor_id", *claims.InstructorID),
				zap.Error(err))
		}
	}

	created, err := s.courses.FindDetail(ctx, course.ID, nil)
	if err != nil || created == nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load created course")
	}
	return created, nil
}

// Update validates and rewrites an existing course. The status change is
// checked against the lifecycle transition table before any write.
func (s *CourseService) Update(ctx context.Context, claims *models.JWTClaims, courseID string, input CourseInput) (*models.CourseWithDetails, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleInstructor && claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can update courses")
	}

	current, err := s.courses.FindStatus(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if input.Status == "" {
		input.Status = string(current)
	}

	course, fields := buildCourse(input)
	if len(fields) == 0 && !current.CanTransition(course.Status) {
		fields = map[string]string{
			"status": fmt.Sprintf("Cannot change status from %s to %s", current, course.Status),
		}
	}
	if len(fields) > 0 {
		return nil, appErrors.Validation(fields)
	}
	course.ID = courseID

	if err := s.courses.Update(ctx, course); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateCourseCode):
			return nil, appErrors.FieldConflict("courseCode", "Course code already in use")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
		}
	}
	s.logger.Info("course updated", zap.String("course_id", courseID), zap.String("status", string(course.Status)))

	updated, err := s.courses.FindDetail(ctx, courseID, nil)
	if err != nil || updated == nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load updated course")
	}
	return updated, nil
}

const dateLayout = "2006-01-02"

// buildCourse converts a write payload into a course record, accumulating
// every field problem instead of stopping at the first one.
func buildCourse(input CourseInput) (*models.Course, map[string]string) {
	fields := map[string]string{}

	if strings.TrimSpace(input.Title) == "" {
		fields["title"] = "Title is required"
	}
	if strings.TrimSpace(input.CourseCode) == "" {
		fields["courseCode"] = "Course code is required"
	}

	var startDate, endDate time.Time
	var err error
	if input.StartDate == "" {
		fields["startDate"] = "Start date is required"
	} else if startDate, err = time.Parse(dateLayout, input.StartDate); err != nil {
		fields["startDate"] = "Start date must be formatted as YYYY-MM-DD"
	}
	if input.EndDate == "" {
		fields["endDate"] = "End date is required"
	} else if endDate, err = time.Parse(dateLayout, input.EndDate); err != nil {
		fields["endDate"] = "End date must be formatted as YYYY-MM-DD"
	}
	if !startDate.IsZero() && !endDate.IsZero() && !endDate.After(startDate) {
		fields["endDate"] = "End date must be after start date"
	}

	if !models.ValidCourseStatus(input.Status) {
		fields["status"] = "Unknown course status"
	}

	mode := models.DeliveryMode(input.DeliveryMode)
	switch mode {
	case models.DeliveryOnline, models.DeliveryInPerson, models.DeliveryHybrid:
	default:
		fields["deliveryMode"] = "Delivery mode must be online, in_person, or hybrid"
	}
	if mode.RequiresLocation() && (input.Location == nil || strings.TrimSpace(*input.Location) == "") {
		fields["location"] = "Location is required for in-person and hybrid courses"
	}

	var difficulty *models.DifficultyLevel
	if input.DifficultyLevel != nil {
		level := models.DifficultyLevel(*input.DifficultyLevel)
		switch level {
		case models.DifficultyBeginner, models.DifficultyIntermediate, models.DifficultyAdvanced:
			difficulty = &level
		default:
			fields["difficultyLevel"] = "Difficulty must be beginner, intermediate, or advanced"
		}
	}

	if input.CreditHours != nil && (*input.CreditHours < 1 || *input.CreditHours > 10) {
		fields["creditHours"] = "Credit hours must be between 1 and 10"
	}
	if input.MaxEnrollment != nil && (*input.MaxEnrollment < 1 || *input.MaxEnrollment > 1000) {
		fields["maxEnrollment"] = "Max enrollment must be between 1 and 1000"
	}

	if len(fields) > 0 {
		return nil, fields
	}

	language := input.Language
	if language == "" {
		language = "en"
	}
	return &models.Course{
		Title:            strings.TrimSpace(input.Title),
		Description:      input.Description,
		CourseCode:       strings.TrimSpace(input.CourseCode),
		DepartmentID:     input.DepartmentID,
		Program:          input.Program,
		StartDate:        startDate,
		EndDate:          endDate,
		DurationWeeks:    input.DurationWeeks,
		Status:           models.CourseStatus(input.Status),
		DifficultyLevel:  difficulty,
		CreditHours:      input.CreditHours,
		MaxEnrollment:    input.MaxEnrollment,
		LearningOutcomes: input.LearningOutcomes,
		Prerequisites:    input.Prerequisites,
		Language:         language,
		Campus:           input.Campus,
		DeliveryMode:     mode,
		Location:         input.Location,
	}, nil
}
