package models

import (
	"strings"
	"time"
)

// CourseStatus is the lifecycle state of a course.
type CourseStatus string

// Course lifecycle states. Draft courses become active, active courses end up
// archived or completed; both of those are terminal.
const (
	CourseStatusDraft     CourseStatus = "draft"
	CourseStatusActive    CourseStatus = "active"
	CourseStatusArchived  CourseStatus = "archived"
	CourseStatusCompleted CourseStatus = "completed"
)

// ValidCourseStatus reports whether the raw value names a known status.
func ValidCourseStatus(raw string) bool {
	switch CourseStatus(raw) {
	case CourseStatusDraft, CourseStatusActive, CourseStatusArchived, CourseStatusCompleted:
		return true
	}
	return false
}

// CanTransition reports whether a status change is permitted. Updates that
// keep the current status are always allowed.
func (s CourseStatus) CanTransition(to CourseStatus) bool {
	if s == to {
		return true
	}
	switch s {
	case CourseStatusDraft:
		return to == CourseStatusActive
	case CourseStatusActive:
		return to == CourseStatusArchived || to == CourseStatusCompleted
	default:
		return false
	}
}

// DeliveryMode describes how a course is taught.
type DeliveryMode string

const (
	DeliveryOnline   DeliveryMode = "online"
	DeliveryInPerson DeliveryMode = "in_person"
	DeliveryHybrid   DeliveryMode = "hybrid"
)

// RequiresLocation reports whether a physical location must be provided.
func (m DeliveryMode) RequiresLocation() bool {
	return m == DeliveryInPerson || m == DeliveryHybrid
}

// DifficultyLevel grades course difficulty.
type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

// Course is the authoritative course record. CurrentEnrollment is a
// denormalized counter owned exclusively by the enrollment ledger; it must
// always equal the number of active enrollment rows for the course.
type Course struct {
	ID                string           `db:"id" json:"id"`
	Title             string           `db:"title" json:"title"`
	Description       string           `db:"description" json:"description"`
	CourseCode        string           `db:"course_code" json:"course_code"`
	DepartmentID      *string          `db:"department_id" json:"department_id,omitempty"`
	Program           *string          `db:"program" json:"program,omitempty"`
	StartDate         time.Time        `db:"start_date" json:"start_date"`
	EndDate           time.Time        `db:"end_date" json:"end_date"`
	DurationWeeks     *int             `db:"duration_weeks" json:"duration_weeks,omitempty"`
	Status            CourseStatus     `db:"status" json:"status"`
	DifficultyLevel   *DifficultyLevel `db:"difficulty_level" json:"difficulty_level,omitempty"`
	CreditHours       *int             `db:"credit_hours" json:"credit_hours,omitempty"`
	MaxEnrollment     *int             `db:"max_enrollment" json:"max_enrollment,omitempty"`
	CurrentEnrollment int              `db:"current_enrollment" json:"current_enrollment"`
	LearningOutcomes  *string          `db:"learning_outcomes" json:"learning_outcomes,omitempty"`
	Prerequisites     *string          `db:"prerequisites" json:"prerequisites,omitempty"`
	Language          string           `db:"language" json:"language"`
	Campus            *string          `db:"campus" json:"campus,omitempty"`
	DeliveryMode      DeliveryMode     `db:"delivery_mode" json:"delivery_mode"`
	Location          *string          `db:"location" json:"location,omitempty"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
	CreatedBy         string           `db:"created_by" json:"created_by"`
}

// CourseWithDetails enriches Course with the computed listing fields. The
// student-only and instructor-only annotations are pointers so the JSON output
// omits whichever set does not apply to the viewer.
type CourseWithDetails struct {
	Course
	ModuleCount        int      `db:"module_count" json:"module_count"`
	DepartmentName     *string  `db:"department_name" json:"department_name,omitempty"`
	InstructorName     *string  `db:"instructor_name" json:"instructor_name,omitempty"`
	PrerequisitesCount int      `db:"-" json:"prerequisites_count"`
	IsEnrolled         *bool    `db:"is_enrolled" json:"is_enrolled,omitempty"`
	ProgressPercentage *float64 `db:"progress_percentage" json:"progress_percentage,omitempty"`
	EnrollmentCount    *int     `db:"enrollment_count" json:"enrollment_count,omitempty"`
}

// CourseDetail is the full record plus the assembled content tree and its
// rollups.
type CourseDetail struct {
	CourseWithDetails
	Modules              []Module           `json:"modules"`
	Instructors          []CourseInstructor `json:"instructors"`
	TotalLessons         int                `json:"total_lessons"`
	TotalDurationMinutes int                `json:"total_duration_minutes"`
}

// PrerequisiteCount derives the number of prerequisites from the free-text
// field. A nil, blank, or literal "None" value counts as zero; otherwise each
// comma-separated segment counts as one.
func PrerequisiteCount(prerequisites *string) int {
	if prerequisites == nil {
		return 0
	}
	trimmed := strings.TrimSpace(*prerequisites)
	if trimmed == "" || trimmed == "None" {
		return 0
	}
	return len(strings.Split(trimmed, ","))
}

// Department is a lookup entity referenced by courses.
type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// CourseInstructor links an instructor to a course. At most one assignment per
// course carries the primary role, which selects the displayed name.
type CourseInstructor struct {
	ID           string    `db:"id" json:"id"`
	CourseID     string    `db:"course_id" json:"course_id"`
	InstructorID string    `db:"instructor_id" json:"instructor_id"`
	Role         string    `db:"role" json:"role"`
	AssignedAt   time.Time `db:"assigned_at" json:"assigned_at"`
}

// InstructorRolePrimary flags the assignment whose instructor name is shown
// on course cards.
const InstructorRolePrimary = "primary"
