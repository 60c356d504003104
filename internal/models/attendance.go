package models

import "time"

// AttendanceStatus classifies a student's presence at one lesson.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceExcused AttendanceStatus = "excused"
	AttendanceLate    AttendanceStatus = "late"
)

// ValidAttendanceStatus reports whether the raw value is a known status.
func ValidAttendanceStatus(raw string) bool {
	switch AttendanceStatus(raw) {
	case AttendancePresent, AttendanceAbsent, AttendanceExcused, AttendanceLate:
		return true
	}
	return false
}

// AttendanceRecord associates a student with one lesson. Progress percentages
// are derived from present records over the course's total lesson count.
type AttendanceRecord struct {
	ID          string           `db:"id" json:"id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	LessonID    string           `db:"lesson_id" json:"lesson_id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	Status      AttendanceStatus `db:"status" json:"status"`
	MarkedAt    time.Time        `db:"marked_at" json:"marked_at"`
	MarkedBy    string           `db:"marked_by" json:"marked_by"`
	Notes       *string          `db:"notes" json:"notes,omitempty"`
	LessonTitle string           `db:"lesson_title" json:"lesson_title,omitempty"`
	LessonDate  *time.Time       `db:"lesson_date" json:"lesson_date,omitempty"`
	ModuleTitle string           `db:"module_title" json:"module_title,omitempty"`
}

// AttendanceStats summarises a student's attendance within one course.
type AttendanceStats struct {
	CourseID           string  `db:"course_id" json:"course_id"`
	StudentID          string  `db:"student_id" json:"student_id"`
	TotalLessons       int     `db:"total_lessons" json:"total_lessons"`
	PresentCount       int     `db:"present_count" json:"present_count"`
	AbsentCount        int     `db:"absent_count" json:"absent_count"`
	ExcusedCount       int     `db:"excused_count" json:"excused_count"`
	LateCount          int     `db:"late_count" json:"late_count"`
	ProgressPercentage float64 `db:"progress_percentage" json:"progress_percentage"`
}
