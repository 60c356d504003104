package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// An enrollment is either active or dropped. Dropping never deletes the row;
// re-enrolling flips the same row back to active.
const (
	EnrollmentStatusActive  EnrollmentStatus = "active"
	EnrollmentStatusDropped EnrollmentStatus = "dropped"
)

// Enrollment captures a student's registration to a course. Exactly one row
// exists per (course, student) pair; the unique constraint on that pair is the
// serialization point for concurrent enroll calls.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	CourseID       string           `db:"course_id" json:"course_id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status         EnrollmentStatus `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with course context for listings.
type EnrollmentDetail struct {
	Enrollment
	CourseTitle string `db:"course_title" json:"course_title"`
	CourseCode  string `db:"course_code" json:"course_code"`
}

// RosterEntry is one student line in a course roster export.
type RosterEntry struct {
	StudentID      string    `db:"student_id" json:"student_id"`
	StudentName    string    `db:"student_name" json:"student_name"`
	StudentEmail   string    `db:"student_email" json:"student_email"`
	EnrollmentDate time.Time `db:"enrollment_date" json:"enrollment_date"`
}
