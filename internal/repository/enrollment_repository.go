package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cdil-edu/lms-api/internal/models"
)

// EnrollmentRepository is the enrollment ledger. It is the only writer of
// course_enrollments rows and of the denormalized courses.current_enrollment
// counter, and it always changes both inside one transaction so the counter
// can never drift from the active row count.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// Enroll activates an enrollment for the (course, student) pair and bumps the
// course counter. One row exists per pair: a fresh insert creates it active,
// a previously dropped row is flipped back to active, and an already-active
// row leaves the statement with zero rows returned, which is reported as a
// no-op rather than an error. The unique constraint on (course_id, student_id)
// serialises concurrent calls for the same pair.
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, courseID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin enroll: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const upsert = `INSERT INTO course_enrollments (id, course_id, student_id, enrollment_date, status)
VALUES ($1, $2, $3, $4, 'active')
ON CONFLICT (course_id, student_id) DO UPDATE
SET status = 'active', enrollment_date = EXCLUDED.enrollment_date
WHERE course_enrollments.status <> 'active'
RETURNING id`

	var enrollmentID string
	err = tx.QueryRowxContext(ctx, upsert, uuid.NewString(), courseID, studentID, time.Now().UTC()).Scan(&enrollmentID)
	if errors.Is(err, sql.ErrNoRows) {
		// already enrolled; nothing changed, so nothing to commit
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("enroll student: %w", err)
	}

	const bump = `UPDATE courses SET current_enrollment = current_enrollment + 1, updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, bump, courseID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("increment enrollment counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit enroll: %w", err)
	}
	committed = true
	return true, nil
}

// Drop flips the active enrollment for the pair to dropped and decrements the
// course counter, floored at zero. A pair with no active row is a no-op.
func (r *EnrollmentRepository) Drop(ctx context.Context, studentID, courseID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin drop: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	const flip = `UPDATE course_enrollments SET status = 'dropped'
WHERE course_id = $1 AND student_id = $2 AND status = 'active'
RETURNING id`

	var enrollmentID string
	err = tx.QueryRowxContext(ctx, flip, courseID, studentID).Scan(&enrollmentID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("drop enrollment: %w", err)
	}

	const lower = `UPDATE courses SET current_enrollment = GREATEST(current_enrollment - 1, 0), updated_at = $2 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, lower, courseID, time.Now().UTC()); err != nil {
		return false, fmt.Errorf("decrement enrollment counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit drop: %w", err)
	}
	committed = true
	return true, nil
}

// IsEnrolled reports whether the pair has an active enrollment.
func (r *EnrollmentRepository) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	const query = `SELECT 1 FROM course_enrollments WHERE course_id = $1 AND student_id = $2 AND status = 'active' LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, courseID, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// ActiveCount returns the number of active enrollment rows for a course.
func (r *EnrollmentRepository) ActiveCount(ctx context.Context, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM course_enrollments WHERE course_id = $1 AND status = 'active'`
	var count int
	if err := r.db.GetContext(ctx, &count, query, courseID); err != nil {
		return 0, fmt.Errorf("count active enrollments: %w", err)
	}
	return count, nil
}

// ListActiveByStudent returns a student's active enrollments with course
// context, newest first.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.course_id, e.student_id, e.enrollment_date, e.status,
        c.title AS course_title, c.course_code
        FROM course_enrollments e
        JOIN courses c ON c.id = e.course_id
        WHERE e.student_id = $1 AND e.status = 'active'
        ORDER BY e.enrollment_date DESC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student enrollments: %w", err)
	}
	return enrollments, nil
}

// ListRoster returns the active roster for a course ordered by student name,
// used by the roster export.
func (r *EnrollmentRepository) ListRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.student_id, CONCAT(u.first_name, ' ', u.last_name) AS student_name,
        u.email AS student_email, e.enrollment_date
        FROM course_enrollments e
        JOIN users u ON u.student_id = e.student_id
        WHERE e.course_id = $1 AND e.status = 'active'
        ORDER BY u.first_name ASC, u.last_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, courseID); err != nil {
		return nil, fmt.Errorf("list course roster: %w", err)
	}
	return roster, nil
}
