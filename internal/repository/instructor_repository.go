package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cdil-edu/lms-api/internal/models"
)

// InstructorRepository manages course-instructor assignments.
type InstructorRepository struct {
	db *sqlx.DB
}

// NewInstructorRepository constructs the repository.
func NewInstructorRepository(db *sqlx.DB) *InstructorRepository {
	return &InstructorRepository{db: db}
}

// ListByCourse returns a course's instructor assignments, primary first.
func (r *InstructorRepository) ListByCourse(ctx context.Context, courseID string) ([]models.CourseInstructor, error) {
	const query = `SELECT id, course_id, instructor_id, role, assigned_at
        FROM course_instructors
        WHERE course_id = $1
        ORDER BY CASE WHEN role = 'primary' THEN 0 ELSE 1 END, assigned_at ASC`
	var assignments []models.CourseInstructor
	if err := r.db.SelectContext(ctx, &assignments, query, courseID); err != nil {
		return nil, fmt.Errorf("list course instructors: %w", err)
	}
	return assignments, nil
}

// Assign links an instructor to a course. Promoting an assignment to primary
// demotes any existing primary in the same statement batch so at most one
// assignment per course carries the flag.
func (r *InstructorRepository) Assign(ctx context.Context, courseID, instructorID, role string) (*models.CourseInstructor, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin assign instructor: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if role == models.InstructorRolePrimary {
		const demote = `UPDATE course_instructors SET role = 'support' WHERE course_id = $1 AND role = 'primary'`
		if _, err := tx.ExecContext(ctx, demote, courseID); err != nil {
			return nil, fmt.Errorf("demote primary instructor: %w", err)
		}
	}

	assignment := &models.CourseInstructor{
		ID:           uuid.NewString(),
		CourseID:     courseID,
		InstructorID: instructorID,
		Role:         role,
		AssignedAt:   time.Now().UTC(),
	}
	const insert = `INSERT INTO course_instructors (id, course_id, instructor_id, role, assigned_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (course_id, instructor_id) DO UPDATE SET role = EXCLUDED.role`
	if _, err := tx.ExecContext(ctx, insert, assignment.ID, assignment.CourseID, assignment.InstructorID, assignment.Role, assignment.AssignedAt); err != nil {
		return nil, fmt.Errorf("assign instructor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit assign instructor: %w", err)
	}
	committed = true
	return assignment, nil
}
