package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/cdil-edu/lms-api/internal/models"
)

// AttendanceRepository persists per-lesson attendance and derives per-course
// stats from it.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// ListByStudentAndCourse returns a student's attendance records within a
// course, newest lesson first.
func (r *AttendanceRepository) ListByStudentAndCourse(ctx context.Context, studentID, courseID string) ([]models.AttendanceRecord, error) {
	const query = `SELECT sa.id, sa.student_id, sa.lesson_id, sa.course_id, sa.status, sa.marked_at,
        sa.marked_by, sa.notes, l.title AS lesson_title, l.lesson_date, m.title AS module_title
        FROM student_lesson_attendance sa
        JOIN lessons l ON l.id = sa.lesson_id
        JOIN modules m ON m.id = l.module_id
        WHERE sa.student_id = $1 AND sa.course_id = $2
        ORDER BY l.lesson_date DESC NULLS LAST`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return records, nil
}

// Stats summarises a student's attendance for a course. A course with zero
// lessons yields a zero progress percentage rather than a division error.
func (r *AttendanceRepository) Stats(ctx context.Context, studentID, courseID string) (*models.AttendanceStats, error) {
	const query = `SELECT
        $2::text AS course_id,
        $1::text AS student_id,
        (SELECT COUNT(*) FROM lessons l JOIN modules m ON m.id = l.module_id WHERE m.course_id = $2) AS total_lessons,
        COUNT(*) FILTER (WHERE sa.status = 'present') AS present_count,
        COUNT(*) FILTER (WHERE sa.status = 'absent') AS absent_count,
        COUNT(*) FILTER (WHERE sa.status = 'excused') AS excused_count,
        COUNT(*) FILTER (WHERE sa.status = 'late') AS late_count
        FROM student_lesson_attendance sa
        WHERE sa.student_id = $1 AND sa.course_id = $2`
	var stats models.AttendanceStats
	if err := r.db.GetContext(ctx, &stats, query, studentID, courseID); err != nil {
		return nil, fmt.Errorf("attendance stats: %w", err)
	}
	if stats.TotalLessons > 0 {
		stats.ProgressPercentage = roundTwo(float64(stats.PresentCount) / float64(stats.TotalLessons) * 100)
	}
	return &stats, nil
}

// Mark upserts the attendance status for one (student, lesson) pair.
func (r *AttendanceRepository) Mark(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.MarkedAt.IsZero() {
		record.MarkedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_lesson_attendance (id, student_id, lesson_id, course_id, status, marked_at, marked_by, notes)
        VALUES (:id, :student_id, :lesson_id, :course_id, :status, :marked_at, :marked_by, :notes)
        ON CONFLICT (student_id, lesson_id) DO UPDATE
        SET status = EXCLUDED.status, marked_at = EXCLUDED.marked_at, marked_by = EXCLUDED.marked_by, notes = EXCLUDED.notes`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	return nil
}

// LessonCourse resolves the owning course of a lesson.
func (r *AttendanceRepository) LessonCourse(ctx context.Context, lessonID string) (string, error) {
	const query = `SELECT m.course_id FROM lessons l JOIN modules m ON m.id = l.module_id WHERE l.id = $1`
	var courseID string
	if err := r.db.GetContext(ctx, &courseID, query, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", sql.ErrNoRows
		}
		return "", fmt.Errorf("resolve lesson course: %w", err)
	}
	return courseID, nil
}

func roundTwo(v float64) float64 {
	return math.Round(v*100) / 100
}
