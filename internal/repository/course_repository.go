package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cdil-edu/lms-api/internal/models"
)

// ErrDuplicateCourseCode marks a unique violation on the course code so the
// service layer can attribute the failure to the courseCode field.
var ErrDuplicateCourseCode = errors.New("course code already exists")

// CourseRepository assembles role-scoped course views and persists course
// records. The computed listing columns (module count, instructor name,
// enrollment annotations) are derived per query; nothing is cached.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseBaseColumns = `c.id, c.title, c.description, c.course_code, c.department_id, c.program,
        c.start_date, c.end_date, c.duration_weeks, c.status, c.difficulty_level, c.credit_hours,
        c.max_enrollment, c.current_enrollment, c.learning_outcomes, c.prerequisites, c.language,
        c.campus, c.delivery_mode, c.location, c.created_at, c.updated_at, c.created_by`

const moduleCountColumn = `(SELECT COUNT(*) FROM modules m WHERE m.course_id = c.id) AS module_count`

const departmentNameColumn = `(SELECT d.name FROM departments d WHERE d.id = c.department_id) AS department_name`

// The primary-flagged assignment wins; without one any assigned instructor is
// shown, and a course with no instructors yields NULL.
const instructorNameColumn = `(SELECT CONCAT(u.first_name, ' ', u.last_name)
        FROM course_instructors ci
        JOIN users u ON u.instructor_id = ci.instructor_id
        WHERE ci.course_id = c.id
        ORDER BY CASE WHEN ci.role = 'primary' THEN 0 ELSE 1 END, ci.assigned_at ASC
        LIMIT 1) AS instructor_name`

const activeEnrollmentCountColumn = `(SELECT COUNT(*) FROM course_enrollments ce
        WHERE ce.course_id = c.id AND ce.status = 'active') AS enrollment_count`

// studentColumns returns the viewer-scoped annotation fragments bound to the
// given positional argument. The student id is always passed as a query
// argument, never spliced into the text.
func studentColumns(argIndex int) string {
	return fmt.Sprintf(`EXISTS(SELECT 1 FROM course_enrollments ce
        WHERE ce.course_id = c.id AND ce.student_id = $%[1]d AND ce.status = 'active') AS is_enrolled,
        COALESCE(ROUND(
            (SELECT COUNT(*)::numeric FROM student_lesson_attendance sla
             JOIN lessons l ON l.id = sla.lesson_id
             JOIN modules m2 ON m2.id = l.module_id
             WHERE sla.student_id = $%[1]d AND m2.course_id = c.id AND sla.status = 'present')
            / NULLIF(
                (SELECT COUNT(*)::numeric FROM lessons l2
                 JOIN modules m3 ON m3.id = l2.module_id
                 WHERE m3.course_id = c.id), 0)
            * 100, 2), 0) AS progress_percentage`, argIndex)
}

// ListForStudent returns a page of active courses annotated for the given
// student, newest first. The matching count query is CountActive; both share
// the status predicate so page math stays consistent.
func (r *CourseRepository) ListForStudent(ctx context.Context, studentID string, page, pageSize int) ([]models.CourseWithDetails, error) {
	limit, offset := pageWindow(page, pageSize)
	query := fmt.Sprintf(`SELECT %s,
        %s,
        %s,
        %s,
        %s
        FROM courses c
        WHERE c.status = 'active'
        ORDER BY c.created_at DESC
        LIMIT $2 OFFSET $3`,
		courseBaseColumns, moduleCountColumn, departmentNameColumn, instructorNameColumn, studentColumns(1))

	var courses []models.CourseWithDetails
	if err := r.db.SelectContext(ctx, &courses, query, studentID, limit, offset); err != nil {
		return nil, fmt.Errorf("list courses for student: %w", err)
	}
	return shapeCourses(courses), nil
}

// CountActive returns the number of active courses.
func (r *CourseRepository) CountActive(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM courses WHERE status = 'active'`
	var total int
	if err := r.db.GetContext(ctx, &total, query); err != nil {
		return 0, fmt.Errorf("count active courses: %w", err)
	}
	return total, nil
}

// ListForInstructor returns a page of courses visible to the instructor's
// user id, annotated with active enrollment counts. With includeAll true the
// creator predicate is bypassed (admin view).
func (r *CourseRepository) ListForInstructor(ctx context.Context, creatorUserID string, includeAll bool, page, pageSize int) ([]models.CourseWithDetails, error) {
	limit, offset := pageWindow(page, pageSize)
	query := fmt.Sprintf(`SELECT %s,
        %s,
        %s,
        %s,
        %s
        FROM courses c
        WHERE (c.created_by = $1 OR $2 = TRUE)
        ORDER BY c.created_at DESC
        LIMIT $3 OFFSET $4`,
		courseBaseColumns, moduleCountColumn, departmentNameColumn, instructorNameColumn, activeEnrollmentCountColumn)

	var courses []models.CourseWithDetails
	if err := r.db.SelectContext(ctx, &courses, query, creatorUserID, includeAll, limit, offset); err != nil {
		return nil, fmt.Errorf("list courses for instructor: %w", err)
	}
	return shapeCourses(courses), nil
}

// CountForInstructor applies the identical visibility predicate as
// ListForInstructor.
func (r *CourseRepository) CountForInstructor(ctx context.Context, creatorUserID string, includeAll bool) (int, error) {
	const query = `SELECT COUNT(*) FROM courses c WHERE (c.created_by = $1 OR $2 = TRUE)`
	var total int
	if err := r.db.GetContext(ctx, &total, query, creatorUserID, includeAll); err != nil {
		return 0, fmt.Errorf("count courses for instructor: %w", err)
	}
	return total, nil
}

// FindDetail returns one course with computed fields. The student annotations
// are included only when a student id is supplied; the extra column fragments
// are selected by the parameter, caller data stays in the argument list.
func (r *CourseRepository) FindDetail(ctx context.Context, courseID string, studentID *string) (*models.CourseWithDetails, error) {
	columns := []string{courseBaseColumns, moduleCountColumn, departmentNameColumn, instructorNameColumn, activeEnrollmentCountColumn}
	args := []interface{}{courseID}
	if studentID != nil {
		args = append(args, *studentID)
		columns = append(columns, studentColumns(len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM courses c WHERE c.id = $1`, strings.Join(columns, ",\n        "))

	var course models.CourseWithDetails
	if err := r.db.GetContext(ctx, &course, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find course: %w", err)
	}
	shaped := shapeCourses([]models.CourseWithDetails{course})
	return &shaped[0], nil
}

// FindStatus returns the current lifecycle status of a course.
func (r *CourseRepository) FindStatus(ctx context.Context, courseID string) (models.CourseStatus, error) {
	const query = `SELECT status FROM courses WHERE id = $1`
	var status models.CourseStatus
	if err := r.db.GetContext(ctx, &status, query, courseID); err != nil {
		return "", err
	}
	return status, nil
}

// Create persists a new course. A unique violation on the course code is
// reported as ErrDuplicateCourseCode.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	course.CreatedAt = now
	course.UpdatedAt = now

	const query = `INSERT INTO courses (id, title, description, course_code, department_id, program,
        start_date, end_date, duration_weeks, status, difficulty_level, credit_hours, max_enrollment,
        current_enrollment, learning_outcomes, prerequisites, language, campus, delivery_mode, location,
        created_at, updated_at, created_by)
        VALUES (:id, :title, :description, :course_code, :department_id, :program,
        :start_date, :end_date, :duration_weeks, :status, :difficulty_level, :credit_hours, :max_enrollment,
        :current_enrollment, :learning_outcomes, :prerequisites, :language, :campus, :delivery_mode, :location,
        :created_at, :updated_at, :created_by)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		if isUniqueViolation(err, "course_code") {
			return ErrDuplicateCourseCode
		}
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a course. sql.ErrNoRows is returned
// when the course does not exist.
func (r *CourseRepository) Update(ctx context.Context, course *models.Course) error {
	course.UpdatedAt = time.Now().UTC()

	const query = `UPDATE courses SET title = :title, description = :description, course_code = :course_code,
        department_id = :department_id, program = :program, start_date = :start_date, end_date = :end_date,
        duration_weeks = :duration_weeks, status = :status, difficulty_level = :difficulty_level,
        credit_hours = :credit_hours, max_enrollment = :max_enrollment, learning_outcomes = :learning_outcomes,
        prerequisites = :prerequisites, language = :language, campus = :campus, delivery_mode = :delivery_mode,
        location = :location, updated_at = :updated_at
        WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, course)
	if err != nil {
		if isUniqueViolation(err, "course_code") {
			return ErrDuplicateCourseCode
		}
		return fmt.Errorf("update course: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update course: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// shapeCourses applies the Go-side derivations that do not come from the
// query, once per row.
func shapeCourses(courses []models.CourseWithDetails) []models.CourseWithDetails {
	for i := range courses {
		courses[i].PrerequisitesCount = models.PrerequisiteCount(courses[i].Prerequisites)
	}
	return courses
}

// pageWindow converts 1-based page arguments into a LIMIT/OFFSET pair.
func pageWindow(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = models.DefaultPageSize
	}
	return pageSize, (page - 1) * pageSize
}

func isUniqueViolation(err error, constraintFragment string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" && strings.Contains(pqErr.Constraint, constraintFragment)
	}
	return false
}
