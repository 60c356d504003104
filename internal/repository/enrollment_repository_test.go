package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

// The full conflict clause is pinned here: the upsert must re-activate a
// dropped (course, student) row and must not touch one that is already
// active. A plain DO NOTHING would satisfy a looser pattern while silently
// breaking re-enrollment.
const enrollUpsertPattern = `(?s)INSERT INTO course_enrollments \(id, course_id, student_id, enrollment_date, status\)` +
	`.*ON CONFLICT \(course_id, student_id\) DO UPDATE` +
	`\s+SET status = 'active', enrollment_date = EXCLUDED\.enrollment_date` +
	`\s+WHERE course_enrollments\.status <> 'active'` +
	`\s+RETURNING id`

func TestEnrollmentRepositoryEnrollCreatesRowAndBumpsCounter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(enrollUpsertPattern).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("enr-1"))
	mock.ExpectExec(`UPDATE courses SET current_enrollment = current_enrollment \+ 1`).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.Enroll(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollReactivatesDroppedRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	// A previously dropped pair hits the conflict branch: the row flips back
	// to active, RETURNING id fires, and the counter is bumped again.
	mock.ExpectBegin()
	mock.ExpectQuery(enrollUpsertPattern).
		WithArgs(sqlmock.AnyArg(), "course-1", "stu-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("enr-1"))
	mock.ExpectExec(`UPDATE courses SET current_enrollment = current_enrollment \+ 1`).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	created, err := repo.Enroll(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollAlreadyActiveIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(enrollUpsertPattern).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	created, err := repo.Enroll(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollCounterFailureRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(enrollUpsertPattern).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("enr-1"))
	mock.ExpectExec(`UPDATE courses SET current_enrollment = current_enrollment \+ 1`).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	created, err := repo.Enroll(context.Background(), "stu-1", "course-1")
	require.Error(t, err)
	require.False(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDropFlipsRowAndLowersCounter(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE course_enrollments SET status = 'dropped'`).
		WithArgs("course-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("enr-1"))
	mock.ExpectExec(`UPDATE courses SET current_enrollment = GREATEST\(current_enrollment - 1, 0\)`).
		WithArgs("course-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	dropped, err := repo.Drop(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, dropped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryDropWithoutActiveRowIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE course_enrollments SET status = 'dropped'`).
		WithArgs("course-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	dropped, err := repo.Drop(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.False(t, dropped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryIsEnrolled(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT 1 FROM course_enrollments`).
		WithArgs("course-1", "stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	enrolled, err := repo.IsEnrolled(context.Background(), "stu-1", "course-1")
	require.NoError(t, err)
	require.True(t, enrolled)

	mock.ExpectQuery(`SELECT 1 FROM course_enrollments`).
		WithArgs("course-1", "stu-2").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	enrolled, err = repo.IsEnrolled(context.Background(), "stu-2", "course-1")
	require.NoError(t, err)
	require.False(t, enrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryListRoster(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"student_id", "student_name", "student_email", "enrollment_date"}).
		AddRow("stu-1", "John Doe", "john.doe@student.cdil.edu", time.Now()).
		AddRow("stu-2", "Jane Smith", "jane.smith@student.cdil.edu", time.Now())
	mock.ExpectQuery(`FROM course_enrollments e`).
		WithArgs("course-1").
		WillReturnRows(rows)

	roster, err := repo.ListRoster(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, "John Doe", roster[0].StudentName)
	require.NoError(t, mock.ExpectationsWereMet())
}
