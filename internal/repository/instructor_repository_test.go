package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cdil-edu/lms-api/internal/models"
)

func TestInstructorRepositoryListByCoursePrimaryFirst(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "course_id", "instructor_id", "role", "assigned_at"}).
		AddRow("ci-1", "course-1", "ins-1", "primary", now).
		AddRow("ci-2", "course-1", "ins-2", "support", now)
	mock.ExpectQuery(`FROM course_instructors\s+WHERE course_id = \$1\s+ORDER BY CASE WHEN role = 'primary' THEN 0 ELSE 1 END`).
		WithArgs("course-1").
		WillReturnRows(rows)

	assignments, err := repo.ListByCourse(context.Background(), "course-1")
	require.NoError(t, err)
	require.Len(t, assignments, 2)
	require.Equal(t, models.InstructorRolePrimary, assignments[0].Role)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInstructorRepositoryAssignPrimaryDemotesExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewInstructorRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE course_instructors SET role = 'support' WHERE course_id = \$1 AND role = 'primary'`).
		WithArgs("course-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)INSERT INTO course_instructors .*ON CONFLICT \(course_id, instructor_id\) DO UPDATE SET role = EXCLUDED\.role`).
		WithArgs(sqlmock.AnyArg(), "course-1", "ins-2", "primary", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	assignment, err := repo.Assign(context.Background(), "course-1", "ins-2", models.InstructorRolePrimary)
	require.NoError(t, err)
	require.Equal(t, "ins-2", assignment.InstructorID)
	require.NoError(t, mock.ExpectationsWereMet())
}
