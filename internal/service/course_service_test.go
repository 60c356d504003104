package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	"github.com/cdil-edu/lms-api/internal/repository"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
)

type mockCourseStore struct {
	studentCourses    []models.CourseWithDetails
	instructorCourses []models.CourseWithDetails
	activeTotal       int
	instructorTotal   int
	detail            *models.CourseWithDetails
	status            models.CourseStatus
	statusErr         error
	created           *models.Course
	updated           *models.Course
	createErr         error
	updateErr         error

	lastStudentID  string
	lastIncludeAll bool
}

func (m *mockCourseStore) ListForStudent(ctx context.Context, studentID string, page, pageSize int) ([]models.CourseWithDetails, error) {
	m.lastStudentID = studentID
	return m.studentCourses, nil
}

func (m *mockCourseStore) CountActive(ctx context.Context) (int, error) {
	return m.activeTotal, nil
}

func (m *mockCourseStore) ListForInstructor(ctx context.Context, creatorUserID string, includeAll bool, page, pageSize int) ([]models.CourseWithDetails, error) {
	m.lastIncludeAll = includeAll
	return m.instructorCourses, nil
}

func (m *mockCourseStore) CountForInstructor(ctx context.Context, creatorUserID string, includeAll bool) (int, error) {
	return m.instructorTotal, nil
}

func (m *mockCourseStore) FindDetail(ctx context.Context, courseID string, studentID *string) (*models.CourseWithDetails, error) {
	return m.detail, nil
}

func (m *mockCourseStore) FindStatus(ctx context.Context, courseID string) (models.CourseStatus, error) {
	if m.statusErr != nil {
		return "", m.statusErr
	}
	return m.status, nil
}

func (m *mockCourseStore) Create(ctx context.Context, course *models.Course) error {
	if m.createErr != nil {
		return m.createErr
	}
	course.ID = "course-new"
	m.created = course
	if m.detail == nil {
		m.detail = &models.CourseWithDetails{Course: *course}
	}
	return nil
}

func (m *mockCourseStore) Update(ctx context.Context, course *models.Course) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = course
	if m.detail == nil {
		m.detail = &models.CourseWithDetails{Course: *course}
	}
	return nil
}

type mockContent struct {
	modules []models.Module
}

func (m *mockContent) CourseTree(ctx context.Context, courseID string) ([]models.Module, error) {
	return m.modules, nil
}

func validInput() CourseInput {
	location := "Building A"
	return CourseInput{
		Title:        "Intro to Databases",
		CourseCode:   "CS-201",
		StartDate:    "2026-09-07",
		EndDate:      "2026-12-18",
		DeliveryMode: "in_person",
		Location:     &location,
	}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "usr-admin", Role: models.RoleAdmin}
}

func TestCourseServiceListDispatchesByRole(t *testing.T) {
	store := &mockCourseStore{
		studentCourses:    []models.CourseWithDetails{{Course: models.Course{ID: "c1"}}},
		instructorCourses: []models.CourseWithDetails{{Course: models.Course{ID: "c2"}}},
		activeTotal:       20,
		instructorTotal:   3,
	}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())

	courses, pagination, err := svc.List(context.Background(), studentClaims("s1"), 1, 9)
	require.NoError(t, err)
	assert.Equal(t, "c1", courses[0].ID)
	assert.Equal(t, "s1", store.lastStudentID)
	assert.Equal(t, 3, pagination.TotalPages)
	assert.Equal(t, 20, pagination.TotalCount)

	courses, _, err = svc.List(context.Background(), instructorClaims(), 1, 9)
	require.NoError(t, err)
	assert.Equal(t, "c2", courses[0].ID)
	assert.False(t, store.lastIncludeAll)

	_, _, err = svc.List(context.Background(), adminClaims(), 1, 9)
	require.NoError(t, err)
	assert.True(t, store.lastIncludeAll)
}

func TestCourseServiceGetDetailRollups(t *testing.T) {
	duration := func(minutes int) *int { return &minutes }
	store := &mockCourseStore{detail: &models.CourseWithDetails{Course: models.Course{ID: "c1"}}}
	content := &mockContent{modules: []models.Module{
		{ID: "m1", Lessons: []models.Lesson{
			{ID: "l1", DurationMinutes: duration(30)},
			{ID: "l2", DurationMinutes: duration(45)},
			{ID: "l3"},
		}},
		{ID: "m2", Lessons: []models.Lesson{
			{ID: "l4", DurationMinutes: duration(50)},
			{ID: "l5", DurationMinutes: duration(25)},
		}},
	}}
	svc := NewCourseService(store, content, zap.NewNop())

	detail, err := svc.GetDetail(context.Background(), studentClaims("s1"), "c1")
	require.NoError(t, err)
	assert.Equal(t, 5, detail.TotalLessons)
	assert.Equal(t, 150, detail.TotalDurationMinutes)
	assert.Len(t, detail.Modules, 2)
}

func TestCourseServiceGetDetailNotFound(t *testing.T) {
	svc := NewCourseService(&mockCourseStore{}, &mockContent{}, zap.NewNop())

	_, err := svc.GetDetail(context.Background(), studentClaims("s1"), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateRejectsEndBeforeStart(t *testing.T) {
	store := &mockCourseStore{}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())

	input := validInput()
	input.EndDate = input.StartDate

	_, err := svc.Create(context.Background(), instructorClaims(), input)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, "End date must be after start date", appErr.Fields["endDate"])
	assert.Nil(t, store.created)
}

func TestCourseServiceCreateRequiresLocationForInPerson(t *testing.T) {
	store := &mockCourseStore{}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())

	input := validInput()
	input.Location = nil

	_, err := svc.Create(context.Background(), instructorClaims(), input)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "location")
	assert.Nil(t, store.created)
}

func TestCourseServiceCreateOnlineWithoutLocation(t *testing.T) {
	store := &mockCourseStore{}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())

	input := validInput()
	input.DeliveryMode = "online"
	input.Location = nil

	created, err := svc.Create(context.Background(), instructorClaims(), input)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, models.CourseStatusDraft, store.created.Status)
	assert.Equal(t, "usr-2", store.created.CreatedBy)
}

type mockAssigner struct {
	assignments      []models.CourseInstructor
	lastCourseID     string
	lastInstructorID string
	lastRole         string
	called           bool
}

func (m *mockAssigner) Assign(ctx context.Context, courseID, instructorID, role string) (*models.CourseInstructor, error) {
	m.called = true
	m.lastCourseID = courseID
	m.lastInstructorID = instructorID
	m.lastRole = role
	return &models.CourseInstructor{CourseID: courseID, InstructorID: instructorID, Role: role}, nil
}

func (m *mockAssigner) ListByCourse(ctx context.Context, courseID string) ([]models.CourseInstructor, error) {
	return m.assignments, nil
}

func TestCourseServiceGetDetailIncludesInstructors(t *testing.T) {
	store := &mockCourseStore{detail: &models.CourseWithDetails{Course: models.Course{ID: "c1"}}}
	assigner := &mockAssigner{assignments: []models.CourseInstructor{
		{ID: "ci-1", CourseID: "c1", InstructorID: "ins-1", Role: models.InstructorRolePrimary},
		{ID: "ci-2", CourseID: "c1", InstructorID: "ins-2", Role: "support"},
	}}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())
	svc.AttachInstructors(assigner)

	detail, err := svc.GetDetail(context.Background(), studentClaims("s1"), "c1")
	require.NoError(t, err)
	require.Len(t, detail.Instructors, 2)
	assert.Equal(t, models.InstructorRolePrimary, detail.Instructors[0].Role)
	assert.Equal(t, "ins-2", detail.Instructors[1].InstructorID)
}

func TestCourseServiceCreateAssignsPrimaryInstructor(t *testing.T) {
	store := &mockCourseStore{}
	assigner := &mockAssigner{}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())
	svc.AttachInstructors(assigner)

	_, err := svc.Create(context.Background(), instructorClaims(), validInput())
	require.NoError(t, err)
	assert.True(t, assigner.called)
	assert.Equal(t, "course-new", assigner.lastCourseID)
	assert.Equal(t, "ins-1", assigner.lastInstructorID)
	assert.Equal(t, models.InstructorRolePrimary, assigner.lastRole)
}

func TestCourseServiceCreateByAdminSkipsAssignment(t *testing.T) {
	store := &mockCourseStore{}
	assigner := &mockAssigner{}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())
	svc.AttachInstructors(assigner)

	_, err := svc.Create(context.Background(), adminClaims(), validInput())
	require.NoError(t, err)
	assert.False(t, assigner.called)
}

func TestCourseServiceCreateBoundsChecks(t *testing.T) {
	store := &mockCourseStore{}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())

	badCredits := 11
	badMax := 0
	input := validInput()
	input.CreditHours = &badCredits
	input.MaxEnrollment = &badMax

	_, err := svc.Create(context.Background(), instructorClaims(), input)
	require.Error(t, err)
	fields := appErrors.FromError(err).Fields
	assert.Contains(t, fields, "creditHours")
	assert.Contains(t, fields, "maxEnrollment")
}

func TestCourseServiceCreateDuplicateCode(t *testing.T) {
	store := &mockCourseStore{createErr: repository.ErrDuplicateCourseCode}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())

	_, err := svc.Create(context.Background(), instructorClaims(), validInput())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "Course code already in use", appErr.Fields["courseCode"])
}

func TestCourseServiceCreateForbiddenForStudents(t *testing.T) {
	svc := NewCourseService(&mockCourseStore{}, &mockContent{}, zap.NewNop())

	_, err := svc.Create(context.Background(), studentClaims("s1"), validInput())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceUpdateStatusTransitions(t *testing.T) {
	cases := []struct {
		name    string
		current models.CourseStatus
		next    string
		allowed bool
	}{
		{"draft to active", models.CourseStatusDraft, "active", true},
		{"active to archived", models.CourseStatusActive, "archived", true},
		{"active to completed", models.CourseStatusActive, "completed", true},
		{"draft to archived", models.CourseStatusDraft, "archived", false},
		{"archived to active", models.CourseStatusArchived, "active", false},
		{"completed to draft", models.CourseStatusCompleted, "draft", false},
		{"same status", models.CourseStatusActive, "active", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := &mockCourseStore{status: tc.current}
			svc := NewCourseService(store, &mockContent{}, zap.NewNop())

			input := validInput()
			input.Status = tc.next

			_, err := svc.Update(context.Background(), instructorClaims(), "c1", input)
			if tc.allowed {
				require.NoError(t, err)
				require.NotNil(t, store.updated)
			} else {
				require.Error(t, err)
				assert.Contains(t, appErrors.FromError(err).Fields, "status")
				assert.Nil(t, store.updated)
			}
		})
	}
}

func TestCourseServiceUpdateMissingCourse(t *testing.T) {
	store := &mockCourseStore{statusErr: sql.ErrNoRows}
	svc := NewCourseService(store, &mockContent{}, zap.NewNop())

	_, err := svc.Update(context.Background(), instructorClaims(), "missing", validInput())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
