package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
)

type mockLedger struct {
	active      map[string]bool // key studentID|courseID
	enrollCalls int
	dropCalls   int
	enrollments []models.EnrollmentDetail
}

func ledgerKey(studentID, courseID string) string { return studentID + "|" + courseID }

func (m *mockLedger) Enroll(ctx context.Context, studentID, courseID string) (bool, error) {
	m.enrollCalls++
	if m.active == nil {
		m.active = map[string]bool{}
	}
	key := ledgerKey(studentID, courseID)
	if m.active[key] {
		return false, nil
	}
	m.active[key] = true
	return true, nil
}

func (m *mockLedger) Drop(ctx context.Context, studentID, courseID string) (bool, error) {
	m.dropCalls++
	key := ledgerKey(studentID, courseID)
	if !m.active[key] {
		return false, nil
	}
	m.active[key] = false
	return true, nil
}

func (m *mockLedger) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.enrollments, nil
}

type mockCourseStatuses struct {
	statuses map[string]models.CourseStatus
}

func (m *mockCourseStatuses) FindStatus(ctx context.Context, courseID string) (models.CourseStatus, error) {
	status, ok := m.statuses[courseID]
	if !ok {
		return "", sql.ErrNoRows
	}
	return status, nil
}

func studentClaims(studentID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "usr-1", Role: models.RoleStudent, StudentID: &studentID}
}

func instructorClaims() *models.JWTClaims {
	instructorID := "ins-1"
	return &models.JWTClaims{UserID: "usr-2", Role: models.RoleInstructor, InstructorID: &instructorID}
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{"c1": models.CourseStatusActive}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())

	err := svc.Enroll(context.Background(), studentClaims("s1"), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.enrollCalls)
}

func TestEnrollmentServiceDoubleEnrollIsConflict(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{"c1": models.CourseStatusActive}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())

	require.NoError(t, svc.Enroll(context.Background(), studentClaims("s1"), "c1"))

	err := svc.Enroll(context.Background(), studentClaims("s1"), "c1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "already enrolled in this course", appErr.Message)
}

func TestEnrollmentServiceReEnrollAfterDrop(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{"c1": models.CourseStatusActive}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())

	claims := studentClaims("s1")
	require.NoError(t, svc.Enroll(context.Background(), claims, "c1"))
	require.NoError(t, svc.Drop(context.Background(), claims, "c1"))
	require.NoError(t, svc.Enroll(context.Background(), claims, "c1"))
}

func TestEnrollmentServiceDropWithoutEnrollment(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{"c1": models.CourseStatusActive}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())

	err := svc.Drop(context.Background(), studentClaims("s1"), "c1")
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
	assert.Equal(t, "not enrolled in this course", appErr.Message)
}

func TestEnrollmentServiceRejectsNonStudents(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{"c1": models.CourseStatusActive}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())

	err := svc.Enroll(context.Background(), instructorClaims(), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Zero(t, ledger.enrollCalls)
}

func TestEnrollmentServiceEnrollUnknownCourse(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())

	err := svc.Enroll(context.Background(), studentClaims("s1"), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestEnrollmentServiceEnrollDraftCourse(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{"c1": models.CourseStatusDraft}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())

	err := svc.Enroll(context.Background(), studentClaims("s1"), "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
	assert.Zero(t, ledger.enrollCalls)
}

func TestEnrollmentServiceCountsLedgerTransactions(t *testing.T) {
	ledger := &mockLedger{}
	courses := &mockCourseStatuses{statuses: map[string]models.CourseStatus{"c1": models.CourseStatusActive}}
	svc := NewEnrollmentService(ledger, courses, zap.NewNop())
	metrics := NewMetricsService()
	svc.AttachMetrics(metrics)

	claims := studentClaims("s1")
	require.NoError(t, svc.Enroll(context.Background(), claims, "c1"))
	require.Error(t, svc.Enroll(context.Background(), claims, "c1"))
	require.NoError(t, svc.Drop(context.Background(), claims, "c1"))
	require.Error(t, svc.Drop(context.Background(), claims, "c1"))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollTotal.WithLabelValues("enroll", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollTotal.WithLabelValues("enroll", "noop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollTotal.WithLabelValues("drop", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.enrollTotal.WithLabelValues("drop", "noop")))
}

func TestEnrollmentServiceMyEnrollments(t *testing.T) {
	ledger := &mockLedger{enrollments: []models.EnrollmentDetail{
		{Enrollment: models.Enrollment{ID: "e1", CourseID: "c1", StudentID: "s1", Status: models.EnrollmentStatusActive}, CourseTitle: "Databases", CourseCode: "CS-201"},
	}}
	svc := NewEnrollmentService(ledger, &mockCourseStatuses{}, zap.NewNop())

	enrollments, err := svc.MyEnrollments(context.Background(), studentClaims("s1"))
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, "CS-201", enrollments[0].CourseCode)
}
