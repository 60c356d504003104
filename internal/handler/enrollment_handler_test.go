package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdil-edu/lms-api/internal/middleware"
	"github.com/cdil-edu/lms-api/internal/models"
	"github.com/cdil-edu/lms-api/internal/service"
)

type ledgerMock struct {
	enrollResult bool
	enrollErr    error
	dropResult   bool
	dropErr      error
	enrollments  []models.EnrollmentDetail

	enrollCalled bool
	lastStudent  string
	lastCourse   string
}

func (m *ledgerMock) Enroll(ctx context.Context, studentID, courseID string) (bool, error) {
	m.enrollCalled = true
	m.lastStudent = studentID
	m.lastCourse = courseID
	return m.enrollResult, m.enrollErr
}

func (m *ledgerMock) Drop(ctx context.Context, studentID, courseID string) (bool, error) {
	return m.dropResult, m.dropErr
}

func (m *ledgerMock) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	return m.enrollments, nil
}

type courseStatusMock struct {
	status models.CourseStatus
	err    error
}

func (m *courseStatusMock) FindStatus(ctx context.Context, courseID string) (models.CourseStatus, error) {
	return m.status, m.err
}

func enrollmentTestContext(t *testing.T, method, path string, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func studentTestClaims() *models.JWTClaims {
	sid := "stu-1"
	return &models.JWTClaims{UserID: "usr-1", Role: models.RoleStudent, StudentID: &sid}
}

func TestEnrollmentHandlerEnroll(t *testing.T) {
	ledger := &ledgerMock{enrollResult: true}
	svc := service.NewEnrollmentService(ledger, &courseStatusMock{status: models.CourseStatusActive}, nil)
	handler := NewEnrollmentHandler(svc)

	c, w := enrollmentTestContext(t, http.MethodPost, "/courses/course-1/enroll", studentTestClaims())
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}

	handler.Enroll(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ledger.enrollCalled)
	assert.Equal(t, "stu-1", ledger.lastStudent)
	assert.Equal(t, "course-1", ledger.lastCourse)
}

func TestEnrollmentHandlerEnrollConflict(t *testing.T) {
	ledger := &ledgerMock{enrollResult: false}
	svc := service.NewEnrollmentService(ledger, &courseStatusMock{status: models.CourseStatusActive}, nil)
	handler := NewEnrollmentHandler(svc)

	c, w := enrollmentTestContext(t, http.MethodPost, "/courses/course-1/enroll", studentTestClaims())
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}

	handler.Enroll(c)

	require.Equal(t, http.StatusConflict, w.Code)

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "already enrolled in this course", body.Error.Message)
}

func TestEnrollmentHandlerEnrollWithoutClaims(t *testing.T) {
	ledger := &ledgerMock{}
	svc := service.NewEnrollmentService(ledger, &courseStatusMock{status: models.CourseStatusActive}, nil)
	handler := NewEnrollmentHandler(svc)

	c, w := enrollmentTestContext(t, http.MethodPost, "/courses/course-1/enroll", nil)
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}

	handler.Enroll(c)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, ledger.enrollCalled)
}

func TestEnrollmentHandlerDropNotEnrolled(t *testing.T) {
	ledger := &ledgerMock{dropResult: false}
	svc := service.NewEnrollmentService(ledger, &courseStatusMock{status: models.CourseStatusActive}, nil)
	handler := NewEnrollmentHandler(svc)

	c, w := enrollmentTestContext(t, http.MethodPost, "/courses/course-1/drop", studentTestClaims())
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}

	handler.Drop(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestEnrollmentHandlerMyEnrollments(t *testing.T) {
	ledger := &ledgerMock{enrollments: []models.EnrollmentDetail{
		{
			Enrollment:  models.Enrollment{ID: "enr-1", CourseID: "course-1", StudentID: "stu-1", Status: models.EnrollmentStatusActive},
			CourseTitle: "Introduction to Databases",
			CourseCode:  "CS-201",
		},
	}}
	svc := service.NewEnrollmentService(ledger, &courseStatusMock{status: models.CourseStatusActive}, nil)
	handler := NewEnrollmentHandler(svc)

	c, w := enrollmentTestContext(t, http.MethodGet, "/my/enrollments", studentTestClaims())

	handler.MyEnrollments(c)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data []models.EnrollmentDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "CS-201", body.Data[0].CourseCode)
}
