package service

import (
	"context"
	"database/sql"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
	"github.com/cdil-edu/lms-api/pkg/jobs"
	"github.com/cdil-edu/lms-api/pkg/storage"
)

type memoryStatusStore struct {
	jobs map[string]models.ExportJob
}

func newMemoryStatusStore() *memoryStatusStore {
	return &memoryStatusStore{jobs: map[string]models.ExportJob{}}
}

func (m *memoryStatusStore) Save(ctx context.Context, job *models.ExportJob) error {
	m.jobs[job.ID] = *job
	return nil
}

func (m *memoryStatusStore) Load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &job, nil
}

type mockRoster struct {
	entries []models.RosterEntry
	err     error
}

func (m *mockRoster) ListRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.entries, nil
}

type mockExportCourses struct {
	detail *models.CourseWithDetails
}

func (m *mockExportCourses) FindDetail(ctx context.Context, courseID string, studentID *string) (*models.CourseWithDetails, error) {
	return m.detail, nil
}

func newExportService(t *testing.T, status ExportStatusStore, roster rosterReader, courses exportCourseReader) *ExportService {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	return NewExportService(roster, courses, status, files, signer, ExportConfig{APIPrefix: "/api/v1"}, zap.NewNop())
}

func TestExportServiceRequestEnqueuesJob(t *testing.T) {
	status := newMemoryStatusStore()
	courses := &mockExportCourses{detail: &models.CourseWithDetails{Course: models.Course{ID: "c1", Title: "Databases", CourseCode: "CS-201"}}}
	svc := newExportService(t, status, &mockRoster{}, courses)

	queue := jobs.NewQueue("exports", func(ctx context.Context, job jobs.Job) error { return nil }, jobs.QueueConfig{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	svc.AttachQueue(queue)

	job, err := svc.Request(context.Background(), instructorClaims(), "c1", "csv")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusPending, job.Status)
	assert.Equal(t, "CS-201", job.CourseCode)

	stored, err := status.Load(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, stored.ID)
}

func TestExportServiceRequestRejectsStudents(t *testing.T) {
	svc := newExportService(t, newMemoryStatusStore(), &mockRoster{}, &mockExportCourses{})

	_, err := svc.Request(context.Background(), studentClaims("s1"), "c1", "csv")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceRequestRejectsUnknownFormat(t *testing.T) {
	svc := newExportService(t, newMemoryStatusStore(), &mockRoster{}, &mockExportCourses{})

	_, err := svc.Request(context.Background(), instructorClaims(), "c1", "xlsx")
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Fields, "format")
}

func TestExportServiceProcessJobRendersCSV(t *testing.T) {
	status := newMemoryStatusStore()
	roster := &mockRoster{entries: []models.RosterEntry{
		{StudentID: "s1", StudentName: "John Doe", StudentEmail: "john.doe@student.cdil.edu", EnrollmentDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
		{StudentID: "s2", StudentName: "Jane Smith", StudentEmail: "jane.smith@student.cdil.edu", EnrollmentDate: time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC)},
	}}
	svc := newExportService(t, status, roster, &mockExportCourses{})

	job := &models.ExportJob{
		ID:          "exp-1",
		CourseID:    "c1",
		CourseCode:  "CS-201",
		CourseTitle: "Databases",
		Format:      models.ExportFormatCSV,
		Status:      models.ExportStatusPending,
		RequestedBy: "usr-2",
	}
	require.NoError(t, svc.ProcessJob(context.Background(), jobs.Job{ID: job.ID, Type: "roster_export", Payload: job}))

	assert.Equal(t, models.ExportStatusCompleted, job.Status)
	assert.NotEmpty(t, job.Token)
	assert.True(t, strings.HasPrefix(job.DownloadURL, "/api/v1/exports/download?token="))

	exportID, relPath, err := svc.ParseToken(job.Token)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", exportID)

	file, err := svc.Open(relPath)
	require.NoError(t, err)
	defer file.Close()
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(content), "John Doe")
	assert.Contains(t, string(content), "jane.smith@student.cdil.edu")

	stored, err := status.Load(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusCompleted, stored.Status)
}

func TestExportServiceCountsJobOutcomes(t *testing.T) {
	status := newMemoryStatusStore()
	roster := &mockRoster{entries: []models.RosterEntry{
		{StudentID: "s1", StudentName: "John Doe", StudentEmail: "john.doe@student.cdil.edu", EnrollmentDate: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)},
	}}
	svc := newExportService(t, status, roster, &mockExportCourses{})
	metrics := NewMetricsService()
	svc.AttachMetrics(metrics)

	ok := &models.ExportJob{ID: "exp-1", CourseID: "c1", CourseCode: "CS-201", Format: models.ExportFormatCSV, RequestedBy: "usr-2"}
	require.NoError(t, svc.ProcessJob(context.Background(), jobs.Job{ID: ok.ID, Type: "roster_export", Payload: ok}))

	roster.err = context.DeadlineExceeded
	bad := &models.ExportJob{ID: "exp-2", CourseID: "c1", CourseCode: "CS-201", Format: models.ExportFormatCSV, RequestedBy: "usr-2"}
	require.Error(t, svc.ProcessJob(context.Background(), jobs.Job{ID: bad.ID, Type: "roster_export", Payload: bad}))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.exportTotal.WithLabelValues("csv", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.exportTotal.WithLabelValues("csv", "failed")))
}

func TestExportServiceStatusScopedToRequester(t *testing.T) {
	status := newMemoryStatusStore()
	svc := newExportService(t, status, &mockRoster{}, &mockExportCourses{})

	require.NoError(t, status.Save(context.Background(), &models.ExportJob{ID: "exp-1", RequestedBy: "usr-2"}))

	job, err := svc.Status(context.Background(), instructorClaims(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, "exp-1", job.ID)

	otherID := "ins-9"
	other := &models.JWTClaims{UserID: "usr-9", Role: models.RoleInstructor, InstructorID: &otherID}
	_, err = svc.Status(context.Background(), other, "exp-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.Status(context.Background(), adminClaims(), "exp-1")
	require.NoError(t, err)
}
