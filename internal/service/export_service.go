package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cdil-edu/lms-api/internal/models"
	appErrors "github.com/cdil-edu/lms-api/pkg/errors"
	"github.com/cdil-edu/lms-api/pkg/export"
	"github.com/cdil-edu/lms-api/pkg/jobs"
	"github.com/cdil-edu/lms-api/pkg/storage"
)

type rosterReader interface {
	ListRoster(ctx context.Context, courseID string) ([]models.RosterEntry, error)
}

type exportCourseReader interface {
	FindDetail(ctx context.Context, courseID string, studentID *string) (*models.CourseWithDetails, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportStatusStore keeps export job state keyed by job id.
type ExportStatusStore interface {
	Save(ctx context.Context, job *models.ExportJob) error
	Load(ctx context.Context, id string) (*models.ExportJob, error)
}

// RedisExportStatusStore stores export job state in Redis with a TTL, so
// finished and stale jobs age out without a cleanup pass.
type RedisExportStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisExportStatusStore constructs the store.
func NewRedisExportStatusStore(client *redis.Client, ttl time.Duration) *RedisExportStatusStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisExportStatusStore{client: client, ttl: ttl}
}

func exportJobKey(id string) string { return "export:job:" + id }

// Save writes the job state, refreshing its TTL.
func (s *RedisExportStatusStore) Save(ctx context.Context, job *models.ExportJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal export job: %w", err)
	}
	if err := s.client.Set(ctx, exportJobKey(job.ID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store export job: %w", err)
	}
	return nil
}

// Load reads the job state. redis.Nil is surfaced as sql.ErrNoRows so callers
// treat an aged-out job like a missing one.
func (s *RedisExportStatusStore) Load(ctx context.Context, id string) (*models.ExportJob, error) {
	payload, err := s.client.Get(ctx, exportJobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("load export job: %w", err)
	}
	var job models.ExportJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("unmarshal export job: %w", err)
	}
	return &job, nil
}

// ExportConfig tunes roster export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportService renders course rosters to CSV or PDF in the background and
// hands out signed download links.
type ExportService struct {
	roster  rosterReader
	courses exportCourseReader
	status  ExportStatusStore
	storage fileStorage
	csv     csvRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ExportConfig

	queue *jobs.Queue
}

// NewExportService constructs an ExportService.
func NewExportService(roster rosterReader, courses exportCourseReader, status ExportStatusStore, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		roster:  roster,
		courses: courses,
		status:  status,
		storage: files,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
}

// AttachQueue wires the background queue the service enqueues onto. The queue
// handler must be this service's ProcessJob.
func (s *ExportService) AttachQueue(queue *jobs.Queue) {
	s.queue = queue
}

// AttachMetrics wires the collector counting export job outcomes.
func (s *ExportService) AttachMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Request validates and enqueues a roster export for a course. The returned
// job is pending; its progress is polled via Status.
func (s *ExportService) Request(ctx context.Context, claims *models.JWTClaims, courseID, format string) (*models.ExportJob, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleInstructor && claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only instructors can export rosters")
	}
	if !models.ValidExportFormat(format) {
		return nil, appErrors.Validation(map[string]string{"format": "Format must be csv or pdf"})
	}

	course, err := s.courses.FindDetail(ctx, courseID, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if course == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}

	now := time.Now().UTC()
	job := &models.ExportJob{
		ID:          uuid.NewString(),
		CourseID:    courseID,
		CourseCode:  course.CourseCode,
		CourseTitle: course.Title,
		Format:      models.ExportFormat(format),
		Status:      models.ExportStatusPending,
		RequestedBy: claims.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.status.Save(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record export job")
	}

	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "export queue is not running")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "roster_export", Payload: job}); err != nil {
		job.Status = models.ExportStatusFailed
		job.Error = "export queue unavailable"
		job.UpdatedAt = time.Now().UTC()
		_ = s.status.Save(ctx, job)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export")
	}
	s.logger.Info("roster export requested",
		zap.String("export_id", job.ID),
		zap.String("course_id", courseID),
		zap.String("format", format))
	return job, nil
}

// Status returns the current state of an export job. Only the requester or an
// admin may see it.
func (s *ExportService) Status(ctx context.Context, claims *models.JWTClaims, exportID string) (*models.ExportJob, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	job, err := s.status.Load(ctx, exportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.RequestedBy != claims.UserID && claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export belongs to another user")
	}
	return job, nil
}

// ProcessJob is the queue handler. It renders the roster, persists the file,
// and publishes the signed download link on the job record.
func (s *ExportService) ProcessJob(ctx context.Context, queued jobs.Job) error {
	job, ok := queued.Payload.(*models.ExportJob)
	if !ok {
		return fmt.Errorf("unexpected export payload %T", queued.Payload)
	}

	job.Status = models.ExportStatusProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := s.status.Save(ctx, job); err != nil {
		s.logger.Warn("failed to mark export processing", zap.String("export_id", job.ID), zap.Error(err))
	}

	if err := s.generate(ctx, job); err != nil {
		job.Status = models.ExportStatusFailed
		job.Error = err.Error()
		job.UpdatedAt = time.Now().UTC()
		if saveErr := s.status.Save(ctx, job); saveErr != nil {
			s.logger.Warn("failed to mark export failed", zap.String("export_id", job.ID), zap.Error(saveErr))
		}
		s.metrics.ObserveExport(string(job.Format), "failed")
		return err
	}

	s.metrics.ObserveExport(string(job.Format), "completed")
	job.Status = models.ExportStatusCompleted
	job.Error = ""
	job.UpdatedAt = time.Now().UTC()
	if err := s.status.Save(ctx, job); err != nil {
		s.logger.Warn("failed to mark export completed", zap.String("export_id", job.ID), zap.Error(err))
	}
	s.logger.Info("roster export completed", zap.String("export_id", job.ID), zap.String("file", job.FileName))
	return nil
}

func (s *ExportService) generate(ctx context.Context, job *models.ExportJob) error {
	roster, err := s.roster.ListRoster(ctx, job.CourseID)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	rows := make([]map[string]string, 0, len(roster))
	for _, entry := range roster {
		rows = append(rows, map[string]string{
			"Student ID":    entry.StudentID,
			"Name":          entry.StudentName,
			"Email":         entry.StudentEmail,
			"Enrolled Date": entry.EnrollmentDate.UTC().Format("2006-01-02"),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student ID", "Name", "Email", "Enrolled Date"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Roster %s %s", job.CourseCode, job.CourseTitle)

	var payload []byte
	switch job.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return fmt.Errorf("render roster: %w", err)
	}

	filename := fmt.Sprintf("roster_%s_%s.%s",
		sanitizeFilename(job.CourseCode),
		time.Now().UTC().Format("20060102_150405"),
		job.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return fmt.Errorf("store roster file: %w", err)
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign download link: %w", err)
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	job.FileName = relPath
	job.Token = token
	job.DownloadURL = fmt.Sprintf("%s/exports/download?token=%s", prefix, token)
	job.ExpiresAt = &expiresAt
	return nil
}

// ParseToken validates a download token and returns the stored file path.
func (s *ExportService) ParseToken(token string) (exportID, relPath string, err error) {
	exportID, relPath, _, err = s.signer.Parse(token, false)
	if err != nil {
		return "", "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}
	return exportID, relPath, nil
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Cleanup removes rendered files older than ttl (the configured result TTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
