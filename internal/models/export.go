package models

import "time"

// ExportFormat selects the rendered roster file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ValidExportFormat reports whether the raw value names a known format.
func ValidExportFormat(raw string) bool {
	switch ExportFormat(raw) {
	case ExportFormatCSV, ExportFormatPDF:
		return true
	}
	return false
}

// ExportStatus is the lifecycle of a roster export job.
type ExportStatus string

const (
	ExportStatusPending    ExportStatus = "pending"
	ExportStatusProcessing ExportStatus = "processing"
	ExportStatusCompleted  ExportStatus = "completed"
	ExportStatusFailed     ExportStatus = "failed"
)

// ExportJob tracks one roster export from request to download. The job state
// lives in Redis with a TTL; the rendered file sits on disk and is reachable
// only through the signed download token.
type ExportJob struct {
	ID          string       `json:"id"`
	CourseID    string       `json:"course_id"`
	CourseCode  string       `json:"course_code"`
	CourseTitle string       `json:"course_title"`
	Format      ExportFormat `json:"format"`
	Status      ExportStatus `json:"status"`
	RequestedBy string       `json:"requested_by"`
	FileName    string       `json:"file_name,omitempty"`
	Token       string       `json:"token,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
}
