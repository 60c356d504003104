package models

import "time"

// ContentType classifies how a lesson is delivered.
type ContentType string

const (
	ContentVideo       ContentType = "video"
	ContentText        ContentType = "text"
	ContentInteractive ContentType = "interactive"
	ContentQuiz        ContentType = "quiz"
)

// ResourceType classifies a lesson material.
type ResourceType string

const (
	ResourcePDF          ResourceType = "pdf"
	ResourceVideo        ResourceType = "video"
	ResourceLink         ResourceType = "link"
	ResourceDocument     ResourceType = "document"
	ResourcePresentation ResourceType = "presentation"
)

// NormalizeResourceType maps a stored value onto the closed resource type set.
// Unrecognized values deliberately fall back to document rather than leaking
// arbitrary strings to clients.
func NormalizeResourceType(raw string) ResourceType {
	switch ResourceType(raw) {
	case ResourcePDF:
		return ResourcePDF
	case ResourceVideo:
		return ResourceVideo
	case ResourceLink:
		return ResourceLink
	case ResourceDocument:
		return ResourceDocument
	case ResourcePresentation:
		return ResourcePresentation
	default:
		return ResourceDocument
	}
}

// Module groups lessons within a course. Display order is governed by the
// explicit order index, never by creation time.
type Module struct {
	ID                     string   `db:"id" json:"id"`
	CourseID               string   `db:"course_id" json:"course_id"`
	Title                  string   `db:"title" json:"title"`
	Description            *string  `db:"description" json:"description,omitempty"`
	OrderIndex             int      `db:"order_index" json:"order_index"`
	Status                 *string  `db:"status" json:"status,omitempty"`
	EstimatedDurationHours *float64 `db:"estimated_duration_hours" json:"estimated_duration_hours,omitempty"`
	Lessons                []Lesson `json:"lessons"`
}

// Lesson belongs to a module. The live-session fields are populated only for
// lessons taught synchronously.
type Lesson struct {
	ID              string      `db:"id" json:"id"`
	ModuleID        string      `db:"module_id" json:"module_id"`
	Title           string      `db:"title" json:"title"`
	Description     *string     `db:"description" json:"description,omitempty"`
	Content         *string     `db:"content" json:"content,omitempty"`
	ContentType     ContentType `db:"content_type" json:"content_type"`
	LessonDate      *time.Time  `db:"lesson_date" json:"lesson_date,omitempty"`
	OrderIndex      int         `db:"order_index" json:"order_index"`
	DurationMinutes *int        `db:"duration_minutes" json:"duration_minutes,omitempty"`
	IsLive          bool        `db:"is_live" json:"is_live"`
	MeetingLink     *string     `db:"meeting_link" json:"meeting_link,omitempty"`
	SessionTime     *time.Time  `db:"session_time" json:"session_time,omitempty"`
	Materials       []Material  `json:"materials"`
}

// Material is a downloadable or linked resource attached to a lesson.
type Material struct {
	ID           string       `db:"id" json:"id"`
	LessonID     string       `db:"lesson_id" json:"lesson_id"`
	Title        string       `db:"title" json:"title"`
	Description  *string      `db:"description" json:"description,omitempty"`
	ResourceType ResourceType `db:"resource_type" json:"resource_type"`
	ResourceURL  string       `db:"resource_url" json:"resource_url"`
	OrderIndex   int          `db:"order_index" json:"order_index"`
}
