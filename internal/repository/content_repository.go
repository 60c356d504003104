package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/cdil-edu/lms-api/internal/models"
)

// ContentRepository reads the module -> lesson -> material tree for a course.
type ContentRepository struct {
	db *sqlx.DB
}

// NewContentRepository constructs the repository.
func NewContentRepository(db *sqlx.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// CourseTree assembles the full content tree for one course in three queries.
// Every level is ordered by its explicit order index, so the result is stable
// across calls. Lessons and materials are attached strictly by parent id:
// rows whose parent no longer exists simply never appear, and rows with null
// optional fields are kept intact.
func (r *ContentRepository) CourseTree(ctx context.Context, courseID string) ([]models.Module, error) {
	const modulesQuery = `SELECT id, course_id, title, description, order_index, status, estimated_duration_hours
        FROM modules WHERE course_id = $1 ORDER BY order_index ASC`
	var modules []models.Module
	if err := r.db.SelectContext(ctx, &modules, modulesQuery, courseID); err != nil {
		return nil, fmt.Errorf("list course modules: %w", err)
	}
	if len(modules) == 0 {
		return []models.Module{}, nil
	}

	const lessonsQuery = `SELECT l.id, l.module_id, l.title, l.description, l.content, l.content_type,
        l.lesson_date, l.order_index, l.duration_minutes, l.is_live, l.meeting_link, l.session_time
        FROM lessons l
        JOIN modules m ON m.id = l.module_id
        WHERE m.course_id = $1
        ORDER BY m.order_index ASC, l.order_index ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, lessonsQuery, courseID); err != nil {
		return nil, fmt.Errorf("list course lessons: %w", err)
	}

	const materialsQuery = `SELECT mat.id, mat.lesson_id, mat.title, mat.description, mat.resource_type,
        mat.resource_url, mat.order_index
        FROM materials mat
        JOIN lessons l ON l.id = mat.lesson_id
        JOIN modules m ON m.id = l.module_id
        WHERE m.course_id = $1
        ORDER BY l.order_index ASC, mat.order_index ASC`
	var materials []models.Material
	if err := r.db.SelectContext(ctx, &materials, materialsQuery, courseID); err != nil {
		return nil, fmt.Errorf("list course materials: %w", err)
	}

	return assembleTree(modules, lessons, materials), nil
}

// assembleTree nests lessons under their modules and materials under their
// lessons, preserving the query ordering.
func assembleTree(modules []models.Module, lessons []models.Lesson, materials []models.Material) []models.Module {
	materialsByLesson := make(map[string][]models.Material, len(lessons))
	for _, mat := range materials {
		mat.ResourceType = models.NormalizeResourceType(string(mat.ResourceType))
		materialsByLesson[mat.LessonID] = append(materialsByLesson[mat.LessonID], mat)
	}

	lessonsByModule := make(map[string][]models.Lesson, len(modules))
	for _, lesson := range lessons {
		lesson.Materials = materialsByLesson[lesson.ID]
		if lesson.Materials == nil {
			lesson.Materials = []models.Material{}
		}
		lessonsByModule[lesson.ModuleID] = append(lessonsByModule[lesson.ModuleID], lesson)
	}

	for i := range modules {
		modules[i].Lessons = lessonsByModule[modules[i].ID]
		if modules[i].Lessons == nil {
			modules[i].Lessons = []models.Lesson{}
		}
	}
	return modules
}
