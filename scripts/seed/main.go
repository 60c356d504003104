// Command seed loads a small demo dataset: departments, users with linked
// student/instructor records, a handful of courses with content, and active
// enrollments whose counter matches the ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"

	"github.com/cdil-edu/lms-api/internal/models"
	"github.com/cdil-edu/lms-api/pkg/config"
	"github.com/cdil-edu/lms-api/pkg/database"
)

func main() {
	var (
		password string
		wipe     bool
	)
	flag.StringVar(&password, "password", "changeme123", "password assigned to every seeded user")
	flag.BoolVar(&wipe, "wipe", false, "delete previously seeded rows before inserting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer db.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if wipe {
		if err := wipeAll(ctx, db); err != nil {
			log.Fatalf("wipe failed: %v", err)
		}
		log.Println("existing rows removed")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	if err := seed(ctx, db, string(hash)); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
	log.Println("seed complete")
}

func wipeAll(ctx context.Context, db *sqlx.DB) error {
	tables := []string{
		"student_lesson_attendance", "course_enrollments", "course_instructors",
		"materials", "lessons", "modules", "courses",
		"refresh_tokens", "audit_logs", "users", "students", "instructors", "departments",
	}
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

type seededUser struct {
	email     string
	firstName string
	lastName  string
	role      models.UserRole
}

func seed(ctx context.Context, db *sqlx.DB, passwordHash string) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()

	deptID := uuid.NewString()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO departments (id, name, created_at, updated_at) VALUES ($1, $2, $3, $3)`,
		deptID, "Computer Science", now); err != nil {
		return fmt.Errorf("insert department: %w", err)
	}

	users := []seededUser{
		{"admin@cdil.edu", "Ada", "Okafor", models.RoleAdmin},
		{"instructor@cdil.edu", "Miguel", "Herrera", models.RoleInstructor},
		{"student1@student.cdil.edu", "John", "Doe", models.RoleStudent},
		{"student2@student.cdil.edu", "Jane", "Smith", models.RoleStudent},
	}

	var instructorID string
	var studentIDs []string
	var instructorUserID string

	for _, u := range users {
		userID := uuid.NewString()
		var studentRef, instructorRef *string

		switch u.role {
		case models.RoleStudent:
			sid := uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO students (id, first_name, last_name, email, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)`,
				sid, u.firstName, u.lastName, u.email, now); err != nil {
				return fmt.Errorf("insert student: %w", err)
			}
			studentRef = &sid
			studentIDs = append(studentIDs, sid)
		case models.RoleInstructor:
			iid := uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO instructors (id, first_name, last_name, email, department_id, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $6)`,
				iid, u.firstName, u.lastName, u.email, deptID, now); err != nil {
				return fmt.Errorf("insert instructor: %w", err)
			}
			instructorRef = &iid
			instructorID = iid
			instructorUserID = userID
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, first_name, last_name, role, student_id, instructor_id, active, created_at, updated_at)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9, $9)`,
			userID, u.email, passwordHash, u.firstName, u.lastName, u.role, studentRef, instructorRef, now); err != nil {
			return fmt.Errorf("insert user %s: %w", u.email, err)
		}
	}

	courses := []struct {
		title    string
		code     string
		mode     models.DeliveryMode
		location *string
		status   models.CourseStatus
	}{
		{"Introduction to Databases", "CS-201", models.DeliveryOnline, nil, models.CourseStatusActive},
		{"Distributed Systems", "CS-402", models.DeliveryInPerson, ptr("Lab Building 2"), models.CourseStatusActive},
		{"Compiler Construction", "CS-410", models.DeliveryHybrid, ptr("Room 118"), models.CourseStatusDraft},
	}

	var courseIDs []string
	for i, c := range courses {
		courseID := uuid.NewString()
		courseIDs = append(courseIDs, courseID)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO courses (id, title, description, course_code, department_id, start_date, end_date,
                 status, credit_hours, max_enrollment, current_enrollment, language, delivery_mode, location,
                 created_at, updated_at, created_by)
             VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 3, 60, 0, 'en', $9, $10, $11, $11, $12)`,
			courseID, c.title, "Seeded demo course", c.code, deptID,
			now.AddDate(0, 0, 7), now.AddDate(0, 4, 0),
			c.status, c.mode, c.location, now, instructorUserID); err != nil {
			return fmt.Errorf("insert course %s: %w", c.code, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_instructors (id, course_id, instructor_id, role, assigned_at) VALUES ($1, $2, $3, $4, $5)`,
			uuid.NewString(), courseID, instructorID, models.InstructorRolePrimary, now); err != nil {
			return fmt.Errorf("assign instructor: %w", err)
		}

		if err := seedContent(ctx, tx, courseID, i+1, now); err != nil {
			return err
		}
	}

	// Enroll both students into the first active course, keeping the counter
	// in step with the ledger.
	for _, sid := range studentIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO course_enrollments (id, course_id, student_id, enrollment_date, status)
             VALUES ($1, $2, $3, $4, 'active')`,
			uuid.NewString(), courseIDs[0], sid, now); err != nil {
			return fmt.Errorf("insert enrollment: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE courses SET current_enrollment = $1 WHERE id = $2`,
		len(studentIDs), courseIDs[0]); err != nil {
		return fmt.Errorf("sync enrollment counter: %w", err)
	}

	return tx.Commit()
}

func seedContent(ctx context.Context, tx *sqlx.Tx, courseID string, ordinal int, now time.Time) error {
	for m := 1; m <= 2; m++ {
		moduleID := uuid.NewString()
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO modules (id, course_id, title, order_index, status, created_at, updated_at)
             VALUES ($1, $2, $3, $4, 'published', $5, $5)`,
			moduleID, courseID, fmt.Sprintf("Module %d.%d", ordinal, m), m, now); err != nil {
			return fmt.Errorf("insert module: %w", err)
		}
		for l := 1; l <= 3; l++ {
			lessonID := uuid.NewString()
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO lessons (id, module_id, title, content_type, duration_minutes, order_index, is_live, created_at, updated_at)
                 VALUES ($1, $2, $3, $4, 45, $5, false, $6, $6)`,
				lessonID, moduleID, fmt.Sprintf("Lesson %d", l), models.ContentVideo, l, now); err != nil {
				return fmt.Errorf("insert lesson: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO materials (id, lesson_id, title, resource_type, resource_url, order_index, created_at, updated_at)
                 VALUES ($1, $2, $3, $4, $5, 1, $6, $6)`,
				uuid.NewString(), lessonID, "Slides", models.ResourceDocument,
				fmt.Sprintf("https://materials.cdil.edu/%s.pdf", lessonID), now); err != nil {
				return fmt.Errorf("insert material: %w", err)
			}
		}
	}
	return nil
}

func ptr(s string) *string { return &s }
