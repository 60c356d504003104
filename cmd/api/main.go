package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/cdil-edu/lms-api/api/swagger"
	"github.com/cdil-edu/lms-api/internal/handler"
	"github.com/cdil-edu/lms-api/internal/middleware"
	"github.com/cdil-edu/lms-api/internal/models"
	"github.com/cdil-edu/lms-api/internal/repository"
	"github.com/cdil-edu/lms-api/internal/service"
	"github.com/cdil-edu/lms-api/pkg/cache"
	"github.com/cdil-edu/lms-api/pkg/config"
	"github.com/cdil-edu/lms-api/pkg/database"
	"github.com/cdil-edu/lms-api/pkg/jobs"
	"github.com/cdil-edu/lms-api/pkg/logger"
	corsmiddleware "github.com/cdil-edu/lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/cdil-edu/lms-api/pkg/middleware/requestid"
	"github.com/cdil-edu/lms-api/pkg/storage"
)

// @title CDIL LMS API
// @version 1.0.0
// @description Course management and enrollment API
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	exportStorage, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	contentRepo := repository.NewContentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)

	// Services.
	validate := validator.New()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	courseSvc := service.NewCourseService(courseRepo, contentRepo, logr)
	courseSvc.AttachInstructors(instructorRepo)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, logr)
	departmentSvc := service.NewDepartmentService(departmentRepo, logr)
	metricsSvc := service.NewMetricsService()
	enrollmentSvc.AttachMetrics(metricsSvc)

	exportStatus := service.NewRedisExportStatusStore(redisClient, cfg.Exports.StatusTTL)
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(enrollmentRepo, courseRepo, exportStatus, exportStorage, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	exportSvc.AttachMetrics(metricsSvc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exportQueue := jobs.NewQueue("exports", exportSvc.ProcessJob, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logr,
	})
	exportSvc.AttachQueue(exportQueue)
	exportQueue.Start(ctx)

	// Sweep expired export files on the signed-URL TTL cadence.
	go func() {
		ticker := time.NewTicker(cfg.Exports.SignedURLTTL)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed, err := exportSvc.Cleanup(0); err != nil {
					logr.Sugar().Warnw("export cleanup failed", "error", err)
				} else if len(removed) > 0 {
					logr.Sugar().Infow("expired exports removed", "count", len(removed))
				}
			}
		}
	}()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	departmentHandler := handler.NewDepartmentHandler(departmentSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r, cfg, authSvc, userRepo, handlers{
		auth:        authHandler,
		courses:     courseHandler,
		enrollments: enrollmentHandler,
		attendance:  attendanceHandler,
		departments: departmentHandler,
		exports:     exportHandler,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
	exportQueue.Stop()
	logr.Sugar().Infow("server stopped")
}

type handlers struct {
	auth        *handler.AuthHandler
	courses     *handler.CourseHandler
	enrollments *handler.EnrollmentHandler
	attendance  *handler.AttendanceHandler
	departments *handler.DepartmentHandler
	exports     *handler.ExportHandler
}

func registerRoutes(r *gin.Engine, cfg *config.Config, authSvc *service.AuthService, userRepo *repository.UserRepository, h handlers) {
	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", h.auth.Login)
	auth.POST("/refresh", h.auth.Refresh)

	authenticated := api.Group("")
	authenticated.Use(middleware.JWT(authSvc))

	authenticated.POST("/auth/logout", h.auth.Logout)
	authenticated.GET("/auth/me", h.auth.Me)

	authenticated.GET("/courses", h.courses.List)
	authenticated.GET("/courses/:id", h.courses.Get)
	authenticated.GET("/departments", h.departments.List)

	staff := authenticated.Group("")
	staff.Use(middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin))
	staff.POST("/courses",
		middleware.Audit(userRepo, models.AuditActionCourseWrite, "course"),
		h.courses.Create)
	staff.PUT("/courses/:id",
		middleware.Audit(userRepo, models.AuditActionCourseWrite, "course"),
		h.courses.Update)
	staff.POST("/lessons/:id/attendance", h.attendance.Mark)
	staff.POST("/courses/:id/roster/export", h.exports.Request)
	staff.GET("/exports/:id", h.exports.Status)

	students := authenticated.Group("")
	students.Use(middleware.RequireRoles(models.RoleStudent))
	students.POST("/courses/:id/enroll",
		middleware.Audit(userRepo, models.AuditActionEnrollChange, "enrollment"),
		h.enrollments.Enroll)
	students.POST("/courses/:id/drop",
		middleware.Audit(userRepo, models.AuditActionEnrollChange, "enrollment"),
		h.enrollments.Drop)
	students.GET("/my/enrollments", h.enrollments.MyEnrollments)
	students.GET("/courses/:id/attendance", h.attendance.List)
	students.GET("/courses/:id/attendance/stats", h.attendance.Stats)

	// Download is authorized by the signed token alone so the link can be
	// opened outside an authenticated client.
	api.GET("/exports/download", h.exports.Download)
}
