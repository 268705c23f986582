package main

import (
	"context"
	"errors"
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

	_ "github.com/zjgsu-ms/campus-course-api/api/swagger"
	"github.com/zjgsu-ms/campus-course-api/internal/handler"
	"github.com/zjgsu-ms/campus-course-api/internal/memstore"
	"github.com/zjgsu-ms/campus-course-api/internal/middleware"
	"github.com/zjgsu-ms/campus-course-api/internal/repository"
	"github.com/zjgsu-ms/campus-course-api/internal/service"
	"github.com/zjgsu-ms/campus-course-api/pkg/cache"
	"github.com/zjgsu-ms/campus-course-api/pkg/config"
	"github.com/zjgsu-ms/campus-course-api/pkg/database"
	"github.com/zjgsu-ms/campus-course-api/pkg/export"
	"github.com/zjgsu-ms/campus-course-api/pkg/logger"
	corsmiddleware "github.com/zjgsu-ms/campus-course-api/pkg/middleware/cors"
	reqidmiddleware "github.com/zjgsu-ms/campus-course-api/pkg/middleware/requestid"
)

// @title Campus Course API
// @version 1.0.0
// @description Course enrollment service with capacity-controlled admission
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	validate := validator.New()

	var metricsSvc *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsSvc = service.NewMetricsService()
	}

	var cacheRepo *repository.CacheRepository
	if cfg.Store.Driver == config.StorePostgres {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, course cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	var (
		enrollmentSvc *service.EnrollmentService
		courseSvc     *service.CourseService
		studentSvc    *service.StudentService
		instructorSvc *service.InstructorService
		scheduleSvc   *service.ScheduleService
		auditSvc      *service.AuditService
		readyCheck    func(context.Context) error
	)

	switch cfg.Store.Driver {
	case config.StoreMemory:
		logr.Sugar().Infow("using in-memory store")
		ledger := memstore.NewLedger()
		courses := memstore.NewCourseStore()
		students := memstore.NewStudentStore()
		instructors := memstore.NewInstructorStore()
		schedules := memstore.NewScheduleStore()
		events := memstore.NewEventLog()

		auditSvc = service.NewAuditService(events, cfg.Audit, logr)
		enrollmentSvc = service.NewEnrollmentService(ledger, courses, students, nil, auditSvc, metricsSvc, validate, logr)
		courseSvc = service.NewCourseService(courses, instructors, schedules, nil, metricsSvc,
			cfg.Registration.MaxCourseCapacity, cfg.Registration.CourseCacheTTL, validate, logr)
		studentSvc = service.NewStudentService(students, ledger, validate, logr)
		instructorSvc = service.NewInstructorService(instructors, validate, logr)
		scheduleSvc = service.NewScheduleService(schedules, validate, logr)
		readyCheck = func(context.Context) error { return nil }

	default:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
		}
		defer db.Close() //nolint:errcheck

		ledger := repository.NewEnrollmentRepository(db)
		courses := repository.NewCourseRepository(db)
		students := repository.NewStudentRepository(db)
		instructors := repository.NewInstructorRepository(db)
		schedules := repository.NewScheduleRepository(db)
		events := repository.NewEventRepository(db)

		auditSvc = service.NewAuditService(events, cfg.Audit, logr)
		enrollmentSvc = service.NewEnrollmentService(ledger, courses, students, cacheRepo, auditSvc, metricsSvc, validate, logr)
		courseSvc = service.NewCourseService(courses, instructors, schedules, cacheRepo, metricsSvc,
			cfg.Registration.MaxCourseCapacity, cfg.Registration.CourseCacheTTL, validate, logr)
		studentSvc = service.NewStudentService(students, ledger, validate, logr)
		instructorSvc = service.NewInstructorService(instructors, validate, logr)
		scheduleSvc = service.NewScheduleService(schedules, validate, logr)
		readyCheck = func(ctx context.Context) error { return db.PingContext(ctx) }
	}

	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, auditSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, enrollmentSvc, export.NewRosterExporter())
	studentHandler := handler.NewStudentHandler(studentSvc)
	instructorHandler := handler.NewInstructorHandler(instructorSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := readyCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		students := api.Group("/students")
		students.GET("", studentHandler.List)
		students.POST("", studentHandler.Create)
		students.GET("/number/:no", studentHandler.GetByNumber)
		students.GET("/:id", studentHandler.Get)
		students.PUT("/:id", studentHandler.Update)
		students.DELETE("/:id", studentHandler.Delete)
		students.GET("/:id/enrollments/count", enrollmentHandler.CountByStudent)
		students.GET("/:id/grades/average", enrollmentHandler.StudentAverage)
		students.GET("/:id/courses/:courseId/grade", enrollmentHandler.StudentGrade)

		instructors := api.Group("/instructors")
		instructors.GET("", instructorHandler.List)
		instructors.POST("", instructorHandler.Create)
		instructors.GET("/:id", instructorHandler.Get)
		instructors.PUT("/:id", instructorHandler.Update)
		instructors.DELETE("/:id", instructorHandler.Delete)

		schedules := api.Group("/schedules")
		schedules.GET("", scheduleHandler.List)
		schedules.POST("", scheduleHandler.Create)
		schedules.GET("/:id", scheduleHandler.Get)
		schedules.DELETE("/:id", scheduleHandler.Delete)

		courses := api.Group("/courses")
		courses.GET("", courseHandler.List)
		courses.POST("", courseHandler.Create)
		courses.GET("/:id", courseHandler.Get)
		courses.PUT("/:id", courseHandler.Update)
		courses.DELETE("/:id", courseHandler.Delete)
		courses.GET("/:id/roster.pdf", courseHandler.RosterPDF)
		courses.GET("/:id/enrollments/count", enrollmentHandler.CountByCourse)

		enrollments := api.Group("/enrollments")
		enrollments.GET("", enrollmentHandler.List)
		enrollments.POST("", enrollmentHandler.Enroll)
		enrollments.POST("/withdraw", enrollmentHandler.Withdraw)
		enrollments.GET("/check", enrollmentHandler.Check)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.PUT("/:id/grade", enrollmentHandler.UpdateGrade)
		enrollments.GET("/:id/events", enrollmentHandler.Events)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
