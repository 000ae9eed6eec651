package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/campuskit/attendance-api/api/swagger"
	"github.com/campuskit/attendance-api/internal/handler"
	"github.com/campuskit/attendance-api/internal/middleware"
	"github.com/campuskit/attendance-api/internal/models"
	"github.com/campuskit/attendance-api/internal/repository"
	"github.com/campuskit/attendance-api/internal/service"
	"github.com/campuskit/attendance-api/pkg/cache"
	"github.com/campuskit/attendance-api/pkg/config"
	"github.com/campuskit/attendance-api/pkg/database"
	"github.com/campuskit/attendance-api/pkg/logger"
	corsmiddleware "github.com/campuskit/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuskit/attendance-api/pkg/middleware/requestid"
)

// @title Campus Attendance API
// @version 1.0.0
// @description QR-code based attendance tracking for campus courses
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	enrollmentKeyRepo := repository.NewEnrollmentKeyRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "attendance-api",
	})
	courseSvc := service.NewCourseService(courseRepo, userRepo, validate, logr)
	sessionSvc := service.NewSessionService(sessionRepo, courseRepo, attendanceRepo, cacheRepo, validate, logr, service.SessionConfig{
		Timezone:      cfg.Sessions.Timezone,
		PublicBaseURL: cfg.PublicBaseURL,
		CacheTTL:      cfg.Sessions.CacheTTL,
	})
	attendanceSvc := service.NewAttendanceService(sessionRepo, studentRepo, enrollmentRepo, attendanceRepo, sessionSvc, metricsSvc, validate, logr, service.AttendancePolicy{
		EnforceIPUnique: cfg.Attendance.EnforceIPUnique,
		GeofenceEnabled: cfg.Attendance.GeofenceEnabled,
	})
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, enrollmentKeyRepo, studentRepo, courseRepo, validate, logr, service.EnrollmentConfig{
		KeyTTL: cfg.Enrollment.KeyTTL,
	})
	studentSvc := service.NewStudentService(studentRepo, activityRepo, validate, logr)
	activitySvc := service.NewActivityService(activityRepo, logr, cfg.Activity.Workers, cfg.Activity.BufferSize)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	activitySvc.Start(ctx)
	defer activitySvc.Stop()

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc, enrollmentSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, sessionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, cfg.Import.MaxFileSizeBytes)
	activityHandler := handler.NewActivityHandler(activitySvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Public surface: reachable from a scanned QR code without credentials.
	api.POST("/auth/login", authHandler.Login)
	api.POST("/auth/refresh", authHandler.Refresh)
	api.GET("/attendance/mark/:sessionKey", attendanceHandler.Mark)
	api.POST("/attendance/submit/:sessionKey", attendanceHandler.Submit)
	api.POST("/attendance/lookup", attendanceHandler.Lookup)
	api.POST("/enroll", enrollmentHandler.Enroll)

	auth := api.Group("")
	auth.Use(middleware.JWT(authSvc))
	auth.POST("/auth/logout", authHandler.Logout)

	staff := auth.Group("")
	staff.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleFaculty))
	{
		staff.GET("/courses", courseHandler.List)
		staff.GET("/courses/:id", courseHandler.Get)
		staff.GET("/courses/:id/enrollment-key", courseHandler.EnrollmentKey)
		staff.POST("/courses/:id/enrollment-key/regenerate",
			middleware.Activity(activitySvc, "enrollment_key.regenerate", "course"),
			courseHandler.RegenerateEnrollmentKey)

		staff.GET("/sessions", sessionHandler.List)
		staff.GET("/sessions/:id", sessionHandler.Get)
		staff.POST("/sessions", middleware.Activity(activitySvc, "session.create", "session"), sessionHandler.Create)
		staff.PUT("/sessions/:id", middleware.Activity(activitySvc, "session.update", "session"), sessionHandler.Update)
		staff.DELETE("/sessions/:id", middleware.Activity(activitySvc, "session.delete", "session"), sessionHandler.Delete)
		staff.GET("/sessions/:id/qr", sessionHandler.QRCode)
		staff.GET("/sessions/:id/report", sessionHandler.Report)
		staff.GET("/sessions/:id/report/export", sessionHandler.ExportReport)

		staff.GET("/enrollments", enrollmentHandler.List)
		staff.PUT("/enrollments/:id/decision",
			middleware.Activity(activitySvc, "enrollment.decide", "enrollment"),
			enrollmentHandler.Decide)
	}

	admin := auth.Group("")
	admin.Use(middleware.RequireRoles(models.RoleAdmin))
	{
		admin.POST("/courses", middleware.Activity(activitySvc, "course.create", "course"), courseHandler.Create)
		admin.PUT("/courses/:id", middleware.Activity(activitySvc, "course.update", "course"), courseHandler.Update)
		admin.DELETE("/courses/:id", middleware.Activity(activitySvc, "course.delete", "course"), courseHandler.Delete)
		admin.POST("/courses/:id/lecturers",
			middleware.Activity(activitySvc, "course.assign_lecturer", "course"),
			courseHandler.AssignLecturer)
		admin.DELETE("/courses/:id/lecturers/:userId",
			middleware.Activity(activitySvc, "course.remove_lecturer", "course"),
			courseHandler.RemoveLecturer)

		admin.GET("/students", studentHandler.List)
		admin.GET("/students/:admissionNumber", studentHandler.Get)
		admin.POST("/students", middleware.Activity(activitySvc, "student.create", "student"), studentHandler.Create)
		admin.PUT("/students/:admissionNumber", middleware.Activity(activitySvc, "student.update", "student"), studentHandler.Update)
		admin.DELETE("/students/:admissionNumber", middleware.Activity(activitySvc, "student.delete", "student"), studentHandler.Delete)
		admin.POST("/students/import", middleware.Activity(activitySvc, "student.import", "student"), studentHandler.Import)
		admin.GET("/students/export", studentHandler.Export)

		admin.GET("/activity-logs", activityHandler.List)
		admin.GET("/activity-logs/imports", activityHandler.RecentImports)
	}

	go runSessionSweep(ctx, sessionSvc, metricsSvc, logr, cfg.Sessions.SweepInterval)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// runSessionSweep periodically deactivates sessions whose window has passed,
// so FindActiveByKey stops matching them even if no request ever observes
// the transition.
func runSessionSweep(ctx context.Context, sessions *service.SessionService, metrics *service.MetricsService, logr *zap.Logger, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			deactivated, err := sessions.DeactivateEnded(ctx, now)
			if err != nil {
				logr.Error("session sweep failed", zap.Error(err))
				continue
			}
			metrics.RecordSweep(deactivated)
			if deactivated > 0 {
				logr.Info("session sweep deactivated sessions", zap.Int64("count", deactivated))
			}
		}
	}
}
