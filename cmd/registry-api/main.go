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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/fazi-university/registry-api/api/swagger"
	"github.com/fazi-university/registry-api/internal/handler"
	"github.com/fazi-university/registry-api/internal/middleware"
	"github.com/fazi-university/registry-api/internal/models"
	"github.com/fazi-university/registry-api/internal/repository"
	"github.com/fazi-university/registry-api/internal/service"
	"github.com/fazi-university/registry-api/pkg/cache"
	"github.com/fazi-university/registry-api/pkg/config"
	"github.com/fazi-university/registry-api/pkg/database"
	"github.com/fazi-university/registry-api/pkg/lock"
	"github.com/fazi-university/registry-api/pkg/logger"
	corsmiddleware "github.com/fazi-university/registry-api/pkg/middleware/cors"
	reqidmiddleware "github.com/fazi-university/registry-api/pkg/middleware/requestid"
)

// @title University Registry API
// @version 1.0.0
// @description Enrollment lifecycle and section capacity engine
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, availability cache disabled", "error", err)
		redisClient = nil
	}

	policy := models.NewGradePolicy(
		cfg.Grading.Scale,
		cfg.Grading.FailingGrades,
		cfg.Grading.IncompleteGrade,
		cfg.Grading.WithdrawalGrade,
		cfg.Grading.GPAExcluded,
	)

	store := repository.NewStore(db)
	sectionRepo := repository.NewSectionRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	termRepo := repository.NewTermRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	availabilityCache := repository.NewAvailabilityCache(redisClient, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	audit := service.NewAuditService(auditRepo, cfg.Audit, logr)
	audit.Start(ctx)
	defer audit.Stop()

	locks := lock.NewKeyed()
	enrollmentSvc := service.NewEnrollmentService(
		store, sectionRepo, enrollmentRepo, termRepo, locks, policy,
		cfg.Locking, audit, availabilityCache, metrics, logr,
	)
	gradeSvc := service.NewGradeService(store, enrollmentRepo, policy, locks, cfg.Locking, audit, logr)
	sectionSvc := service.NewSectionService(sectionRepo, availabilityCache, cfg.Availability, logr)
	rosterSvc := service.NewRosterService(sectionRepo, enrollmentRepo, logr)

	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, audit)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc, rosterSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/sections/:id", sectionHandler.Get)
	api.GET("/sections/:id/availability", sectionHandler.Availability)

	authed := api.Group("", middleware.JWT(cfg.JWT.Secret))
	authed.GET("/enrollments", enrollmentHandler.List)
	authed.GET("/enrollments/:id", enrollmentHandler.Get)
	authed.POST("/enrollments", enrollmentHandler.Create)
	authed.POST("/enrollments/:id/drop", enrollmentHandler.Drop)
	authed.POST("/enrollments/:id/withdraw", enrollmentHandler.Withdraw)
	authed.GET("/enrollments/:id/audit",
		middleware.RequireRoles(models.RoleRegistrar), enrollmentHandler.Audit)
	authed.PUT("/enrollments/:id/grade",
		middleware.RequireRoles(models.RoleRegistrar, models.RoleFaculty), gradeHandler.Submit)
	authed.POST("/sections/:id/finalize-grades",
		middleware.RequireRoles(models.RoleRegistrar), gradeHandler.Finalize)
	authed.GET("/sections/:id/roster/export",
		middleware.RequireRoles(models.RoleRegistrar, models.RoleFaculty), sectionHandler.ExportRoster)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("server shutdown failed", "error", err)
	}
}
