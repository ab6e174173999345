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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/timetable-api/api/swagger"
	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	"github.com/noah-isme/timetable-api/internal/service"
	"github.com/noah-isme/timetable-api/pkg/cache"
	"github.com/noah-isme/timetable-api/pkg/config"
	"github.com/noah-isme/timetable-api/pkg/database"
	"github.com/noah-isme/timetable-api/pkg/jobs"
	"github.com/noah-isme/timetable-api/pkg/logger"
	"github.com/noah-isme/timetable-api/pkg/storage"
)

// @title Timetable API
// @version 1.0.0
// @description Weekly school timetable with drag-and-drop placement and batch editing.
// @BasePath /api/v1
// @schemes http
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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("database unavailable", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.Timetable.BoardCacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, board cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(
		repository.NewCacheRepository(redisClient, "timetable", logr),
		metrics,
		cfg.Timetable.BoardCacheTTL,
		logr,
		cfg.Timetable.BoardCacheEnabled && redisClient != nil,
	)

	userRepo := repository.NewUserRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	yearGroupRepo := repository.NewYearGroupRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "timetable-api",
		Audience:           []string{"timetable-web"},
	})
	studentSvc := service.NewStudentService(studentRepo, cacheSvc, validate, logr)
	scheduleSvc := service.NewScheduleService(scheduleRepo, studentSvc, cacheSvc, validate, logr)
	sessions := service.NewEditSessionService(
		service.NewScheduleAPI(scheduleSvc),
		cfg.Timetable.EditSessionTTL,
		cfg.Timetable.CommitConcurrency,
		metrics,
		logr,
	)

	deps := dependencies{
		cfg:        cfg,
		logger:     logr,
		metrics:    metrics,
		auth:       authSvc,
		audit:      userRepo,
		teachers:   service.NewTeacherService(teacherRepo, scheduleRepo, cacheSvc, validate, logr),
		subjects:   service.NewSubjectService(subjectRepo, cacheSvc, validate, logr),
		yearGroups: service.NewYearGroupService(yearGroupRepo, cacheSvc, validate, logr),
		students:   studentSvc,
		schedules:  scheduleSvc,
		sessions:   sessions,
		timetable: service.NewTimetableService(service.BoardSources{
			Teachers:   teacherRepo,
			Subjects:   subjectRepo,
			YearGroups: yearGroupRepo,
			Students:   studentRepo,
			Schedules:  scheduleRepo,
		}, sessions, cacheSvc, metrics, validate, logr),
	}

	if cfg.Exports.Enabled {
		exportJobs, queue, err := buildExports(ctx, cfg, db, scheduleRepo, validate, logr)
		if err != nil {
			logr.Fatal("exports unavailable", zap.Error(err))
		}
		defer queue.Stop()
		deps.exports = exportJobs
	}

	router := newRouter(deps)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// buildExports wires the export pipeline: file storage, signer, renderer,
// worker queue, plus recovery of jobs left queued by a previous process.
func buildExports(
	ctx context.Context,
	cfg *config.Config,
	db *sqlx.DB,
	schedules *repository.ScheduleRepository,
	validate *validator.Validate,
	logr *zap.Logger,
) (*service.ExportJobService, *jobs.Queue[models.ExportParams], error) {
	store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("export storage: %w", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exporter := service.NewExportService(schedules, store, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr, nil, nil)

	exportRepo := repository.NewExportRepository(db)
	worker := service.NewExportWorker(exportRepo, exporter, logr)
	queue := jobs.NewQueue[models.ExportParams]("timetable-exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		Logger:     logr,
	})
	jobSvc := service.NewExportJobService(exportRepo, queue, exporter, validate, logr, service.ExportJobServiceConfig{
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})
	queue.OnFailure(jobSvc.MarkAbandoned)
	queue.Start(ctx)

	jobSvc.RecoverPendingJobs(ctx)
	jobSvc.StartCleanup(ctx)
	return jobSvc, queue, nil
}
