package service

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/jobs"
)

const exportJobType = "timetable_export"

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type exportDispatcher interface {
	Enqueue(job jobs.Job[models.ExportParams]) error
}

type exportGenerator interface {
	Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error)
}

// ExportRequest is the body of a new export.
type ExportRequest struct {
	Format      models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	YearGroupID string              `json:"year_group_id"`
	TeacherIDs  []string            `json:"teacher_ids" validate:"omitempty,dive,required"`
	SubjectIDs  []string            `json:"subject_ids" validate:"omitempty,dive,required"`
}

// ExportDownload is a resolved, opened export file.
type ExportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ExportFormat
	ExpiresAt time.Time
}

// ExportJobServiceConfig governs recovery and cleanup.
type ExportJobServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportJobService manages the export job lifecycle.
type ExportJobService struct {
	repo      exportJobStore
	queue     exportDispatcher
	exporter  *ExportService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportJobServiceConfig
}

// NewExportJobService constructs the service.
func NewExportJobService(repo exportJobStore, queue exportDispatcher, exporter *ExportService, validate *validator.Validate, logger *zap.Logger, cfg ExportJobServiceConfig) *ExportJobService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportJobService{
		repo:      repo,
		queue:     queue,
		exporter:  exporter,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Request persists a queued job and hands it to the workers.
func (s *ExportJobService) Request(ctx context.Context, actorID string, req ExportRequest) (*models.ExportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export payload")
	}
	job := &models.ExportJob{
		Params: models.ExportParams{
			Format:      req.Format,
			YearGroupID: req.YearGroupID,
			TeacherIDs:  slices.Clone(req.TeacherIDs),
			SubjectIDs:  slices.Clone(req.SubjectIDs),
		},
		Status:    models.ExportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}
	if err := s.queue.Enqueue(jobs.Job[models.ExportParams]{ID: job.ID, Type: exportJobType, Payload: job.Params}); err != nil {
		msg := "failed to enqueue job"
		s.markFailed(ctx, job.ID, msg)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue export job")
	}
	return job, nil
}

// Get returns a job. Viewers and schedulers only see their own jobs.
func (s *ExportJobService) Get(ctx context.Context, id, actorID string, role models.UserRole) (*models.ExportJob, error) {
	job, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && job.CreatedBy != actorID {
		return nil, appErrors.ErrForbidden
	}
	return job, nil
}

// ResolveDownload validates a token and opens the file it points to.
func (s *ExportJobService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	jobID, relPath, expiresAt, err := s.exporter.ParseToken(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.load(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.ExportStatusFinished {
		return nil, appErrors.ErrExportNotAvailable
	}
	if job.FilePath == nil || *job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token does not match export")
	}
	file, err := s.exporter.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ExportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// RecoverPendingJobs re-enqueues jobs left queued by a previous process.
func (s *ExportJobService) RecoverPendingJobs(ctx context.Context) {
	pending, err := s.repo.ListQueued(ctx, 50)
	if err != nil {
		s.logger.Warn("failed to recover queued export jobs", zap.Error(err))
		return
	}
	for _, job := range pending {
		if err := s.queue.Enqueue(jobs.Job[models.ExportParams]{ID: job.ID, Type: exportJobType, Payload: job.Params}); err != nil {
			s.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
}

// StartCleanup purges expired exports on an interval until ctx ends.
func (s *ExportJobService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.CleanupExpired(ctx)
			}
		}
	}()
}

// CleanupExpired deletes files of jobs finished before the retention cutoff.
func (s *ExportJobService) CleanupExpired(ctx context.Context) int {
	const batch = 100
	cutoff := time.Now().Add(-s.cfg.ResultTTL)
	removed := 0
	for {
		expired, err := s.repo.ListFinishedBefore(ctx, cutoff, batch)
		if err != nil {
			s.logger.Warn("export cleanup list failed", zap.Error(err))
			return removed
		}
		for _, job := range expired {
			if job.FilePath != nil {
				if err := s.exporter.Delete(*job.FilePath); err != nil {
					s.logger.Warn("export cleanup delete failed", zap.String("job_id", job.ID), zap.Error(err))
					continue
				}
			}
			status := models.ExportStatusExpired
			empty := ""
			if err := s.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &status, FilePath: &empty, ResultURL: &empty}); err != nil {
				s.logger.Warn("export cleanup update failed", zap.String("job_id", job.ID), zap.Error(err))
				continue
			}
			removed++
		}
		if len(expired) < batch {
			break
		}
	}
	if _, err := s.exporter.Cleanup(); err != nil {
		s.logger.Warn("export filesystem cleanup failed", zap.Error(err))
	}
	return removed
}

// MarkAbandoned is the queue failure hook for jobs that ran out of retries.
func (s *ExportJobService) MarkAbandoned(ctx context.Context, job jobs.Job[models.ExportParams], err error) {
	s.markFailed(ctx, job.ID, err.Error())
}

func (s *ExportJobService) markFailed(ctx context.Context, id, msg string) {
	status := models.ExportStatusFailed
	progress := 100
	now := time.Now().UTC()
	if err := s.repo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &status,
		Progress:     &progress,
		ErrorMessage: &msg,
		FinishedAt:   &now,
	}); err != nil {
		s.logger.Warn("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}

func (s *ExportJobService) load(ctx context.Context, id string) (*models.ExportJob, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return job, nil
}

// ExportWorker runs queued export jobs.
type ExportWorker struct {
	repo     exportJobStore
	exporter exportGenerator
	logger   *zap.Logger
}

// NewExportWorker constructs a worker.
func NewExportWorker(repo exportJobStore, exporter exportGenerator, logger *zap.Logger) *ExportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportWorker{repo: repo, exporter: exporter, logger: logger}
}

// Handle renders one job. A returned error makes the queue retry it; the
// job goes back to QUEUED until the queue gives up.
func (w *ExportWorker) Handle(ctx context.Context, job jobs.Job[models.ExportParams]) error {
	record, err := w.repo.GetByID(ctx, job.ID)
	if err != nil {
		return err
	}
	processing := models.ExportStatusProcessing
	progress := 10
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{Status: &processing, Progress: &progress}); err != nil {
		return err
	}

	result, err := w.exporter.Generate(ctx, record)
	if err != nil {
		queued := models.ExportStatusQueued
		reset := 0
		msg := err.Error()
		if updateErr := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
			Status:       &queued,
			Progress:     &reset,
			ErrorMessage: &msg,
		}); updateErr != nil {
			w.logger.Warn("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(updateErr))
		}
		return err
	}

	finished := models.ExportStatusFinished
	progress = 100
	now := time.Now().UTC()
	clear := ""
	if err := w.repo.Update(ctx, job.ID, repository.UpdateExportJobParams{
		Status:       &finished,
		Progress:     &progress,
		FilePath:     &result.RelativePath,
		ResultURL:    &result.URL,
		ErrorMessage: &clear,
		FinishedAt:   &now,
	}); err != nil {
		return err
	}
	w.logger.Info("export finished", zap.String("job_id", job.ID), zap.String("format", string(record.Params.Format)))
	return nil
}
