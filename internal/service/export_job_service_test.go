package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/repository"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/jobs"
)

type memExportStore struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*models.ExportJob
}

func newMemExportStore() *memExportStore {
	return &memExportStore{jobs: map[string]*models.ExportJob{}}
}

func (m *memExportStore) Create(ctx context.Context, job *models.ExportJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	job.ID = "job-" + string(rune('0'+m.seq))
	job.CreatedAt = time.Now().UTC()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memExportStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *job
	return &cp, nil
}

func (m *memExportStore) Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.FilePath != nil {
		v := *params.FilePath
		job.FilePath = &v
	}
	if params.ResultURL != nil {
		v := *params.ResultURL
		job.ResultURL = &v
	}
	if params.ErrorMessage != nil {
		v := *params.ErrorMessage
		job.ErrorMessage = &v
	}
	if params.FinishedAt != nil {
		v := *params.FinishedAt
		job.FinishedAt = &v
	}
	return nil
}

func (m *memExportStore) ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusQueued {
			out = append(out, *job)
		}
	}
	return out, nil
}

func (m *memExportStore) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExportJob
	for _, job := range m.jobs {
		if job.Status == models.ExportStatusFinished && job.FinishedAt != nil && job.FinishedAt.Before(cutoff) {
			out = append(out, *job)
		}
	}
	return out, nil
}

type recordingDispatcher struct {
	jobs []jobs.Job[models.ExportParams]
	err  error
}

func (d *recordingDispatcher) Enqueue(job jobs.Job[models.ExportParams]) error {
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	return nil, errors.New("renderer crashed")
}

func newExportJobFixture(t *testing.T) (*ExportJobService, *ExportWorker, *memExportStore, *recordingDispatcher) {
	t.Helper()
	exporter, _ := newExportServiceForTest(t, &detailStub{rows: exportFixtureRows()})
	store := newMemExportStore()
	queue := &recordingDispatcher{}
	svc := NewExportJobService(store, queue, exporter, nil, zap.NewNop(), ExportJobServiceConfig{ResultTTL: time.Hour})
	worker := NewExportWorker(store, exporter, zap.NewNop())
	return svc, worker, store, queue
}

func TestExportJobLifecycle(t *testing.T) {
	svc, worker, _, queue := newExportJobFixture(t)
	ctx := context.Background()

	job, err := svc.Request(ctx, "user-1", ExportRequest{Format: models.ExportFormatCSV, TeacherIDs: []string{"t1"}})
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, job.ID, queue.jobs[0].ID)
	assert.Equal(t, []string{"t1"}, queue.jobs[0].Payload.TeacherIDs)

	_, err = svc.ResolveDownload(ctx, "bogus")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	require.NoError(t, worker.Handle(ctx, queue.jobs[0]))
	done, err := svc.Get(ctx, job.ID, "user-1", models.RoleScheduler)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusFinished, done.Status)
	assert.Equal(t, 100, done.Progress)
	require.NotNil(t, done.ResultURL)

	token := (*done.ResultURL)[strings.Index(*done.ResultURL, "token=")+len("token="):]
	dl, err := svc.ResolveDownload(ctx, token)
	require.NoError(t, err)
	defer dl.File.Close()
	body, err := io.ReadAll(dl.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Adams")
	assert.NotContains(t, string(body), "Brown")
	assert.Equal(t, models.ExportFormatCSV, dl.Format)

	_, err = svc.Get(ctx, job.ID, "someone-else", models.RoleViewer)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.Get(ctx, job.ID, "admin", models.RoleAdmin)
	require.NoError(t, err)
}

func TestExportJobRequestValidation(t *testing.T) {
	svc, _, _, _ := newExportJobFixture(t)
	_, err := svc.Request(context.Background(), "u", ExportRequest{Format: "xlsx"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Get(context.Background(), "missing", "u", models.RoleAdmin)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestExportJobEnqueueFailureMarksFailed(t *testing.T) {
	svc, _, store, queue := newExportJobFixture(t)
	queue.err = errors.New("queue stopped")

	_, err := svc.Request(context.Background(), "u", ExportRequest{Format: models.ExportFormatPDF})
	require.Error(t, err)
	job := store.jobs["job-1"]
	require.NotNil(t, job)
	assert.Equal(t, models.ExportStatusFailed, job.Status)
}

func TestExportWorkerFailureRequeuesThenAbandons(t *testing.T) {
	svc, _, store, queue := newExportJobFixture(t)
	ctx := context.Background()
	job, err := svc.Request(ctx, "u", ExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)

	worker := NewExportWorker(store, failingGenerator{}, zap.NewNop())
	err = worker.Handle(ctx, queue.jobs[0])
	require.Error(t, err)
	assert.Equal(t, models.ExportStatusQueued, store.jobs[job.ID].Status)
	assert.Equal(t, "renderer crashed", *store.jobs[job.ID].ErrorMessage)

	svc.MarkAbandoned(ctx, queue.jobs[0], err)
	assert.Equal(t, models.ExportStatusFailed, store.jobs[job.ID].Status)
}

func TestExportJobRecoverAndCleanup(t *testing.T) {
	svc, worker, store, queue := newExportJobFixture(t)
	ctx := context.Background()

	job, err := svc.Request(ctx, "u", ExportRequest{Format: models.ExportFormatCSV})
	require.NoError(t, err)
	svc.RecoverPendingJobs(ctx)
	require.Len(t, queue.jobs, 2)

	require.NoError(t, worker.Handle(ctx, queue.jobs[0]))
	old := time.Now().Add(-2 * time.Hour)
	store.jobs[job.ID].FinishedAt = &old

	assert.Equal(t, 1, svc.CleanupExpired(ctx))
	assert.Equal(t, models.ExportStatusExpired, store.jobs[job.ID].Status)
	assert.Equal(t, 0, svc.CleanupExpired(ctx))
}
