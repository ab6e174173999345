package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

// StageRequest is one raw mutation sent by a client in batch mode.
type StageRequest struct {
	Kind         timetable.OpKind `json:"kind"`
	EntryID      string           `json:"entry_id"`
	EntryPending bool             `json:"entry_pending"`
	Fields       timetable.Fields `json:"fields"`
}

// Mutation converts the request. Update and delete need an entry id.
func (r StageRequest) Mutation() (timetable.Mutation, error) {
	ref := timetable.Persisted(r.EntryID)
	if r.EntryPending {
		ref = timetable.Pending(r.EntryID)
	}
	switch r.Kind {
	case timetable.OpCreate:
		return timetable.CreateOp(r.Fields), nil
	case timetable.OpUpdate, timetable.OpDelete:
		if r.EntryID == "" {
			return timetable.Mutation{}, appErrors.Clone(appErrors.ErrValidation, "entry_id is required for "+string(r.Kind))
		}
		if r.Kind == timetable.OpDelete {
			return timetable.DeleteOp(ref), nil
		}
		return timetable.UpdateOp(ref, r.Fields), nil
	default:
		return timetable.Mutation{}, appErrors.Clone(appErrors.ErrValidation, "kind must be create, update or delete")
	}
}

// EditSessionService keeps one batch-mode controller per user. Users without
// a session edit live: every call gets a fresh controller over the stored
// schedule.
type EditSessionService struct {
	api     timetable.ScheduleAPI
	cfg     timetable.ControllerConfig
	store   *sessionStore
	metrics *MetricsService
	logger  *zap.Logger
}

// NewEditSessionService constructs the registry. ttl bounds how long an idle
// batch survives; staged work of an expired session is discarded.
func NewEditSessionService(api timetable.ScheduleAPI, ttl time.Duration, commitConcurrency int, metrics *MetricsService, logger *zap.Logger) *EditSessionService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EditSessionService{
		api:     api,
		cfg:     timetable.ControllerConfig{CommitConcurrency: commitConcurrency},
		store:   newSessionStore(ttl),
		metrics: metrics,
		logger:  logger,
	}
}

// Controller returns the user's batch controller when one is open, otherwise
// a live controller loaded from the schedule API.
func (s *EditSessionService) Controller(ctx context.Context, userID string) (*timetable.Controller, error) {
	if ctrl, ok := s.store.Get(userID); ok {
		s.store.Touch(userID)
		return ctrl, nil
	}
	return s.liveController(ctx)
}

// State reports the user's mode and working list.
func (s *EditSessionService) State(ctx context.Context, userID string) (timetable.SessionState, error) {
	ctrl, err := s.Controller(ctx, userID)
	if err != nil {
		return timetable.SessionState{}, err
	}
	return ctrl.State(), nil
}

// Enter opens a batch session for the user.
func (s *EditSessionService) Enter(ctx context.Context, userID string) (timetable.SessionState, error) {
	s.store.Prune()
	if _, ok := s.store.Get(userID); ok {
		return timetable.SessionState{}, mapTimetableError(fmt.Errorf("%w: already in batch mode", timetable.ErrInvalidState))
	}
	ctrl, err := s.liveController(ctx)
	if err != nil {
		return timetable.SessionState{}, err
	}
	if err := ctrl.EnterBatch(); err != nil {
		return timetable.SessionState{}, mapTimetableError(err)
	}
	if !s.store.SaveIfAbsent(userID, ctrl) {
		return timetable.SessionState{}, mapTimetableError(fmt.Errorf("%w: already in batch mode", timetable.ErrInvalidState))
	}
	s.logger.Info("edit session opened", zap.String("user_id", userID))
	return ctrl.State(), nil
}

// Cancel discards the user's staged work.
func (s *EditSessionService) Cancel(userID string) (timetable.SessionState, error) {
	ctrl, err := s.batch(userID)
	if err != nil {
		return timetable.SessionState{}, err
	}
	if err := ctrl.CancelBatch(); err != nil {
		return timetable.SessionState{}, mapTimetableError(err)
	}
	s.store.Delete(userID)
	return ctrl.State(), nil
}

// Stage records one mutation in the user's batch.
func (s *EditSessionService) Stage(userID string, m timetable.Mutation) (timetable.Entry, error) {
	ctrl, err := s.batch(userID)
	if err != nil {
		return timetable.Entry{}, err
	}
	entry, err := ctrl.Stage(m)
	if err != nil {
		return timetable.Entry{}, mapTimetableError(err)
	}
	s.store.Touch(userID)
	s.metrics.RecordStaged(string(m.Kind))
	return entry, nil
}

// Pending lists the API calls a commit would make.
func (s *EditSessionService) Pending(userID string) ([]timetable.Mutation, error) {
	ctrl, err := s.batch(userID)
	if err != nil {
		return nil, err
	}
	ops, err := ctrl.Diff()
	if err != nil {
		return nil, mapTimetableError(err)
	}
	return ops, nil
}

// Commit writes the user's batch and closes the session. Per-operation
// failures are reported in the result, not as an error.
func (s *EditSessionService) Commit(ctx context.Context, userID string) (timetable.CommitResult, error) {
	ctrl, err := s.batch(userID)
	if err != nil {
		return timetable.CommitResult{}, err
	}
	result, err := ctrl.CommitBatch(ctx)
	s.store.Delete(userID)
	s.metrics.RecordBatchCommit(len(result.Failed))
	if err != nil {
		var partial *timetable.PartialCommitError
		if errors.As(err, &partial) {
			s.logger.Warn("batch commit partially failed",
				zap.String("user_id", userID),
				zap.Int("failed", len(result.Failed)),
				zap.Int("succeeded", len(result.Succeeded)),
			)
			return result, nil
		}
		return result, mapTimetableError(err)
	}
	s.logger.Info("batch committed", zap.String("user_id", userID), zap.Int("operations", len(result.Succeeded)))
	return result, nil
}

func (s *EditSessionService) batch(userID string) (*timetable.Controller, error) {
	ctrl, ok := s.store.Get(userID)
	if !ok {
		return nil, mapTimetableError(fmt.Errorf("%w: no open batch session", timetable.ErrInvalidState))
	}
	return ctrl, nil
}

func (s *EditSessionService) liveController(ctx context.Context) (*timetable.Controller, error) {
	entries, err := s.api.List(ctx)
	if err != nil {
		return nil, mapTimetableError(err)
	}
	return timetable.NewController(s.api, entries, s.cfg), nil
}

type storedSession struct {
	ctrl    *timetable.Controller
	touched time.Time
}

type sessionStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]storedSession
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]storedSession),
	}
}

// SaveIfAbsent stores ctrl unless the user already holds a live session.
func (s *sessionStore) SaveIfAbsent(userID string, ctrl *timetable.Controller) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if item, ok := s.items[userID]; ok && now.Sub(item.touched) <= s.ttl {
		return false
	}
	s.items[userID] = storedSession{ctrl: ctrl, touched: now}
	return true
}

func (s *sessionStore) Get(userID string) (*timetable.Controller, bool) {
	s.mu.RLock()
	item, ok := s.items[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().Sub(item.touched) > s.ttl {
		s.Delete(userID)
		return nil, false
	}
	return item.ctrl, true
}

func (s *sessionStore) Touch(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[userID]; ok {
		item.touched = s.now()
		s.items[userID] = item
	}
}

func (s *sessionStore) Delete(userID string) {
	s.mu.Lock()
	delete(s.items, userID)
	s.mu.Unlock()
}

// Prune drops every expired session.
func (s *sessionStore) Prune() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, item := range s.items {
		if now.Sub(item.touched) > s.ttl {
			delete(s.items, id)
		}
	}
}
