package timetable

import (
	"context"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/errgroup"
)

// ScheduleAPI is the persistence collaborator the controller writes through.
type ScheduleAPI interface {
	List(ctx context.Context) ([]Entry, error)
	Create(ctx context.Context, fields Fields) (Entry, error)
	Update(ctx context.Context, id string, fields Fields) (Entry, error)
	Delete(ctx context.Context, id string) error
}

// Mode is the controller state.
type Mode string

const (
	ModeLive  Mode = "live"
	ModeBatch Mode = "batch"
)

const defaultCommitConcurrency = 8

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	// CommitConcurrency caps in-flight API calls during a batch commit.
	CommitConcurrency int
	// NewLocalID issues ids for pending entries. Defaults to nanoid.
	NewLocalID func() string
}

// Controller owns the in-memory schedule list of one editor. In live mode
// every mutation is written through immediately; in batch mode mutations are
// staged and written on commit.
type Controller struct {
	api         ScheduleAPI
	newLocalID  func() string
	concurrency int

	mu       sync.Mutex
	mode     Mode
	entries  []Entry
	snapshot []Entry
	deleted  []Ref
}

// NewController starts a live controller over entries.
func NewController(api ScheduleAPI, entries []Entry, cfg ControllerConfig) *Controller {
	if cfg.CommitConcurrency <= 0 {
		cfg.CommitConcurrency = defaultCommitConcurrency
	}
	if cfg.NewLocalID == nil {
		cfg.NewLocalID = func() string { return gonanoid.Must() }
	}
	return &Controller{
		api:         api,
		newLocalID:  cfg.NewLocalID,
		concurrency: cfg.CommitConcurrency,
		mode:        ModeLive,
		entries:     CloneEntries(entries),
	}
}

// SessionState is a read-only view of the controller.
type SessionState struct {
	Mode    Mode    `json:"mode"`
	Entries []Entry `json:"entries"`
	Deleted []Ref   `json:"deleted"`
}

// State returns a deep copy of the controller state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SessionState{
		Mode:    c.mode,
		Entries: CloneEntries(c.entries),
		Deleted: append([]Ref(nil), c.deleted...),
	}
}

// Mode reports the current state.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Entries returns a deep copy of the working list.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CloneEntries(c.entries)
}

// Refresh replaces the working list with the API's. Not allowed mid-batch.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeLive {
		return fmt.Errorf("%w: refresh would discard staged changes", ErrInvalidState)
	}
	entries, err := c.api.List(ctx)
	if err != nil {
		return &PersistenceError{Op: "list", Err: err}
	}
	c.entries = CloneEntries(entries)
	return nil
}

// EnterBatch snapshots the working list and starts staging.
func (c *Controller) EnterBatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeLive {
		return fmt.Errorf("%w: already in batch mode", ErrInvalidState)
	}
	c.snapshot = CloneEntries(c.entries)
	c.deleted = nil
	c.mode = ModeBatch
	return nil
}

// Stage applies m to the working list without calling the API. It returns
// the created or updated entry; deletes return the removed entry.
func (c *Controller) Stage(m Mutation) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeBatch {
		return Entry{}, fmt.Errorf("%w: staging requires batch mode", ErrInvalidState)
	}
	return c.stageLocked(m)
}

func (c *Controller) stageLocked(m Mutation) (Entry, error) {
	entry, err := c.applyLocal(m)
	if err != nil {
		return Entry{}, err
	}
	if m.Kind == OpDelete && !m.Ref.IsPending() {
		c.deleted = append(c.deleted, m.Ref)
	}
	return entry, nil
}

// applyLocal mutates the working list in place.
func (c *Controller) applyLocal(m Mutation) (Entry, error) {
	switch m.Kind {
	case OpCreate:
		fields, err := m.Fields.Normalized()
		if err != nil {
			return Entry{}, err
		}
		entry := Entry{Ref: Pending(c.newLocalID()), Fields: fields}
		c.entries = append(c.entries, entry)
		return entry.Clone(), nil
	case OpUpdate:
		idx := c.indexOf(m.Ref)
		if idx < 0 {
			return Entry{}, &ResolutionError{Ref: m.Ref, Reason: "not in working list"}
		}
		fields := m.Fields.Clone()
		if fields.StudentIDs == nil {
			fields.StudentIDs = append([]string(nil), c.entries[idx].StudentIDs...)
		}
		fields, err := fields.Normalized()
		if err != nil {
			return Entry{}, err
		}
		c.entries[idx].Fields = fields
		return c.entries[idx].Clone(), nil
	case OpDelete:
		idx := c.indexOf(m.Ref)
		if idx < 0 {
			return Entry{}, &ResolutionError{Ref: m.Ref, Reason: "not in working list"}
		}
		removed := c.entries[idx]
		c.entries = append(c.entries[:idx:idx], c.entries[idx+1:]...)
		return removed, nil
	default:
		return Entry{}, fmt.Errorf("%w: unknown mutation kind %q", ErrInvalidEntry, m.Kind)
	}
}

func (c *Controller) indexOf(ref Ref) int {
	for i, e := range c.entries {
		if e.Ref == ref {
			return i
		}
	}
	return -1
}

// CancelBatch restores the snapshot and discards staged work.
func (c *Controller) CancelBatch() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeBatch {
		return fmt.Errorf("%w: no batch to cancel", ErrInvalidState)
	}
	c.entries = c.snapshot
	c.resetBatch()
	return nil
}

func (c *Controller) resetBatch() {
	c.snapshot = nil
	c.deleted = nil
	c.mode = ModeLive
}

// ApplyResult reports what Apply did.
type ApplyResult struct {
	Mode    Mode       `json:"mode"`
	Applied []Mutation `json:"applied"`
	// Entries holds the created or updated entries, in plan order.
	Entries []Entry `json:"entries"`
	// Refreshed is false when the confirmation read after a live write failed
	// and the working list reflects only the API responses.
	Refreshed bool `json:"refreshed"`
}

// Apply executes a plan. In batch mode each mutation is staged. In live mode
// the working list is snapshotted, updated optimistically and then written
// through; any failure restores the snapshot exactly.
func (c *Controller) Apply(ctx context.Context, plan MutationPlan) (ApplyResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := ApplyResult{Mode: c.mode}
	if plan.Empty() {
		result.Refreshed = true
		return result, nil
	}
	if c.mode == ModeBatch {
		return c.stagePlan(plan, result)
	}

	tx := c.begin()
	for _, m := range plan.Mutations {
		if _, err := c.applyLocal(m); err != nil {
			tx.rollback()
			return result, err
		}
	}
	written, err := c.persist(ctx, plan.Mutations)
	if err != nil {
		tx.rollback()
		return result, err
	}
	tx.commit(written)

	result.Applied = plan.Mutations
	for _, e := range written {
		if !e.Ref.IsZero() {
			result.Entries = append(result.Entries, e.Clone())
		}
	}
	if fresh, err := c.api.List(ctx); err == nil {
		c.entries = CloneEntries(fresh)
		result.Refreshed = true
	}
	return result, nil
}

func (c *Controller) stagePlan(plan MutationPlan, result ApplyResult) (ApplyResult, error) {
	before := CloneEntries(c.entries)
	deleted := append([]Ref(nil), c.deleted...)
	for _, m := range plan.Mutations {
		entry, err := c.stageLocked(m)
		if err != nil {
			c.entries, c.deleted = before, deleted
			return result, err
		}
		if m.Kind != OpDelete {
			result.Entries = append(result.Entries, entry)
		}
	}
	result.Applied = plan.Mutations
	result.Refreshed = true
	return result, nil
}

// liveTx is the snapshot half of a live write.
type liveTx struct {
	c      *Controller
	before []Entry
}

func (c *Controller) begin() *liveTx {
	return &liveTx{c: c, before: CloneEntries(c.entries)}
}

func (t *liveTx) rollback() {
	t.c.entries = t.before
}

// commit swaps optimistic pending entries for the API's copies.
func (t *liveTx) commit(written []Entry) {
	var pending []int
	for i, e := range t.c.entries {
		if e.Ref.IsPending() {
			pending = append(pending, i)
		}
	}
	n := 0
	for _, w := range written {
		if w.Ref.IsZero() {
			continue
		}
		if idx := t.c.indexOf(w.Ref); idx >= 0 {
			t.c.entries[idx] = w.Clone()
			continue
		}
		if n < len(pending) {
			t.c.entries[pending[n]] = w.Clone()
			n++
		}
	}
}

// persist writes mutations to the API. A plan made only of updates (a swap)
// is written concurrently; anything else runs in order so a replace deletes
// before it creates.
func (c *Controller) persist(ctx context.Context, muts []Mutation) ([]Entry, error) {
	out := make([]Entry, len(muts))
	allUpdates := true
	for _, m := range muts {
		if m.Kind != OpUpdate {
			allUpdates = false
			break
		}
	}
	if allUpdates && len(muts) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i, m := range muts {
			g.Go(func() error {
				e, err := c.call(gctx, m)
				out[i] = e
				return err
			})
		}
		return out, g.Wait()
	}
	for i, m := range muts {
		e, err := c.call(ctx, m)
		if err != nil {
			return out, err
		}
		out[i] = e
	}
	return out, nil
}

func (c *Controller) call(ctx context.Context, m Mutation) (Entry, error) {
	switch m.Kind {
	case OpCreate:
		e, err := c.api.Create(ctx, m.Fields)
		if err != nil {
			return Entry{}, &PersistenceError{Op: OpCreate, Err: err}
		}
		return e, nil
	case OpUpdate:
		if m.Ref.IsPending() {
			return Entry{}, &ResolutionError{Ref: m.Ref, Reason: "pending entry cannot be updated remotely"}
		}
		e, err := c.api.Update(ctx, m.Ref.ID(), m.Fields)
		if err != nil {
			return Entry{}, &PersistenceError{Op: OpUpdate, Ref: m.Ref, Err: err}
		}
		return e, nil
	case OpDelete:
		if m.Ref.IsPending() {
			return Entry{}, nil
		}
		if err := c.api.Delete(ctx, m.Ref.ID()); err != nil {
			return Entry{}, &PersistenceError{Op: OpDelete, Ref: m.Ref, Err: err}
		}
		return Entry{}, nil
	default:
		return Entry{}, fmt.Errorf("%w: unknown mutation kind %q", ErrInvalidEntry, m.Kind)
	}
}

// FailedMutation is one staged operation the API rejected.
type FailedMutation struct {
	Mutation Mutation `json:"mutation"`
	Error    string   `json:"error"`
}

// CommitResult reports a batch commit.
type CommitResult struct {
	Succeeded []Mutation       `json:"succeeded"`
	Failed    []FailedMutation `json:"failed"`
	Entries   []Entry          `json:"entries"`
	Refreshed bool             `json:"refreshed"`
}

// Diff computes the API calls needed to turn the snapshot into the working
// list: deletes first, then creates for pending entries and updates for
// entries whose fields changed.
func (c *Controller) Diff() ([]Mutation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeBatch {
		return nil, fmt.Errorf("%w: diff requires batch mode", ErrInvalidState)
	}
	return c.diffLocked(), nil
}

func (c *Controller) diffLocked() []Mutation {
	ops := make([]Mutation, 0, len(c.deleted))
	for _, ref := range c.deleted {
		ops = append(ops, DeleteOp(ref))
	}
	for _, e := range c.entries {
		if e.Ref.IsPending() {
			ops = append(ops, CreateOp(e.Fields.Clone()))
			continue
		}
		orig, ok := FindEntry(c.snapshot, e.Ref)
		if ok && orig.Fields.Equal(e.Fields) {
			continue
		}
		ops = append(ops, UpdateOp(e.Ref, e.Fields.Clone()))
	}
	return ops
}

// CommitBatch writes every staged change concurrently, waits for all calls to
// settle and returns to live mode whatever the outcome. Failed calls are not
// retried; the caller should refresh to reconcile.
func (c *Controller) CommitBatch(ctx context.Context) (CommitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeBatch {
		return CommitResult{}, fmt.Errorf("%w: commit requires batch mode", ErrInvalidState)
	}

	ops := c.diffLocked()
	errs := make([]error, len(ops))
	written := make([]Entry, len(ops))

	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, op := range ops {
		g.Go(func() error {
			written[i], errs[i] = c.call(ctx, op)
			return nil
		})
	}
	_ = g.Wait()

	result := CommitResult{Succeeded: []Mutation{}, Failed: []FailedMutation{}}
	for i, op := range ops {
		if errs[i] != nil {
			result.Failed = append(result.Failed, FailedMutation{Mutation: op, Error: errs[i].Error()})
			continue
		}
		result.Succeeded = append(result.Succeeded, op)
	}

	c.resetBatch()
	if fresh, err := c.api.List(ctx); err == nil {
		c.entries = CloneEntries(fresh)
		result.Refreshed = true
	} else {
		c.entries = mergeWritten(c.entries, written)
	}
	result.Entries = CloneEntries(c.entries)

	if len(result.Failed) > 0 {
		return result, &PartialCommitError{Failed: len(result.Failed), Total: len(ops)}
	}
	return result, nil
}

// mergeWritten replaces entries with the API's copies where one came back and
// drops pending entries that were never created.
func mergeWritten(entries []Entry, written []Entry) []Entry {
	byID := make(map[string]Entry, len(written))
	var created []Entry
	for _, w := range written {
		if w.Ref.IsZero() {
			continue
		}
		byID[w.Ref.ID()] = w
		created = append(created, w)
	}
	out := make([]Entry, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Ref.IsPending() {
			continue
		}
		if w, ok := byID[e.Ref.ID()]; ok {
			e = w
		}
		seen[e.Ref.ID()] = true
		out = append(out, e.Clone())
	}
	for _, w := range created {
		if !seen[w.Ref.ID()] {
			out = append(out, w.Clone())
			seen[w.Ref.ID()] = true
		}
	}
	return out
}
