package timetable

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduleAPI struct {
	mu        sync.Mutex
	entries   map[string]Entry
	order     []string
	seq       int
	calls     []string
	failOn    map[string]error
	listErr   error
	listCalls int
}

func newFakeScheduleAPI(entries ...Entry) *fakeScheduleAPI {
	api := &fakeScheduleAPI{entries: map[string]Entry{}, failOn: map[string]error{}}
	for _, e := range entries {
		api.entries[e.Ref.ID()] = e.Clone()
		api.order = append(api.order, e.Ref.ID())
	}
	return api
}

func (f *fakeScheduleAPI) List(ctx context.Context) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Entry, 0, len(f.order))
	for _, id := range f.order {
		if e, ok := f.entries[id]; ok {
			out = append(out, e.Clone())
		}
	}
	return out, nil
}

func (f *fakeScheduleAPI) Create(ctx context.Context, fields Fields) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create:"+fields.SubjectID)
	if err := f.failOn["create:"+fields.SubjectID]; err != nil {
		return Entry{}, err
	}
	f.seq++
	id := fmt.Sprintf("srv-%d", f.seq)
	e := Entry{Ref: Persisted(id), Fields: fields.Clone()}
	f.entries[id] = e
	f.order = append(f.order, id)
	return e.Clone(), nil
}

func (f *fakeScheduleAPI) Update(ctx context.Context, id string, fields Fields) (Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update:"+id)
	if err := f.failOn["update:"+id]; err != nil {
		return Entry{}, err
	}
	if _, ok := f.entries[id]; !ok {
		return Entry{}, errors.New("not found")
	}
	e := Entry{Ref: Persisted(id), Fields: fields.Clone()}
	f.entries[id] = e
	return e.Clone(), nil
}

func (f *fakeScheduleAPI) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "delete:"+id)
	if err := f.failOn["delete:"+id]; err != nil {
		return err
	}
	delete(f.entries, id)
	return nil
}

func (f *fakeScheduleAPI) sortedCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("local-%d", n)
	}
}

func seedEntries() []Entry {
	return []Entry{
		{Ref: Persisted("x"), Fields: Fields{TeacherID: "t1", SubjectID: "math", YearGroupID: "y7", Day: 0, Start: "08:00", End: "09:00", StudentIDs: []string{"s1", "s2"}}},
		entry("y", "t2", "art", "y7", 0, "08:00", "09:00"),
		entry("z", "t3", "pe", "y8", 2, "10:20", "11:20"),
	}
}

func TestControllerBatchCancelRestoresSnapshot(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	c := NewController(api, seedEntries(), ControllerConfig{NewLocalID: seqIDs()})
	before := c.Entries()

	require.NoError(t, c.EnterBatch())
	created, err := c.Stage(CreateOp(Fields{TeacherID: "t1", SubjectID: "bio", YearGroupID: "y7", Day: 1, Start: "09:00", End: "10:00"}))
	require.NoError(t, err)
	assert.True(t, created.Ref.IsPending())
	_, err = c.Stage(DeleteOp(Persisted("z")))
	require.NoError(t, err)
	assert.Len(t, c.State().Deleted, 1)

	require.NoError(t, c.CancelBatch())
	assert.Equal(t, before, c.Entries())
	assert.Equal(t, ModeLive, c.Mode())
	assert.Empty(t, api.calls)
	assert.Zero(t, api.listCalls)
}

func TestControllerRejectsInvalidTransitions(t *testing.T) {
	c := NewController(newFakeScheduleAPI(), nil, ControllerConfig{})
	assert.ErrorIs(t, c.CancelBatch(), ErrInvalidState)
	_, err := c.CommitBatch(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = c.Stage(DeleteOp(Persisted("x")))
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, c.EnterBatch())
	assert.ErrorIs(t, c.EnterBatch(), ErrInvalidState)
	assert.ErrorIs(t, c.Refresh(context.Background()), ErrInvalidState)
}

func TestControllerStageDeletePendingSkipsDeletionSet(t *testing.T) {
	c := NewController(newFakeScheduleAPI(), nil, ControllerConfig{NewLocalID: seqIDs()})
	require.NoError(t, c.EnterBatch())
	created, err := c.Stage(CreateOp(Fields{TeacherID: "t1", SubjectID: "bio", Day: 1, Start: "09:00", End: "10:00"}))
	require.NoError(t, err)
	_, err = c.Stage(DeleteOp(created.Ref))
	require.NoError(t, err)

	state := c.State()
	assert.Empty(t, state.Entries)
	assert.Empty(t, state.Deleted)

	_, err = c.Stage(UpdateOp(created.Ref, created.Fields))
	assert.ErrorIs(t, err, ErrResolution)
}

func TestControllerCommitSkipsRevertedUpdates(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	c := NewController(api, seedEntries(), ControllerConfig{NewLocalID: seqIDs()})
	require.NoError(t, c.EnterBatch())

	x, _ := FindEntry(c.Entries(), Persisted("x"))
	moved := x.Fields.Clone()
	moved.Start, moved.End = "09:00", "10:00"
	_, err := c.Stage(UpdateOp(x.Ref, moved))
	require.NoError(t, err)
	_, err = c.Stage(UpdateOp(x.Ref, Fields{TeacherID: "t1", SubjectID: "math", YearGroupID: "y7", Day: 0, Start: "08:00", End: "09:00"}))
	require.NoError(t, err)

	ops, err := c.Diff()
	require.NoError(t, err)
	assert.Empty(t, ops)

	result, err := c.CommitBatch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Succeeded)
	assert.Empty(t, api.calls)
	assert.Equal(t, ModeLive, c.Mode())
}

func TestControllerCommitIssuesMinimalCalls(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	c := NewController(api, seedEntries(), ControllerConfig{NewLocalID: seqIDs(), CommitConcurrency: 2})
	require.NoError(t, c.EnterBatch())

	_, err := c.Stage(CreateOp(Fields{TeacherID: "t1", SubjectID: "bio", YearGroupID: "y7", Day: 1, Start: "09:00", End: "10:00"}))
	require.NoError(t, err)
	_, err = c.Stage(DeleteOp(Persisted("z")))
	require.NoError(t, err)
	y, _ := FindEntry(c.Entries(), Persisted("y"))
	y.Day = 3
	_, err = c.Stage(UpdateOp(y.Ref, y.Fields))
	require.NoError(t, err)

	result, err := c.CommitBatch(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Succeeded, 3)
	assert.Empty(t, result.Failed)
	assert.True(t, result.Refreshed)
	assert.Equal(t, []string{"create:bio", "delete:z", "update:y"}, api.sortedCalls())

	state := c.State()
	assert.Equal(t, ModeLive, state.Mode)
	assert.Empty(t, state.Deleted)
	for _, e := range state.Entries {
		assert.False(t, e.Ref.IsPending())
	}
	_, ok := FindEntry(state.Entries, Persisted("z"))
	assert.False(t, ok)
}

func TestControllerCommitReportsPartialFailure(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	api.failOn["delete:z"] = errors.New("boom")
	c := NewController(api, seedEntries(), ControllerConfig{NewLocalID: seqIDs()})
	require.NoError(t, c.EnterBatch())
	_, err := c.Stage(DeleteOp(Persisted("z")))
	require.NoError(t, err)
	_, err = c.Stage(CreateOp(Fields{TeacherID: "t1", SubjectID: "bio", Day: 1, Start: "09:00", End: "10:00"}))
	require.NoError(t, err)

	result, err := c.CommitBatch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	var partial *PartialCommitError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 1, partial.Failed)
	assert.Equal(t, 2, partial.Total)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, OpDelete, result.Failed[0].Mutation.Kind)
	assert.Len(t, result.Succeeded, 1)
	assert.Equal(t, ModeLive, c.Mode(), "batch state cleared regardless")
	_, ok := FindEntry(c.Entries(), Persisted("z"))
	assert.True(t, ok, "refetch shows the undeleted entry")
}

func TestControllerLiveSwapWritesBothAndConfirms(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	c := NewController(api, seedEntries(), ControllerConfig{})

	plan, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("x"), TeacherID: "t2", Day: 0, PeriodID: "p1"},
		c.Entries(), YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	require.Equal(t, ActionSwap, plan.Action)

	result, err := c.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Refreshed)
	assert.Len(t, result.Entries, 2)
	assert.Equal(t, []string{"update:x", "update:y"}, api.sortedCalls())
	assert.Equal(t, 1, api.listCalls)

	x, _ := FindEntry(c.Entries(), Persisted("x"))
	y, _ := FindEntry(c.Entries(), Persisted("y"))
	assert.Equal(t, "t2", x.TeacherID)
	assert.Equal(t, "t1", y.TeacherID)
	assert.Equal(t, []string{"s1", "s2"}, x.StudentIDs)
}

func TestControllerLiveSwapFailureRestoresWithoutRead(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	api.failOn["update:y"] = errors.New("conflict")
	c := NewController(api, seedEntries(), ControllerConfig{})
	before := c.Entries()

	plan, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("x"), TeacherID: "t2", Day: 0, PeriodID: "p1"},
		c.Entries(), YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	require.Equal(t, ActionSwap, plan.Action)

	_, err = c.Apply(context.Background(), plan)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, before, c.Entries())
	assert.Equal(t, []string{"update:x", "update:y"}, api.sortedCalls())
	assert.Zero(t, api.listCalls)
}

func TestControllerLiveRollbackOnFailure(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	api.failOn["create:bio"] = errors.New("unavailable")
	c := NewController(api, seedEntries(), ControllerConfig{})
	before := c.Entries()

	plan, err := ResolveDrop(DropEvent{Kind: DropCreate, SubjectID: "bio", TeacherID: "t1", Day: 0, PeriodID: "p1"},
		c.Entries(), YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	require.Equal(t, ActionReplace, plan.Action)

	_, err = c.Apply(context.Background(), plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, OpCreate, pe.Op)
	assert.Equal(t, before, c.Entries())
	assert.Equal(t, []string{"create:bio", "delete:x"}, api.sortedCalls())
}

func TestControllerLiveCreateReplacesPendingRef(t *testing.T) {
	api := newFakeScheduleAPI()
	api.listErr = errors.New("read replica down")
	c := NewController(api, nil, ControllerConfig{})

	plan, err := ResolveDrop(DropEvent{Kind: DropCreate, SubjectID: "bio", TeacherID: "t1", Day: 0, PeriodID: "p1"},
		nil, YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	result, err := c.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, result.Refreshed)

	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Persisted("srv-1"), entries[0].Ref)
}

func TestControllerBatchApplyStagesPlan(t *testing.T) {
	api := newFakeScheduleAPI(seedEntries()...)
	c := NewController(api, seedEntries(), ControllerConfig{NewLocalID: seqIDs()})
	require.NoError(t, c.EnterBatch())

	plan, err := ResolveDrop(DropEvent{Kind: DropCreate, SubjectID: "bio", TeacherID: "t3", Day: 2, PeriodID: "p3"},
		c.Entries(), YearGroupSelection{Selected: "y8"})
	require.NoError(t, err)
	result, err := c.Apply(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, ModeBatch, result.Mode)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, Pending("local-1"), result.Entries[0].Ref)
	assert.Empty(t, api.calls)

	state := c.State()
	assert.Equal(t, []Ref{Persisted("z")}, state.Deleted)
}

func TestControllerBatchApplyIsAtomic(t *testing.T) {
	c := NewController(newFakeScheduleAPI(), seedEntries(), ControllerConfig{NewLocalID: seqIDs()})
	require.NoError(t, c.EnterBatch())
	before := c.State()

	_, err := c.Apply(context.Background(), MutationPlan{Mutations: []Mutation{
		DeleteOp(Persisted("x")),
		UpdateOp(Persisted("gone"), Fields{TeacherID: "t1", SubjectID: "math", Start: "08:00", End: "09:00"}),
	}})
	assert.ErrorIs(t, err, ErrResolution)
	assert.Equal(t, before, c.State())
}
