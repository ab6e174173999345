package timetable

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/pkg/clock"
)

func entry(id, teacher, subject, yearGroup string, day int, start, end string) Entry {
	return Entry{Ref: Persisted(id), Fields: Fields{
		TeacherID:   teacher,
		SubjectID:   subject,
		YearGroupID: yearGroup,
		Day:         day,
		Start:       start,
		End:         end,
	}}
}

func TestPeriodTable(t *testing.T) {
	var ids []string
	prevEnd := 0
	breaks := 0
	for p := range Periods() {
		ids = append(ids, p.ID)
		iv := p.Interval()
		assert.Greater(t, iv.End, iv.Start, p.ID)
		assert.GreaterOrEqual(t, iv.Start, prevEnd, p.ID)
		prevEnd = iv.End
		if p.IsBreak {
			breaks++
		} else if p.ID != "p0" {
			assert.NotEmpty(t, p.Display, p.ID)
		}
	}
	assert.Equal(t, []string{"p0", "p1", "p2", "b1", "p3", "p4", "p5", "b2", "p6", "end"}, ids)
	assert.Equal(t, clock.MustMinutes("14:30"), prevEnd)
	assert.Equal(t, 3, breaks)

	p, ok := PeriodByID("p3")
	require.True(t, ok)
	assert.Equal(t, "10:20", p.Start)
	_, ok = PeriodByID("p9")
	assert.False(t, ok)
}

func TestResolveSlotFindsInnerGap(t *testing.T) {
	entries := []Entry{
		entry("b", "t1", "math", "y7", 0, "08:40", "09:00"),
		entry("a", "t1", "math", "y7", 0, "08:00", "08:20"),
		entry("other-day", "t1", "math", "y7", 1, "08:20", "08:40"),
	}
	res, err := ResolveSlot(SlotQuery{TeacherID: "t1", Day: 0, Window: clock.Interval{Start: 480, End: 540}}, entries)
	require.NoError(t, err)
	require.NotNil(t, res.Gap)
	assert.Equal(t, clock.Interval{Start: 500, End: 520}, *res.Gap)
	require.Len(t, res.Overlaps, 2)
	assert.Equal(t, "a", res.Overlaps[0].Ref.ID())
	assert.Nil(t, res.Evict)
}

func TestResolveSlotTrailingGap(t *testing.T) {
	entries := []Entry{entry("a", "t1", "math", "", 2, "07:50", "08:30")}
	res, err := ResolveSlot(SlotQuery{TeacherID: "t1", Day: 2, Window: clock.Interval{Start: 480, End: 540}}, entries)
	require.NoError(t, err)
	require.NotNil(t, res.Gap)
	assert.Equal(t, clock.Interval{Start: 510, End: 540}, *res.Gap)
}

func TestResolveSlotEvictionPrefersYearGroup(t *testing.T) {
	entries := []Entry{
		entry("a", "t1", "math", "y7", 0, "08:00", "08:30"),
		entry("b", "t1", "art", "y8", 0, "08:30", "09:00"),
		entry("c", "t1", "pe", "y8", 0, "08:00", "09:00"),
	}
	res, err := ResolveSlot(SlotQuery{TeacherID: "t1", Day: 0, Window: clock.Interval{Start: 480, End: 540}, YearGroupID: "y8"}, entries)
	require.NoError(t, err)
	assert.True(t, res.Full())
	require.NotNil(t, res.Evict)
	assert.Equal(t, "c", res.Evict.Ref.ID(), "first y8 overlap in start order")

	res, err = ResolveSlot(SlotQuery{TeacherID: "t1", Day: 0, Window: clock.Interval{Start: 480, End: 540}, YearGroupID: "y9"}, entries)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Evict.Ref.ID(), "falls back to earliest overlap")
}

func TestResolveSlotSchoolWideEntryOccupies(t *testing.T) {
	entries := []Entry{entry("assembly", "t1", "assembly", "", 0, "08:00", "09:00")}
	res, err := ResolveSlot(SlotQuery{TeacherID: "t1", Day: 0, Window: clock.Interval{Start: 480, End: 540}, YearGroupID: "y7"}, entries)
	require.NoError(t, err)
	assert.True(t, res.Full())
	assert.Equal(t, "assembly", res.Evict.Ref.ID())
}

func TestResolveSlotTiesBreakByEnd(t *testing.T) {
	entries := []Entry{
		entry("long", "t1", "math", "y7", 0, "08:00", "09:00"),
		entry("short", "t1", "art", "y7", 0, "08:00", "08:30"),
	}
	res, err := ResolveSlot(SlotQuery{TeacherID: "t1", Day: 0, Window: clock.Interval{Start: 480, End: 540}, YearGroupID: "y7"}, entries)
	require.NoError(t, err)
	require.Len(t, res.Overlaps, 2)
	assert.Equal(t, "short", res.Overlaps[0].Ref.ID())
	assert.Equal(t, "short", res.Evict.Ref.ID())
}

func TestResolveSlotFailsOnUnparsableEntry(t *testing.T) {
	entries := []Entry{
		entry("corrupt", "t1", "math", "y7", 0, "8h00", "09:00"),
		entry("elsewhere", "t2", "math", "y7", 0, "bad", "09:00"),
	}
	_, err := ResolveSlot(SlotQuery{TeacherID: "t1", Day: 0, Window: clock.Interval{Start: 480, End: 540}}, entries)
	require.Error(t, err)
	assert.ErrorIs(t, err, clock.ErrParse)

	_, err = ResolveDrop(DropEvent{Kind: DropCreate, SubjectID: "art", TeacherID: "t1", Day: 0, PeriodID: "p1"},
		entries, YearGroupSelection{Selected: "y7"})
	assert.ErrorIs(t, err, clock.ErrParse)

	res, err := ResolveSlot(SlotQuery{TeacherID: "t3", Day: 0, Window: clock.Interval{Start: 480, End: 540}}, entries)
	require.NoError(t, err)
	assert.False(t, res.Full())
}

func TestFieldsNormalizedPadsClock(t *testing.T) {
	f, err := Fields{TeacherID: "t1", SubjectID: "math", Start: "8:00", End: "9:05"}.Normalized()
	require.NoError(t, err)
	assert.Equal(t, "08:00", f.Start)
	assert.Equal(t, "09:05", f.End)
	assert.True(t, f.Equal(Fields{TeacherID: "t1", SubjectID: "math", Start: "08:00", End: "09:05"}))

	_, err = Fields{TeacherID: "t1", SubjectID: "math", Start: " 08:00", End: "09:00"}.Normalized()
	assert.ErrorIs(t, err, clock.ErrParse)
}

func TestResolveSlotRejectsEmptyWindow(t *testing.T) {
	_, err := ResolveSlot(SlotQuery{TeacherID: "t1", Window: clock.Interval{Start: 480, End: 480}}, nil)
	assert.Error(t, err)
}

func TestResolveDropCreateInGap(t *testing.T) {
	entries := []Entry{
		entry("a", "t1", "math", "y7", 0, "08:00", "08:20"),
		entry("b", "t1", "math", "y7", 0, "08:40", "09:00"),
	}
	plan, err := ResolveDrop(DropEvent{Kind: DropCreate, SubjectID: "bio", TeacherID: "t1", Day: 0, PeriodID: "p1"},
		entries, YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, plan.Action)
	require.Len(t, plan.Mutations, 1)
	m := plan.Mutations[0]
	assert.Equal(t, OpCreate, m.Kind)
	assert.Equal(t, Fields{TeacherID: "t1", SubjectID: "bio", YearGroupID: "y7", Day: 0, Start: "08:20", End: "08:40"}, m.Fields)
}

func TestResolveDropCreateReplacesFullPeriod(t *testing.T) {
	entries := []Entry{entry("x", "t1", "math", "yA", 3, "08:00", "09:00")}
	plan, err := ResolveDrop(DropEvent{Kind: DropCreate, SubjectID: "bio", TeacherID: "t1", Day: 3, PeriodID: "p1"},
		entries, YearGroupSelection{Selected: "yA"})
	require.NoError(t, err)
	assert.Equal(t, ActionReplace, plan.Action)
	require.Len(t, plan.Mutations, 2)
	assert.Equal(t, DeleteOp(Persisted("x")), plan.Mutations[0])
	assert.Equal(t, CreateOp(Fields{TeacherID: "t1", SubjectID: "bio", YearGroupID: "yA", Day: 3, Start: "08:00", End: "09:00"}), plan.Mutations[1])
}

func TestResolveDropUsesFirstYearGroupWithoutFilter(t *testing.T) {
	plan, err := ResolveDrop(DropEvent{Kind: DropCreate, SubjectID: "bio", TeacherID: "t1", Day: 1, PeriodID: "p2"},
		nil, YearGroupSelection{Available: []string{"y10", "y11"}})
	require.NoError(t, err)
	assert.Equal(t, "y10", plan.YearGroupID)
	assert.Equal(t, "y10", plan.Mutations[0].Fields.YearGroupID)
	assert.Equal(t, "09:00", plan.Mutations[0].Fields.Start)
}

func TestResolveDropRequiresYearGroup(t *testing.T) {
	for _, kind := range []DropKind{DropCreate, DropMove} {
		ev := DropEvent{Kind: kind, SubjectID: "bio", Entry: Persisted("x"), TeacherID: "t1", PeriodID: "p1"}
		_, err := ResolveDrop(ev, []Entry{entry("x", "t1", "math", "", 0, "08:00", "09:00")}, YearGroupSelection{})
		require.Error(t, err, kind)
		assert.True(t, errors.Is(err, ErrPrecondition), kind)
		var pre *PreconditionError
		require.True(t, errors.As(err, &pre))
		assert.Equal(t, "select a year group first", pre.Reason)
	}
}

func TestResolveDropRejectsMalformedEvents(t *testing.T) {
	years := YearGroupSelection{Selected: "y7"}
	cases := []DropEvent{
		{Kind: "copy", TeacherID: "t1", PeriodID: "p1"},
		{Kind: DropCreate, TeacherID: "t1", PeriodID: "p1"},
		{Kind: DropMove, TeacherID: "t1", PeriodID: "p1"},
		{Kind: DropCreate, SubjectID: "s", PeriodID: "p1"},
		{Kind: DropCreate, SubjectID: "s", TeacherID: "t1", Day: 5, PeriodID: "p1"},
		{Kind: DropCreate, SubjectID: "s", TeacherID: "t1", PeriodID: "p42"},
	}
	for _, ev := range cases {
		_, err := ResolveDrop(ev, nil, years)
		assert.ErrorIs(t, err, ErrInvalidDrop, "%+v", ev)
	}
}

func TestResolveDropSwap(t *testing.T) {
	entries := []Entry{
		entry("x", "t1", "math", "y7", 0, "08:00", "09:00"),
		entry("y", "t2", "art", "y8", 0, "08:00", "09:00"),
	}
	plan, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("x"), TeacherID: "t2", Day: 0, PeriodID: "p1"},
		entries, YearGroupSelection{Selected: "y8"})
	require.NoError(t, err)
	assert.Equal(t, ActionSwap, plan.Action)
	require.Len(t, plan.Mutations, 2)

	assert.Equal(t, UpdateOp(Persisted("x"), Fields{TeacherID: "t2", SubjectID: "math", YearGroupID: "y7", Day: 0, Start: "08:00", End: "09:00"}), plan.Mutations[0])
	assert.Equal(t, UpdateOp(Persisted("y"), Fields{TeacherID: "t1", SubjectID: "art", YearGroupID: "y8", Day: 0, Start: "08:00", End: "09:00"}), plan.Mutations[1])
}

func TestResolveDropSwapAcrossDays(t *testing.T) {
	entries := []Entry{
		entry("x", "t1", "math", "y7", 1, "09:00", "10:00"),
		entry("y", "t2", "art", "y7", 4, "13:15", "14:15"),
	}
	plan, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("x"), TeacherID: "t2", Day: 4, PeriodID: "p6"},
		entries, YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	require.Len(t, plan.Mutations, 2)
	x, y := plan.Mutations[0].Fields, plan.Mutations[1].Fields
	assert.Equal(t, []any{"t2", 4, "13:15", "14:15", "math"}, []any{x.TeacherID, x.Day, x.Start, x.End, x.SubjectID})
	assert.Equal(t, []any{"t1", 1, "09:00", "10:00", "art"}, []any{y.TeacherID, y.Day, y.Start, y.End, y.SubjectID})
}

func TestResolveDropSelfIsNoop(t *testing.T) {
	entries := []Entry{entry("x", "t1", "math", "y7", 0, "08:00", "09:00")}
	plan, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("x"), TeacherID: "t1", Day: 0, PeriodID: "p1"},
		entries, YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	assert.Equal(t, ActionNoop, plan.Action)
	assert.True(t, plan.Empty())
}

func TestResolveDropMoveIntoGap(t *testing.T) {
	entries := []Entry{
		{Ref: Persisted("x"), Fields: Fields{TeacherID: "t1", SubjectID: "math", YearGroupID: "y7", Day: 0, Start: "08:00", End: "09:00", StudentIDs: []string{"s1"}}},
		entry("y", "t2", "art", "y7", 2, "10:20", "10:50"),
	}
	plan, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("x"), TeacherID: "t2", Day: 2, PeriodID: "p3"},
		entries, YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	assert.Equal(t, ActionMove, plan.Action)
	require.Len(t, plan.Mutations, 1)
	assert.Equal(t, UpdateOp(Persisted("x"), Fields{
		TeacherID: "t2", SubjectID: "math", YearGroupID: "y7", Day: 2, Start: "10:50", End: "11:20", StudentIDs: []string{"s1"},
	}), plan.Mutations[0])
}

func TestResolveDropMoveUnknownEntry(t *testing.T) {
	_, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("gone"), TeacherID: "t1", Day: 0, PeriodID: "p1"},
		nil, YearGroupSelection{Selected: "y7"})
	assert.ErrorIs(t, err, ErrResolution)
}

func TestResolveDropDoesNotMutateInput(t *testing.T) {
	entries := []Entry{
		{Ref: Persisted("x"), Fields: Fields{TeacherID: "t1", SubjectID: "math", YearGroupID: "y7", Day: 0, Start: "08:00", End: "09:00", StudentIDs: []string{"s1"}}},
		entry("y", "t2", "art", "y7", 0, "08:00", "09:00"),
	}
	before := CloneEntries(entries)
	_, err := ResolveDrop(DropEvent{Kind: DropMove, Entry: Persisted("x"), TeacherID: "t2", Day: 0, PeriodID: "p1"},
		entries, YearGroupSelection{Selected: "y7"})
	require.NoError(t, err)
	assert.Equal(t, before, entries)
}

func TestRefJSON(t *testing.T) {
	var r Ref
	require.NoError(t, r.UnmarshalJSON([]byte(`"abc"`)))
	assert.Equal(t, Persisted("abc"), r)
	require.NoError(t, r.UnmarshalJSON([]byte(`{"id":"tmp1","pending":true}`)))
	assert.Equal(t, Pending("tmp1"), r)

	raw, err := Pending("tmp1").MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"tmp1","pending":true}`, string(raw))
	assert.NotEqual(t, Persisted("tmp1"), Pending("tmp1"))
}
