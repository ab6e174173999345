package timetable

import (
	"fmt"
)

// DropKind distinguishes a subject chip drop from dragging an existing entry.
type DropKind string

const (
	DropCreate DropKind = "create"
	DropMove   DropKind = "move"
)

// DropEvent is a single drag-and-drop gesture onto the grid.
type DropEvent struct {
	Kind DropKind `json:"kind"`
	// SubjectID is the dropped subject for create drops.
	SubjectID string `json:"subject_id,omitempty"`
	// Entry is the dragged entry for move drops.
	Entry     Ref    `json:"entry"`
	TeacherID string `json:"teacher_id"`
	Day       int    `json:"day_of_week"`
	PeriodID  string `json:"period_id"`
}

func (ev DropEvent) validate() error {
	switch ev.Kind {
	case DropCreate:
		if ev.SubjectID == "" {
			return fmt.Errorf("%w: create drop needs a subject", ErrInvalidDrop)
		}
	case DropMove:
		if ev.Entry.IsZero() {
			return fmt.Errorf("%w: move drop needs an entry", ErrInvalidDrop)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDrop, ev.Kind)
	}
	if ev.TeacherID == "" {
		return fmt.Errorf("%w: target teacher is required", ErrInvalidDrop)
	}
	if ev.Day < 0 || ev.Day >= Weekdays {
		return fmt.Errorf("%w: day of week %d outside 0-%d", ErrInvalidDrop, ev.Day, Weekdays-1)
	}
	if _, ok := PeriodByID(ev.PeriodID); !ok {
		return fmt.Errorf("%w: unknown period %q", ErrInvalidDrop, ev.PeriodID)
	}
	return nil
}

// YearGroupSelection is the board's year-group filter plus the year groups
// that exist, in display order.
type YearGroupSelection struct {
	Selected  string
	Available []string
}

// Target returns the year group new entries land in: the active filter, or
// the first known year group.
func (s YearGroupSelection) Target() (string, error) {
	if s.Selected != "" {
		return s.Selected, nil
	}
	if len(s.Available) > 0 && s.Available[0] != "" {
		return s.Available[0], nil
	}
	return "", errYearGroupRequired()
}

// Action summarises what a plan does.
type Action string

const (
	ActionCreate  Action = "create"
	ActionReplace Action = "replace"
	ActionMove    Action = "move"
	ActionSwap    Action = "swap"
	ActionNoop    Action = "noop"
)

// MutationPlan is the ordered list of mutations a drop resolves to.
type MutationPlan struct {
	Action      Action     `json:"action"`
	Mutations   []Mutation `json:"mutations"`
	Resolution  Resolution `json:"resolution"`
	YearGroupID string     `json:"year_group_id"`
}

// Empty reports whether applying the plan changes nothing.
func (p MutationPlan) Empty() bool { return len(p.Mutations) == 0 }

// ResolveDrop turns a drop into a mutation plan against entries. It is pure:
// entries is only read.
func ResolveDrop(ev DropEvent, entries []Entry, years YearGroupSelection) (MutationPlan, error) {
	if err := ev.validate(); err != nil {
		return MutationPlan{}, err
	}
	yearGroup, err := years.Target()
	if err != nil {
		return MutationPlan{}, err
	}

	period, _ := PeriodByID(ev.PeriodID)
	window := period.Interval()
	res, err := ResolveSlot(SlotQuery{
		TeacherID:   ev.TeacherID,
		Day:         ev.Day,
		Window:      window,
		YearGroupID: yearGroup,
	}, entries)
	if err != nil {
		return MutationPlan{}, err
	}
	plan := MutationPlan{Resolution: res, YearGroupID: yearGroup}

	if ev.Kind == DropCreate {
		fields := Fields{
			TeacherID:   ev.TeacherID,
			SubjectID:   ev.SubjectID,
			YearGroupID: yearGroup,
			Day:         ev.Day,
		}
		if !res.Full() {
			fields.Start, fields.End = res.Gap.StartClock(), res.Gap.EndClock()
			plan.Action = ActionCreate
			plan.Mutations = []Mutation{CreateOp(fields)}
			return plan, nil
		}
		fields.Start, fields.End = period.Start, period.End
		plan.Action = ActionReplace
		plan.Mutations = []Mutation{DeleteOp(res.Evict.Ref), CreateOp(fields)}
		return plan, nil
	}

	dragged, ok := FindEntry(entries, ev.Entry)
	if !ok {
		return MutationPlan{}, &ResolutionError{Ref: ev.Entry, Reason: "dragged entry not found"}
	}
	if res.Full() && res.Evict.Ref == dragged.Ref {
		plan.Action = ActionNoop
		return plan, nil
	}
	if !res.Full() {
		plan.Action = ActionMove
		plan.Mutations = []Mutation{
			UpdateOp(dragged.Ref, dragged.placedAt(ev.TeacherID, ev.Day, res.Gap.StartClock(), res.Gap.EndClock())),
		}
		return plan, nil
	}

	evicted, ok := FindEntry(entries, res.Evict.Ref)
	if !ok {
		return MutationPlan{}, &ResolutionError{Ref: res.Evict.Ref, Reason: "eviction candidate not found"}
	}
	plan.Action = ActionSwap
	plan.Mutations = []Mutation{
		UpdateOp(dragged.Ref, dragged.placedAt(evicted.TeacherID, evicted.Day, evicted.Start, evicted.End)),
		UpdateOp(evicted.Ref, evicted.placedAt(dragged.TeacherID, dragged.Day, dragged.Start, dragged.End)),
	}
	return plan, nil
}
