package timetable

import (
	"cmp"
	"errors"
	"slices"

	"github.com/noah-isme/timetable-api/pkg/clock"
)

var errEmptyWindow = errors.New("slot window must have positive length")

// SlotQuery describes the cell a drop landed on.
type SlotQuery struct {
	TeacherID string
	Day       int
	Window    clock.Interval
	// YearGroupID is the year group the drop targets; it only steers which
	// overlap is evicted when the window is full.
	YearGroupID string
}

// Resolution is the outcome of scanning a window for free time.
type Resolution struct {
	// Overlaps are the teacher's entries intersecting the window, by start
	// then end.
	Overlaps []Entry `json:"overlaps"`
	// Gap is the earliest free sub-interval of the window; nil when full.
	Gap *clock.Interval `json:"gap,omitempty"`
	// Evict is the entry to displace when the window is full.
	Evict *Entry `json:"evict,omitempty"`
}

// Full reports whether the window has no free time.
func (r Resolution) Full() bool { return r.Gap == nil }

// ResolveSlot finds where a drop onto q can go. Year-group scoping is ignored
// when collecting overlaps: an entry without a year group occupies the slot
// for everyone. An entry of the same teacher and day with unparsable times
// fails the whole query with its *clock.ParseError.
func ResolveSlot(q SlotQuery, entries []Entry) (Resolution, error) {
	if q.Window.Len() == 0 {
		return Resolution{}, errEmptyWindow
	}

	type span struct {
		entry Entry
		iv    clock.Interval
	}
	var hits []span
	for _, e := range entries {
		if e.TeacherID != q.TeacherID || e.Day != q.Day {
			continue
		}
		iv, err := e.Interval()
		if err != nil {
			return Resolution{}, err
		}
		if iv.Overlaps(q.Window) {
			hits = append(hits, span{entry: e, iv: iv})
		}
	}
	slices.SortStableFunc(hits, func(a, b span) int {
		return cmp.Or(cmp.Compare(a.iv.Start, b.iv.Start), cmp.Compare(a.iv.End, b.iv.End))
	})

	res := Resolution{Overlaps: make([]Entry, len(hits))}
	for i, h := range hits {
		res.Overlaps[i] = h.entry
	}

	cursor := q.Window.Start
	for _, h := range hits {
		if h.iv.Start > cursor {
			res.Gap = &clock.Interval{Start: cursor, End: h.iv.Start}
			return res, nil
		}
		cursor = max(cursor, h.iv.End)
	}
	if cursor < q.Window.End {
		res.Gap = &clock.Interval{Start: cursor, End: q.Window.End}
		return res, nil
	}

	evict := res.Overlaps[0]
	for _, e := range res.Overlaps {
		if yearGroupMatches(e.YearGroupID, q.YearGroupID) {
			evict = e
			break
		}
	}
	res.Evict = &evict
	return res, nil
}

// yearGroupMatches treats an empty side as a wildcard.
func yearGroupMatches(entryYearGroup, requested string) bool {
	return requested == "" || entryYearGroup == "" || entryYearGroup == requested
}
