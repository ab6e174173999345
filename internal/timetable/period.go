package timetable

import (
	"iter"

	"github.com/noah-isme/timetable-api/pkg/clock"
)

// Period is a fixed slot of the school day.
type Period struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Display string `json:"display,omitempty"`
	IsBreak bool   `json:"is_break"`
}

// Interval returns the period bounds in minutes.
func (p Period) Interval() clock.Interval {
	return clock.Interval{Start: clock.MustMinutes(p.Start), End: clock.MustMinutes(p.End)}
}

var periodTable = []Period{
	{ID: "p0", Label: "07:30 - 07:45", Start: "07:30", End: "07:45"},
	{ID: "p1", Label: "08:00 - 09:00", Start: "08:00", End: "09:00", Display: "1"},
	{ID: "p2", Label: "09:00 - 10:00", Start: "09:00", End: "10:00", Display: "2"},
	{ID: "b1", Label: "10:00 - 10:20", Start: "10:00", End: "10:20", IsBreak: true},
	{ID: "p3", Label: "10:20 - 11:20", Start: "10:20", End: "11:20", Display: "3"},
	{ID: "p4", Label: "11:20 - 12:20", Start: "11:20", End: "12:20", Display: "4"},
	{ID: "p5", Label: "12:20 - 13:10", Start: "12:20", End: "13:10", Display: "5"},
	{ID: "b2", Label: "13:10 - 13:15", Start: "13:10", End: "13:15", IsBreak: true},
	{ID: "p6", Label: "13:15 - 14:15", Start: "13:15", End: "14:15", Display: "6"},
	{ID: "end", Label: "14:15 - 14:30", Start: "14:15", End: "14:30", IsBreak: true},
}

// Periods yields the day's periods in order.
func Periods() iter.Seq[Period] {
	return func(yield func(Period) bool) {
		for _, p := range periodTable {
			if !yield(p) {
				return
			}
		}
	}
}

// PeriodByID looks up a period.
func PeriodByID(id string) (Period, bool) {
	for p := range Periods() {
		if p.ID == id {
			return p, true
		}
	}
	return Period{}, false
}
