package timetable

import (
	"cmp"
	"slices"

	"github.com/noah-isme/timetable-api/pkg/clock"
)

// GridTeacher is the row header of the board.
type GridTeacher struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// GridFilter narrows the board. Empty fields do not filter.
type GridFilter struct {
	TeacherIDs  []string
	SubjectIDs  []string
	YearGroupID string
}

func (f GridFilter) keepsEntry(e Entry) bool {
	if f.YearGroupID != "" && e.YearGroupID != f.YearGroupID {
		return false
	}
	return len(f.SubjectIDs) == 0 || slices.Contains(f.SubjectIDs, e.SubjectID)
}

// GridCell is one teacher/period intersection.
type GridCell struct {
	PeriodID string `json:"period_id"`
	IsBreak  bool   `json:"is_break"`
	Entry    *Entry `json:"entry,omitempty"`
}

// GridRow is one teacher's day.
type GridRow struct {
	Teacher GridTeacher `json:"teacher"`
	Cells   []GridCell  `json:"cells"`
}

// GridDay groups the rows of one weekday.
type GridDay struct {
	Day  int       `json:"day_of_week"`
	Name string    `json:"name"`
	Rows []GridRow `json:"rows"`
}

// BuildGrid lays entries out as days of teacher rows by period. A cell shows
// the earliest matching entry that overlaps its period. When a subject filter
// is set, teachers with nothing matching on a day are left off that day.
// Days without rows are omitted.
func BuildGrid(teachers []GridTeacher, entries []Entry, filter GridFilter) []GridDay {
	rows := slices.Clone(teachers)
	if len(filter.TeacherIDs) > 0 {
		rows = slices.DeleteFunc(rows, func(t GridTeacher) bool {
			return !slices.Contains(filter.TeacherIDs, t.ID)
		})
	}
	slices.SortStableFunc(rows, func(a, b GridTeacher) int { return cmp.Compare(a.Name, b.Name) })

	visible := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if filter.keepsEntry(e) {
			visible = append(visible, e)
		}
	}
	slices.SortStableFunc(visible, func(a, b Entry) int { return cmp.Compare(startOf(a), startOf(b)) })

	days := make([]GridDay, 0, Weekdays)
	for day := range Weekdays {
		gd := GridDay{Day: day, Name: DayNames[day]}
		for _, t := range rows {
			var own []Entry
			for _, e := range visible {
				if e.TeacherID == t.ID && e.Day == day {
					own = append(own, e)
				}
			}
			if len(filter.SubjectIDs) > 0 && len(own) == 0 {
				continue
			}
			gd.Rows = append(gd.Rows, GridRow{Teacher: t, Cells: buildCells(own)})
		}
		if len(gd.Rows) > 0 {
			days = append(days, gd)
		}
	}
	return days
}

func buildCells(own []Entry) []GridCell {
	var cells []GridCell
	for p := range Periods() {
		cell := GridCell{PeriodID: p.ID, IsBreak: p.IsBreak}
		window := p.Interval()
		for _, e := range own {
			iv, err := e.Interval()
			if err != nil {
				continue
			}
			if iv.Overlaps(window) {
				hit := e.Clone()
				cell.Entry = &hit
				break
			}
		}
		cells = append(cells, cell)
	}
	return cells
}

// startOf sorts unparsable entries last.
func startOf(e Entry) int {
	m, err := clock.ToMinutes(e.Start)
	if err != nil {
		return clock.MinutesPerDay
	}
	return m
}
