package timetable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTeachingHours(t *testing.T) {
	entries := []Entry{
		entry("a", "t1", "math", "y7", 0, "08:00", "09:00"),
		entry("b", "t1", "math", "y7", 1, "12:20", "13:10"),
		entry("c", "t2", "art", "y7", 1, "08:00", "09:00"),
		entry("bad", "t1", "art", "y7", 1, "9", "10:00"),
	}
	assert.Equal(t, 110, TeachingMinutes(entries, "t1"))
	assert.Equal(t, "1h 50m", FormatHours(TeachingMinutes(entries, "t1")))
	assert.Equal(t, "1h", FormatHours(TeachingMinutes(entries, "t2")))
	assert.Equal(t, "0h", FormatHours(TeachingMinutes(entries, "t3")))
}

func TestBuildGrid(t *testing.T) {
	teachers := []GridTeacher{{ID: "t2", Name: "Zoe"}, {ID: "t1", Name: "Adam"}}
	entries := []Entry{
		entry("late", "t1", "art", "y7", 0, "08:30", "09:00"),
		entry("early", "t1", "math", "y7", 0, "08:00", "08:30"),
		entry("other", "t2", "pe", "y8", 0, "10:20", "11:20"),
	}

	days := BuildGrid(teachers, entries, GridFilter{})
	require.Len(t, days, Weekdays)
	monday := days[0]
	assert.Equal(t, "Monday", monday.Name)
	require.Len(t, monday.Rows, 2)
	assert.Equal(t, "Adam", monday.Rows[0].Teacher.Name)

	cells := monday.Rows[0].Cells
	require.Len(t, cells, 10)
	assert.Equal(t, "p1", cells[1].PeriodID)
	require.NotNil(t, cells[1].Entry)
	assert.Equal(t, "early", cells[1].Entry.Ref.ID())
	assert.Nil(t, cells[0].Entry)
	assert.True(t, cells[3].IsBreak)
}

func TestBuildGridFilters(t *testing.T) {
	teachers := []GridTeacher{{ID: "t1", Name: "Adam"}, {ID: "t2", Name: "Zoe"}, {ID: "t3", Name: "Maya"}}
	entries := []Entry{
		entry("a", "t1", "math", "y7", 0, "08:00", "09:00"),
		entry("b", "t2", "art", "y8", 0, "08:00", "09:00"),
		entry("c", "t2", "math", "y8", 3, "08:00", "09:00"),
	}

	days := BuildGrid(teachers, entries, GridFilter{SubjectIDs: []string{"math"}})
	require.Len(t, days, 2)
	assert.Equal(t, 0, days[0].Day)
	require.Len(t, days[0].Rows, 1)
	assert.Equal(t, "t1", days[0].Rows[0].Teacher.ID)
	assert.Equal(t, 3, days[1].Day)

	days = BuildGrid(teachers, entries, GridFilter{TeacherIDs: []string{"t2"}, YearGroupID: "y7"})
	require.Len(t, days, Weekdays)
	for _, d := range days {
		require.Len(t, d.Rows, 1)
		for _, c := range d.Rows[0].Cells {
			assert.Nil(t, c.Entry)
		}
	}
}
