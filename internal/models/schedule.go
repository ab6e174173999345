package models

import (
	"time"

	"github.com/lib/pq"
)

// ScheduleEntry is one teacher teaching one subject on one weekday interval.
// StartTime and EndTime are "HH:MM".
type ScheduleEntry struct {
	ID          string         `db:"id" json:"id"`
	TeacherID   string         `db:"teacher_id" json:"teacher_id"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	YearGroupID *string        `db:"year_group_id" json:"year_group_id,omitempty"`
	DayOfWeek   int            `db:"day_of_week" json:"day_of_week"`
	StartTime   string         `db:"start_time" json:"start_time"`
	EndTime     string         `db:"end_time" json:"end_time"`
	StudentIDs  pq.StringArray `db:"student_ids" json:"student_ids"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// ScheduleFilter describes query params for listing schedule entries.
type ScheduleFilter struct {
	TeacherID   string
	SubjectID   string
	YearGroupID string
	DayOfWeek   *int
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// ScheduleEntryDetail joins display names for exports and the board.
type ScheduleEntryDetail struct {
	ScheduleEntry
	TeacherName   string  `db:"teacher_name" json:"teacher_name"`
	SubjectName   string  `db:"subject_name" json:"subject_name"`
	SubjectColor  string  `db:"subject_color" json:"subject_color"`
	YearGroupName *string `db:"year_group_name" json:"year_group_name,omitempty"`
}
