package models

import "time"

// Student can be attached to individual schedule entries.
type Student struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	YearGroupID *string   `db:"year_group_id" json:"year_group_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search      string
	YearGroupID string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
