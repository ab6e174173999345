package models

import "time"

// Teacher is a row header on the timetable board.
type Teacher struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Color     string    `db:"color" json:"color"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// TeacherColors is the palette offered when creating teachers.
var TeacherColors = []string{
	"#6366f1", "#8b5cf6", "#ec4899", "#f43f5e", "#f97316",
	"#eab308", "#22c55e", "#14b8a6", "#06b6d4", "#3b82f6",
}
