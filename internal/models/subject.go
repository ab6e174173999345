package models

import "time"

// Built-in subject types. Any other non-empty value is a custom type.
const (
	SubjectTypeMain         = "MAIN"
	SubjectTypeIntervention = "INTERVENTION"
	SubjectTypeBooster      = "BOOSTER"
)

// SubjectTypeOrder lists the built-in types in display order; custom types
// follow alphabetically.
var SubjectTypeOrder = []string{SubjectTypeMain, SubjectTypeIntervention, SubjectTypeBooster}

// Subject is a draggable chip on the board.
type Subject struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	Type      string    `db:"type" json:"type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Type      string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SubjectGroup is the subjects of one type.
type SubjectGroup struct {
	Type     string    `json:"type"`
	Subjects []Subject `json:"subjects"`
}

// SubjectColors is the palette offered when creating subjects.
var SubjectColors = []string{
	"#ef4444", "#f97316", "#f59e0b", "#84cc16", "#10b981",
	"#06b6d4", "#3b82f6", "#6366f1", "#a855f7", "#ec4899",
}
