// Package timetable holds the drag-and-drop placement core of the timetable
// grid: the period table, slot resolution, drop planning and the edit session
// that stages or persists the resulting mutations.
package timetable

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/noah-isme/timetable-api/pkg/clock"
)

// Weekdays is the number of school days on the grid (Monday..Friday).
const Weekdays = 5

// DayNames lists weekday names indexed by day-of-week.
var DayNames = [Weekdays]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// DayShortNames lists abbreviated weekday names.
var DayShortNames = [Weekdays]string{"Mon", "Tue", "Wed", "Thu", "Fri"}

// Ref identifies an entry either by its server-issued id or by a local id
// assigned while the entry only exists in an edit session.
type Ref struct {
	id      string
	pending bool
}

// Persisted references an entry stored by the schedule API.
func Persisted(id string) Ref { return Ref{id: id} }

// Pending references an entry that has not been saved yet.
func Pending(localID string) Ref { return Ref{id: localID, pending: true} }

// ID returns the raw identifier.
func (r Ref) ID() string { return r.id }

// IsPending reports whether the entry has never been persisted.
func (r Ref) IsPending() bool { return r.pending }

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool { return r.id == "" }

// String is for logs only.
func (r Ref) String() string {
	if r.pending {
		return "pending:" + r.id
	}
	return r.id
}

type refJSON struct {
	ID      string `json:"id"`
	Pending bool   `json:"pending,omitempty"`
}

// MarshalJSON encodes the ref as {"id": ..., "pending": ...}.
func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(refJSON{ID: r.id, Pending: r.pending})
}

// UnmarshalJSON accepts either the object form or a bare string, which is
// treated as a persisted id.
func (r *Ref) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err == nil {
		*r = Persisted(raw)
		return nil
	}
	var obj refJSON
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode entry ref: %w", err)
	}
	*r = Ref{id: obj.ID, pending: obj.Pending}
	return nil
}

// Fields are the mutable attributes of a schedule entry.
type Fields struct {
	TeacherID   string   `json:"teacher_id"`
	SubjectID   string   `json:"subject_id"`
	YearGroupID string   `json:"year_group_id,omitempty"`
	Day         int      `json:"day_of_week"`
	Start       string   `json:"start_time"`
	End         string   `json:"end_time"`
	StudentIDs  []string `json:"student_ids,omitempty"`
}

// Interval parses the entry's clock bounds.
func (f Fields) Interval() (clock.Interval, error) {
	return clock.ParseInterval(f.Start, f.End)
}

// Validate checks the fields describe a placeable entry.
func (f Fields) Validate() error {
	if f.TeacherID == "" {
		return fmt.Errorf("%w: teacher is required", ErrInvalidEntry)
	}
	if f.SubjectID == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidEntry)
	}
	if f.Day < 0 || f.Day >= Weekdays {
		return fmt.Errorf("%w: day of week %d outside 0-%d", ErrInvalidEntry, f.Day, Weekdays-1)
	}
	if _, err := f.Interval(); err != nil {
		return err
	}
	return nil
}

// Normalized validates f and rewrites its clock bounds as zero-padded
// "HH:MM", so "8:00" and "08:00" store and compare alike.
func (f Fields) Normalized() (Fields, error) {
	if err := f.Validate(); err != nil {
		return Fields{}, err
	}
	iv, _ := f.Interval()
	out := f.Clone()
	out.Start, out.End = iv.StartClock(), iv.EndClock()
	return out, nil
}

// Equal compares the persisted attributes; student order is ignored.
func (f Fields) Equal(other Fields) bool {
	if f.TeacherID != other.TeacherID ||
		f.SubjectID != other.SubjectID ||
		f.YearGroupID != other.YearGroupID ||
		f.Day != other.Day ||
		f.Start != other.Start ||
		f.End != other.End {
		return false
	}
	if len(f.StudentIDs) != len(other.StudentIDs) {
		return false
	}
	a := slices.Clone(f.StudentIDs)
	b := slices.Clone(other.StudentIDs)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// Clone returns a deep copy.
func (f Fields) Clone() Fields {
	f.StudentIDs = slices.Clone(f.StudentIDs)
	return f
}

// placedAt returns a copy relocated to teacher/day/interval, keeping subject,
// year group and students.
func (f Fields) placedAt(teacherID string, day int, start, end string) Fields {
	out := f.Clone()
	out.TeacherID = teacherID
	out.Day = day
	out.Start = start
	out.End = end
	return out
}

// Entry is one scheduled teaching block.
type Entry struct {
	Ref Ref `json:"ref"`
	Fields
}

// Clone returns a deep copy.
func (e Entry) Clone() Entry {
	e.Fields = e.Fields.Clone()
	return e
}

// CloneEntries deep-copies a list, preserving nil.
func CloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// FindEntry returns the entry with the given ref.
func FindEntry(entries []Entry, ref Ref) (Entry, bool) {
	for _, e := range entries {
		if e.Ref == ref {
			return e, true
		}
	}
	return Entry{}, false
}

// OpKind names a schedule mutation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// Mutation is a single create, update or delete against the schedule.
type Mutation struct {
	Kind   OpKind `json:"kind"`
	Ref    Ref    `json:"ref"`
	Fields Fields `json:"fields"`
}

// CreateOp builds a create mutation.
func CreateOp(fields Fields) Mutation {
	return Mutation{Kind: OpCreate, Fields: fields}
}

// UpdateOp builds an update mutation.
func UpdateOp(ref Ref, fields Fields) Mutation {
	return Mutation{Kind: OpUpdate, Ref: ref, Fields: fields}
}

// DeleteOp builds a delete mutation.
func DeleteOp(ref Ref) Mutation {
	return Mutation{Kind: OpDelete, Ref: ref}
}
