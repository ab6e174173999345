package timetable

import (
	"errors"
	"fmt"
)

var (
	// ErrPrecondition marks drops rejected before any mutation is planned.
	ErrPrecondition = errors.New("timetable precondition failed")
	// ErrResolution marks plans that reference entries which are no longer live.
	ErrResolution = errors.New("timetable entry no longer resolvable")
	// ErrPersistence marks failed calls to the schedule API.
	ErrPersistence = errors.New("timetable persistence failed")
	// ErrInvalidState marks edit-session calls made in the wrong mode.
	ErrInvalidState = errors.New("edit session in wrong state")
	// ErrInvalidEntry marks entry fields that cannot be placed.
	ErrInvalidEntry = errors.New("invalid schedule entry")
	// ErrInvalidDrop marks malformed drop events.
	ErrInvalidDrop = errors.New("invalid drop event")
)

// PreconditionError is returned when a drop cannot be attempted at all.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string { return e.Reason }

// Is matches ErrPrecondition.
func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

// errYearGroupRequired is the user-facing prompt when no year group can be targeted.
func errYearGroupRequired() error {
	return &PreconditionError{Reason: "select a year group first"}
}

// ResolutionError reports a stale reference: the entry vanished between
// resolution and execution.
type ResolutionError struct {
	Ref    Ref
	Reason string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("entry %s: %s", e.Ref, e.Reason)
}

// Is matches ErrResolution.
func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// PersistenceError wraps a failed schedule API call.
type PersistenceError struct {
	Op  OpKind
	Ref Ref
	Err error
}

func (e *PersistenceError) Error() string {
	if e.Ref.IsZero() {
		return fmt.Sprintf("%s entry: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s entry %s: %v", e.Op, e.Ref, e.Err)
}

// Unwrap exposes the underlying API error.
func (e *PersistenceError) Unwrap() error { return e.Err }

// Is matches ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// PartialCommitError reports that some staged operations failed during commit.
type PartialCommitError struct {
	Failed int
	Total  int
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("batch commit: %d of %d operations failed", e.Failed, e.Total)
}

// Is matches ErrPersistence.
func (e *PartialCommitError) Is(target error) bool { return target == ErrPersistence }
