// Package clock converts between "HH:MM" wall-clock strings and minute offsets
// and answers half-open interval overlap questions.
package clock

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay bounds every valid minute offset.
const MinutesPerDay = 24 * 60

// ErrParse is the sentinel wrapped by every ParseError.
var ErrParse = errors.New("invalid clock time")

// ParseError reports a malformed clock string.
type ParseError struct {
	Input  string
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse clock %q: %s", e.Input, e.Reason)
}

// Unwrap allows errors.Is(err, ErrParse).
func (e *ParseError) Unwrap() error {
	return ErrParse
}

// ToMinutes parses "HH:MM" into minutes since midnight. The hour may be one
// or two digits, the minute exactly two; signs and whitespace are rejected.
func ToMinutes(value string) (int, error) {
	hh, mm, ok := strings.Cut(value, ":")
	if !ok {
		return 0, &ParseError{Input: value, Reason: "missing colon"}
	}
	if len(hh) == 0 || len(hh) > 2 || !digits(hh) {
		return 0, &ParseError{Input: value, Reason: "hour is not numeric"}
	}
	if len(mm) != 2 || !digits(mm) {
		return 0, &ParseError{Input: value, Reason: "minute is not numeric"}
	}
	hours, _ := strconv.Atoi(hh)
	minutes, _ := strconv.Atoi(mm)
	if hours > 23 {
		return 0, &ParseError{Input: value, Reason: "hour out of range"}
	}
	if minutes > 59 {
		return 0, &ParseError{Input: value, Reason: "minute out of range"}
	}
	return hours*60 + minutes, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustMinutes is ToMinutes for compile-time constants; it panics on bad input.
func MustMinutes(value string) int {
	m, err := ToMinutes(value)
	if err != nil {
		panic(err)
	}
	return m
}

// FromMinutes formats a minute offset as "HH:MM". Offsets outside [0, 1439]
// indicate a caller bug and panic.
func FromMinutes(m int) string {
	if m < 0 || m >= MinutesPerDay {
		panic(fmt.Sprintf("clock: minute offset %d out of range", m))
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// Overlaps reports whether [startA,endA) and [startB,endB) share any minute.
// Touching intervals do not overlap.
func Overlaps(startA, endA, startB, endB int) bool {
	return max(startA, startB) < min(endA, endB)
}

// Interval is a half-open minute range [Start, End).
type Interval struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParseInterval builds an Interval from two clock strings, requiring start < end.
func ParseInterval(start, end string) (Interval, error) {
	s, err := ToMinutes(start)
	if err != nil {
		return Interval{}, err
	}
	e, err := ToMinutes(end)
	if err != nil {
		return Interval{}, err
	}
	if s >= e {
		return Interval{}, &ParseError{Input: start + "-" + end, Reason: "start must be before end"}
	}
	return Interval{Start: s, End: e}, nil
}

// Overlaps reports whether the two intervals overlap.
func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i.Start, i.End, other.Start, other.End)
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return other.Start >= i.Start && other.End <= i.End
}

// Len returns the interval length in minutes.
func (i Interval) Len() int {
	if i.End <= i.Start {
		return 0
	}
	return i.End - i.Start
}

// StartClock formats the start bound.
func (i Interval) StartClock() string { return FromMinutes(i.Start) }

// EndClock formats the end bound. An end of exactly midnight renders as 24:00.
func (i Interval) EndClock() string {
	if i.End == MinutesPerDay {
		return "24:00"
	}
	return FromMinutes(i.End)
}

// String renders "HH:MM-HH:MM".
func (i Interval) String() string {
	return i.StartClock() + "-" + i.EndClock()
}
