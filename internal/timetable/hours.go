package timetable

import "fmt"

// TeachingMinutes sums the scheduled minutes of a teacher across the week.
func TeachingMinutes(entries []Entry, teacherID string) int {
	total := 0
	for _, e := range entries {
		if e.TeacherID != teacherID {
			continue
		}
		iv, err := e.Interval()
		if err != nil {
			continue
		}
		total += iv.Len()
	}
	return total
}

// FormatHours renders minutes as "5h" or "5h 30m".
func FormatHours(minutes int) string {
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
