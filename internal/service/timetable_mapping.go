package service

import (
	"errors"

	"github.com/lib/pq"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/timetable"
	"github.com/noah-isme/timetable-api/pkg/clock"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

func entryFromModel(m models.ScheduleEntry) timetable.Entry {
	fields := timetable.Fields{
		TeacherID: m.TeacherID,
		SubjectID: m.SubjectID,
		Day:       m.DayOfWeek,
		Start:     m.StartTime,
		End:       m.EndTime,
	}
	if m.YearGroupID != nil {
		fields.YearGroupID = *m.YearGroupID
	}
	if len(m.StudentIDs) > 0 {
		fields.StudentIDs = append([]string(nil), m.StudentIDs...)
	}
	return timetable.Entry{Ref: timetable.Persisted(m.ID), Fields: fields}
}

func entriesFromModels(items []models.ScheduleEntry) []timetable.Entry {
	out := make([]timetable.Entry, 0, len(items))
	for _, m := range items {
		out = append(out, entryFromModel(m))
	}
	return out
}

// applyFields copies timetable fields onto a row, leaving id and timestamps.
func applyFields(m *models.ScheduleEntry, f timetable.Fields) {
	m.TeacherID = f.TeacherID
	m.SubjectID = f.SubjectID
	m.DayOfWeek = f.Day
	m.StartTime = f.Start
	m.EndTime = f.End
	m.YearGroupID = nil
	if f.YearGroupID != "" {
		yg := f.YearGroupID
		m.YearGroupID = &yg
	}
	m.StudentIDs = pq.StringArray(append([]string{}, f.StudentIDs...))
}

// mapTimetableError converts domain failures into API errors.
func mapTimetableError(err error) error {
	if err == nil {
		return nil
	}
	var precondition *timetable.PreconditionError
	var partial *timetable.PartialCommitError
	switch {
	case errors.Is(err, clock.ErrParse):
		return appErrors.Wrap(err, appErrors.ErrInvalidTime.Code, appErrors.ErrInvalidTime.Status, err.Error())
	case errors.As(err, &precondition):
		return appErrors.Clone(appErrors.ErrYearGroupRequired, precondition.Reason)
	case errors.Is(err, timetable.ErrInvalidEntry), errors.Is(err, timetable.ErrInvalidDrop):
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	case errors.Is(err, timetable.ErrResolution):
		return appErrors.Wrap(err, appErrors.ErrStaleSchedule.Code, appErrors.ErrStaleSchedule.Status, appErrors.ErrStaleSchedule.Message)
	case errors.Is(err, timetable.ErrInvalidState):
		return appErrors.Wrap(err, appErrors.ErrEditSessionState.Code, appErrors.ErrEditSessionState.Status, err.Error())
	case errors.As(err, &partial):
		return appErrors.Wrap(err, appErrors.ErrPersistenceFailed.Code, appErrors.ErrPersistenceFailed.Status, partial.Error())
	case errors.Is(err, timetable.ErrPersistence):
		message := appErrors.ErrPersistenceFailed.Message
		var cause *appErrors.Error
		if errors.As(err, &cause) {
			message += ": " + cause.Message
		}
		return appErrors.Wrap(err, appErrors.ErrPersistenceFailed.Code, appErrors.ErrPersistenceFailed.Status, message)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "timetable operation failed")
}

// isForeignKeyViolation reports a Postgres 23503 error, i.e. a referenced row
// does not exist.
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}
