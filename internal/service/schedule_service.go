package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type scheduleRepository interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, int, error)
	ListAll(ctx context.Context) ([]models.ScheduleEntry, error)
	FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error)
	Create(ctx context.Context, entry *models.ScheduleEntry) error
	Update(ctx context.Context, entry *models.ScheduleEntry) error
	Delete(ctx context.Context, id string) error
}

// studentVerifier reports student ids that do not exist.
type studentVerifier interface {
	UnknownIDs(ctx context.Context, ids []string) ([]string, error)
}

// ScheduleRequest is the payload for creating or replacing a schedule entry.
type ScheduleRequest struct {
	TeacherID   string   `json:"teacher_id" validate:"required"`
	SubjectID   string   `json:"subject_id" validate:"required"`
	YearGroupID string   `json:"year_group_id"`
	DayOfWeek   int      `json:"day_of_week" validate:"min=0,max=4"`
	StartTime   string   `json:"start_time" validate:"required"`
	EndTime     string   `json:"end_time" validate:"required"`
	StudentIDs  []string `json:"student_ids" validate:"omitempty,dive,required"`
}

func (r ScheduleRequest) fields() timetable.Fields {
	return timetable.Fields{
		TeacherID:   strings.TrimSpace(r.TeacherID),
		SubjectID:   strings.TrimSpace(r.SubjectID),
		YearGroupID: strings.TrimSpace(r.YearGroupID),
		Day:         r.DayOfWeek,
		Start:       strings.TrimSpace(r.StartTime),
		End:         strings.TrimSpace(r.EndTime),
		StudentIDs:  r.StudentIDs,
	}
}

// ScheduleService is the persistence API for timetable entries.
type ScheduleService struct {
	repo      scheduleRepository
	students  studentVerifier
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService instantiates ScheduleService. students and cache may be nil.
func NewScheduleService(repo scheduleRepository, students studentVerifier, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{repo: repo, students: students, cache: cache, validator: validate, logger: logger}
}

// List returns a page of schedule entries.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, *models.Pagination, error) {
	if filter.DayOfWeek != nil && (*filter.DayOfWeek < 0 || *filter.DayOfWeek >= timetable.Weekdays) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "day_of_week must be between 0 and 4")
	}
	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return entries, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListAll returns every schedule entry.
func (s *ScheduleService) ListAll(ctx context.Context) ([]models.ScheduleEntry, error) {
	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return entries, nil
}

// Get returns a single entry.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule entry")
	}
	return entry, nil
}

// Create stores a new entry.
func (s *ScheduleService) Create(ctx context.Context, req ScheduleRequest) (*models.ScheduleEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	return s.createFields(ctx, req.fields())
}

// Update replaces an entry's fields.
func (s *ScheduleService) Update(ctx context.Context, id string, req ScheduleRequest) (*models.ScheduleEntry, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	return s.updateFields(ctx, id, req.fields())
}

// Delete removes an entry.
func (s *ScheduleService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule entry")
	}
	s.invalidateBoard(ctx)
	s.logger.Debug("schedule entry deleted", zap.String("id", id))
	return nil
}

func (s *ScheduleService) createFields(ctx context.Context, fields timetable.Fields) (*models.ScheduleEntry, error) {
	fields, err := s.checkFields(ctx, fields)
	if err != nil {
		return nil, err
	}
	entry := &models.ScheduleEntry{}
	applyFields(entry, fields)
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, s.writeError(err, "failed to create schedule entry")
	}
	s.invalidateBoard(ctx)
	return entry, nil
}

func (s *ScheduleService) updateFields(ctx context.Context, id string, fields timetable.Fields) (*models.ScheduleEntry, error) {
	fields, err := s.checkFields(ctx, fields)
	if err != nil {
		return nil, err
	}
	entry, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyFields(entry, fields)
	if err := s.repo.Update(ctx, entry); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule entry not found")
		}
		return nil, s.writeError(err, "failed to update schedule entry")
	}
	s.invalidateBoard(ctx)
	return entry, nil
}

func (s *ScheduleService) checkFields(ctx context.Context, fields timetable.Fields) (timetable.Fields, error) {
	fields, err := fields.Normalized()
	if err != nil {
		return timetable.Fields{}, mapTimetableError(err)
	}
	if s.students == nil {
		return fields, nil
	}
	missing, err := s.students.UnknownIDs(ctx, fields.StudentIDs)
	if err != nil {
		return timetable.Fields{}, err
	}
	if len(missing) > 0 {
		return timetable.Fields{}, appErrors.Clone(appErrors.ErrValidation, "unknown students: "+strings.Join(missing, ", "))
	}
	return fields, nil
}

func (s *ScheduleService) writeError(err error, message string) error {
	if isForeignKeyViolation(err) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unknown teacher, subject, year group or student")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

func (s *ScheduleService) invalidateBoard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, boardCacheNamespace); err != nil {
		s.logger.Warn("failed to invalidate board cache", zap.Error(err))
	}
}

// scheduleAPI adapts ScheduleService to the edit controller's persistence
// collaborator.
type scheduleAPI struct {
	svc *ScheduleService
}

// NewScheduleAPI exposes svc as a timetable.ScheduleAPI.
func NewScheduleAPI(svc *ScheduleService) timetable.ScheduleAPI {
	return &scheduleAPI{svc: svc}
}

func (a *scheduleAPI) List(ctx context.Context) ([]timetable.Entry, error) {
	items, err := a.svc.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return entriesFromModels(items), nil
}

func (a *scheduleAPI) Create(ctx context.Context, fields timetable.Fields) (timetable.Entry, error) {
	entry, err := a.svc.createFields(ctx, fields)
	if err != nil {
		return timetable.Entry{}, err
	}
	return entryFromModel(*entry), nil
}

func (a *scheduleAPI) Update(ctx context.Context, id string, fields timetable.Fields) (timetable.Entry, error) {
	entry, err := a.svc.updateFields(ctx, id, fields)
	if err != nil {
		return timetable.Entry{}, err
	}
	return entryFromModel(*entry), nil
}

func (a *scheduleAPI) Delete(ctx context.Context, id string) error {
	return a.svc.Delete(ctx, id)
}
