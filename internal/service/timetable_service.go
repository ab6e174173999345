package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/timetable"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

const (
	boardCacheNamespace = "board"
	boardCacheKey       = "all"
)

type boardTeacherSource interface {
	ListAll(ctx context.Context) ([]models.Teacher, error)
}

type boardSubjectSource interface {
	ListAll(ctx context.Context) ([]models.Subject, error)
}

type boardYearGroupSource interface {
	List(ctx context.Context) ([]models.YearGroup, error)
}

type boardStudentSource interface {
	ListAll(ctx context.Context) ([]models.Student, error)
}

// BoardSources are the repositories the board reads from.
type BoardSources struct {
	Teachers   boardTeacherSource
	Subjects   boardSubjectSource
	YearGroups boardYearGroupSource
	Students   boardStudentSource
	Schedules  scheduleLister
}

// Board is everything the timetable screen needs on first load.
type Board struct {
	Teachers   []TeacherWithHours     `json:"teachers"`
	Subjects   []models.SubjectGroup  `json:"subjects"`
	YearGroups []models.YearGroup     `json:"year_groups"`
	Students   []models.Student       `json:"students"`
	Schedules  []models.ScheduleEntry `json:"schedules"`
	Periods    []timetable.Period     `json:"periods"`
}

// GridQuery filters the grid view.
type GridQuery struct {
	TeacherIDs  []string
	SubjectIDs  []string
	YearGroupID string
}

// DropRequest is one drag-and-drop gesture sent by the board.
type DropRequest struct {
	Kind         string `json:"kind" validate:"required,oneof=create move"`
	SubjectID    string `json:"subject_id" validate:"required_if=Kind create"`
	EntryID      string `json:"entry_id" validate:"required_if=Kind move"`
	EntryPending bool   `json:"entry_pending"`
	TeacherID    string `json:"teacher_id" validate:"required"`
	DayOfWeek    int    `json:"day_of_week" validate:"min=0,max=4"`
	PeriodID     string `json:"period_id" validate:"required"`
	// YearGroupID is the board's active year-group filter, if any.
	YearGroupID string `json:"year_group_id"`
}

func (r DropRequest) event() timetable.DropEvent {
	ev := timetable.DropEvent{
		Kind:      timetable.DropKind(r.Kind),
		SubjectID: strings.TrimSpace(r.SubjectID),
		TeacherID: strings.TrimSpace(r.TeacherID),
		Day:       r.DayOfWeek,
		PeriodID:  r.PeriodID,
	}
	if id := strings.TrimSpace(r.EntryID); id != "" {
		if r.EntryPending {
			ev.Entry = timetable.Pending(id)
		} else {
			ev.Entry = timetable.Persisted(id)
		}
	}
	return ev
}

// DropResult pairs the resolved plan with what applying it did.
type DropResult struct {
	Plan   timetable.MutationPlan `json:"plan"`
	Result timetable.ApplyResult  `json:"result"`
}

// TimetableService serves the board and turns drops into schedule changes.
type TimetableService struct {
	sources   BoardSources
	sessions  *EditSessionService
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTimetableService wires the board readers and the edit-session registry.
func NewTimetableService(sources BoardSources, sessions *EditSessionService, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableService{
		sources:   sources,
		sessions:  sessions,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
	}
}

// Periods returns the fixed period table.
func (s *TimetableService) Periods() []timetable.Period {
	return slices.Collect(timetable.Periods())
}

// Board loads reference data and schedules in parallel. Results are cached
// until the next write.
func (s *TimetableService) Board(ctx context.Context) (*Board, error) {
	board, _, err := s.LoadBoard(ctx)
	return board, err
}

// LoadBoard is Board that also reports whether the cache served it.
func (s *TimetableService) LoadBoard(ctx context.Context) (*Board, bool, error) {
	return LoadCached(ctx, s.cache, boardCacheNamespace, boardCacheKey, 0, s.fetchBoard)
}

func (s *TimetableService) fetchBoard(ctx context.Context) (*Board, error) {
	var (
		teachers   []models.Teacher
		subjects   []models.Subject
		yearGroups []models.YearGroup
		students   []models.Student
		schedules  []models.ScheduleEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		defer s.observe("board_teachers", time.Now())
		teachers, err = s.sources.Teachers.ListAll(gctx)
		return wrapBoardErr(err, "teachers")
	})
	g.Go(func() (err error) {
		defer s.observe("board_subjects", time.Now())
		subjects, err = s.sources.Subjects.ListAll(gctx)
		return wrapBoardErr(err, "subjects")
	})
	g.Go(func() (err error) {
		defer s.observe("board_year_groups", time.Now())
		yearGroups, err = s.sources.YearGroups.List(gctx)
		return wrapBoardErr(err, "year groups")
	})
	g.Go(func() (err error) {
		defer s.observe("board_students", time.Now())
		students, err = s.sources.Students.ListAll(gctx)
		return wrapBoardErr(err, "students")
	})
	g.Go(func() (err error) {
		defer s.observe("board_schedules", time.Now())
		schedules, err = s.sources.Schedules.ListAll(gctx)
		return wrapBoardErr(err, "schedules")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := entriesFromModels(schedules)
	board := &Board{
		Teachers:   make([]TeacherWithHours, 0, len(teachers)),
		Subjects:   GroupSubjectsByType(subjects),
		YearGroups: nonNil(yearGroups),
		Students:   nonNil(students),
		Schedules:  nonNil(schedules),
		Periods:    s.Periods(),
	}
	for _, t := range teachers {
		minutes := timetable.TeachingMinutes(entries, t.ID)
		board.Teachers = append(board.Teachers, TeacherWithHours{Teacher: t, TeachingMinutes: minutes, TeachingHours: timetable.FormatHours(minutes)})
	}
	return board, nil
}

// Grid lays the stored schedule out by day, teacher and period.
func (s *TimetableService) Grid(ctx context.Context, query GridQuery) ([]timetable.GridDay, error) {
	board, err := s.Board(ctx)
	if err != nil {
		return nil, err
	}
	return buildBoardGrid(board, query), nil
}

func buildBoardGrid(board *Board, query GridQuery) []timetable.GridDay {
	teachers := make([]timetable.GridTeacher, 0, len(board.Teachers))
	for _, t := range board.Teachers {
		teachers = append(teachers, timetable.GridTeacher{ID: t.ID, Name: t.Name, Color: t.Color})
	}
	return timetable.BuildGrid(teachers, entriesFromModels(board.Schedules), timetable.GridFilter{
		TeacherIDs:  query.TeacherIDs,
		SubjectIDs:  query.SubjectIDs,
		YearGroupID: query.YearGroupID,
	})
}

// ResolveDrop plans a drop against the user's working list without applying it.
func (s *TimetableService) ResolveDrop(ctx context.Context, userID string, req DropRequest) (timetable.MutationPlan, error) {
	_, plan, err := s.plan(ctx, userID, req)
	if err != nil {
		return timetable.MutationPlan{}, err
	}
	return plan, nil
}

// Drop plans and applies a drop. Live users write through immediately; users
// with an open batch have the plan staged.
func (s *TimetableService) Drop(ctx context.Context, userID string, req DropRequest) (*DropResult, error) {
	ctrl, plan, err := s.plan(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	result, err := ctrl.Apply(ctx, plan)
	if err != nil {
		s.logger.Warn("drop failed",
			zap.String("user_id", userID),
			zap.String("action", string(plan.Action)),
			zap.Error(err),
		)
		return nil, mapTimetableError(err)
	}
	s.metrics.RecordDrop(string(plan.Action), string(result.Mode))
	if result.Mode == timetable.ModeBatch {
		for _, m := range result.Applied {
			s.metrics.RecordStaged(string(m.Kind))
		}
	}
	return &DropResult{Plan: plan, Result: result}, nil
}

func (s *TimetableService) plan(ctx context.Context, userID string, req DropRequest) (*timetable.Controller, timetable.MutationPlan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, timetable.MutationPlan{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid drop payload")
	}
	groups, err := s.sources.YearGroups.List(ctx)
	if err != nil {
		return nil, timetable.MutationPlan{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load year groups")
	}
	selection := timetable.YearGroupSelection{Selected: strings.TrimSpace(req.YearGroupID)}
	for _, g := range groups {
		selection.Available = append(selection.Available, g.ID)
	}

	ctrl, err := s.sessions.Controller(ctx, userID)
	if err != nil {
		return nil, timetable.MutationPlan{}, err
	}
	plan, err := timetable.ResolveDrop(req.event(), ctrl.Entries(), selection)
	if err != nil {
		return nil, timetable.MutationPlan{}, mapTimetableError(err)
	}
	return ctrl, plan, nil
}

func (s *TimetableService) observe(label string, start time.Time) {
	s.metrics.ObserveDBQuery(label, time.Since(start))
}

func wrapBoardErr(err error, what string) error {
	if err == nil {
		return nil
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load "+what)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
