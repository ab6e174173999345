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

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	ListAll(ctx context.Context) ([]models.Teacher, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id string) error
}

// scheduleLister is the read side of the schedule repository.
type scheduleLister interface {
	ListAll(ctx context.Context) ([]models.ScheduleEntry, error)
}

// TeacherRequest represents payload for creating or updating teachers.
type TeacherRequest struct {
	Name  string  `json:"name" validate:"required,max=100"`
	Email *string `json:"email" validate:"omitempty,email"`
	Color string  `json:"color" validate:"omitempty,hexcolor"`
}

// TeacherWithHours is a teacher plus their weekly teaching load.
type TeacherWithHours struct {
	models.Teacher
	TeachingMinutes int    `json:"teaching_minutes"`
	TeachingHours   string `json:"teaching_hours"`
}

// TeacherService orchestrates teacher operations.
type TeacherService struct {
	repo      teacherRepository
	schedules scheduleLister
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTeacherService constructs a TeacherService.
func NewTeacherService(repo teacherRepository, schedules scheduleLister, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, schedules: schedules, cache: cache, validator: validate, logger: logger}
}

// List returns teachers with their teaching hours plus pagination data.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]TeacherWithHours, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	rows, err := s.schedules.ListAll(ctx)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedules")
	}
	entries := entriesFromModels(rows)

	out := make([]TeacherWithHours, 0, len(teachers))
	for _, t := range teachers {
		minutes := timetable.TeachingMinutes(entries, t.ID)
		out = append(out, TeacherWithHours{Teacher: t, TeachingMinutes: minutes, TeachingHours: timetable.FormatHours(minutes)})
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return out, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create registers a new teacher. Without a colour one is picked from the
// palette by current head count.
func (s *TeacherService) Create(ctx context.Context, req TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	email := normalizeOptional(req.Email)
	if err := s.ensureUniqueEmail(ctx, email, ""); err != nil {
		return nil, err
	}

	teacher := &models.Teacher{
		Name:  strings.TrimSpace(req.Name),
		Email: email,
		Color: req.Color,
	}
	if teacher.Color == "" {
		_, total, err := s.repo.List(ctx, models.TeacherFilter{PageSize: 1})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
		}
		teacher.Color = models.TeacherColors[total%len(models.TeacherColors)]
	}

	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.invalidateBoard(ctx)
	return teacher, nil
}

// Update modifies an existing teacher.
func (s *TeacherService) Update(ctx context.Context, id string, req TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email := normalizeOptional(req.Email)
	if err := s.ensureUniqueEmail(ctx, email, id); err != nil {
		return nil, err
	}

	teacher.Name = strings.TrimSpace(req.Name)
	teacher.Email = email
	if req.Color != "" {
		teacher.Color = req.Color
	}
	if err := s.repo.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	s.invalidateBoard(ctx)
	return teacher, nil
}

// Delete removes a teacher together with their timetable entries.
func (s *TeacherService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}
	s.invalidateBoard(ctx)
	return nil
}

func (s *TeacherService) ensureUniqueEmail(ctx context.Context, email *string, excludeID string) error {
	if email == nil {
		return nil
	}
	exists, err := s.repo.ExistsByEmail(ctx, *email, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email uniqueness")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "email already used")
	}
	return nil
}

func (s *TeacherService) invalidateBoard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, boardCacheNamespace); err != nil {
		s.logger.Warn("failed to invalidate board cache", zap.Error(err))
	}
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
