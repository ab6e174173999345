package service

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type subjectRepository interface {
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	ListAll(ctx context.Context) ([]models.Subject, error)
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
	Delete(ctx context.Context, id string) error
	CountScheduleEntries(ctx context.Context, id string) (int, error)
}

// SubjectRequest captures fields for creating or updating subjects.
type SubjectRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
	Type  string `json:"type" validate:"omitempty,max=50"`
}

// SubjectService handles subject domain workflows.
type SubjectService struct {
	repo      subjectRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService creates a new subject service.
func NewSubjectService(repo subjectRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns paginated subjects.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	if filter.Type != "" {
		filter.Type = normalizeSubjectType(filter.Type)
	}
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return subjects, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Grouped returns every subject grouped by type for the palette sidebar.
func (s *SubjectService) Grouped(ctx context.Context) ([]models.SubjectGroup, error) {
	subjects, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return GroupSubjectsByType(subjects), nil
}

// GroupSubjectsByType buckets subjects by type. Built-in types come first in
// their fixed order, custom types follow alphabetically; empty groups are
// omitted and subjects keep their input order within a group.
func GroupSubjectsByType(subjects []models.Subject) []models.SubjectGroup {
	byType := make(map[string][]models.Subject)
	var custom []string
	for _, subject := range subjects {
		t := subject.Type
		if t == "" {
			t = models.SubjectTypeMain
		}
		if _, seen := byType[t]; !seen && !slices.Contains(models.SubjectTypeOrder, t) {
			custom = append(custom, t)
		}
		byType[t] = append(byType[t], subject)
	}
	slices.Sort(custom)

	order := append(slices.Clone(models.SubjectTypeOrder), custom...)
	groups := make([]models.SubjectGroup, 0, len(order))
	for _, t := range order {
		if items := byType[t]; len(items) > 0 {
			groups = append(groups, models.SubjectGroup{Type: t, Subjects: items})
		}
	}
	return groups
}

// Get retrieves a subject by id.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// Create persists a new subject.
func (s *SubjectService) Create(ctx context.Context, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, name, ""); err != nil {
		return nil, err
	}

	subject := &models.Subject{Name: name, Color: req.Color, Type: normalizeSubjectType(req.Type)}
	if subject.Color == "" {
		_, total, err := s.repo.List(ctx, models.SubjectFilter{PageSize: 1})
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count subjects")
		}
		subject.Color = models.SubjectColors[total%len(models.SubjectColors)]
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	s.invalidateBoard(ctx)
	return subject, nil
}

// Update modifies subject details.
func (s *SubjectService) Update(ctx context.Context, id string, req SubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	subject, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if err := s.ensureUniqueName(ctx, name, id); err != nil {
		return nil, err
	}

	subject.Name = name
	if req.Color != "" {
		subject.Color = req.Color
	}
	if req.Type != "" {
		subject.Type = normalizeSubjectType(req.Type)
	}
	if err := s.repo.Update(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	s.invalidateBoard(ctx)
	return subject, nil
}

// Delete removes a subject that no timetable entry uses.
func (s *SubjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	count, err := s.repo.CountScheduleEntries(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject usage")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "subject is used by timetable entries")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete subject")
	}
	s.invalidateBoard(ctx)
	return nil
}

func (s *SubjectService) invalidateBoard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, boardCacheNamespace); err != nil {
		s.logger.Warn("failed to invalidate board cache", zap.Error(err))
	}
}

func (s *SubjectService) ensureUniqueName(ctx context.Context, name, excludeID string) error {
	exists, err := s.repo.ExistsByName(ctx, name, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject name")
	}
	if exists {
		return appErrors.Clone(appErrors.ErrConflict, "subject name already exists")
	}
	return nil
}

func normalizeSubjectType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	if t == "" {
		return models.SubjectTypeMain
	}
	return t
}
