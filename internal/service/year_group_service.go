package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type yearGroupRepository interface {
	List(ctx context.Context) ([]models.YearGroup, error)
	FindByID(ctx context.Context, id string) (*models.YearGroup, error)
	Create(ctx context.Context, group *models.YearGroup) error
	Delete(ctx context.Context, id string) error
}

// YearGroupRequest is the payload for creating a year group.
type YearGroupRequest struct {
	Name      string `json:"name" validate:"required,max=50"`
	SortOrder int    `json:"sort_order" validate:"min=0"`
}

// YearGroupService manages year groups.
type YearGroupService struct {
	repo      yearGroupRepository
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewYearGroupService constructs a YearGroupService.
func NewYearGroupService(repo yearGroupRepository, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *YearGroupService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YearGroupService{repo: repo, cache: cache, validator: validate, logger: logger}
}

// List returns every year group in display order.
func (s *YearGroupService) List(ctx context.Context) ([]models.YearGroup, error) {
	groups, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list year groups")
	}
	return groups, nil
}

// Get returns a year group by id.
func (s *YearGroupService) Get(ctx context.Context, id string) (*models.YearGroup, error) {
	group, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "year group not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load year group")
	}
	return group, nil
}

// Create stores a new year group.
func (s *YearGroupService) Create(ctx context.Context, req YearGroupRequest) (*models.YearGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid year group payload")
	}
	group := &models.YearGroup{Name: strings.TrimSpace(req.Name), SortOrder: req.SortOrder}
	if err := s.repo.Create(ctx, group); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create year group")
	}
	s.invalidateBoard(ctx)
	return group, nil
}

// Delete removes a year group. Entries that referenced it become school-wide.
func (s *YearGroupService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "year group not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete year group")
	}
	s.invalidateBoard(ctx)
	return nil
}

func (s *YearGroupService) invalidateBoard(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, boardCacheNamespace); err != nil {
		s.logger.Warn("failed to invalidate board cache", zap.Error(err))
	}
}
