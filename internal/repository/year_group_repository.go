package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-api/internal/models"
)

// YearGroupRepository persists year groups.
type YearGroupRepository struct {
	db *sqlx.DB
}

// NewYearGroupRepository constructs a YearGroupRepository.
func NewYearGroupRepository(db *sqlx.DB) *YearGroupRepository {
	return &YearGroupRepository{db: db}
}

// List returns all year groups in display order. The set is small enough that
// it is never paged.
func (r *YearGroupRepository) List(ctx context.Context) ([]models.YearGroup, error) {
	const query = `SELECT id, name, sort_order, created_at, updated_at FROM year_groups ORDER BY sort_order, name`
	var groups []models.YearGroup
	if err := r.db.SelectContext(ctx, &groups, query); err != nil {
		return nil, fmt.Errorf("list year groups: %w", err)
	}
	return groups, nil
}

// FindByID fetches one year group.
func (r *YearGroupRepository) FindByID(ctx context.Context, id string) (*models.YearGroup, error) {
	const query = `SELECT id, name, sort_order, created_at, updated_at FROM year_groups WHERE id = $1`
	var group models.YearGroup
	if err := r.db.GetContext(ctx, &group, query, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// Create inserts a year group.
func (r *YearGroupRepository) Create(ctx context.Context, group *models.YearGroup) error {
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if group.CreatedAt.IsZero() {
		group.CreatedAt = now
	}
	group.UpdatedAt = now

	const query = `INSERT INTO year_groups (id, name, sort_order, created_at, updated_at) VALUES (:id, :name, :sort_order, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, group); err != nil {
		return fmt.Errorf("create year group: %w", err)
	}
	return nil
}

// Delete removes a year group. Entries pointing at it become school-wide.
func (r *YearGroupRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM year_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete year group: %w", err)
	}
	return requireAffected(res)
}
