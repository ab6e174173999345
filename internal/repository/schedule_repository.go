package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/timetable-api/internal/models"
)

const scheduleColumns = `s.id, s.teacher_id, s.subject_id, s.year_group_id, s.day_of_week,
	to_char(s.start_time, 'HH24:MI') AS start_time, to_char(s.end_time, 'HH24:MI') AS end_time,
	COALESCE((SELECT array_agg(ses.student_id ORDER BY ses.student_id) FROM schedule_entry_students ses WHERE ses.schedule_entry_id = s.id), '{}') AS student_ids,
	s.created_at, s.updated_at`

// ScheduleRepository persists timetable entries and their student links.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs a ScheduleRepository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

func scheduleConditions(filter models.ScheduleFilter) (string, []interface{}) {
	var conditions []string
	var args []interface{}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("s.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.YearGroupID != "" {
		conditions = append(conditions, fmt.Sprintf("s.year_group_id = $%d", len(args)+1))
		args = append(args, filter.YearGroupID)
	}
	if filter.DayOfWeek != nil {
		conditions = append(conditions, fmt.Sprintf("s.day_of_week = $%d", len(args)+1))
		args = append(args, *filter.DayOfWeek)
	}
	base := "FROM schedule_entries s WHERE 1=1"
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}
	return base, args
}

// List returns a page of entries matching filters along with the total count.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntry, int, error) {
	base, args := scheduleConditions(filter)

	allowedSorts := map[string]string{
		"day_of_week": "s.day_of_week, s.start_time",
		"start_time":  "s.start_time",
		"created_at":  "s.created_at",
		"updated_at":  "s.updated_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = allowedSorts["day_of_week"]
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", scheduleColumns, base, column, order, size, offset)
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	return entries, total, nil
}

// ListAll returns every entry in day and start order. The board and edit
// sessions work on the full list.
func (r *ScheduleRepository) ListAll(ctx context.Context) ([]models.ScheduleEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_entries s ORDER BY s.day_of_week, s.start_time, s.id", scheduleColumns)
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query); err != nil {
		return nil, fmt.Errorf("list all schedules: %w", err)
	}
	return entries, nil
}

// ListDetailed joins teacher, subject and year group names for exports.
func (r *ScheduleRepository) ListDetailed(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntryDetail, error) {
	base, args := scheduleConditions(filter)
	base = strings.Replace(base, "FROM schedule_entries s", `FROM schedule_entries s
	JOIN teachers t ON t.id = s.teacher_id
	JOIN subjects sub ON sub.id = s.subject_id
	LEFT JOIN year_groups yg ON yg.id = s.year_group_id`, 1)
	query := fmt.Sprintf("SELECT %s, t.name AS teacher_name, sub.name AS subject_name, sub.color AS subject_color, yg.name AS year_group_name %s ORDER BY s.day_of_week, t.name, s.start_time", scheduleColumns, base)
	var entries []models.ScheduleEntryDetail
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list detailed schedules: %w", err)
	}
	return entries, nil
}

// FindByID fetches a single entry.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.ScheduleEntry, error) {
	query := fmt.Sprintf("SELECT %s FROM schedule_entries s WHERE s.id = $1", scheduleColumns)
	var entry models.ScheduleEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Create inserts an entry and its student links in one transaction.
func (r *ScheduleRepository) Create(ctx context.Context, entry *models.ScheduleEntry) (err error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	entry.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create schedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO schedule_entries (id, teacher_id, subject_id, year_group_id, day_of_week, start_time, end_time, created_at, updated_at)
		VALUES (:id, :teacher_id, :subject_id, :year_group_id, :day_of_week, :start_time, :end_time, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, query, entry); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	if err = insertStudentLinks(ctx, tx, entry.ID, entry.StudentIDs); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit create schedule: %w", err)
	}
	return nil
}

// Update rewrites an entry and replaces its student links. It returns
// sql.ErrNoRows when the entry does not exist.
func (r *ScheduleRepository) Update(ctx context.Context, entry *models.ScheduleEntry) (err error) {
	entry.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update schedule: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `UPDATE schedule_entries SET teacher_id = :teacher_id, subject_id = :subject_id, year_group_id = :year_group_id,
		day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, updated_at = :updated_at WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, tx, query, entry)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if err = requireAffected(res); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_entry_students WHERE schedule_entry_id = $1`, entry.ID); err != nil {
		return fmt.Errorf("clear schedule students: %w", err)
	}
	if err = insertStudentLinks(ctx, tx, entry.ID, entry.StudentIDs); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update schedule: %w", err)
	}
	return nil
}

// Delete removes an entry; student links cascade. It returns sql.ErrNoRows
// when nothing was deleted.
func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedule_entries WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return requireAffected(res)
}

func insertStudentLinks(ctx context.Context, tx *sqlx.Tx, entryID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO schedule_entry_students (schedule_entry_id, student_id) SELECT $1, unnest($2::text[]) ON CONFLICT DO NOTHING`
	if _, err := tx.ExecContext(ctx, query, entryID, pq.Array(studentIDs)); err != nil {
		return fmt.Errorf("link schedule students: %w", err)
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
