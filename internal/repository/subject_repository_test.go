package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func TestSubjectRepositoryListByType(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "color", "type", "created_at", "updated_at"}).
		AddRow("s1", "Maths", "#ef4444", models.SubjectTypeMain, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, color, type, created_at, updated_at FROM subjects WHERE 1=1 AND type = $1 ORDER BY name ASC LIMIT 50 OFFSET 50")).
		WithArgs(models.SubjectTypeMain).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM subjects WHERE 1=1 AND type = $1")).
		WithArgs(models.SubjectTypeMain).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(51))

	list, total, err := repo.List(context.Background(), models.SubjectFilter{Type: models.SubjectTypeMain, Page: 2, PageSize: 50})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 51, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubjectRepositoryExistsByNameAndUsage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubjectRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM subjects WHERE LOWER(name) = LOWER($1) LIMIT 1")).
		WithArgs("maths").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM schedule_entries WHERE subject_id = $1")).
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	exists, err := repo.ExistsByName(context.Background(), "maths", "")
	require.NoError(t, err)
	assert.True(t, exists)

	count, err := repo.CountScheduleEntries(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
