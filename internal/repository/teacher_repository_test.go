package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-api/internal/models"
)

func TestTeacherRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	rows := sqlmock.NewRows([]string{"id", "name", "email", "color", "created_at", "updated_at"}).
		AddRow("t1", "Ms Adams", "adams@example.com", "#6366f1", time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email, color, created_at, updated_at FROM teachers WHERE 1=1 AND (LOWER(name) LIKE $1 OR LOWER(COALESCE(email, '')) LIKE $1) ORDER BY name ASC LIMIT 20 OFFSET 0")).
		WithArgs("%ada%").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM teachers WHERE 1=1 AND")).
		WithArgs("%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	list, total, err := repo.List(context.Background(), models.TeacherFilter{Search: "Ada"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ms Adams", list[0].Name)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryCreateAndDelete(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("INSERT INTO teachers").
		WithArgs(sqlmock.AnyArg(), "Mr Brown", nil, "#22c55e", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	teacher := &models.Teacher{Name: "Mr Brown", Color: "#22c55e"}
	require.NoError(t, repo.Create(context.Background(), teacher))
	assert.NotEmpty(t, teacher.ID)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM teachers WHERE id = $1")).
		WithArgs(teacher.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), teacher.ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryUpdateMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectExec("UPDATE teachers SET").WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(context.Background(), &models.Teacher{ID: "ghost", Name: "Nobody"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewTeacherRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teachers WHERE LOWER(email) = LOWER($1) AND id <> $2 LIMIT 1")).
		WithArgs("a@example.com", "t1").
		WillReturnError(sql.ErrNoRows)
	exists, err := repo.ExistsByEmail(context.Background(), "a@example.com", "t1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = repo.ExistsByEmail(context.Background(), "  ", "")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
