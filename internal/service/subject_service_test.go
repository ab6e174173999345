package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
)

type mockSubjectRepo struct {
	items   map[string]*models.Subject
	names   map[string]bool
	usage   map[string]int
	total   int
	deleted []string
}

func (m *mockSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	return nil, m.total, nil
}

func (m *mockSubjectRepo) ListAll(ctx context.Context) ([]models.Subject, error) {
	out := make([]models.Subject, 0, len(m.items))
	for _, s := range m.items {
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.items[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubjectRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	return m.names[name], nil
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	if m.items == nil {
		m.items = map[string]*models.Subject{}
	}
	subject.ID = "generated"
	cp := *subject
	m.items[subject.ID] = &cp
	return nil
}

func (m *mockSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	cp := *subject
	m.items[subject.ID] = &cp
	return nil
}

func (m *mockSubjectRepo) Delete(ctx context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockSubjectRepo) CountScheduleEntries(ctx context.Context, id string) (int, error) {
	return m.usage[id], nil
}

func TestGroupSubjectsByTypeOrdersBuiltInsThenCustom(t *testing.T) {
	subjects := []models.Subject{
		{ID: "1", Name: "Art", Type: "Zeta"},
		{ID: "2", Name: "Reading", Type: models.SubjectTypeBooster},
		{ID: "3", Name: "Maths", Type: models.SubjectTypeMain},
		{ID: "4", Name: "Drama", Type: "Alpha"},
		{ID: "5", Name: "English", Type: models.SubjectTypeMain},
		{ID: "6", Name: "Legacy"},
	}

	groups := GroupSubjectsByType(subjects)
	var types []string
	for _, g := range groups {
		types = append(types, g.Type)
	}
	assert.Equal(t, []string{models.SubjectTypeMain, models.SubjectTypeBooster, "Alpha", "Zeta"}, types)
	require.Len(t, groups[0].Subjects, 3)
	assert.Equal(t, "Maths", groups[0].Subjects[0].Name)
	assert.Equal(t, "Legacy", groups[0].Subjects[2].Name)
}

func TestSubjectServiceCreateNormalisesType(t *testing.T) {
	repo := &mockSubjectRepo{total: 12}
	service := NewSubjectService(repo, nil, nil, zap.NewNop())

	subject, err := service.Create(context.Background(), SubjectRequest{Name: " Phonics ", Type: "intervention"})
	require.NoError(t, err)
	assert.Equal(t, "Phonics", subject.Name)
	assert.Equal(t, models.SubjectTypeIntervention, subject.Type)
	assert.Equal(t, models.SubjectColors[2], subject.Color)
}

func TestSubjectServiceCreateDuplicateName(t *testing.T) {
	repo := &mockSubjectRepo{names: map[string]bool{"Maths": true}}
	service := NewSubjectService(repo, nil, nil, zap.NewNop())

	_, err := service.Create(context.Background(), SubjectRequest{Name: "Maths"})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestSubjectServiceDeleteInUseConflicts(t *testing.T) {
	repo := &mockSubjectRepo{
		items: map[string]*models.Subject{"s1": {ID: "s1", Name: "Maths"}, "s2": {ID: "s2", Name: "Art"}},
		usage: map[string]int{"s1": 2},
	}
	service := NewSubjectService(repo, nil, nil, zap.NewNop())

	assert.ErrorIs(t, service.Delete(context.Background(), "s1"), appErrors.ErrConflict)
	require.NoError(t, service.Delete(context.Background(), "s2"))
	assert.Equal(t, []string{"s2"}, repo.deleted)
	assert.ErrorIs(t, service.Delete(context.Background(), "missing"), appErrors.ErrNotFound)
}
