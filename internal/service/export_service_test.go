package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/pkg/storage"
)

type detailStub struct {
	rows   []models.ScheduleEntryDetail
	filter models.ScheduleFilter
	err    error
}

func (d *detailStub) ListDetailed(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntryDetail, error) {
	d.filter = filter
	if d.err != nil {
		return nil, d.err
	}
	return append([]models.ScheduleEntryDetail(nil), d.rows...), nil
}

func exportFixtureRows() []models.ScheduleEntryDetail {
	year7 := "Year 7"
	return []models.ScheduleEntryDetail{
		{
			ScheduleEntry: models.ScheduleEntry{ID: "e1", TeacherID: "t1", SubjectID: "math", YearGroupID: strPtr("y7"), DayOfWeek: 0, StartTime: "08:00", EndTime: "09:00", StudentIDs: pq.StringArray{"s1", "s2"}},
			TeacherName:   "Adams",
			SubjectName:   "Maths",
			YearGroupName: &year7,
		},
		{
			ScheduleEntry: models.ScheduleEntry{ID: "e2", TeacherID: "t2", SubjectID: "art", DayOfWeek: 2, StartTime: "10:20", EndTime: "11:20"},
			TeacherName:   "Brown",
			SubjectName:   "Art",
		},
	}
}

func newExportServiceForTest(t *testing.T, source exportScheduleSource) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(source, store, signer, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop(), nil, nil)
	svc.now = func() time.Time { return time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC) }
	return svc, store
}

func readStored(t *testing.T, store *storage.LocalStorage, relPath string) []byte {
	t.Helper()
	f, err := store.Open(relPath)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return data
}

func TestExportServiceGenerateCSV(t *testing.T) {
	source := &detailStub{rows: exportFixtureRows()}
	svc, store := newExportServiceForTest(t, source)

	job := &models.ExportJob{ID: "job-1", Params: models.ExportParams{Format: models.ExportFormatCSV}}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "job-1/timetable-20240102-150405.csv", result.RelativePath)
	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/timetable/exports/download?token="))

	lines := strings.Split(strings.TrimSpace(string(readStored(t, store, result.RelativePath))), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Day,Start,End,Teacher,Subject,Year Group,Students", lines[0])
	assert.Equal(t, "Monday,08:00,09:00,Adams,Maths,Year 7,2", lines[1])
	assert.Equal(t, "Wednesday,10:20,11:20,Brown,Art,All,0", lines[2])
}

func TestExportServiceFiltersTeachersAndSubjects(t *testing.T) {
	source := &detailStub{rows: exportFixtureRows()}
	svc, store := newExportServiceForTest(t, source)

	job := &models.ExportJob{ID: "job-2", Params: models.ExportParams{
		Format:      models.ExportFormatCSV,
		YearGroupID: "y7",
		TeacherIDs:  []string{"t1", "t2"},
		SubjectIDs:  []string{"math"},
	}}
	result, err := svc.Generate(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "y7", source.filter.YearGroupID)
	assert.Contains(t, result.RelativePath, "timetable-year-7-")

	lines := strings.Split(strings.TrimSpace(string(readStored(t, store, result.RelativePath))), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "Maths")
}

func TestExportServiceGeneratePDF(t *testing.T) {
	svc, store := newExportServiceForTest(t, &detailStub{rows: exportFixtureRows()})

	result, err := svc.Generate(context.Background(), &models.ExportJob{ID: "job-3", Params: models.ExportParams{Format: models.ExportFormatPDF}})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(readStored(t, store, result.RelativePath), []byte("%PDF")))

	empty, _ := newExportServiceForTest(t, &detailStub{})
	_, err = empty.Generate(context.Background(), &models.ExportJob{ID: "job-4", Params: models.ExportParams{Format: models.ExportFormatPDF}})
	require.NoError(t, err)
}

func TestExportServiceTokenRoundTrip(t *testing.T) {
	svc, _ := newExportServiceForTest(t, &detailStub{rows: exportFixtureRows()})
	result, err := svc.Generate(context.Background(), &models.ExportJob{ID: "job-5", Params: models.ExportParams{Format: models.ExportFormatCSV}})
	require.NoError(t, err)

	token := result.URL[strings.Index(result.URL, "token=")+len("token="):]
	jobID, relPath, _, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "job-5", jobID)
	assert.Equal(t, result.RelativePath, relPath)

	_, _, _, err = svc.ParseToken(token + "x")
	assert.ErrorIs(t, err, storage.ErrTokenInvalid)
}

func TestExportServiceErrors(t *testing.T) {
	svc, _ := newExportServiceForTest(t, &detailStub{err: errors.New("db down")})
	_, err := svc.Generate(context.Background(), &models.ExportJob{ID: "job-6", Params: models.ExportParams{Format: models.ExportFormatCSV}})
	assert.ErrorContains(t, err, "db down")

	svc, _ = newExportServiceForTest(t, &detailStub{})
	_, err = svc.Generate(context.Background(), &models.ExportJob{ID: "job-7", Params: models.ExportParams{Format: "xlsx"}})
	assert.ErrorContains(t, err, "unsupported export format")
}

func TestBuildExportWorkbookMarksBreaks(t *testing.T) {
	wb := buildExportWorkbook("Timetable", exportFixtureRows(), models.ExportParams{})
	require.Len(t, wb.Sheets, 5)
	monday := wb.Sheets[0]
	assert.Equal(t, "Monday", monday.Title)
	require.Len(t, monday.Rows, 2)
	assert.Equal(t, "Adams", monday.Rows[0].Label)
	assert.Equal(t, "Maths (Year 7)", monday.Rows[0].Cells[1])
	assert.Equal(t, "-", monday.Rows[0].Cells[3])
	assert.Equal(t, "", monday.Rows[0].Cells[2])
	assert.Equal(t, "Brown", monday.Rows[1].Label)

	filtered := buildExportWorkbook("Timetable", exportFixtureRows(), models.ExportParams{SubjectIDs: []string{"art"}})
	require.Len(t, filtered.Sheets, 1)
	assert.Equal(t, "Wednesday", filtered.Sheets[0].Title)

	empty := buildExportWorkbook("Timetable", nil, models.ExportParams{})
	require.Len(t, empty.Sheets, 1)
	assert.Equal(t, "No lessons", empty.Sheets[0].Title)
}
