package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Day", "Teacher", "Subject"},
		Rows: [][]string{
			{"Monday", "Adam", "Math, advanced"},
			{"Tuesday", "Zoe"},
		},
	})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Day,Teacher,Subject", lines[0])
	assert.Equal(t, `Monday,Adam,"Math, advanced"`, lines[1])
	assert.Equal(t, "Tuesday,Zoe,", lines[2])
}

func TestCSVExporterRejectsBadInput(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
	_, err = NewCSVExporter().Render(Dataset{Headers: []string{"a"}, Rows: [][]string{{"1", "2"}}})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Workbook{
		Title: "Year 7",
		Sheets: []Sheet{{
			Title:   "Monday",
			Columns: []string{"07:30", "1", "2"},
			Rows: []SheetRow{
				{Label: "Adam", Cells: []string{"", "Mathematics (Y7)", ""}},
				{Label: "Zoe", Cells: []string{"Assembly"}},
			},
		}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	_, err = NewPDFExporter().Render(Workbook{})
	assert.Error(t, err)
}

func TestFilename(t *testing.T) {
	at := time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC)
	assert.Equal(t, "timetable-year-7-20240102-150405.pdf", Filename("Timetable: Year 7", at, ".pdf"))
	assert.Equal(t, "export-20240102-150405.csv", Filename("", at, "csv"))
}
