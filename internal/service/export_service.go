package service

import (
	"context"
	"fmt"
	"os"
	"path"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
	"github.com/noah-isme/timetable-api/internal/timetable"
	"github.com/noah-isme/timetable-api/pkg/export"
	"github.com/noah-isme/timetable-api/pkg/storage"
)

type exportScheduleSource interface {
	ListDetailed(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleEntryDetail, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(wb export.Workbook) ([]byte, error)
}

// ExportConfig drives download URLs and retention.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult describes a rendered file.
type ExportResult struct {
	RelativePath string
	URL          string
	ExpiresAt    time.Time
}

var exportHeaders = []string{"Day", "Start", "End", "Teacher", "Subject", "Year Group", "Students"}

// ExportService renders timetable files and signs links to them.
type ExportService struct {
	schedules exportScheduleSource
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	cfg       ExportConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewExportService wires renderers and storage.
func NewExportService(schedules exportScheduleSource, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		schedules: schedules,
		storage:   store,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Generate renders the job's timetable and stores the file under the job id.
func (s *ExportService) Generate(ctx context.Context, job *models.ExportJob) (*ExportResult, error) {
	rows, err := s.load(ctx, job.Params)
	if err != nil {
		return nil, err
	}
	title := exportTitle(job.Params, rows)

	var (
		data []byte
		ext  string
	)
	switch job.Params.Format {
	case models.ExportFormatCSV:
		data, err = s.csv.Render(buildExportDataset(rows))
		ext = "csv"
	case models.ExportFormatPDF:
		data, err = s.pdf.Render(buildExportWorkbook(title, rows, job.Params))
		ext = "pdf"
	default:
		return nil, fmt.Errorf("unsupported export format %q", job.Params.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("render %s export: %w", ext, err)
	}

	relPath := path.Join(job.ID, export.Filename(title, s.now(), ext))
	if _, err := s.storage.Save(relPath, data); err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, fmt.Errorf("sign export url: %w", err)
	}
	s.logger.Debug("export rendered",
		zap.String("job_id", job.ID),
		zap.String("path", relPath),
		zap.Int("rows", len(rows)),
	)
	return &ExportResult{
		RelativePath: relPath,
		URL:          fmt.Sprintf("%s/timetable/exports/download?token=%s", s.cfg.APIPrefix, token),
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates a download token.
func (s *ExportService) ParseToken(token string) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, false)
}

// Open returns the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup purges files older than the retention window.
func (s *ExportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

func (s *ExportService) load(ctx context.Context, params models.ExportParams) ([]models.ScheduleEntryDetail, error) {
	rows, err := s.schedules.ListDetailed(ctx, models.ScheduleFilter{YearGroupID: params.YearGroupID})
	if err != nil {
		return nil, fmt.Errorf("load schedules for export: %w", err)
	}
	return slices.DeleteFunc(rows, func(r models.ScheduleEntryDetail) bool {
		if len(params.TeacherIDs) > 0 && !slices.Contains(params.TeacherIDs, r.TeacherID) {
			return true
		}
		return len(params.SubjectIDs) > 0 && !slices.Contains(params.SubjectIDs, r.SubjectID)
	}), nil
}

func exportTitle(params models.ExportParams, rows []models.ScheduleEntryDetail) string {
	if params.YearGroupID == "" {
		return "Timetable"
	}
	for _, r := range rows {
		if r.YearGroupName != nil {
			return "Timetable " + *r.YearGroupName
		}
	}
	return "Timetable " + params.YearGroupID
}

func yearGroupLabel(r models.ScheduleEntryDetail) string {
	if r.YearGroupName == nil || *r.YearGroupName == "" {
		return "All"
	}
	return *r.YearGroupName
}

func buildExportDataset(rows []models.ScheduleEntryDetail) export.Dataset {
	data := export.Dataset{Headers: exportHeaders, Rows: make([][]string, 0, len(rows))}
	for _, r := range rows {
		day := ""
		if r.DayOfWeek >= 0 && r.DayOfWeek < len(timetable.DayNames) {
			day = timetable.DayNames[r.DayOfWeek]
		}
		data.Rows = append(data.Rows, []string{
			day,
			r.StartTime,
			r.EndTime,
			r.TeacherName,
			r.SubjectName,
			yearGroupLabel(r),
			fmt.Sprint(len(r.StudentIDs)),
		})
	}
	return data
}

// buildExportWorkbook lays rows out like the board: one sheet per weekday,
// teachers down the side and periods across.
func buildExportWorkbook(title string, rows []models.ScheduleEntryDetail, params models.ExportParams) export.Workbook {
	var (
		teachers []timetable.GridTeacher
		entries  = make([]timetable.Entry, 0, len(rows))
		byID     = make(map[string]models.ScheduleEntryDetail, len(rows))
	)
	for _, r := range rows {
		if !slices.ContainsFunc(teachers, func(t timetable.GridTeacher) bool { return t.ID == r.TeacherID }) {
			teachers = append(teachers, timetable.GridTeacher{ID: r.TeacherID, Name: r.TeacherName})
		}
		entries = append(entries, entryFromModel(r.ScheduleEntry))
		byID[r.ID] = r
	}

	var columns []string
	for p := range timetable.Periods() {
		columns = append(columns, p.Label)
	}

	wb := export.Workbook{Title: title}
	days := timetable.BuildGrid(teachers, entries, timetable.GridFilter{TeacherIDs: params.TeacherIDs, SubjectIDs: params.SubjectIDs})
	for _, day := range days {
		sheet := export.Sheet{Title: day.Name, Columns: columns}
		for _, row := range day.Rows {
			sr := export.SheetRow{Label: row.Teacher.Name, Cells: make([]string, len(row.Cells))}
			for i, cell := range row.Cells {
				switch {
				case cell.Entry != nil:
					d := byID[cell.Entry.Ref.ID()]
					sr.Cells[i] = fmt.Sprintf("%s (%s)", d.SubjectName, yearGroupLabel(d))
				case cell.IsBreak:
					sr.Cells[i] = "-"
				}
			}
			sheet.Rows = append(sheet.Rows, sr)
		}
		wb.Sheets = append(wb.Sheets, sheet)
	}
	if len(wb.Sheets) == 0 {
		wb.Sheets = []export.Sheet{{Title: "No lessons", Columns: columns}}
	}
	return wb
}
