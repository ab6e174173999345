package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Sheet is one page of a grid document: a header row and labelled rows.
type Sheet struct {
	Title   string
	Columns []string
	Rows    []SheetRow
}

// SheetRow is a row label followed by one cell per column.
type SheetRow struct {
	Label string
	Cells []string
}

// Workbook groups sheets under a document title.
type Workbook struct {
	Title  string
	Sheets []Sheet
}

const (
	pageWidth   = 277.0 // A4 landscape minus margins
	labelWidth  = 40.0
	headerLineH = 7.0
	cellLineH   = 4.5
)

// PDFExporter renders a Workbook as a landscape grid, one page per sheet.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates the PDF document.
func (e *PDFExporter) Render(wb Workbook) ([]byte, error) {
	if len(wb.Sheets) == 0 {
		return nil, fmt.Errorf("pdf requires at least one sheet")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, sheet := range wb.Sheets {
		if len(sheet.Columns) == 0 {
			return nil, fmt.Errorf("sheet %q has no columns", sheet.Title)
		}
		pdf.AddPage()
		pdf.SetFont("Arial", "B", 13)
		title := sheet.Title
		if wb.Title != "" {
			title = wb.Title + " - " + sheet.Title
		}
		pdf.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
		pdf.Ln(2)

		colWidth := (pageWidth - labelWidth) / float64(len(sheet.Columns))
		pdf.SetFont("Arial", "B", 8)
		pdf.SetFillColor(235, 235, 235)
		pdf.CellFormat(labelWidth, headerLineH, "", "1", 0, "C", true, 0, "")
		for _, col := range sheet.Columns {
			pdf.CellFormat(colWidth, headerLineH, tr(col), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 7)
		for _, row := range sheet.Rows {
			height := rowHeight(pdf, row, colWidth)
			x, y := pdf.GetXY()
			pdf.MultiCell(labelWidth, height, tr(row.Label), "1", "L", false)
			for i := range sheet.Columns {
				var text string
				if i < len(row.Cells) {
					text = row.Cells[i]
				}
				pdf.SetXY(x+labelWidth+float64(i)*colWidth, y)
				lines := len(pdf.SplitLines([]byte(tr(text)), colWidth))
				lineH := height
				if lines > 1 {
					lineH = height / float64(lines)
				}
				pdf.MultiCell(colWidth, lineH, tr(text), "1", "C", false)
			}
			pdf.SetXY(x, y+height)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// rowHeight sizes a row to its tallest wrapped cell.
func rowHeight(pdf *gofpdf.Fpdf, row SheetRow, colWidth float64) float64 {
	lines := max(1, len(pdf.SplitLines([]byte(row.Label), labelWidth)))
	for _, cell := range row.Cells {
		lines = max(lines, len(pdf.SplitLines([]byte(cell), colWidth)))
	}
	return float64(lines) * cellLineH
}
