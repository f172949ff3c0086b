package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets into an A4 document.
type PDFExporter struct {
	now func() time.Time
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

// Render creates a PDF document with a title, generation stamp and body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 18)
		pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated at %s", e.now().UTC().Format(time.RFC3339)), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	switch data.Layout {
	case LayoutRecords:
		renderRecords(pdf, tr, data)
	default:
		renderTable(pdf, tr, data)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTable(pdf *gofpdf.Fpdf, tr func(string) string, data Dataset) {
	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(row[header]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func renderRecords(pdf *gofpdf.Fpdf, tr func(string) string, data Dataset) {
	for i, row := range data.Rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 7, fmt.Sprintf("%d. %s", i+1, tr(row[data.Headers[0]])), "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		for _, header := range data.Headers[1:] {
			value := row[header]
			if value == "" {
				continue
			}
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("%s: %s", header, value)), "", "", false)
		}
		pdf.Ln(3)
	}
}
