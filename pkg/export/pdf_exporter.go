package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders a dataset as a printable register table. Registers
// are wide, so pages are landscape and column widths follow header length.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays out the title, header band and one row per record.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 9, title, "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "", 8)
	pdf.CellFormat(0, 5, "Generated "+time.Now().UTC().Format("2006-01-02 15:04 UTC"), "", 1, "R", false, 0, "")
	pdf.Ln(2)

	widths := columnWidths(data.Headers, 277)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(235, 235, 235)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for i, value := range data.values(row) {
			pdf.CellFormat(widths[i], 7, fitCell(value, widths[i]), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// columnWidths shares usable width proportionally to header length with a
// floor, so "Material Description" gets room and "Qty" does not waste it.
func columnWidths(headers []string, usable float64) []float64 {
	const floor = 4.0
	total := 0.0
	weights := make([]float64, len(headers))
	for i, h := range headers {
		weights[i] = float64(len(h)) + floor
		total += weights[i]
	}
	out := make([]float64, len(headers))
	for i := range headers {
		out[i] = usable * weights[i] / total
	}
	return out
}

// fitCell truncates values that would overflow their cell; roughly 1.7mm
// per character at the body font size.
func fitCell(value string, width float64) string {
	max := int(width / 1.7)
	if max < 4 {
		max = 4
	}
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "~"
}
