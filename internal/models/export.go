package models

// ExportFormat selects the register export encoding.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
	ExportPDF  ExportFormat = "pdf"
)

// Valid reports whether the format is one the renderer set supports.
func (f ExportFormat) Valid() bool {
	switch f {
	case ExportCSV, ExportXLSX, ExportPDF:
		return true
	}
	return false
}
