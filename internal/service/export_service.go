package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/export"
	"github.com/instrolab/lims-portal-api/pkg/storage"
)

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheetName string) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes register export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ExportFormat
	ExpiresAt    time.Time
}

// ExportService renders a committed record's register rows to a file and
// hands out signed, expiring download tokens for it.
type ExportService struct {
	records recordReader
	storage fileStorage
	csv     csvRenderer
	xlsx    xlsxRenderer
	pdf     pdfRenderer
	signer  *storage.SignedURLSigner
	audit   *AuditService
	logger  *zap.Logger
	cfg     ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(records recordReader, store fileStorage, signer *storage.SignedURLSigner, audit *AuditService, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		records: records,
		storage: store,
		csv:     export.NewCSVExporter(),
		xlsx:    export.NewXLSXExporter(),
		pdf:     export.NewPDFExporter(),
		signer:  signer,
		audit:   audit,
		logger:  logger,
		cfg:     cfg,
	}
}

// Generate renders the record's equipment register in the requested format,
// stores the file and returns a signed download token.
func (s *ExportService) Generate(ctx context.Context, recordID string, format models.ExportFormat, actor models.StaffActor) (*ExportResult, error) {
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	rec, err := s.records.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}

	dataset, title := registerDataset(rec)

	var payload []byte
	switch format {
	case models.ExportCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportXLSX:
		payload, err = s.xlsx.Render(dataset, "Register")
	case models.ExportPDF:
		payload, err = s.pdf.Render(dataset, title)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render register export")
	}

	filename := s.buildFilename(rec, format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store register export")
	}

	token, expiresAt, err := s.signer.Generate(rec.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export download")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}

	s.audit.StaffAction(actor, models.AuditActionRegisterExport, "inward_record", rec.ID, map[string]any{
		"format":    format,
		"inward_no": rec.InwardNo,
	})

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:       format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (recordID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL
// when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// RunCleanup sweeps expired export files until ctx is cancelled.
func (s *ExportService) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Cleanup(0)
			if err != nil {
				s.logger.Warn("export cleanup failed", zap.Error(err))
				continue
			}
			if len(removed) > 0 {
				s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
			}
		}
	}
}

func (s *ExportService) buildFilename(rec *models.InwardRecord, format models.ExportFormat) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	return fmt.Sprintf("register_%s_%s.%s", sanitizeFilename(rec.InwardNo), timestamp, format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

// registerDataset flattens the record's equipment list into the tabular
// form shared by all three renderers.
func registerDataset(rec *models.InwardRecord) (export.Dataset, string) {
	headers := []string{
		"Item No", "Material Description", "Make", "Model", "Range",
		"Serial No", "Qty", "Inspection Notes", "Calibration", "Supplier", "Customer Remark",
	}
	rows := make([]map[string]string, 0, len(rec.EquipmentList))
	for _, line := range rec.EquipmentList {
		rows = append(rows, map[string]string{
			"Item No":              line.ItemNo,
			"Material Description": line.MaterialDesc,
			"Make":                 line.Make,
			"Model":                line.Model,
			"Range":                line.Range,
			"Serial No":            line.SerialNo,
			"Qty":                  strconv.Itoa(line.Qty),
			"Inspection Notes":     line.InspeNotes,
			"Calibration":          string(line.CalibrationMode),
			"Supplier":             line.SupplierName,
			"Customer Remark":      line.Remark,
		})
	}
	title := fmt.Sprintf("Inward Register %s (%s)", rec.InwardNo, rec.CustomerName)
	return export.Dataset{Headers: headers, Rows: rows}, title
}
