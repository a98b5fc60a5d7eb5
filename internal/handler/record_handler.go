package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/middleware"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/service"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/response"
)

type recordService interface {
	GetDetail(ctx context.Context, id string) (*dto.RecordDetailView, bool, error)
}

type registerExporter interface {
	Generate(ctx context.Context, recordID string, format models.ExportFormat, actor models.StaffActor) (*service.ExportResult, error)
	ParseToken(token string, allowExpired bool) (recordID, relPath string, expiresAt time.Time, err error)
	Open(relPath string) (*os.File, error)
}

// RecordHandler serves committed records: cached detail views, register
// exports and their signed downloads.
type RecordHandler struct {
	records recordService
	exports registerExporter
}

// NewRecordHandler constructs the handler.
func NewRecordHandler(records recordService, exports registerExporter) *RecordHandler {
	return &RecordHandler{records: records, exports: exports}
}

// Detail godoc
// @Summary Committed record with display URLs, labels and live lock state
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /inwards/{id} [get]
func (h *RecordHandler) Detail(c *gin.Context) {
	view, cacheHit, err := h.records.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, view, middleware.ExtractMeta(c))
}

// Export godoc
// @Summary Render the record's equipment register as csv, xlsx or pdf
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Param format query string true "csv | xlsx | pdf"
// @Success 200 {object} response.Envelope
// @Router /inwards/{id}/export [get]
func (h *RecordHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := models.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
	if format == "" {
		format = models.ExportCSV
	}
	result, err := h.exports.Generate(c.Request.Context(), c.Param("id"), format, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ExportView{
		URL:       result.URL,
		Token:     result.Token,
		Format:    result.Format,
		ExpiresAt: result.ExpiresAt,
	})
}

// Download godoc
// @Summary Download a rendered register export via its signed token
// @Tags Records
// @Produce octet-stream
// @Param token path string true "Signed download token"
// @Success 200 {file} binary
// @Router /exports/{token} [get]
func (h *RecordHandler) Download(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	_, relPath, _, err := h.exports.ParseToken(c.Param("token"), false)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.exports.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "export no longer available"))
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to stat export"))
		return
	}
	filename := filepath.Base(relPath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), exportMIME(filename), file, nil)
}

func exportMIME(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}
