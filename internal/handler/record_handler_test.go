package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/service"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

type fakeRecordSrv struct {
	view   *dto.RecordDetailView
	hit    bool
	err    error
	lastID string
}

func (f *fakeRecordSrv) GetDetail(_ context.Context, id string) (*dto.RecordDetailView, bool, error) {
	f.lastID = id
	return f.view, f.hit, f.err
}

type fakeExportSrv struct {
	result     *service.ExportResult
	genErr     error
	parseErr   error
	relPath    string
	lastFormat models.ExportFormat
}

func (f *fakeExportSrv) Generate(_ context.Context, _ string, format models.ExportFormat, _ models.StaffActor) (*service.ExportResult, error) {
	f.lastFormat = format
	return f.result, f.genErr
}

func (f *fakeExportSrv) ParseToken(string, bool) (string, string, time.Time, error) {
	if f.parseErr != nil {
		return "", "", time.Time{}, f.parseErr
	}
	return "rec-1", f.relPath, time.Now().Add(time.Hour), nil
}

func (f *fakeExportSrv) Open(relPath string) (*os.File, error) {
	return os.Open(relPath)
}

func TestRecordHandlerDetailReportsCacheHit(t *testing.T) {
	srv := &fakeRecordSrv{
		view: &dto.RecordDetailView{ID: "rec-1", InwardNo: "INW-26-0042"},
		hit:  true,
	}
	handler := NewRecordHandler(srv, nil)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/inwards/rec-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.Detail(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rec-1", srv.lastID)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, true, envelope.Meta["cache_hit"])
	assert.Equal(t, "INW-26-0042", envelope.Data["inward_no"])
}

func TestRecordHandlerDetailNotFound(t *testing.T) {
	srv := &fakeRecordSrv{err: appErrors.Clone(appErrors.ErrNotFound, "record not found")}
	handler := NewRecordHandler(srv, nil)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/inwards/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}

	handler.Detail(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordHandlerExportDefaultsToCSV(t *testing.T) {
	exports := &fakeExportSrv{result: &service.ExportResult{
		URL:       "/api/v1/exports/tok-1",
		Token:     "tok-1",
		Format:    models.ExportCSV,
		ExpiresAt: time.Now().Add(time.Hour),
	}}
	handler := NewRecordHandler(&fakeRecordSrv{}, exports)

	c, rec := sessionTestContext(t, http.MethodGet, "/inwards/rec-1/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ExportCSV, exports.lastFormat)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "tok-1", envelope.Data["token"])
	assert.Equal(t, "/api/v1/exports/tok-1", envelope.Data["url"])
}

func TestRecordHandlerExportNormalisesFormat(t *testing.T) {
	exports := &fakeExportSrv{result: &service.ExportResult{Format: models.ExportXLSX}}
	handler := NewRecordHandler(&fakeRecordSrv{}, exports)

	c, rec := sessionTestContext(t, http.MethodGet, "/inwards/rec-1/export?format=XLSX", nil)
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.ExportXLSX, exports.lastFormat)
}

func TestRecordHandlerExportRequiresActor(t *testing.T) {
	handler := NewRecordHandler(&fakeRecordSrv{}, &fakeExportSrv{})

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/inwards/rec-1/export", nil)
	c.Params = gin.Params{{Key: "id", Value: "rec-1"}}

	handler.Export(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordHandlerDownloadStreamsAttachment(t *testing.T) {
	dir := t.TempDir()
	relPath := filepath.Join(dir, "register_INW-26-0042_20260115_101500.csv")
	require.NoError(t, os.WriteFile(relPath, []byte("Item No,Material Description\n"), 0o600))

	exports := &fakeExportSrv{relPath: relPath}
	handler := NewRecordHandler(&fakeRecordSrv{}, exports)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/tok-1", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}

	handler.Download(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "register_INW-26-0042_20260115_101500.csv")
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "Item No")
}

func TestRecordHandlerDownloadRejectsBadToken(t *testing.T) {
	exports := &fakeExportSrv{parseErr: appErrors.Clone(appErrors.ErrUnauthorized, "invalid download token")}
	handler := NewRecordHandler(&fakeRecordSrv{}, exports)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/forged", nil)
	c.Params = gin.Params{{Key: "token", Value: "forged"}}

	handler.Download(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecordHandlerDownloadMissingFile(t *testing.T) {
	exports := &fakeExportSrv{relPath: filepath.Join(t.TempDir(), "gone.csv")}
	handler := NewRecordHandler(&fakeRecordSrv{}, exports)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/exports/tok-1", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}

	handler.Download(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportMIMEByExtension(t *testing.T) {
	cases := map[string]string{
		"register.csv":  "text/csv",
		"register.xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"register.pdf":  "application/pdf",
		"register.bin":  "application/octet-stream",
	}
	for filename, want := range cases {
		assert.Equal(t, want, exportMIME(filename), filename)
	}
}
