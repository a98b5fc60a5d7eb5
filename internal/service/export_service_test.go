package service

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/storage"
)

func newExportServiceForTest(t *testing.T) (*ExportService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	reader := &recordReaderStub{record: registeredRecord()}
	svc := NewExportService(reader, store, signer, nil, ExportConfig{APIPrefix: "/api/v1", ResultTTL: time.Hour}, zap.NewNop())
	return svc, store
}

func TestExportGenerateCSV(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	actor := models.StaffActor{UserID: "tech-1"}

	result, err := svc.Generate(context.Background(), "rec-1", models.ExportCSV, actor)
	require.NoError(t, err)
	require.NotEmpty(t, result.RelativePath)
	assert.Contains(t, result.URL, "/api/v1/exports/")
	assert.Equal(t, models.ExportCSV, result.Format)

	raw, err := os.ReadFile(store.Path(result.RelativePath))
	require.NoError(t, err)
	content := string(raw)
	assert.Contains(t, content, "INW-26-0042-1")
	assert.Contains(t, content, "Pressure gauge")
	assert.Contains(t, content, "Item No")
}

func TestExportGenerateXLSXAndPDF(t *testing.T) {
	svc, store := newExportServiceForTest(t)
	actor := models.StaffActor{UserID: "tech-1"}

	for _, format := range []models.ExportFormat{models.ExportXLSX, models.ExportPDF} {
		result, err := svc.Generate(context.Background(), "rec-1", format, actor)
		require.NoError(t, err)
		assert.Equal(t, format, result.Format)

		info, err := os.Stat(store.Path(result.RelativePath))
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}

func TestExportTokenRoundTrip(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	actor := models.StaffActor{UserID: "tech-1"}

	result, err := svc.Generate(context.Background(), "rec-1", models.ExportCSV, actor)
	require.NoError(t, err)

	recordID, relPath, expiresAt, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "rec-1", recordID)
	assert.Equal(t, result.RelativePath, relPath)
	assert.WithinDuration(t, result.ExpiresAt, expiresAt, time.Second)

	f, err := svc.Open(relPath)
	require.NoError(t, err)
	defer f.Close()
	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportServiceForTest(t)

	_, err := svc.Generate(context.Background(), "rec-1", models.ExportFormat("docx"), models.StaffActor{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportCleanupRemovesExpiredFiles(t *testing.T) {
	svc, _ := newExportServiceForTest(t)
	actor := models.StaffActor{UserID: "tech-1"}

	result, err := svc.Generate(context.Background(), "rec-1", models.ExportCSV, actor)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	removed, err := svc.Cleanup(time.Nanosecond)
	require.NoError(t, err)
	assert.Contains(t, removed, result.RelativePath)

	_, err = svc.Open(result.RelativePath)
	require.Error(t, err)
}
