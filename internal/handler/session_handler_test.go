package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/middleware"
	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
)

type responseEnvelope struct {
	Data  map[string]interface{} `json:"data"`
	Error map[string]interface{} `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

type fakeIntakeSrv struct {
	view        *dto.SessionView
	mutation    *dto.MutationResult
	submit      *dto.SubmitResult
	err         error
	closeErr    error
	previewFile string
	previewMIME string

	lastOpen  dto.OpenSessionRequest
	lastPatch struct {
		id    string
		index int
		line  dto.UpdateLineRequest
	}
	lastPhoto struct {
		filename    string
		contentType string
		size        int64
		content     []byte
	}
	lastClose struct {
		id    string
		force bool
	}
}

func (f *fakeIntakeSrv) Open(_ context.Context, req dto.OpenSessionRequest, _ models.StaffActor) (*dto.SessionView, error) {
	f.lastOpen = req
	return f.view, f.err
}

func (f *fakeIntakeSrv) Get(context.Context, string, models.StaffActor) (*dto.SessionView, error) {
	return f.view, f.err
}

func (f *fakeIntakeSrv) PatchForm(context.Context, string, dto.UpdateFormRequest, models.StaffActor) (*dto.MutationResult, error) {
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) PatchLine(_ context.Context, id string, index int, req dto.UpdateLineRequest, _ models.StaffActor) (*dto.MutationResult, error) {
	f.lastPatch.id = id
	f.lastPatch.index = index
	f.lastPatch.line = req
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) AddLine(context.Context, string, models.StaffActor) (*dto.MutationResult, error) {
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) RemoveLine(context.Context, string, int, models.StaffActor) (*dto.MutationResult, error) {
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) SetRouting(context.Context, string, int, dto.SetRoutingRequest, models.StaffActor) (*dto.MutationResult, error) {
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) StagePhoto(_ context.Context, _ string, _ int, filename, contentType string, size int64, r io.Reader, _ models.StaffActor) (*dto.MutationResult, error) {
	f.lastPhoto.filename = filename
	f.lastPhoto.contentType = contentType
	f.lastPhoto.size = size
	content, _ := io.ReadAll(r)
	f.lastPhoto.content = content
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) RemoveStagedPhoto(context.Context, string, int, string, models.StaffActor) (*dto.MutationResult, error) {
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) RemoveConfirmedPhoto(context.Context, string, int, string, models.StaffActor) (*dto.MutationResult, error) {
	return f.mutation, f.err
}

func (f *fakeIntakeSrv) Preview(string) (*os.File, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	file, err := os.Open(f.previewFile)
	if err != nil {
		return nil, "", err
	}
	return file, f.previewMIME, nil
}

func (f *fakeIntakeSrv) Submit(context.Context, string, models.StaffActor) (*dto.SubmitResult, error) {
	return f.submit, f.err
}

func (f *fakeIntakeSrv) Close(_ context.Context, id string, force bool, _ models.StaffActor) error {
	f.lastClose.id = id
	f.lastClose.force = force
	return f.closeErr
}

func testActor() models.StaffActor {
	return models.StaffActor{UserID: "tech-1", FullName: "Asha Pillai", Role: models.RoleTechnician}
}

func sessionTestContext(t *testing.T, method, target string, body io.Reader) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(method, target, body)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	c.Set(middleware.ContextActorKey, testActor())
	return c, rec
}

func TestSessionHandlerOpenCreated(t *testing.T) {
	srv := &fakeIntakeSrv{view: &dto.SessionView{ID: "sess-1", Mode: dto.ModeFresh}}
	handler := NewSessionHandler(srv, nil)

	payload := strings.NewReader(`{"mode":"fresh"}`)
	c, rec := sessionTestContext(t, http.MethodPost, "/sessions", payload)

	handler.Open(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, dto.ModeFresh, srv.lastOpen.Mode)

	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "sess-1", envelope.Data["id"])
}

func TestSessionHandlerOpenRejectsMissingActor(t *testing.T) {
	handler := NewSessionHandler(&fakeIntakeSrv{}, nil)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"mode":"fresh"}`))

	handler.Open(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionHandlerOpenRejectsMalformedBody(t *testing.T) {
	handler := NewSessionHandler(&fakeIntakeSrv{}, nil)

	c, rec := sessionTestContext(t, http.MethodPost, "/sessions", strings.NewReader(`{"mode":`))

	handler.Open(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrValidation.Code, envelope.Error["code"])
}

func TestSessionHandlerPatchLineParsesIndex(t *testing.T) {
	srv := &fakeIntakeSrv{mutation: &dto.MutationResult{Applied: true}}
	handler := NewSessionHandler(srv, nil)

	payload := strings.NewReader(`{"serial_no":"SN-204"}`)
	c, rec := sessionTestContext(t, http.MethodPatch, "/sessions/sess-1/lines/2", payload)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}, {Key: "index", Value: "2"}}

	handler.PatchLine(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sess-1", srv.lastPatch.id)
	assert.Equal(t, 2, srv.lastPatch.index)
	require.NotNil(t, srv.lastPatch.line.SerialNo)
	assert.Equal(t, "SN-204", *srv.lastPatch.line.SerialNo)
}

func TestSessionHandlerPatchLineRejectsBadIndex(t *testing.T) {
	handler := NewSessionHandler(&fakeIntakeSrv{}, nil)

	for _, raw := range []string{"abc", "-1"} {
		c, rec := sessionTestContext(t, http.MethodPatch, "/sessions/sess-1/lines/"+raw, strings.NewReader(`{}`))
		c.Params = gin.Params{{Key: "id", Value: "sess-1"}, {Key: "index", Value: raw}}

		handler.PatchLine(c)

		assert.Equal(t, http.StatusBadRequest, rec.Code, "index %q", raw)
	}
}

func TestSessionHandlerLockGatedMutationPassesThrough(t *testing.T) {
	srv := &fakeIntakeSrv{mutation: &dto.MutationResult{
		Applied: false,
		Session: dto.SessionView{ID: "sess-1", Lock: dto.LockView{Locked: true, Holder: "tech-2"}},
	}}
	handler := NewSessionHandler(srv, nil)

	c, rec := sessionTestContext(t, http.MethodPatch, "/sessions/sess-1/form", strings.NewReader(`{"customer_name":"Acme"}`))
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.PatchForm(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope.Data["applied"])
}

func TestSessionHandlerStagePhotoReadsMultipart(t *testing.T) {
	srv := &fakeIntakeSrv{mutation: &dto.MutationResult{Applied: true}}
	handler := NewSessionHandler(srv, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("photo", "gauge.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("jpegbytes"))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/sessions/sess-1/lines/0/photos", &buf)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.Set(middleware.ContextActorKey, testActor())
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}, {Key: "index", Value: "0"}}

	handler.StagePhoto(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gauge.jpg", srv.lastPhoto.filename)
	assert.Equal(t, []byte("jpegbytes"), srv.lastPhoto.content)
	assert.Equal(t, int64(len("jpegbytes")), srv.lastPhoto.size)
}

func TestSessionHandlerStagePhotoRequiresFile(t *testing.T) {
	handler := NewSessionHandler(&fakeIntakeSrv{}, nil)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("note", "no file here"))
	require.NoError(t, writer.Close())

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/sessions/sess-1/lines/0/photos", &buf)
	c.Request.Header.Set("Content-Type", writer.FormDataContentType())
	c.Set(middleware.ContextActorKey, testActor())
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}, {Key: "index", Value: "0"}}

	handler.StagePhoto(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandlerRemoveConfirmedPhotoRequiresURL(t *testing.T) {
	handler := NewSessionHandler(&fakeIntakeSrv{}, nil)

	c, rec := sessionTestContext(t, http.MethodDelete, "/sessions/sess-1/lines/0/photos", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}, {Key: "index", Value: "0"}}

	handler.RemoveConfirmedPhoto(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandlerCloseForwardsForce(t *testing.T) {
	srv := &fakeIntakeSrv{}
	handler := NewSessionHandler(srv, nil)

	c, rec := sessionTestContext(t, http.MethodDelete, "/sessions/sess-1?force=true", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Close(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "sess-1", srv.lastClose.id)
	assert.True(t, srv.lastClose.force)
}

func TestSessionHandlerCloseSurfacesUnsavedConflict(t *testing.T) {
	srv := &fakeIntakeSrv{closeErr: appErrors.ErrUnsavedChanges}
	handler := NewSessionHandler(srv, nil)

	c, rec := sessionTestContext(t, http.MethodDelete, "/sessions/sess-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Close(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, appErrors.ErrUnsavedChanges.Code, envelope.Error["code"])
	assert.False(t, srv.lastClose.force)
}

func TestSessionHandlerSubmitReturnsLockMetadata(t *testing.T) {
	srv := &fakeIntakeSrv{submit: &dto.SubmitResult{
		Applied:  false,
		InwardNo: "INW-26-0042",
		Lock:     dto.LockView{Locked: true, Holder: "tech-2"},
	}}
	handler := NewSessionHandler(srv, nil)

	c, rec := sessionTestContext(t, http.MethodPost, "/sessions/sess-1/submit", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Submit(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, false, envelope.Data["applied"])
	lock, ok := envelope.Data["lock"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tech-2", lock["holder"])
}

func TestSessionHandlerPreviewStreamsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "staged.jpg")
	require.NoError(t, os.WriteFile(path, []byte("preview-bytes"), 0o600))

	srv := &fakeIntakeSrv{previewFile: path, previewMIME: "image/jpeg"}
	handler := NewSessionHandler(srv, nil)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/previews/tok-1", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok-1"}}

	handler.Preview(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "preview-bytes", rec.Body.String())
}

func TestSessionHandlerPreviewUnknownToken(t *testing.T) {
	srv := &fakeIntakeSrv{err: appErrors.Clone(appErrors.ErrNotFound, "preview not found")}
	handler := NewSessionHandler(srv, nil)

	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/previews/bogus", nil)
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}

	handler.Preview(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandlerEventsRequiresHub(t *testing.T) {
	handler := NewSessionHandler(&fakeIntakeSrv{}, nil)

	c, rec := sessionTestContext(t, http.MethodGet, "/sessions/sess-1/events", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Events(c)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandlerGetPropagatesServiceError(t *testing.T) {
	srv := &fakeIntakeSrv{err: errors.New("boom")}
	handler := NewSessionHandler(srv, nil)

	c, rec := sessionTestContext(t, http.MethodGet, "/sessions/sess-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	handler.Get(c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
