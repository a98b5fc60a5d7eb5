package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/models"
	"github.com/instrolab/lims-portal-api/internal/ws"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/response"
)

type intakeService interface {
	Open(ctx context.Context, req dto.OpenSessionRequest, actor models.StaffActor) (*dto.SessionView, error)
	Get(ctx context.Context, id string, actor models.StaffActor) (*dto.SessionView, error)
	PatchForm(ctx context.Context, id string, req dto.UpdateFormRequest, actor models.StaffActor) (*dto.MutationResult, error)
	PatchLine(ctx context.Context, id string, index int, req dto.UpdateLineRequest, actor models.StaffActor) (*dto.MutationResult, error)
	AddLine(ctx context.Context, id string, actor models.StaffActor) (*dto.MutationResult, error)
	RemoveLine(ctx context.Context, id string, index int, actor models.StaffActor) (*dto.MutationResult, error)
	SetRouting(ctx context.Context, id string, index int, req dto.SetRoutingRequest, actor models.StaffActor) (*dto.MutationResult, error)
	StagePhoto(ctx context.Context, id string, index int, filename, contentType string, size int64, r io.Reader, actor models.StaffActor) (*dto.MutationResult, error)
	RemoveStagedPhoto(ctx context.Context, id string, index int, photoID string, actor models.StaffActor) (*dto.MutationResult, error)
	RemoveConfirmedPhoto(ctx context.Context, id string, index int, url string, actor models.StaffActor) (*dto.MutationResult, error)
	Preview(token string) (*os.File, string, error)
	Submit(ctx context.Context, id string, actor models.StaffActor) (*dto.SubmitResult, error)
	Close(ctx context.Context, id string, force bool, actor models.StaffActor) error
}

// SessionHandler exposes the intake session surface: open/resume, form and
// row edits, photo staging, submit and the session event stream.
type SessionHandler struct {
	service intakeService
	events  *ws.Hub
}

// NewSessionHandler constructs the handler.
func NewSessionHandler(service intakeService, events *ws.Hub) *SessionHandler {
	return &SessionHandler{service: service, events: events}
}

// Open godoc
// @Summary Open an intake session (fresh, resume draft, or edit record)
// @Tags Sessions
// @Accept json
// @Produce json
// @Param request body dto.OpenSessionRequest true "Session mode and source"
// @Success 201 {object} response.Envelope
// @Router /sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	view, err := h.service.Open(c.Request.Context(), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Fetch current session state
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id} [get]
func (h *SessionHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.service.Get(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Close godoc
// @Summary Close a session; refuses when unsaved changes exist unless forced
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param force query bool false "Discard unsaved changes"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) Close(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	force := c.Query("force") == "true"
	if err := h.service.Close(c.Request.Context(), c.Param("id"), force, actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// PatchForm godoc
// @Summary Patch header fields of the intake form
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param request body dto.UpdateFormRequest true "Fields to apply"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/form [patch]
func (h *SessionHandler) PatchForm(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form payload"))
		return
	}
	result, err := h.service.PatchForm(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// PatchLine godoc
// @Summary Patch one equipment row
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Row index (0-based)"
// @Param request body dto.UpdateLineRequest true "Fields to apply"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lines/{index} [patch]
func (h *SessionHandler) PatchLine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := lineIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.UpdateLineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid line payload"))
		return
	}
	result, err := h.service.PatchLine(c.Request.Context(), c.Param("id"), index, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// AddLine godoc
// @Summary Append a blank equipment row
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lines [post]
func (h *SessionHandler) AddLine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.AddLine(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// RemoveLine godoc
// @Summary Remove an equipment row; remaining rows renumber contiguously
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Row index (0-based)"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lines/{index} [delete]
func (h *SessionHandler) RemoveLine(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := lineIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.RemoveLine(c.Request.Context(), c.Param("id"), index, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// SetRouting godoc
// @Summary Switch a row's calibration routing
// @Tags Sessions
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Row index (0-based)"
// @Param request body dto.SetRoutingRequest true "Routing mode"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lines/{index}/routing [put]
func (h *SessionHandler) SetRouting(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := lineIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req dto.SetRoutingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid routing payload"))
		return
	}
	result, err := h.service.SetRouting(c.Request.Context(), c.Param("id"), index, req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// StagePhoto godoc
// @Summary Stage a photo upload on a row
// @Tags Sessions
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Row index (0-based)"
// @Param photo formData file true "Photo file"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lines/{index}/photos [post]
func (h *SessionHandler) StagePhoto(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := lineIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "photo file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to read upload"))
		return
	}
	defer src.Close() //nolint:errcheck

	contentType := fileHeader.Header.Get("Content-Type")
	result, err := h.service.StagePhoto(c.Request.Context(), c.Param("id"), index, fileHeader.Filename, contentType, fileHeader.Size, src, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// RemoveStagedPhoto godoc
// @Summary Drop a staged photo before submit
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Row index (0-based)"
// @Param photoId path string true "Staged photo ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lines/{index}/photos/{photoId} [delete]
func (h *SessionHandler) RemoveStagedPhoto(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := lineIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.RemoveStagedPhoto(c.Request.Context(), c.Param("id"), index, c.Param("photoId"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// RemoveConfirmedPhoto godoc
// @Summary Detach a confirmed photo URL from a row
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Row index (0-based)"
// @Param url query string true "Confirmed photo URL"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/lines/{index}/photos [delete]
func (h *SessionHandler) RemoveConfirmedPhoto(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	index, err := lineIndex(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	photoURL := strings.TrimSpace(c.Query("url"))
	if photoURL == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "url is required"))
		return
	}
	result, err := h.service.RemoveConfirmedPhoto(c.Request.Context(), c.Param("id"), index, photoURL, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Submit godoc
// @Summary Commit the session to the records service
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Events godoc
// @Summary Stream autosave and lock transitions over WebSocket
// @Tags Sessions
// @Param id path string true "Session ID"
// @Success 101
// @Router /sessions/{id}/events [get]
func (h *SessionHandler) Events(c *gin.Context) {
	if h.events == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "event stream not enabled"))
		return
	}
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	id := c.Param("id")
	if _, err := h.service.Get(c.Request.Context(), id, actor); err != nil {
		response.Error(c, err)
		return
	}
	h.events.Serve(c.Writer, c.Request, id)
}

// Preview godoc
// @Summary Serve a staged photo preview by its opaque token
// @Tags Sessions
// @Produce octet-stream
// @Param token path string true "Preview token"
// @Success 200 {file} binary
// @Router /previews/{token} [get]
func (h *SessionHandler) Preview(c *gin.Context) {
	file, contentType, err := h.service.Preview(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, http.StatusInternalServerError, "failed to stat preview"))
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), contentType, file, nil)
}

func lineIndex(c *gin.Context) (int, error) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid line index %q", c.Param("index")))
	}
	return index, nil
}
