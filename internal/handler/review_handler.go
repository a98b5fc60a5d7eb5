package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/instrolab/lims-portal-api/internal/dto"
	"github.com/instrolab/lims-portal-api/internal/models"
	appErrors "github.com/instrolab/lims-portal-api/pkg/errors"
	"github.com/instrolab/lims-portal-api/pkg/response"
)

type reviewService interface {
	IssueLink(ctx context.Context, recordID string, req dto.IssueReviewLinkRequest, actor models.StaffActor) (*dto.ReviewLinkView, error)
	Unlock(ctx context.Context, claims *models.ReviewClaims, req dto.UnlockReviewRequest) (*dto.ReviewTokenView, error)
	GetRecord(ctx context.Context, claims *models.ReviewClaims) (*dto.ReviewRecordView, error)
	SetRemark(ctx context.Context, claims *models.ReviewClaims, lineID string, req dto.SetRemarkRequest) (*dto.ReviewMutationResult, error)
	Finalize(ctx context.Context, claims *models.ReviewClaims) (*dto.ReviewMutationResult, error)
}

// ReviewHandler exposes the customer review surface plus the staff
// endpoint that issues review links.
type ReviewHandler struct {
	service reviewService
}

// NewReviewHandler constructs the handler.
func NewReviewHandler(service reviewService) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// IssueLink godoc
// @Summary Issue a customer review link for a committed record
// @Tags Review
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param request body dto.IssueReviewLinkRequest true "Link options"
// @Success 201 {object} response.Envelope
// @Router /inwards/{id}/review-link [post]
func (h *ReviewHandler) IssueLink(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.IssueReviewLinkRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review link payload"))
			return
		}
	}
	view, err := h.service.IssueLink(c.Request.Context(), c.Param("id"), req, actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Unlock godoc
// @Summary Exchange the link's access code for a full review token
// @Tags Review
// @Accept json
// @Produce json
// @Param request body dto.UnlockReviewRequest true "Access code"
// @Success 200 {object} response.Envelope
// @Router /review/unlock [post]
func (h *ReviewHandler) Unlock(c *gin.Context) {
	claims := reviewClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UnlockReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid unlock payload"))
		return
	}
	view, err := h.service.Unlock(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Record godoc
// @Summary Record under review, scoped to the caller's review token
// @Tags Review
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /review/record [get]
func (h *ReviewHandler) Record(c *gin.Context) {
	claims := reviewClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.service.GetRecord(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// SetRemark godoc
// @Summary Store a customer remark against one equipment row
// @Tags Review
// @Accept json
// @Produce json
// @Param lineId path string true "Equipment item number"
// @Param request body dto.SetRemarkRequest true "Remark"
// @Success 200 {object} response.Envelope
// @Router /review/remarks/{lineId} [put]
func (h *ReviewHandler) SetRemark(c *gin.Context) {
	claims := reviewClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SetRemarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid remark payload"))
		return
	}
	result, err := h.service.SetRemark(c.Request.Context(), claims, c.Param("lineId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}

// Finalize godoc
// @Summary Push all remarks upstream and close the review
// @Tags Review
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /review/finalize [post]
func (h *ReviewHandler) Finalize(c *gin.Context) {
	claims := reviewClaimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Finalize(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result)
}
