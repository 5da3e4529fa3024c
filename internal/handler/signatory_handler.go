package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/internal/service"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
	"github.com/campus-ops/clearance-api/pkg/middleware/requestid"
	"github.com/campus-ops/clearance-api/pkg/response"
)

type decisionService interface {
	Decide(ctx context.Context, params service.DecideParams) (*dto.DecideResponse, error)
	ResetSlot(ctx context.Context, formID, slotID string) error
}

type queueService interface {
	PendingQueue(ctx context.Context, signatoryID string, page, perPage int) ([]dto.PendingQueueItem, *models.Pagination, error)
	MarkSeen(ctx context.Context, formID, signatoryID string) error
	InvalidateQueues(ctx context.Context)
}

// SignatoryHandler exposes the signing endpoints: the work queue and the
// decision recording path.
type SignatoryHandler struct {
	decisions decisionService
	queue     queueService
}

// NewSignatoryHandler constructs the handler.
func NewSignatoryHandler(decisions decisionService, queue queueService) *SignatoryHandler {
	return &SignatoryHandler{decisions: decisions, queue: queue}
}

// Decide godoc
// @Summary Record a decision on a form
// @Tags Signing
// @Accept json
// @Produce json
// @Param id path string true "Form ID"
// @Param payload body dto.DecideRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /forms/{id}/decision [post]
func (h *SignatoryHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}

	resp, err := h.decisions.Decide(c.Request.Context(), service.DecideParams{
		FormID:    c.Param("id"),
		ActorID:   claims.UserID,
		Decision:  req.Decision,
		Remarks:   req.Remarks,
		IPAddress: c.ClientIP(),
		RequestID: requestid.Value(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	h.queue.InvalidateQueues(c.Request.Context())
	response.JSON(c, http.StatusOK, resp, nil)
}

// Queue godoc
// @Summary Pending forms awaiting the signatory's decision
// @Tags Signing
// @Produce json
// @Param page query int false "Page"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /signatory/queue [get]
func (h *SignatoryHandler) Queue(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	items, pagination, err := h.queue.PendingQueue(c.Request.Context(), claims.UserID, queryInt(c, "page"), queryInt(c, "per_page"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// MarkSeen godoc
// @Summary Flag a form as viewed by the signatory
// @Tags Signing
// @Produce json
// @Param id path string true "Form ID"
// @Success 204 {object} response.Envelope
// @Router /forms/{id}/seen [post]
func (h *SignatoryHandler) MarkSeen(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.queue.MarkSeen(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ResetSlot godoc
// @Summary Reset a decided slot back to pending (admin repair)
// @Tags Signing
// @Accept json
// @Produce json
// @Param id path string true "Form ID"
// @Param slotId path string true "Slot ID"
// @Param payload body dto.ResetSlotRequest true "Reset reason"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forms/{id}/slots/{slotId}/reset [post]
func (h *SignatoryHandler) ResetSlot(c *gin.Context) {
	var req dto.ResetSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Reason) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "reset reason is required"))
		return
	}
	if err := h.decisions.ResetSlot(c.Request.Context(), c.Param("id"), c.Param("slotId")); err != nil {
		response.Error(c, err)
		return
	}
	h.queue.InvalidateQueues(c.Request.Context())
	response.NoContent(c)
}
