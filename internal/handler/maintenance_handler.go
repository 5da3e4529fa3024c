package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/pkg/response"
)

type maintenanceRunner interface {
	Run(ctx context.Context) (*dto.MaintenanceReport, error)
}

// MaintenanceHandler triggers the slot repair sweep.
type MaintenanceHandler struct {
	service maintenanceRunner
}

// NewMaintenanceHandler constructs the handler.
func NewMaintenanceHandler(service maintenanceRunner) *MaintenanceHandler {
	return &MaintenanceHandler{service: service}
}

// Run godoc
// @Summary Run the slot maintenance sweep
// @Description Removes duplicate and orphan slots and recomputes touched forms
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/maintenance [post]
func (h *MaintenanceHandler) Run(c *gin.Context) {
	report, err := h.service.Run(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
