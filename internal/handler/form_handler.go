package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/internal/models"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
	"github.com/campus-ops/clearance-api/pkg/response"
)

type formService interface {
	Submit(ctx context.Context, studentID string, req dto.SubmitFormRequest) (*models.Form, error)
	Detail(ctx context.Context, formID string, actor *models.User) (*dto.FormDetail, error)
	List(ctx context.Context, query dto.FormQuery) ([]models.Form, *models.Pagination, error)
	Resubmit(ctx context.Context, formID string, actor *models.User) (*dto.ResubmitFormResponse, error)
}

// FormHandler exposes the student-facing form lifecycle endpoints.
type FormHandler struct {
	service formService
}

// NewFormHandler constructs the handler.
func NewFormHandler(service formService) *FormHandler {
	return &FormHandler{service: service}
}

// Submit godoc
// @Summary Submit a clearance form
// @Tags Forms
// @Accept json
// @Produce json
// @Param payload body dto.SubmitFormRequest true "Form payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /forms [post]
func (h *FormHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitFormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid form payload"))
		return
	}
	form, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, form)
}

// List godoc
// @Summary List clearance forms
// @Tags Forms
// @Produce json
// @Param type query string false "Form type"
// @Param status query string false "Comma separated statuses"
// @Param semester query string false "Semester"
// @Param academic_year query string false "Academic year"
// @Param student_id query string false "Student filter (staff only)"
// @Param page query int false "Page"
// @Param per_page query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /forms [get]
func (h *FormHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	query := dto.FormQuery{
		StudentID:    strings.TrimSpace(c.Query("student_id")),
		Type:         models.FormType(strings.ToLower(c.Query("type"))),
		Semester:     strings.TrimSpace(c.Query("semester")),
		AcademicYear: strings.TrimSpace(c.Query("academic_year")),
		Page:         queryInt(c, "page"),
		PerPage:      queryInt(c, "per_page"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.FormStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.FormStatus(part))
		}
		query.Status = statuses
	}

	// Students only ever see their own forms.
	if claims.Role == models.RoleStudent {
		query.StudentID = claims.UserID
	}

	forms, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, forms, pagination)
}

// Get godoc
// @Summary Form detail with per-office signing status
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forms/{id} [get]
func (h *FormHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	detail, err := h.service.Detail(c.Request.Context(), c.Param("id"), actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Resubmit godoc
// @Summary Resubmit a disapproved form
// @Tags Forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /forms/{id}/resubmit [post]
func (h *FormHandler) Resubmit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	resp, err := h.service.Resubmit(c.Request.Context(), c.Param("id"), actorFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resp, nil)
}

func queryInt(c *gin.Context, name string) int {
	raw := c.Query(name)
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
