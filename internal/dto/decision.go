package dto

import (
	"time"

	"github.com/campus-ops/clearance-api/internal/models"
)

// DecideRequest records a signatory's verdict on a form.
type DecideRequest struct {
	Decision models.Decision `json:"decision" validate:"required"`
	Remarks  string          `json:"remarks"`
}

// DecideResponse returns the slot outcome plus the resulting form aggregate.
type DecideResponse struct {
	Slot       models.Slot       `json:"slot"`
	FormStatus models.FormStatus `json:"form_status"`
	// Transitioned is set when this decision finalized the form.
	Transitioned bool       `json:"transitioned"`
	DecidedAt    time.Time  `json:"decided_at"`
	FinalizedAt  *time.Time `json:"finalized_at,omitempty"`
}

// PendingQueueItem is one entry in a signatory's work queue.
type PendingQueueItem struct {
	Form        models.Form       `json:"form"`
	StudentName string            `json:"student_name"`
	Slot        *models.Slot      `json:"slot,omitempty"`
	OfficeRole  models.OfficeRole `json:"office_role"`
	Status      models.SlotStatus `json:"status"`
}

// ResetSlotRequest clears a materialised slot back to pending (admin repair).
type ResetSlotRequest struct {
	Reason string `json:"reason" validate:"required"`
}
