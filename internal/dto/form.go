package dto

import (
	"time"

	"github.com/campus-ops/clearance-api/internal/models"
)

// SubmitFormRequest payload for opening a new clearance form.
type SubmitFormRequest struct {
	Type         models.FormType `json:"type" validate:"required"`
	Semester     string          `json:"semester" validate:"required"`
	AcademicYear string          `json:"academic_year"`
	Section      string          `json:"section"`
}

// FormQuery mirrors supported listing filters.
type FormQuery struct {
	StudentID    string
	Type         models.FormType
	Status       []models.FormStatus
	Semester     string
	AcademicYear string
	Page         int
	PerPage      int
}

// FormDetail combines a form with its per-office signing progress.
type FormDetail struct {
	Form       models.Form                `json:"form"`
	Signatures []models.VirtualSlotStatus `json:"signatures"`
	// Counts summarises the roster: decided offices over required offices.
	Counts FormProgress `json:"counts"`
}

// FormProgress summarises how far along the roster a form is.
type FormProgress struct {
	Required    int `json:"required"`
	Approved    int `json:"approved"`
	Disapproved int `json:"disapproved"`
	Pending     int `json:"pending"`
}

// ResubmitFormResponse reports the slots cleared on resubmission.
type ResubmitFormResponse struct {
	Form          models.Form `json:"form"`
	ClearedSlots  int         `json:"cleared_slots"`
	ResubmittedAt time.Time   `json:"resubmitted_at"`
}
