package models

import "time"

// SlotStatus is the state of a single signatory's slot on a form.
type SlotStatus string

const (
	SlotStatusPending     SlotStatus = "pending"
	SlotStatusApproved    SlotStatus = "approved"
	SlotStatusDisapproved SlotStatus = "disapproved"
)

// Decision is the verdict a signatory records on a slot.
type Decision string

const (
	DecisionApprove    Decision = "approved"
	DecisionDisapprove Decision = "disapproved"
)

// ValidDecision reports whether the decision value is known.
func ValidDecision(d Decision) bool {
	return d == DecisionApprove || d == DecisionDisapprove
}

// SlotStatus converts a decision into the slot state it produces.
func (d Decision) SlotStatus() SlotStatus {
	if d == DecisionApprove {
		return SlotStatusApproved
	}
	return SlotStatusDisapproved
}

// Slot is a signatory's lazily materialised decision record on a form.
// At most one slot exists per (form, signatory) pair.
type Slot struct {
	ID          string     `db:"id" json:"id"`
	FormID      string     `db:"form_id" json:"form_id"`
	SignatoryID string     `db:"signatory_id" json:"signatory_id"`
	OfficeRole  OfficeRole `db:"office_role" json:"office_role"`
	Status      SlotStatus `db:"status" json:"status"`
	Remarks     *string    `db:"remarks" json:"remarks,omitempty"`
	IPAddress   *string    `db:"ip_address" json:"ip_address,omitempty"`
	Seen        bool       `db:"seen" json:"seen"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// VirtualSlotStatus is the per-office view of a form, synthesised for roster
// offices that have no materialised slot yet.
type VirtualSlotStatus struct {
	OfficeRole   OfficeRole `json:"office_role"`
	Status       SlotStatus `json:"status"`
	Remarks      *string    `json:"remarks,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
	SignatoryID  *string    `json:"signatory_id,omitempty"`
	Materialised bool       `json:"-"`
}
