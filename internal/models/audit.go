package models

import "time"

// DecisionLog records every decision a signatory makes, for audit trails and
// office activity reports.
type DecisionLog struct {
	ID          string     `db:"id" json:"id"`
	FormID      string     `db:"form_id" json:"form_id"`
	SlotID      string     `db:"slot_id" json:"slot_id"`
	SignatoryID string     `db:"signatory_id" json:"signatory_id"`
	OfficeRole  OfficeRole `db:"office_role" json:"office_role"`
	Decision    Decision   `db:"decision" json:"decision"`
	Remarks     *string    `db:"remarks" json:"remarks,omitempty"`
	IPAddress   *string    `db:"ip_address" json:"ip_address,omitempty"`
	RequestID   *string    `db:"request_id" json:"request_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// DecisionLogFilter constrains audit queries.
type DecisionLogFilter struct {
	FormID      string
	SignatoryID string
	OfficeRole  OfficeRole
	From        *time.Time
	To          *time.Time
	Limit       int
	Offset      int
}
