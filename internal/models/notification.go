package models

import "time"

// NotificationKind enumerates transition events delivered to users.
type NotificationKind string

const (
	NotificationFormSubmitted   NotificationKind = "form_submitted"
	NotificationFormDisapproved NotificationKind = "form_disapproved"
	NotificationFormCompleted   NotificationKind = "form_completed"
)

// NotificationPriority orders notifications in the recipient's inbox.
type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is a persisted transition event addressed to one user.
type Notification struct {
	ID               string               `db:"id" json:"id"`
	RecipientID      string               `db:"recipient_id" json:"recipient_id"`
	FormID           string               `db:"form_id" json:"form_id"`
	Kind             NotificationKind     `db:"kind" json:"kind"`
	Priority         NotificationPriority `db:"priority" json:"priority"`
	SignatoryID      *string              `db:"signatory_id" json:"signatory_id,omitempty"`
	OfficeRole       *OfficeRole          `db:"office_role" json:"office_role,omitempty"`
	Title            string               `db:"title" json:"title"`
	Body             string               `db:"body" json:"body"`
	ActionDeadline   *time.Time           `db:"action_deadline" json:"action_deadline,omitempty"`
	SettlementPeriod *string              `db:"settlement_period" json:"settlement_period,omitempty"`
	Read             bool                 `db:"read" json:"read"`
	EmailSent        bool                 `db:"email_sent" json:"email_sent"`
	CreatedAt        time.Time            `db:"created_at" json:"created_at"`
}

// NotificationFilter constrains inbox queries.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Kind        NotificationKind
	Limit       int
	Offset      int
}
