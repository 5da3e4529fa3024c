package dto

// NotificationQuery mirrors inbox listing filters.
type NotificationQuery struct {
	UnreadOnly bool
	Kind       string
	Page       int
	PerPage    int
}

// MarkReadRequest marks a set of notifications as read.
type MarkReadRequest struct {
	IDs []string `json:"ids" validate:"required,min=1"`
}

// UnreadCountResponse returns the recipient's unread badge count.
type UnreadCountResponse struct {
	Unread int `json:"unread"`
}
