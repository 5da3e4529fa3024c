package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-ops/clearance-api/internal/models"
)

const notificationColumns = `id, recipient_id, form_id, kind, priority, signatory_id, office_role, title, body, action_deadline, settlement_period, read, email_sent, created_at`

// NotificationRepository persists transition notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications
	(id, recipient_id, form_id, kind, priority, signatory_id, office_role, title, body, action_deadline, settlement_period, read, email_sent, created_at)
	VALUES (:id, :recipient_id, :form_id, :kind, :priority, :signatory_id, :office_role, :title, :body, :action_deadline, :settlement_period, :read, :email_sent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ExistsSimilar reports whether an equivalent notification was already
// written for the recipient within the lookback window. Dedup is scoped to
// the originating office so two offices disapproving back to back both reach
// the student.
func (r *NotificationRepository) ExistsSimilar(ctx context.Context, recipientID, formID string, kind models.NotificationKind, officeRole *models.OfficeRole, since time.Time) (bool, error) {
	const query = `SELECT EXISTS (
		SELECT 1 FROM notifications
		WHERE recipient_id = $1 AND form_id = $2 AND kind = $3
		AND office_role IS NOT DISTINCT FROM $4
		AND created_at >= $5
	)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, recipientID, formID, kind, officeRole, since); err != nil {
		return false, fmt.Errorf("check similar notification: %w", err)
	}
	return exists, nil
}

// List returns the recipient's notifications, newest first.
func (r *NotificationRepository) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + notificationColumns + ` FROM notifications`)

	conditions := make([]string, 0, 3)
	if filter.RecipientID != "" {
		args = append(args, filter.RecipientID)
		conditions = append(conditions, fmt.Sprintf("recipient_id = $%d", len(args)))
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "read = FALSE")
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// Count returns the number of notifications matching the filter.
func (r *NotificationRepository) Count(ctx context.Context, filter models.NotificationFilter) (int, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT COUNT(*) FROM notifications`)

	conditions := make([]string, 0, 3)
	if filter.RecipientID != "" {
		args = append(args, filter.RecipientID)
		conditions = append(conditions, fmt.Sprintf("recipient_id = $%d", len(args)))
	}
	if filter.UnreadOnly {
		conditions = append(conditions, "read = FALSE")
	}
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var count int
	if err := r.db.GetContext(ctx, &count, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// MarkRead flags the recipient's notifications as read.
func (r *NotificationRepository) MarkRead(ctx context.Context, recipientID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`UPDATE notifications SET read = TRUE WHERE recipient_id = ? AND id IN (?)`, recipientID, ids)
	if err != nil {
		return 0, fmt.Errorf("build mark read query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark notifications read result: %w", err)
	}
	return int(n), nil
}

// UnreadCount returns the recipient's unread badge count.
func (r *NotificationRepository) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	const query = `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND read = FALSE`
	var count int
	if err := r.db.GetContext(ctx, &count, query, recipientID); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// MarkEmailSent records that the email copy went out.
func (r *NotificationRepository) MarkEmailSent(ctx context.Context, id string) error {
	const query = `UPDATE notifications SET email_sent = TRUE WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("mark email sent: %w", err)
	}
	return nil
}
