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

const decisionLogColumns = `id, form_id, slot_id, signatory_id, office_role, decision, remarks, ip_address, request_id, created_at`

// AuditRepository records signatory decisions for activity reporting.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Insert writes a decision log entry.
func (r *AuditRepository) Insert(ctx context.Context, entry *models.DecisionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO decision_logs
	(id, form_id, slot_id, signatory_id, office_role, decision, remarks, ip_address, request_id, created_at)
	VALUES (:id, :form_id, :slot_id, :signatory_id, :office_role, :decision, :remarks, :ip_address, :request_id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert decision log: %w", err)
	}
	return nil
}

// List returns log entries matching the filter, newest first.
func (r *AuditRepository) List(ctx context.Context, filter models.DecisionLogFilter) ([]models.DecisionLog, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 5)
	builder.WriteString(`SELECT ` + decisionLogColumns + ` FROM decision_logs`)

	conditions := make([]string, 0, 5)
	if filter.FormID != "" {
		args = append(args, filter.FormID)
		conditions = append(conditions, fmt.Sprintf("form_id = $%d", len(args)))
	}
	if filter.SignatoryID != "" {
		args = append(args, filter.SignatoryID)
		conditions = append(conditions, fmt.Sprintf("signatory_id = $%d", len(args)))
	}
	if filter.OfficeRole != "" {
		args = append(args, filter.OfficeRole)
		conditions = append(conditions, fmt.Sprintf("office_role = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.DecisionLog
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list decision logs: %w", err)
	}
	return entries, nil
}

// CountByOffice aggregates decisions per office within the window. Used by
// the office activity report.
func (r *AuditRepository) CountByOffice(ctx context.Context, from, to time.Time) (map[models.OfficeRole]int, error) {
	const query = `SELECT office_role, COUNT(*) AS total FROM decision_logs
	WHERE created_at >= $1 AND created_at < $2
	GROUP BY office_role`
	rows := []struct {
		OfficeRole models.OfficeRole `db:"office_role"`
		Total      int               `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, from, to); err != nil {
		return nil, fmt.Errorf("count decisions by office: %w", err)
	}
	counts := make(map[models.OfficeRole]int, len(rows))
	for _, row := range rows {
		counts[row.OfficeRole] = row.Total
	}
	return counts, nil
}
