package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/campus-ops/clearance-api/internal/models"
)

// SlotRepository serves read paths over form slots that need no form lock.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// ListByForm returns all materialised slots on a form.
func (r *SlotRepository) ListByForm(ctx context.Context, formID string) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM form_slots WHERE form_id = $1 ORDER BY created_at ASC`
	var slots []models.Slot
	if err := r.db.SelectContext(ctx, &slots, query, formID); err != nil {
		return nil, fmt.Errorf("list slots by form: %w", err)
	}
	return slots, nil
}

// GetByID fetches a slot by identifier.
func (r *SlotRepository) GetByID(ctx context.Context, id string) (*models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM form_slots WHERE id = $1`
	var slot models.Slot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// PendingFormsFor returns open forms the signatory has not decided yet,
// oldest submissions first, restricted to the form types whose roster
// includes the signatory's office. Forms where the signatory already holds a
// decided slot are excluded; a pending materialised slot still qualifies.
func (r *SlotRepository) PendingFormsFor(ctx context.Context, signatoryID string, formTypes []models.FormType, limit, offset int) ([]models.Form, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + prefixColumns("f", formColumns) + ` FROM forms f
	LEFT JOIN form_slots s ON s.form_id = f.id AND s.signatory_id = $1
	WHERE f.status IN ('pending', 'in_progress')
	AND f.form_type = ANY($2)
	AND (s.id IS NULL OR s.status = 'pending')
	ORDER BY f.submitted_at ASC
	LIMIT $3 OFFSET $4`
	var forms []models.Form
	if err := r.db.SelectContext(ctx, &forms, query, signatoryID, formTypeArray(formTypes), limit, offset); err != nil {
		return nil, fmt.Errorf("list pending forms: %w", err)
	}
	return forms, nil
}

// CountPendingFor returns the size of a signatory's work queue.
func (r *SlotRepository) CountPendingFor(ctx context.Context, signatoryID string, formTypes []models.FormType) (int, error) {
	const query = `SELECT COUNT(*) FROM forms f
	LEFT JOIN form_slots s ON s.form_id = f.id AND s.signatory_id = $1
	WHERE f.status IN ('pending', 'in_progress')
	AND f.form_type = ANY($2)
	AND (s.id IS NULL OR s.status = 'pending')`
	var count int
	if err := r.db.GetContext(ctx, &count, query, signatoryID, formTypeArray(formTypes)); err != nil {
		return 0, fmt.Errorf("count pending forms: %w", err)
	}
	return count, nil
}

func formTypeArray(types []models.FormType) pq.StringArray {
	arr := make(pq.StringArray, len(types))
	for i, t := range types {
		arr[i] = string(t)
	}
	return arr
}

// DecidedCountsByOffice counts decided slots per office across open forms.
// Feeds the pending-by-office report.
func (r *SlotRepository) DecidedCountsByOffice(ctx context.Context) (map[models.OfficeRole]int, error) {
	const query = `SELECT s.office_role, COUNT(*) AS total FROM form_slots s
	JOIN forms f ON f.id = s.form_id
	WHERE f.status IN ('pending', 'in_progress') AND s.status <> 'pending'
	GROUP BY s.office_role`
	rows := []struct {
		OfficeRole models.OfficeRole `db:"office_role"`
		Total      int               `db:"total"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("count decided slots by office: %w", err)
	}
	counts := make(map[models.OfficeRole]int, len(rows))
	for _, row := range rows {
		counts[row.OfficeRole] = row.Total
	}
	return counts, nil
}

// MarkSeen flags the signatory's slot on a form as viewed.
func (r *SlotRepository) MarkSeen(ctx context.Context, formID, signatoryID string) error {
	const query = `UPDATE form_slots SET seen = TRUE, updated_at = $3 WHERE form_id = $1 AND signatory_id = $2`
	if _, err := r.db.ExecContext(ctx, query, formID, signatoryID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark slot seen: %w", err)
	}
	return nil
}
