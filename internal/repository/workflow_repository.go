package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-ops/clearance-api/internal/models"
)

const slotColumns = `id, form_id, signatory_id, office_role, status, remarks, ip_address, seen, created_at, updated_at`

// FormTx exposes slot and form operations scoped to a locked form. The SQL
// implementation is WorkflowTx; services stub it in tests.
type FormTx interface {
	Form() models.Form
	Slots(ctx context.Context) ([]models.Slot, error)
	GetOrCreateSlot(ctx context.Context, signatoryID string, role models.OfficeRole) (*models.Slot, bool, error)
	ApplyDecision(ctx context.Context, slotID string, status models.SlotStatus, remarks, ipAddress *string) (bool, error)
	SetFormStatus(ctx context.Context, status models.FormStatus, finalizedAt *time.Time) error
	ClearDisapprovedSlots(ctx context.Context) (int, error)
	ResetSlot(ctx context.Context, slotID string) (bool, error)
}

// WorkflowRepository serialises decision processing per form. Every mutation
// of a form's slot set happens inside RunFormTx, which locks the form row for
// the duration of the callback.
type WorkflowRepository struct {
	db *sqlx.DB
}

// NewWorkflowRepository constructs the repository.
func NewWorkflowRepository(db *sqlx.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// RunFormTx begins a transaction, locks the form row and invokes fn. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *WorkflowRepository) RunFormTx(ctx context.Context, formID string, fn func(ctx context.Context, tx FormTx) error) error {
	sqlTx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin workflow tx: %w", err)
	}

	query := `SELECT ` + formColumns + ` FROM forms WHERE id = $1 FOR UPDATE`
	var form models.Form
	if err := sqlTx.GetContext(ctx, &form, query, formID); err != nil {
		_ = sqlTx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("lock form: %w", err)
	}

	tx := &WorkflowTx{tx: sqlTx, form: form}
	if err := fn(ctx, tx); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit workflow tx: %w", err)
	}
	return nil
}

// WorkflowTx is the SQL-backed FormTx.
type WorkflowTx struct {
	tx   *sqlx.Tx
	form models.Form
}

// Form returns a copy of the locked form row as read at lock time.
func (t *WorkflowTx) Form() models.Form {
	return t.form
}

// Slots returns every materialised slot on the form.
func (t *WorkflowTx) Slots(ctx context.Context) ([]models.Slot, error) {
	query := `SELECT ` + slotColumns + ` FROM form_slots WHERE form_id = $1 ORDER BY created_at ASC`
	var slots []models.Slot
	if err := t.tx.SelectContext(ctx, &slots, query, t.form.ID); err != nil {
		return nil, fmt.Errorf("list form slots: %w", err)
	}
	return slots, nil
}

// GetOrCreateSlot materialises the signatory's slot if absent and returns it.
// The unique index on (form_id, signatory_id) makes concurrent creation safe:
// the insert is a no-op for the loser and the follow-up select reads the
// winner's row.
func (t *WorkflowTx) GetOrCreateSlot(ctx context.Context, signatoryID string, role models.OfficeRole) (*models.Slot, bool, error) {
	now := time.Now().UTC()
	insert := `INSERT INTO form_slots (id, form_id, signatory_id, office_role, status, seen, created_at, updated_at)
	VALUES ($1, $2, $3, $4, 'pending', FALSE, $5, $5)
	ON CONFLICT (form_id, signatory_id) DO NOTHING`
	res, err := t.tx.ExecContext(ctx, insert, uuid.NewString(), t.form.ID, signatoryID, role, now)
	if err != nil {
		return nil, false, fmt.Errorf("create form slot: %w", err)
	}
	created := false
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		created = true
	}

	query := `SELECT ` + slotColumns + ` FROM form_slots WHERE form_id = $1 AND signatory_id = $2`
	var slot models.Slot
	if err := t.tx.GetContext(ctx, &slot, query, t.form.ID, signatoryID); err != nil {
		return nil, false, fmt.Errorf("load form slot: %w", err)
	}
	return &slot, created, nil
}

// ApplyDecision moves a pending slot to the decided status. It returns false
// without error when the slot was no longer pending, which callers treat as a
// lost race.
func (t *WorkflowTx) ApplyDecision(ctx context.Context, slotID string, status models.SlotStatus, remarks, ipAddress *string) (bool, error) {
	const query = `UPDATE form_slots
	SET status = $2, remarks = $3, ip_address = $4, updated_at = $5
	WHERE id = $1 AND status = 'pending'`
	res, err := t.tx.ExecContext(ctx, query, slotID, status, remarks, ipAddress, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("apply decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("apply decision result: %w", err)
	}
	return n > 0, nil
}

// SetFormStatus updates the locked form's aggregate status. finalizedAt is
// cleared when nil.
func (t *WorkflowTx) SetFormStatus(ctx context.Context, status models.FormStatus, finalizedAt *time.Time) error {
	const query = `UPDATE forms SET status = $2, finalized_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := t.tx.ExecContext(ctx, query, t.form.ID, status, finalizedAt, time.Now().UTC()); err != nil {
		return fmt.Errorf("update form status: %w", err)
	}
	t.form.Status = status
	t.form.FinalizedAt = finalizedAt
	return nil
}

// ClearDisapprovedSlots deletes disapproved slots from the form so their
// offices return to pending. Used by resubmission.
func (t *WorkflowTx) ClearDisapprovedSlots(ctx context.Context) (int, error) {
	const query = `DELETE FROM form_slots WHERE form_id = $1 AND status = 'disapproved'`
	res, err := t.tx.ExecContext(ctx, query, t.form.ID)
	if err != nil {
		return 0, fmt.Errorf("clear disapproved slots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear disapproved slots result: %w", err)
	}
	return int(n), nil
}

// ResetSlot returns a materialised slot to pending (admin repair path).
func (t *WorkflowTx) ResetSlot(ctx context.Context, slotID string) (bool, error) {
	const query = `UPDATE form_slots
	SET status = 'pending', remarks = NULL, ip_address = NULL, updated_at = $2
	WHERE id = $1 AND form_id = $3`
	res, err := t.tx.ExecContext(ctx, query, slotID, time.Now().UTC(), t.form.ID)
	if err != nil {
		return false, fmt.Errorf("reset slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset slot result: %w", err)
	}
	return n > 0, nil
}
