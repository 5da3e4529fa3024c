package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MaintenanceRepository repairs slot data damaged before the unique index
// existed or by out-of-band writes.
type MaintenanceRepository struct {
	db *sqlx.DB
}

// NewMaintenanceRepository constructs the repository.
func NewMaintenanceRepository(db *sqlx.DB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

// RemoveDuplicateSlots deletes surplus slots sharing a (form, signatory)
// pair, keeping the earliest created row. Returns affected form IDs and the
// number of rows removed.
func (r *MaintenanceRepository) RemoveDuplicateSlots(ctx context.Context) ([]string, int, error) {
	const query = `DELETE FROM form_slots
	WHERE id IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (
				PARTITION BY form_id, signatory_id ORDER BY created_at ASC, id ASC
			) AS rn
			FROM form_slots
		) ranked
		WHERE ranked.rn > 1
	)
	RETURNING form_id`
	var formIDs []string
	if err := r.db.SelectContext(ctx, &formIDs, query); err != nil {
		return nil, 0, fmt.Errorf("remove duplicate slots: %w", err)
	}
	return dedupeStrings(formIDs), len(formIDs), nil
}

// RemoveOrphanSlots deletes slots whose form or signatory no longer exists.
// Returns affected form IDs and the number of rows removed.
func (r *MaintenanceRepository) RemoveOrphanSlots(ctx context.Context) ([]string, int, error) {
	const query = `DELETE FROM form_slots s
	WHERE NOT EXISTS (SELECT 1 FROM forms f WHERE f.id = s.form_id)
	OR NOT EXISTS (SELECT 1 FROM users u WHERE u.id = s.signatory_id)
	RETURNING s.form_id`
	var formIDs []string
	if err := r.db.SelectContext(ctx, &formIDs, query); err != nil {
		return nil, 0, fmt.Errorf("remove orphan slots: %w", err)
	}
	return dedupeStrings(formIDs), len(formIDs), nil
}

// OpenFormIDs lists forms still in the workflow, for full-recompute sweeps.
func (r *MaintenanceRepository) OpenFormIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM forms WHERE status IN ('pending', 'in_progress')`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list open forms: %w", err)
	}
	return ids, nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
