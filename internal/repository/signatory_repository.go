package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/campus-ops/clearance-api/internal/models"
)

const assignmentColumns = `id, user_id, office_role, active, created_at`

// SignatoryRepository resolves office roles to accountable users.
type SignatoryRepository struct {
	db *sqlx.DB
}

// NewSignatoryRepository constructs the repository.
func NewSignatoryRepository(db *sqlx.DB) *SignatoryRepository {
	return &SignatoryRepository{db: db}
}

// ActiveByRole returns the active assignment for an office role, or nil when
// the office is vacant.
func (r *SignatoryRepository) ActiveByRole(ctx context.Context, role models.OfficeRole) (*models.SignatoryAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM signatory_assignments
	WHERE office_role = $1 AND active = TRUE
	ORDER BY created_at DESC LIMIT 1`
	var assignment models.SignatoryAssignment
	err := r.db.GetContext(ctx, &assignment, query, role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve office role: %w", err)
	}
	return &assignment, nil
}

// ActiveByUser returns the user's active assignment, or nil when the user
// holds no office.
func (r *SignatoryRepository) ActiveByUser(ctx context.Context, userID string) (*models.SignatoryAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM signatory_assignments
	WHERE user_id = $1 AND active = TRUE
	ORDER BY created_at DESC LIMIT 1`
	var assignment models.SignatoryAssignment
	err := r.db.GetContext(ctx, &assignment, query, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve signatory assignment: %w", err)
	}
	return &assignment, nil
}

// ListActive returns every active assignment keyed by office role.
func (r *SignatoryRepository) ListActive(ctx context.Context) (map[models.OfficeRole]models.SignatoryAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM signatory_assignments WHERE active = TRUE`
	var assignments []models.SignatoryAssignment
	if err := r.db.SelectContext(ctx, &assignments, query); err != nil {
		return nil, fmt.Errorf("list active assignments: %w", err)
	}
	byRole := make(map[models.OfficeRole]models.SignatoryAssignment, len(assignments))
	for _, a := range assignments {
		byRole[a.OfficeRole] = a
	}
	return byRole, nil
}
