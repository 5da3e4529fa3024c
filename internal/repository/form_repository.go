package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-ops/clearance-api/internal/models"
)

const formColumns = `id, student_id, form_type, semester, academic_year, section, status, submitted_at, updated_at, finalized_at`

// FormRepository persists clearance forms.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository constructs the repository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

// Create inserts a new form row.
func (r *FormRepository) Create(ctx context.Context, form *models.Form) error {
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if form.Status == "" {
		form.Status = models.FormStatusPending
	}
	now := time.Now().UTC()
	if form.SubmittedAt.IsZero() {
		form.SubmittedAt = now
	}
	form.UpdatedAt = now
	const query = `INSERT INTO forms
	(id, student_id, form_type, semester, academic_year, section, status, submitted_at, updated_at, finalized_at)
	VALUES (:id, :student_id, :form_type, :semester, :academic_year, :section, :status, :submitted_at, :updated_at, :finalized_at)`
	if _, err := r.db.NamedExecContext(ctx, query, form); err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	return nil
}

// GetByID fetches a form by identifier.
func (r *FormRepository) GetByID(ctx context.Context, id string) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE id = $1`
	var form models.Form
	if err := r.db.GetContext(ctx, &form, query, id); err != nil {
		return nil, err
	}
	return &form, nil
}

// FindOpen returns the student's non-finalized form of the given type for the
// period, or nil when none exists.
func (r *FormRepository) FindOpen(ctx context.Context, studentID string, formType models.FormType, semester, academicYear string) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms
	WHERE student_id = $1 AND form_type = $2 AND semester = $3 AND academic_year = $4
	AND status IN ('pending', 'in_progress')
	ORDER BY submitted_at DESC LIMIT 1`
	var form models.Form
	err := r.db.GetContext(ctx, &form, query, studentID, formType, semester, academicYear)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open form: %w", err)
	}
	return &form, nil
}

// List returns forms matching the filter (latest submissions first).
func (r *FormRepository) List(ctx context.Context, filter models.FormFilter) ([]models.Form, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + formColumns + ` FROM forms`)

	conditions := buildFormConditions(filter, &args)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var forms []models.Form
	if err := r.db.SelectContext(ctx, &forms, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	return forms, nil
}

// Count returns the number of forms matching the filter.
func (r *FormRepository) Count(ctx context.Context, filter models.FormFilter) (int, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT COUNT(*) FROM forms`)

	conditions := buildFormConditions(filter, &args)
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}

	var count int
	if err := r.db.GetContext(ctx, &count, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count forms: %w", err)
	}
	return count, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func buildFormConditions(filter models.FormFilter, args *[]interface{}) []string {
	conditions := make([]string, 0, 5)
	if filter.StudentID != "" {
		*args = append(*args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(*args)))
	}
	if filter.Type != "" {
		*args = append(*args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("form_type = $%d", len(*args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			*args = append(*args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(*args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Semester != "" {
		*args = append(*args, filter.Semester)
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(*args)))
	}
	if filter.AcademicYear != "" {
		*args = append(*args, filter.AcademicYear)
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(*args)))
	}
	return conditions
}
