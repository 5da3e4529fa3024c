package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-ops/clearance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func formRows(id string, status models.FormStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "form_type", "semester", "academic_year", "section", "status", "submitted_at", "updated_at", "finalized_at"}).
		AddRow(id, "student-1", "clearance", "1st", "2025-2026", nil, string(status), time.Now(), time.Now(), nil)
}

func slotRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "form_id", "signatory_id", "office_role", "status", "remarks", "ip_address", "seen", "created_at", "updated_at"})
}

func TestWorkflowRepositoryRunFormTxCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("form-1").
		WillReturnRows(formRows("form-1", models.FormStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE forms SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.RunFormTx(context.Background(), "form-1", func(ctx context.Context, tx FormTx) error {
		require.Equal(t, "form-1", tx.Form().ID)
		return tx.SetFormStatus(ctx, models.FormStatusInProgress, nil)
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowRepositoryRunFormTxRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("form-1").
		WillReturnRows(formRows("form-1", models.FormStatusPending))
	mock.ExpectRollback()

	sentinel := context.DeadlineExceeded
	err := repo.RunFormTx(context.Background(), "form-1", func(ctx context.Context, tx FormTx) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowTxGetOrCreateSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("form-1").
		WillReturnRows(formRows("form-1", models.FormStatusPending))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_slots")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM form_slots WHERE form_id")).
		WithArgs("form-1", "sig-1").
		WillReturnRows(slotRows().
			AddRow("slot-1", "form-1", "sig-1", "registrar", "pending", nil, nil, false, time.Now(), time.Now()))
	mock.ExpectCommit()

	err := repo.RunFormTx(context.Background(), "form-1", func(ctx context.Context, tx FormTx) error {
		slot, created, err := tx.GetOrCreateSlot(ctx, "sig-1", models.OfficeRegistrar)
		require.NoError(t, err)
		require.True(t, created)
		require.Equal(t, models.SlotStatusPending, slot.Status)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowTxGetOrCreateSlotExisting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("form-1").
		WillReturnRows(formRows("form-1", models.FormStatusInProgress))
	// Conflict path: the insert touches no rows and the select reads the
	// existing record.
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO form_slots")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM form_slots WHERE form_id")).
		WithArgs("form-1", "sig-1").
		WillReturnRows(slotRows().
			AddRow("slot-1", "form-1", "sig-1", "registrar", "approved", nil, nil, true, time.Now(), time.Now()))
	mock.ExpectCommit()

	err := repo.RunFormTx(context.Background(), "form-1", func(ctx context.Context, tx FormTx) error {
		slot, created, err := tx.GetOrCreateSlot(ctx, "sig-1", models.OfficeRegistrar)
		require.NoError(t, err)
		require.False(t, created)
		require.Equal(t, models.SlotStatusApproved, slot.Status)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWorkflowTxApplyDecisionGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewWorkflowRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("form-1").
		WillReturnRows(formRows("form-1", models.FormStatusInProgress))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE form_slots")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.RunFormTx(context.Background(), "form-1", func(ctx context.Context, tx FormTx) error {
		applied, err := tx.ApplyDecision(ctx, "slot-1", models.SlotStatusApproved, nil, nil)
		require.NoError(t, err)
		require.False(t, applied)
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
