package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestMaintenanceRepositoryRemoveDuplicateSlots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM form_slots")).
		WillReturnRows(sqlmock.NewRows([]string{"form_id"}).
			AddRow("form-1").
			AddRow("form-1").
			AddRow("form-2"))

	formIDs, removed, err := repo.RemoveDuplicateSlots(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, removed)
	require.Equal(t, []string{"form-1", "form-2"}, formIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRepositoryRemoveOrphanSlots(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewMaintenanceRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("DELETE FROM form_slots s")).
		WillReturnRows(sqlmock.NewRows([]string{"form_id"}))

	formIDs, removed, err := repo.RemoveOrphanSlots(context.Background())
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Empty(t, formIDs)
	require.NoError(t, mock.ExpectationsWereMet())
}
