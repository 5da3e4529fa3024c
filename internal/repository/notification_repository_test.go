package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/campus-ops/clearance-api/internal/models"
)

func TestNotificationRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	n := &models.Notification{
		RecipientID: "student-1",
		FormID:      "form-1",
		Kind:        models.NotificationFormCompleted,
		Title:       "Clearance approved",
		Body:        "All offices have signed.",
	}
	require.NoError(t, repo.Create(context.Background(), n))
	require.NotEmpty(t, n.ID)
	require.Equal(t, models.PriorityNormal, n.Priority)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryExistsSimilar(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	since := time.Now().Add(-10 * time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("student-1", "form-1", "form_completed", nil, since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsSimilar(context.Background(), "student-1", "form-1", models.NotificationFormCompleted, nil, since)
	require.NoError(t, err)
	require.True(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryExistsSimilarScopedToOffice(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	since := time.Now().Add(-10 * time.Minute)
	role := models.OfficeCashier

	mock.ExpectQuery(regexp.QuoteMeta("office_role IS NOT DISTINCT FROM $4")).
		WithArgs("student-1", "form-1", "form_disapproved", "cashier", since).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	exists, err := repo.ExistsSimilar(context.Background(), "student-1", "form-1", models.NotificationFormDisapproved, &role, since)
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkRead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.MarkRead(context.Background(), "student-1", []string{"n-1", "n-2"})
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, mock.ExpectationsWereMet())

	n, err = repo.MarkRead(context.Background(), "student-1", nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
