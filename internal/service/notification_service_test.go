package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/pkg/config"
	"github.com/campus-ops/clearance-api/pkg/jobs"
	"github.com/campus-ops/clearance-api/pkg/mailer"
)

type notificationRepoStub struct {
	notifications []*models.Notification
	emailSent     []string
	seq           int
}

func (r *notificationRepoStub) Create(ctx context.Context, n *models.Notification) error {
	r.seq++
	if n.ID == "" {
		n.ID = fmt.Sprintf("notif-%d", r.seq)
	}
	copy := *n
	r.notifications = append(r.notifications, &copy)
	return nil
}

func (r *notificationRepoStub) ExistsSimilar(ctx context.Context, recipientID, formID string, kind models.NotificationKind, officeRole *models.OfficeRole, since time.Time) (bool, error) {
	for _, n := range r.notifications {
		if n.RecipientID != recipientID || n.FormID != formID || n.Kind != kind || n.CreatedAt.Before(since) {
			continue
		}
		if sameOffice(n.OfficeRole, officeRole) {
			return true, nil
		}
	}
	return false, nil
}

func sameOffice(a, b *models.OfficeRole) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (r *notificationRepoStub) List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error) {
	result := make([]models.Notification, 0, len(r.notifications))
	for _, n := range r.notifications {
		if filter.RecipientID != "" && n.RecipientID != filter.RecipientID {
			continue
		}
		if filter.UnreadOnly && n.Read {
			continue
		}
		result = append(result, *n)
	}
	return result, nil
}

func (r *notificationRepoStub) Count(ctx context.Context, filter models.NotificationFilter) (int, error) {
	list, _ := r.List(ctx, filter)
	return len(list), nil
}

func (r *notificationRepoStub) MarkRead(ctx context.Context, recipientID string, ids []string) (int, error) {
	marked := 0
	for _, n := range r.notifications {
		if n.RecipientID != recipientID {
			continue
		}
		for _, id := range ids {
			if n.ID == id && !n.Read {
				n.Read = true
				marked++
			}
		}
	}
	return marked, nil
}

func (r *notificationRepoStub) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	count := 0
	for _, n := range r.notifications {
		if n.RecipientID == recipientID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *notificationRepoStub) MarkEmailSent(ctx context.Context, id string) error {
	r.emailSent = append(r.emailSent, id)
	return nil
}

type userReaderStub struct {
	users map[string]*models.User
}

func (u *userReaderStub) GetByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := u.users[id]; ok {
		return user, nil
	}
	return nil, fmt.Errorf("user %s not found", id)
}

type emailQueueStub struct {
	jobs []jobs.Job
}

func (q *emailQueueStub) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type mailerStub struct {
	sent []mailer.Message
}

func (m *mailerStub) Send(ctx context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

func testForm() models.Form {
	return models.Form{
		ID:           "form-1",
		StudentID:    "student-1",
		Type:         models.FormTypeClearance,
		Semester:     "1st",
		AcademicYear: "2025-2026",
		Status:       models.FormStatusInProgress,
	}
}

// officeActor builds the transition attribution a decision would carry.
func officeActor(role models.OfficeRole, remarks string) *TransitionActor {
	actor := &TransitionActor{SignatoryID: "sig-" + string(role), Role: role}
	if remarks != "" {
		actor.Remarks = &remarks
	}
	return actor
}

func TestNotificationServiceTransitionDisapproved(t *testing.T) {
	repo := &notificationRepoStub{}
	svc := NewNotificationService(repo, nil, nil,
		config.NotificationsConfig{DedupWindow: 10 * time.Minute},
		config.WorkflowConfig{SettlementDays: 7}, nil)

	actor := officeActor(models.OfficeCashier, "unpaid balance")
	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusInProgress, models.FormStatusDisapproved, actor)

	require.Len(t, repo.notifications, 1)
	n := repo.notifications[0]
	require.Equal(t, models.NotificationFormDisapproved, n.Kind)
	require.Equal(t, models.PriorityHigh, n.Priority)
	require.NotNil(t, n.ActionDeadline)
	require.NotNil(t, n.SettlementPeriod)
	require.Equal(t, "7 days", *n.SettlementPeriod)

	// The message names the deciding office and carries its remarks.
	require.Contains(t, n.Body, "Cashier")
	require.Contains(t, n.Body, "Reason: unpaid balance.")
	require.NotNil(t, n.OfficeRole)
	require.Equal(t, models.OfficeCashier, *n.OfficeRole)
	require.NotNil(t, n.SignatoryID)
	require.Equal(t, "sig-cashier", *n.SignatoryID)
}

func TestNotificationServiceDisapprovedNamesSignatory(t *testing.T) {
	repo := &notificationRepoStub{}
	users := &userReaderStub{users: map[string]*models.User{
		"sig-cashier": {ID: "sig-cashier", FullName: "Maria Santos"},
	}}
	svc := NewNotificationService(repo, users, nil,
		config.NotificationsConfig{}, config.WorkflowConfig{SettlementDays: 7}, nil)

	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusInProgress, models.FormStatusDisapproved,
		officeActor(models.OfficeCashier, ""))

	require.Len(t, repo.notifications, 1)
	require.Contains(t, repo.notifications[0].Body, "The Cashier (Maria Santos)")
}

func TestNotificationServiceTransitionIgnoresIntermediate(t *testing.T) {
	repo := &notificationRepoStub{}
	svc := NewNotificationService(repo, nil, nil,
		config.NotificationsConfig{}, config.WorkflowConfig{}, nil)

	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusPending, models.FormStatusInProgress, nil)
	require.Empty(t, repo.notifications)
}

func TestNotificationServiceDedupWindow(t *testing.T) {
	repo := &notificationRepoStub{}
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	current := base
	svc := NewNotificationService(repo, nil, nil,
		config.NotificationsConfig{DedupWindow: 10 * time.Minute},
		config.WorkflowConfig{SettlementDays: 7}, nil,
		WithNotificationClock(func() time.Time { return current }))

	actor := officeActor(models.OfficeCashier, "unpaid balance")
	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusInProgress, models.FormStatusDisapproved, actor)
	require.Len(t, repo.notifications, 1)

	// Inside the window the duplicate from the same office is suppressed.
	current = base.Add(5 * time.Minute)
	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusInProgress, models.FormStatusDisapproved, actor)
	require.Len(t, repo.notifications, 1)

	// Past the window it goes through again.
	current = base.Add(11 * time.Minute)
	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusInProgress, models.FormStatusDisapproved, actor)
	require.Len(t, repo.notifications, 2)
}

func TestNotificationServiceDedupScopedToOffice(t *testing.T) {
	repo := &notificationRepoStub{}
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	current := base
	svc := NewNotificationService(repo, nil, nil,
		config.NotificationsConfig{DedupWindow: 10 * time.Minute},
		config.WorkflowConfig{SettlementDays: 7}, nil,
		WithNotificationClock(func() time.Time { return current }))

	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusInProgress, models.FormStatusDisapproved,
		officeActor(models.OfficeCashier, "unpaid balance"))
	require.Len(t, repo.notifications, 1)

	// A second office disapproving inside the window is a distinct event,
	// not a duplicate.
	current = base.Add(2 * time.Minute)
	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusDisapproved, models.FormStatusDisapproved,
		officeActor(models.OfficeRegistrar, "missing grades"))
	require.Len(t, repo.notifications, 2)
	require.Equal(t, models.OfficeCashier, *repo.notifications[0].OfficeRole)
	require.Equal(t, models.OfficeRegistrar, *repo.notifications[1].OfficeRole)
}

func TestNotificationServiceEmailEnqueue(t *testing.T) {
	repo := &notificationRepoStub{}
	queue := &emailQueueStub{}
	svc := NewNotificationService(repo, nil, nil,
		config.NotificationsConfig{EmailEnabled: true},
		config.WorkflowConfig{}, nil,
		WithEmailQueue(queue))

	svc.NotifyTransition(context.Background(), testForm(), models.FormStatusInProgress, models.FormStatusApproved,
		officeActor(models.OfficeAcademicDean, ""))

	require.Len(t, repo.notifications, 1)
	require.Len(t, queue.jobs, 1)
	require.Equal(t, EmailJobType, queue.jobs[0].Type)

	payload, ok := queue.jobs[0].Payload.(EmailJobPayload)
	require.True(t, ok)
	require.Equal(t, "student-1", payload.RecipientID)
	require.Equal(t, repo.notifications[0].ID, payload.NotificationID)
}

func TestNotificationServiceHandleEmailJob(t *testing.T) {
	repo := &notificationRepoStub{}
	mail := &mailerStub{}
	users := &userReaderStub{users: map[string]*models.User{
		"student-1": {ID: "student-1", FullName: "Juan Cruz", Email: "juan@example.edu"},
	}}
	svc := NewNotificationService(repo, users, mail,
		config.NotificationsConfig{EmailEnabled: true},
		config.WorkflowConfig{}, nil)

	err := svc.HandleEmailJob(context.Background(), jobs.Job{
		ID:   "notif-1",
		Type: EmailJobType,
		Payload: EmailJobPayload{
			NotificationID: "notif-1",
			RecipientID:    "student-1",
			Subject:        "Clearance form approved",
			Body:           "All offices have signed off.",
		},
	})
	require.NoError(t, err)
	require.Len(t, mail.sent, 1)
	require.Equal(t, "juan@example.edu", mail.sent[0].ToAddress)
	require.Equal(t, []string{"notif-1"}, repo.emailSent)
}

func TestNotificationServiceMarkReadValidation(t *testing.T) {
	repo := &notificationRepoStub{}
	svc := NewNotificationService(repo, nil, nil,
		config.NotificationsConfig{}, config.WorkflowConfig{}, nil)

	_, err := svc.MarkRead(context.Background(), "student-1", nil)
	require.Error(t, err)
}
