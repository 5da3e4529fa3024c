package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/pkg/config"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
	"github.com/campus-ops/clearance-api/pkg/jobs"
	"github.com/campus-ops/clearance-api/pkg/mailer"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ExistsSimilar(ctx context.Context, recipientID, formID string, kind models.NotificationKind, officeRole *models.OfficeRole, since time.Time) (bool, error)
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, error)
	Count(ctx context.Context, filter models.NotificationFilter) (int, error)
	MarkRead(ctx context.Context, recipientID string, ids []string) (int, error)
	UnreadCount(ctx context.Context, recipientID string) (int, error)
	MarkEmailSent(ctx context.Context, id string) error
}

type userReader interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

type emailQueue interface {
	Enqueue(job jobs.Job) error
}

// NotificationService persists transition events and fans out email copies.
// Dispatch is best-effort: the engine's transaction has already committed by
// the time this runs, so failures are logged and dropped.
type NotificationService struct {
	repo   notificationStore
	users  userReader
	mail   mailer.Mailer
	queue  emailQueue
	cfg    config.NotificationsConfig
	wfCfg  config.WorkflowConfig
	logger *zap.Logger
	now    func() time.Time
}

// NotificationServiceOption configures the service.
type NotificationServiceOption func(*NotificationService)

// WithNotificationClock overrides time for tests.
func WithNotificationClock(now func() time.Time) NotificationServiceOption {
	return func(s *NotificationService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEmailQueue wires the asynchronous email dispatcher.
func WithEmailQueue(queue emailQueue) NotificationServiceOption {
	return func(s *NotificationService) { s.queue = queue }
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationStore, users userReader, mail mailer.Mailer, cfg config.NotificationsConfig, wfCfg config.WorkflowConfig, logger *zap.Logger, opts ...NotificationServiceOption) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{
		repo:   repo,
		users:  users,
		mail:   mail,
		cfg:    cfg,
		wfCfg:  wfCfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// NotifyTransition writes the student-facing notification for an aggregate
// status change. An equivalent notification from the same office inside the
// dedup window suppresses the new one, which keeps maintenance recomputes and
// decision retries from double-notifying without swallowing a second office's
// disapproval.
func (s *NotificationService) NotifyTransition(ctx context.Context, form models.Form, from, to models.FormStatus, actor *TransitionActor) {
	kind, ok := transitionKind(to)
	if !ok {
		return
	}
	n := s.buildTransitionNotification(ctx, form, kind, actor)
	if err := s.deliver(ctx, n); err != nil {
		s.logger.Warn("transition notification dropped",
			zap.String("form_id", form.ID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
}

// NotifySubmitted confirms a new or resubmitted form to the student.
func (s *NotificationService) NotifySubmitted(ctx context.Context, form models.Form) {
	n := s.buildTransitionNotification(ctx, form, models.NotificationFormSubmitted, nil)
	if err := s.deliver(ctx, n); err != nil {
		s.logger.Warn("submission notification dropped", zap.String("form_id", form.ID), zap.Error(err))
	}
}

// List returns the recipient's inbox page.
func (s *NotificationService) List(ctx context.Context, recipientID string, query dto.NotificationQuery) ([]models.Notification, *models.Pagination, error) {
	perPage := query.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	filter := models.NotificationFilter{
		RecipientID: recipientID,
		UnreadOnly:  query.UnreadOnly,
		Kind:        models.NotificationKind(query.Kind),
		Limit:       perPage,
		Offset:      (page - 1) * perPage,
	}
	notifications, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	pagination := models.NewPagination(page, perPage, total)
	return notifications, pagination, nil
}

// MarkRead flags the recipient's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, recipientID string, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "at least one notification id is required")
	}
	n, err := s.repo.MarkRead(ctx, recipientID, ids)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return n, nil
}

// UnreadCount returns the recipient's badge count.
func (s *NotificationService) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	count, err := s.repo.UnreadCount(ctx, recipientID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	return count, nil
}

// EmailJobType identifies email delivery jobs on the queue.
const EmailJobType = "notification_email"

// EmailJobPayload carries the notification to deliver.
type EmailJobPayload struct {
	NotificationID string
	RecipientID    string
	Subject        string
	Body           string
}

// HandleEmailJob delivers one queued email. Wired as the queue handler.
func (s *NotificationService) HandleEmailJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(EmailJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}
	user, err := s.users.GetByID(ctx, payload.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if err := s.mail.Send(ctx, mailer.Message{
		ToName:    user.FullName,
		ToAddress: user.Email,
		Subject:   payload.Subject,
		TextBody:  payload.Body,
	}); err != nil {
		return err
	}
	if err := s.repo.MarkEmailSent(ctx, payload.NotificationID); err != nil {
		s.logger.Warn("email sent flag not persisted", zap.String("notification_id", payload.NotificationID), zap.Error(err))
	}
	return nil
}

func (s *NotificationService) deliver(ctx context.Context, n *models.Notification) error {
	window := s.cfg.DedupWindow
	if window > 0 {
		since := s.now().Add(-window)
		exists, err := s.repo.ExistsSimilar(ctx, n.RecipientID, n.FormID, n.Kind, n.OfficeRole, since)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return err
	}
	if s.cfg.EmailEnabled && s.queue != nil {
		job := jobs.Job{
			ID:   n.ID,
			Type: EmailJobType,
			Payload: EmailJobPayload{
				NotificationID: n.ID,
				RecipientID:    n.RecipientID,
				Subject:        n.Title,
				Body:           n.Body,
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("email job not enqueued", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *NotificationService) buildTransitionNotification(ctx context.Context, form models.Form, kind models.NotificationKind, actor *TransitionActor) *models.Notification {
	n := &models.Notification{
		RecipientID: form.StudentID,
		FormID:      form.ID,
		Kind:        kind,
		Priority:    models.PriorityNormal,
		CreatedAt:   s.now(),
	}
	if actor != nil {
		n.SignatoryID = &actor.SignatoryID
		role := actor.Role
		n.OfficeRole = &role
	}
	switch kind {
	case models.NotificationFormSubmitted:
		n.Title = fmt.Sprintf("%s form submitted", formTypeLabel(form.Type))
		n.Body = fmt.Sprintf("Your %s form for %s is now routed to the signing offices.", formTypeLabel(form.Type), form.Semester)
	case models.NotificationFormCompleted:
		n.Title = fmt.Sprintf("%s form approved", formTypeLabel(form.Type))
		n.Body = "All offices have signed off. You may claim your certificate at the registrar."
	case models.NotificationFormDisapproved:
		n.Priority = models.PriorityHigh
		days := s.wfCfg.SettlementDays
		if days <= 0 {
			days = 7
		}
		deadline := s.now().AddDate(0, 0, days)
		period := fmt.Sprintf("%d days", days)
		n.Title = fmt.Sprintf("%s form disapproved", formTypeLabel(form.Type))
		n.Body = fmt.Sprintf("%s disapproved your %s form.%s Settle the concern within %s and resubmit.",
			s.signerLabel(ctx, actor), formTypeLabel(form.Type), reasonSentence(actor), period)
		n.ActionDeadline = &deadline
		n.SettlementPeriod = &period
	}
	return n
}

// signerLabel names the disapproving office, with the signatory's name when
// it resolves.
func (s *NotificationService) signerLabel(ctx context.Context, actor *TransitionActor) string {
	if actor == nil {
		return "An office"
	}
	label := "The " + officeLabel(actor.Role)
	if s.users == nil {
		return label
	}
	user, err := s.users.GetByID(ctx, actor.SignatoryID)
	if err != nil || user == nil || user.FullName == "" {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, user.FullName)
}

func reasonSentence(actor *TransitionActor) string {
	if actor == nil || actor.Remarks == nil || *actor.Remarks == "" {
		return ""
	}
	return " Reason: " + *actor.Remarks + "."
}

func officeLabel(role models.OfficeRole) string {
	words := strings.Split(string(role), "_")
	for i, w := range words {
		if w == "it" {
			words[i] = "IT"
			continue
		}
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

func transitionKind(to models.FormStatus) (models.NotificationKind, bool) {
	switch to {
	case models.FormStatusApproved:
		return models.NotificationFormCompleted, true
	case models.FormStatusDisapproved:
		return models.NotificationFormDisapproved, true
	default:
		return "", false
	}
}

func formTypeLabel(t models.FormType) string {
	switch t {
	case models.FormTypeEnrollment:
		return "Enrollment"
	case models.FormTypeGraduation:
		return "Graduation"
	default:
		return "Clearance"
	}
}
