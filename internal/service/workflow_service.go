package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/internal/repository"
	"github.com/campus-ops/clearance-api/pkg/config"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
)

type workflowStore interface {
	RunFormTx(ctx context.Context, formID string, fn func(ctx context.Context, tx repository.FormTx) error) error
}

type assignmentResolver interface {
	ActiveByRole(ctx context.Context, role models.OfficeRole) (*models.SignatoryAssignment, error)
	ActiveByUser(ctx context.Context, userID string) (*models.SignatoryAssignment, error)
	ListActive(ctx context.Context) (map[models.OfficeRole]models.SignatoryAssignment, error)
}

type decisionLogger interface {
	Insert(ctx context.Context, entry *models.DecisionLog) error
}

// TransitionActor identifies the decision behind an aggregate status change.
// Nil when no single decision caused it (maintenance recomputes of mixed
// slot sets).
type TransitionActor struct {
	SignatoryID string
	Role        models.OfficeRole
	Remarks     *string
}

// TransitionNotifier receives aggregate status changes after commit.
type TransitionNotifier interface {
	NotifyTransition(ctx context.Context, form models.Form, from, to models.FormStatus, actor *TransitionActor)
}

// WorkflowMetrics counts engine activity.
type WorkflowMetrics interface {
	DecisionRecorded(decision models.Decision)
	FormTransitioned(to models.FormStatus)
}

// DecideParams carries request context for a decision.
type DecideParams struct {
	FormID    string
	ActorID   string
	Decision  models.Decision
	Remarks   string
	IPAddress string
	RequestID string
}

// WorkflowService is the multi-signatory approval engine. Slot creation,
// decision recording and aggregate recomputation all happen inside a single
// form-locked transaction; notifications go out only after commit.
type WorkflowService struct {
	store       workflowStore
	assignments assignmentResolver
	audit       decisionLogger
	notifier    TransitionNotifier
	metrics     WorkflowMetrics
	cfg         config.WorkflowConfig
	logger      *zap.Logger
	now         func() time.Time
}

// WorkflowServiceOption configures the service.
type WorkflowServiceOption func(*WorkflowService)

// WithWorkflowNotifier wires the post-commit transition notifier.
func WithWorkflowNotifier(n TransitionNotifier) WorkflowServiceOption {
	return func(s *WorkflowService) { s.notifier = n }
}

// WithWorkflowMetrics wires engine counters.
func WithWorkflowMetrics(m WorkflowMetrics) WorkflowServiceOption {
	return func(s *WorkflowService) { s.metrics = m }
}

// WithWorkflowClock overrides time for tests.
func WithWorkflowClock(now func() time.Time) WorkflowServiceOption {
	return func(s *WorkflowService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewWorkflowService constructs the engine.
func NewWorkflowService(store workflowStore, assignments assignmentResolver, audit decisionLogger, cfg config.WorkflowConfig, logger *zap.Logger, opts ...WorkflowServiceOption) *WorkflowService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &WorkflowService{
		store:       store,
		assignments: assignments,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Decide records the actor's verdict on a form and recomputes the aggregate.
//
// Repeating an identical decision is a no-op success. A conflicting repeat
// fails with ALREADY_DECIDED. Office resolution happens through the actor's
// active assignment; users without one cannot decide.
func (s *WorkflowService) Decide(ctx context.Context, params DecideParams) (*dto.DecideResponse, error) {
	if !models.ValidDecision(params.Decision) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "decision must be approved or disapproved")
	}

	assignment, err := s.assignments.ActiveByUser(ctx, params.ActorID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve signatory assignment")
	}
	if assignment == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "user holds no active signing office")
	}
	role := assignment.OfficeRole

	// Defensive cross-check: the office must still resolve to this actor.
	active, err := s.assignments.ActiveByRole(ctx, role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve office role")
	}
	if active == nil {
		return nil, appErrors.ErrRoleUnassigned
	}
	if active.UserID != params.ActorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "office is assigned to another signatory")
	}

	assigned, err := s.assignedOffices(ctx)
	if err != nil {
		return nil, err
	}

	var (
		resp       dto.DecideResponse
		transition *statusTransition
		applied    bool
	)
	err = s.store.RunFormTx(ctx, params.FormID, func(ctx context.Context, tx repository.FormTx) error {
		form := tx.Form()
		if form.Status.Final() {
			return appErrors.Clone(appErrors.ErrConflict, "form is already finalized")
		}

		slot, _, err := tx.GetOrCreateSlot(ctx, params.ActorID, role)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrDuplicateSlot.Code, appErrors.ErrDuplicateSlot.Status, appErrors.ErrDuplicateSlot.Message)
		}

		wanted := params.Decision.SlotStatus()
		if slot.Status != models.SlotStatusPending {
			if slot.Status == wanted {
				// Idempotent retry: report current state, change nothing.
				resp = dto.DecideResponse{
					Slot:        *slot,
					FormStatus:  form.Status,
					DecidedAt:   slot.UpdatedAt,
					FinalizedAt: form.FinalizedAt,
				}
				return nil
			}
			return appErrors.ErrAlreadyDecided
		}

		remarks := nullableString(params.Remarks)
		ip := nullableString(params.IPAddress)
		ok, err := tx.ApplyDecision(ctx, slot.ID, wanted, remarks, ip)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decision")
		}
		if !ok {
			return appErrors.ErrAlreadyDecided
		}
		applied = true
		now := s.now()
		slot.Status = wanted
		slot.Remarks = remarks
		slot.IPAddress = ip
		slot.UpdatedAt = now

		slots, err := tx.Slots(ctx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot set")
		}
		next := ComputeAggregate(AggregateInput{
			Type:           form.Type,
			Roster:         models.RosterFor(form.Type),
			Assigned:       assigned,
			SkipUnassigned: s.cfg.SkipUnassignedRoles,
			Slots:          slots,
		})

		// finalized_at marks entry into approved. Disapproval is
		// re-enterable via resubmission and carries no timestamp.
		var finalizedAt *time.Time
		if next == models.FormStatusApproved {
			finalizedAt = &now
		}
		if next != form.Status {
			if err := tx.SetFormStatus(ctx, next, finalizedAt); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update form status")
			}
			transition = &statusTransition{
				form: tx.Form(),
				from: form.Status,
				to:   next,
				actor: &TransitionActor{
					SignatoryID: params.ActorID,
					Role:        role,
					Remarks:     remarks,
				},
			}
		}

		resp = dto.DecideResponse{
			Slot:         *slot,
			FormStatus:   next,
			Transitioned: next.Final() && next != form.Status,
			DecidedAt:    now,
			FinalizedAt:  finalizedAt,
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
	}
	if err != nil {
		return nil, err
	}

	s.afterDecide(ctx, params, resp, transition, applied)
	return &resp, nil
}

// RecomputeForm re-derives a form's aggregate from its slot set. Used by the
// maintenance sweep after repairs.
func (s *WorkflowService) RecomputeForm(ctx context.Context, formID string) (changed bool, err error) {
	assigned, err := s.assignedOffices(ctx)
	if err != nil {
		return false, err
	}

	var transition *statusTransition
	err = s.store.RunFormTx(ctx, formID, func(ctx context.Context, tx repository.FormTx) error {
		form := tx.Form()
		slots, err := tx.Slots(ctx)
		if err != nil {
			return err
		}
		next := ComputeAggregate(AggregateInput{
			Type:           form.Type,
			Roster:         models.RosterFor(form.Type),
			Assigned:       assigned,
			SkipUnassigned: s.cfg.SkipUnassignedRoles,
			Slots:          slots,
		})
		if next == form.Status {
			return nil
		}
		var finalizedAt *time.Time
		if next == models.FormStatusApproved {
			now := s.now()
			finalizedAt = &now
		}
		if err := tx.SetFormStatus(ctx, next, finalizedAt); err != nil {
			return err
		}
		changed = true
		transition = &statusTransition{form: tx.Form(), from: form.Status, to: next}
		if next == models.FormStatusDisapproved {
			transition.actor = disapprovalActor(slots)
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, appErrors.Clone(appErrors.ErrNotFound, "form not found")
	}
	if err != nil {
		return false, err
	}
	if transition != nil {
		s.dispatch(ctx, transition)
	}
	return changed, nil
}

// ResetSlot returns a decided slot to pending and recomputes the aggregate.
// Admin repair path.
func (s *WorkflowService) ResetSlot(ctx context.Context, formID, slotID string) error {
	assigned, err := s.assignedOffices(ctx)
	if err != nil {
		return err
	}

	var transition *statusTransition
	err = s.store.RunFormTx(ctx, formID, func(ctx context.Context, tx repository.FormTx) error {
		form := tx.Form()
		reset, err := tx.ResetSlot(ctx, slotID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reset slot")
		}
		if !reset {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found on form")
		}
		slots, err := tx.Slots(ctx)
		if err != nil {
			return err
		}
		next := ComputeAggregate(AggregateInput{
			Type:           form.Type,
			Roster:         models.RosterFor(form.Type),
			Assigned:       assigned,
			SkipUnassigned: s.cfg.SkipUnassignedRoles,
			Slots:          slots,
		})
		if next != form.Status {
			if err := tx.SetFormStatus(ctx, next, nil); err != nil {
				return err
			}
			transition = &statusTransition{form: tx.Form(), from: form.Status, to: next}
			if next == models.FormStatusDisapproved {
				transition.actor = disapprovalActor(slots)
			}
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "form not found")
	}
	if err != nil {
		return err
	}
	if transition != nil {
		s.dispatch(ctx, transition)
	}
	return nil
}

type statusTransition struct {
	form  models.Form
	from  models.FormStatus
	to    models.FormStatus
	actor *TransitionActor
}

// disapprovalActor attributes a recomputed disapproval to the earliest
// disapproving slot so the student's notification can name the office.
func disapprovalActor(slots []models.Slot) *TransitionActor {
	var found *models.Slot
	for i := range slots {
		slot := &slots[i]
		if slot.Status != models.SlotStatusDisapproved {
			continue
		}
		if found == nil || slot.CreatedAt.Before(found.CreatedAt) {
			found = slot
		}
	}
	if found == nil {
		return nil
	}
	return &TransitionActor{
		SignatoryID: found.SignatoryID,
		Role:        found.OfficeRole,
		Remarks:     found.Remarks,
	}
}

func (s *WorkflowService) assignedOffices(ctx context.Context) (map[models.OfficeRole]bool, error) {
	return activeOffices(ctx, s.assignments)
}

// activeOffices resolves the set of offices that currently have a signatory.
// Shared by every path that feeds ComputeAggregate.
func activeOffices(ctx context.Context, assignments assignmentResolver) (map[models.OfficeRole]bool, error) {
	active, err := assignments.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list active assignments")
	}
	assigned := make(map[models.OfficeRole]bool, len(active))
	for role := range active {
		assigned[role] = true
	}
	return assigned, nil
}

// afterDecide runs the post-commit side effects. Failures here are logged,
// never surfaced: the decision is already durable.
func (s *WorkflowService) afterDecide(ctx context.Context, params DecideParams, resp dto.DecideResponse, transition *statusTransition, applied bool) {
	if !applied {
		return
	}
	if s.metrics != nil {
		s.metrics.DecisionRecorded(params.Decision)
	}
	if s.audit != nil {
		entry := &models.DecisionLog{
			FormID:      params.FormID,
			SlotID:      resp.Slot.ID,
			SignatoryID: params.ActorID,
			OfficeRole:  resp.Slot.OfficeRole,
			Decision:    params.Decision,
			Remarks:     resp.Slot.Remarks,
			IPAddress:   resp.Slot.IPAddress,
			RequestID:   nullableString(params.RequestID),
			CreatedAt:   resp.DecidedAt,
		}
		if err := s.audit.Insert(ctx, entry); err != nil {
			s.logger.Warn("decision log write failed", zap.String("form_id", params.FormID), zap.Error(err))
		}
	}
	if transition != nil {
		s.dispatch(ctx, transition)
	}
}

func (s *WorkflowService) dispatch(ctx context.Context, transition *statusTransition) {
	if s.metrics != nil {
		s.metrics.FormTransitioned(transition.to)
	}
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyTransition(ctx, transition.form, transition.from, transition.to, transition.actor)
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
