package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/internal/repository"
	"github.com/campus-ops/clearance-api/pkg/config"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
)

type memWorkflowStore struct {
	mu    sync.Mutex
	forms map[string]*models.Form
	slots map[string][]*models.Slot
	seq   int
}

func newMemWorkflowStore() *memWorkflowStore {
	return &memWorkflowStore{
		forms: make(map[string]*models.Form),
		slots: make(map[string][]*models.Slot),
	}
}

func (m *memWorkflowStore) addForm(form models.Form) {
	m.forms[form.ID] = &form
}

func (m *memWorkflowStore) RunFormTx(ctx context.Context, formID string, fn func(ctx context.Context, tx repository.FormTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	form, ok := m.forms[formID]
	if !ok {
		return sql.ErrNoRows
	}
	return fn(ctx, &memFormTx{store: m, form: form})
}

type memFormTx struct {
	store *memWorkflowStore
	form  *models.Form
}

func (t *memFormTx) Form() models.Form {
	return *t.form
}

func (t *memFormTx) Slots(ctx context.Context) ([]models.Slot, error) {
	slots := make([]models.Slot, 0, len(t.store.slots[t.form.ID]))
	for _, slot := range t.store.slots[t.form.ID] {
		slots = append(slots, *slot)
	}
	return slots, nil
}

func (t *memFormTx) GetOrCreateSlot(ctx context.Context, signatoryID string, role models.OfficeRole) (*models.Slot, bool, error) {
	for _, slot := range t.store.slots[t.form.ID] {
		if slot.SignatoryID == signatoryID {
			copy := *slot
			return &copy, false, nil
		}
	}
	t.store.seq++
	now := time.Now().UTC()
	slot := &models.Slot{
		ID:          fmt.Sprintf("slot-%d", t.store.seq),
		FormID:      t.form.ID,
		SignatoryID: signatoryID,
		OfficeRole:  role,
		Status:      models.SlotStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.store.slots[t.form.ID] = append(t.store.slots[t.form.ID], slot)
	copy := *slot
	return &copy, true, nil
}

func (t *memFormTx) ApplyDecision(ctx context.Context, slotID string, status models.SlotStatus, remarks, ipAddress *string) (bool, error) {
	for _, slot := range t.store.slots[t.form.ID] {
		if slot.ID != slotID {
			continue
		}
		if slot.Status != models.SlotStatusPending {
			return false, nil
		}
		slot.Status = status
		slot.Remarks = remarks
		slot.IPAddress = ipAddress
		slot.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

func (t *memFormTx) SetFormStatus(ctx context.Context, status models.FormStatus, finalizedAt *time.Time) error {
	t.form.Status = status
	t.form.FinalizedAt = finalizedAt
	t.form.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *memFormTx) ClearDisapprovedSlots(ctx context.Context) (int, error) {
	kept := make([]*models.Slot, 0, len(t.store.slots[t.form.ID]))
	removed := 0
	for _, slot := range t.store.slots[t.form.ID] {
		if slot.Status == models.SlotStatusDisapproved {
			removed++
			continue
		}
		kept = append(kept, slot)
	}
	t.store.slots[t.form.ID] = kept
	return removed, nil
}

func (t *memFormTx) ResetSlot(ctx context.Context, slotID string) (bool, error) {
	for _, slot := range t.store.slots[t.form.ID] {
		if slot.ID != slotID {
			continue
		}
		slot.Status = models.SlotStatusPending
		slot.Remarks = nil
		slot.UpdatedAt = time.Now().UTC()
		return true, nil
	}
	return false, nil
}

type assignmentStub struct {
	byUser map[string]*models.SignatoryAssignment
	byRole map[models.OfficeRole]*models.SignatoryAssignment
}

func newAssignmentStub() *assignmentStub {
	return &assignmentStub{
		byUser: make(map[string]*models.SignatoryAssignment),
		byRole: make(map[models.OfficeRole]*models.SignatoryAssignment),
	}
}

func (a *assignmentStub) assign(userID string, role models.OfficeRole) {
	assignment := &models.SignatoryAssignment{
		ID:         "assign-" + userID,
		UserID:     userID,
		OfficeRole: role,
		Active:     true,
	}
	a.byUser[userID] = assignment
	a.byRole[role] = assignment
}

func (a *assignmentStub) vacate(role models.OfficeRole) {
	if assignment, ok := a.byRole[role]; ok {
		delete(a.byUser, assignment.UserID)
	}
	delete(a.byRole, role)
}

func (a *assignmentStub) ActiveByUser(ctx context.Context, userID string) (*models.SignatoryAssignment, error) {
	return a.byUser[userID], nil
}

func (a *assignmentStub) ActiveByRole(ctx context.Context, role models.OfficeRole) (*models.SignatoryAssignment, error) {
	return a.byRole[role], nil
}

func (a *assignmentStub) ListActive(ctx context.Context) (map[models.OfficeRole]models.SignatoryAssignment, error) {
	active := make(map[models.OfficeRole]models.SignatoryAssignment, len(a.byRole))
	for role, assignment := range a.byRole {
		active[role] = *assignment
	}
	return active, nil
}

type decisionLogStub struct {
	entries []*models.DecisionLog
}

func (d *decisionLogStub) Insert(ctx context.Context, entry *models.DecisionLog) error {
	d.entries = append(d.entries, entry)
	return nil
}

type transitionRecorder struct {
	transitions []statusTransition
}

func (r *transitionRecorder) NotifyTransition(ctx context.Context, form models.Form, from, to models.FormStatus, actor *TransitionActor) {
	r.transitions = append(r.transitions, statusTransition{form: form, from: from, to: to, actor: actor})
}

type workflowFixture struct {
	store       *memWorkflowStore
	assignments *assignmentStub
	audit       *decisionLogStub
	notifier    *transitionRecorder
	svc         *WorkflowService
}

func signatoryFor(role models.OfficeRole) string {
	return "sig-" + string(role)
}

func newWorkflowFixture(t *testing.T, cfg config.WorkflowConfig) *workflowFixture {
	t.Helper()
	store := newMemWorkflowStore()
	assignments := newAssignmentStub()
	for _, role := range models.RosterFor(models.FormTypeClearance) {
		assignments.assign(signatoryFor(role), role)
	}
	audit := &decisionLogStub{}
	notifier := &transitionRecorder{}
	svc := NewWorkflowService(store, assignments, audit, cfg, nil, WithWorkflowNotifier(notifier))
	return &workflowFixture{
		store:       store,
		assignments: assignments,
		audit:       audit,
		notifier:    notifier,
		svc:         svc,
	}
}

func (f *workflowFixture) submitForm(id string) {
	f.submitTypedForm(id, models.FormTypeClearance)
}

func (f *workflowFixture) submitTypedForm(id string, formType models.FormType) {
	f.store.addForm(models.Form{
		ID:           id,
		StudentID:    "student-1",
		Type:         formType,
		Semester:     "1st",
		AcademicYear: "2025-2026",
		Status:       models.FormStatusPending,
		SubmittedAt:  time.Now().UTC(),
	})
}

func TestWorkflowServiceFullApproval(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	roster := models.RosterFor(models.FormTypeClearance)
	for i, role := range roster {
		resp, err := fx.svc.Decide(context.Background(), DecideParams{
			FormID:   "form-1",
			ActorID:  signatoryFor(role),
			Decision: models.DecisionApprove,
		})
		require.NoError(t, err)
		require.Equal(t, models.SlotStatusApproved, resp.Slot.Status)

		if i < len(roster)-1 {
			require.Equal(t, models.FormStatusInProgress, resp.FormStatus)
			require.False(t, resp.Transitioned)
			require.Nil(t, resp.FinalizedAt)
		} else {
			require.Equal(t, models.FormStatusApproved, resp.FormStatus)
			require.True(t, resp.Transitioned)
			require.NotNil(t, resp.FinalizedAt)
		}
	}

	require.Equal(t, models.FormStatusApproved, fx.store.forms["form-1"].Status)
	require.Len(t, fx.audit.entries, len(roster))

	// pending -> in_progress on the first decision, in_progress -> approved
	// on the last.
	require.Len(t, fx.notifier.transitions, 2)
	require.Equal(t, models.FormStatusInProgress, fx.notifier.transitions[0].to)
	require.Equal(t, models.FormStatusApproved, fx.notifier.transitions[1].to)
}

func TestWorkflowServiceEnrollmentApproval(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitTypedForm("form-1", models.FormTypeEnrollment)

	roster := models.RosterFor(models.FormTypeEnrollment)
	require.Equal(t, []models.OfficeRole{
		models.OfficeBusinessManager,
		models.OfficeRegistrar,
		models.OfficeAcademicDean,
	}, roster)

	for i, role := range roster {
		resp, err := fx.svc.Decide(context.Background(), DecideParams{
			FormID:   "form-1",
			ActorID:  signatoryFor(role),
			Decision: models.DecisionApprove,
		})
		require.NoError(t, err)

		if i < len(roster)-1 {
			// Enrollment does not surface in_progress.
			require.Equal(t, models.FormStatusPending, resp.FormStatus)
		} else {
			require.Equal(t, models.FormStatusApproved, resp.FormStatus)
			require.NotNil(t, resp.FinalizedAt)
		}
	}
	require.Equal(t, models.FormStatusApproved, fx.store.forms["form-1"].Status)
}

func TestWorkflowServiceGraduationRequiresPresident(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.assignments.assign(signatoryFor(models.OfficePresident), models.OfficePresident)
	fx.submitTypedForm("form-1", models.FormTypeGraduation)

	require.Contains(t, models.RosterFor(models.FormTypeGraduation), models.OfficePresident)

	for _, role := range []models.OfficeRole{
		models.OfficeBusinessManager,
		models.OfficeRegistrar,
		models.OfficeAcademicDean,
	} {
		resp, err := fx.svc.Decide(context.Background(), DecideParams{
			FormID:   "form-1",
			ActorID:  signatoryFor(role),
			Decision: models.DecisionApprove,
		})
		require.NoError(t, err)
		require.Equal(t, models.FormStatusPending, resp.FormStatus)
	}

	resp, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  signatoryFor(models.OfficePresident),
		Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, models.FormStatusApproved, resp.FormStatus)
	require.True(t, resp.Transitioned)
}

func TestWorkflowServiceDisapprovalFinalizes(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	resp, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  signatoryFor(models.OfficeCashier),
		Decision: models.DecisionDisapprove,
		Remarks:  "unpaid balance",
	})
	require.NoError(t, err)
	require.Equal(t, models.FormStatusDisapproved, resp.FormStatus)
	require.True(t, resp.Transitioned)
	require.NotNil(t, resp.Slot.Remarks)
	require.Equal(t, "unpaid balance", *resp.Slot.Remarks)

	// Disapproval is re-enterable through resubmission, so it carries no
	// finalization timestamp.
	require.Nil(t, resp.FinalizedAt)
	require.Nil(t, fx.store.forms["form-1"].FinalizedAt)

	require.Len(t, fx.notifier.transitions, 1)
	transition := fx.notifier.transitions[0]
	require.Equal(t, models.FormStatusDisapproved, transition.to)

	// The event names the deciding office and carries the remarks.
	require.NotNil(t, transition.actor)
	require.Equal(t, models.OfficeCashier, transition.actor.Role)
	require.Equal(t, signatoryFor(models.OfficeCashier), transition.actor.SignatoryID)
	require.NotNil(t, transition.actor.Remarks)
	require.Equal(t, "unpaid balance", *transition.actor.Remarks)
}

func TestWorkflowServiceIdempotentRetry(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	actor := signatoryFor(models.OfficeRegistrar)
	first, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  actor,
		Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Len(t, fx.audit.entries, 1)

	retry, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  actor,
		Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	require.Equal(t, first.Slot.ID, retry.Slot.ID)
	require.Equal(t, models.SlotStatusApproved, retry.Slot.Status)

	// The retry writes nothing: no new audit entry, no new transition.
	require.Len(t, fx.audit.entries, 1)
	require.Len(t, fx.notifier.transitions, 1)
}

func TestWorkflowServiceConflictingRetry(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	actor := signatoryFor(models.OfficeRegistrar)
	_, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  actor,
		Decision: models.DecisionApprove,
	})
	require.NoError(t, err)

	_, err = fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  actor,
		Decision: models.DecisionDisapprove,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrAlreadyDecided.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceNoActiveAssignment(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	_, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  "student-1",
		Decision: models.DecisionApprove,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceVacatedRole(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	// The actor still holds an assignment row, but the office no longer
	// resolves to anyone.
	actor := signatoryFor(models.OfficeCashier)
	delete(fx.assignments.byRole, models.OfficeCashier)

	_, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  actor,
		Decision: models.DecisionApprove,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrRoleUnassigned.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceFinalizedFormRejects(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	now := time.Now().UTC()
	fx.store.addForm(models.Form{
		ID:          "form-1",
		StudentID:   "student-1",
		Type:        models.FormTypeClearance,
		Status:      models.FormStatusApproved,
		FinalizedAt: &now,
	})

	_, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  signatoryFor(models.OfficeCashier),
		Decision: models.DecisionApprove,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceUnknownForm(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})

	_, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "missing",
		ActorID:  signatoryFor(models.OfficeCashier),
		Decision: models.DecisionApprove,
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkflowServiceSkipUnassignedRoles(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7, SkipUnassignedRoles: true})
	fx.submitForm("form-1")
	fx.assignments.vacate(models.OfficeDormSupervisor)

	var last models.FormStatus
	for _, role := range models.RosterFor(models.FormTypeClearance) {
		if role == models.OfficeDormSupervisor {
			continue
		}
		resp, err := fx.svc.Decide(context.Background(), DecideParams{
			FormID:   "form-1",
			ActorID:  signatoryFor(role),
			Decision: models.DecisionApprove,
		})
		require.NoError(t, err)
		last = resp.FormStatus
	}
	require.Equal(t, models.FormStatusApproved, last)
}

func TestWorkflowServiceResetSlot(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	resp, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  signatoryFor(models.OfficeCashier),
		Decision: models.DecisionDisapprove,
	})
	require.NoError(t, err)
	require.Equal(t, models.FormStatusDisapproved, fx.store.forms["form-1"].Status)

	err = fx.svc.ResetSlot(context.Background(), "form-1", resp.Slot.ID)
	require.NoError(t, err)
	require.Equal(t, models.FormStatusPending, fx.store.forms["form-1"].Status)
	require.Equal(t, models.SlotStatusPending, fx.store.slots["form-1"][0].Status)
}

func TestWorkflowServiceRecomputeForm(t *testing.T) {
	fx := newWorkflowFixture(t, config.WorkflowConfig{SettlementDays: 7})
	fx.submitForm("form-1")

	// A repaired form whose recorded status no longer matches its slots.
	_, err := fx.svc.Decide(context.Background(), DecideParams{
		FormID:   "form-1",
		ActorID:  signatoryFor(models.OfficeCashier),
		Decision: models.DecisionApprove,
	})
	require.NoError(t, err)
	fx.store.forms["form-1"].Status = models.FormStatusPending

	changed, err := fx.svc.RecomputeForm(context.Background(), "form-1")
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, models.FormStatusInProgress, fx.store.forms["form-1"].Status)

	changed, err = fx.svc.RecomputeForm(context.Background(), "form-1")
	require.NoError(t, err)
	require.False(t, changed)
}
