package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/internal/dto"
	"github.com/campus-ops/clearance-api/internal/models"
	"github.com/campus-ops/clearance-api/internal/repository"
	"github.com/campus-ops/clearance-api/pkg/config"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
)

type formStore interface {
	Create(ctx context.Context, form *models.Form) error
	GetByID(ctx context.Context, id string) (*models.Form, error)
	FindOpen(ctx context.Context, studentID string, formType models.FormType, semester, academicYear string) (*models.Form, error)
	List(ctx context.Context, filter models.FormFilter) ([]models.Form, error)
	Count(ctx context.Context, filter models.FormFilter) (int, error)
}

type slotReader interface {
	ListByForm(ctx context.Context, formID string) ([]models.Slot, error)
}

// SubmissionNotifier confirms submissions to the student.
type SubmissionNotifier interface {
	NotifySubmitted(ctx context.Context, form models.Form)
}

// FormService handles the student-facing form lifecycle.
type FormService struct {
	repo        formStore
	slots       slotReader
	store       workflowStore
	assignments assignmentResolver
	notifier    SubmissionNotifier
	cfg         config.WorkflowConfig
	logger      *zap.Logger
}

// NewFormService constructs the service.
func NewFormService(repo formStore, slots slotReader, store workflowStore, assignments assignmentResolver, notifier SubmissionNotifier, cfg config.WorkflowConfig, logger *zap.Logger) *FormService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormService{
		repo:        repo,
		slots:       slots,
		store:       store,
		assignments: assignments,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// Submit opens a new form for the student. One open form per type and period.
func (s *FormService) Submit(ctx context.Context, studentID string, req dto.SubmitFormRequest) (*models.Form, error) {
	if !models.ValidFormType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown form type")
	}
	semester := strings.TrimSpace(req.Semester)
	if semester == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "semester is required")
	}

	existing, err := s.repo.FindOpen(ctx, studentID, req.Type, semester, req.AcademicYear)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open forms")
	}
	if existing != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "an open form of this type already exists for the period")
	}

	form := &models.Form{
		StudentID:    studentID,
		Type:         req.Type,
		Semester:     semester,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Section:      nullableString(strings.TrimSpace(req.Section)),
		Status:       models.FormStatusPending,
	}
	if err := s.repo.Create(ctx, form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create form")
	}

	if s.notifier != nil {
		s.notifier.NotifySubmitted(ctx, *form)
	}
	return form, nil
}

// Detail returns the form plus per-office virtual statuses. Students may only
// see their own forms.
func (s *FormService) Detail(ctx context.Context, formID string, actor *models.User) (*dto.FormDetail, error) {
	form, err := s.getForm(ctx, formID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeRead(form, actor); err != nil {
		return nil, err
	}

	slots, err := s.slots.ListByForm(ctx, formID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form slots")
	}

	roster := models.RosterFor(form.Type)
	statuses := BuildVirtualStatuses(roster, slots)

	progress := dto.FormProgress{Required: len(roster)}
	for _, vs := range statuses {
		switch vs.Status {
		case models.SlotStatusApproved:
			progress.Approved++
		case models.SlotStatusDisapproved:
			progress.Disapproved++
		default:
			progress.Pending++
		}
	}

	return &dto.FormDetail{Form: *form, Signatures: statuses, Counts: progress}, nil
}

// List returns forms matching the query with pagination metadata.
func (s *FormService) List(ctx context.Context, query dto.FormQuery) ([]models.Form, *models.Pagination, error) {
	perPage := query.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	filter := models.FormFilter{
		StudentID:    query.StudentID,
		Type:         query.Type,
		Status:       query.Status,
		Semester:     query.Semester,
		AcademicYear: query.AcademicYear,
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
	}
	forms, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list forms")
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count forms")
	}
	return forms, models.NewPagination(page, perPage, total), nil
}

// Resubmit reopens a disapproved form. Disapproved slots are deleted so their
// offices return to pending; approvals already granted are kept.
func (s *FormService) Resubmit(ctx context.Context, formID string, actor *models.User) (*dto.ResubmitFormResponse, error) {
	assigned, err := activeOffices(ctx, s.assignments)
	if err != nil {
		return nil, err
	}

	var resp dto.ResubmitFormResponse
	err = s.store.RunFormTx(ctx, formID, func(ctx context.Context, tx repository.FormTx) error {
		form := tx.Form()
		if actor != nil && actor.Role == models.RoleStudent && form.StudentID != actor.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "form belongs to another student")
		}
		if form.Status != models.FormStatusDisapproved {
			return appErrors.Clone(appErrors.ErrConflict, "only disapproved forms can be resubmitted")
		}

		cleared, err := tx.ClearDisapprovedSlots(ctx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear disapproved slots")
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
		var finalizedAt *time.Time
		if next == models.FormStatusApproved {
			now := time.Now().UTC()
			finalizedAt = &now
		}
		if err := tx.SetFormStatus(ctx, next, finalizedAt); err != nil {
			return err
		}

		resp = dto.ResubmitFormResponse{
			Form:          tx.Form(),
			ClearedSlots:  cleared,
			ResubmittedAt: time.Now().UTC(),
		}
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
	}
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		s.notifier.NotifySubmitted(ctx, resp.Form)
	}
	return &resp, nil
}

func (s *FormService) getForm(ctx context.Context, formID string) (*models.Form, error) {
	form, err := s.repo.GetByID(ctx, formID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	return form, nil
}

func (s *FormService) authorizeRead(form *models.Form, actor *models.User) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role == models.RoleStudent && form.StudentID != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "form belongs to another student")
	}
	return nil
}
