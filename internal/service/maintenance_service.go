package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/campus-ops/clearance-api/internal/dto"
	appErrors "github.com/campus-ops/clearance-api/pkg/errors"
)

type maintenanceStore interface {
	RemoveDuplicateSlots(ctx context.Context) ([]string, int, error)
	RemoveOrphanSlots(ctx context.Context) ([]string, int, error)
	OpenFormIDs(ctx context.Context) ([]string, error)
}

type formRecomputer interface {
	RecomputeForm(ctx context.Context, formID string) (bool, error)
}

// MaintenanceService repairs slot data and reconciles aggregates afterwards.
type MaintenanceService struct {
	repo     maintenanceStore
	workflow formRecomputer
	logger   *zap.Logger
}

// NewMaintenanceService constructs the service.
func NewMaintenanceService(repo maintenanceStore, workflow formRecomputer, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{repo: repo, workflow: workflow, logger: logger}
}

// Run removes duplicate and orphan slots, then recomputes every touched form
// plus all open forms. Duplicate removal keeps the earliest created slot per
// (form, signatory) pair.
func (s *MaintenanceService) Run(ctx context.Context) (*dto.MaintenanceReport, error) {
	report := &dto.MaintenanceReport{}
	touched := make(map[string]struct{})

	dupForms, dupCount, err := s.repo.RemoveDuplicateSlots(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "duplicate slot sweep failed")
	}
	report.DuplicatesRemoved = dupCount
	for _, id := range dupForms {
		touched[id] = struct{}{}
	}

	orphanForms, orphanCount, err := s.repo.RemoveOrphanSlots(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "orphan slot sweep failed")
	}
	report.OrphansRemoved = orphanCount
	for _, id := range orphanForms {
		touched[id] = struct{}{}
	}

	openForms, err := s.repo.OpenFormIDs(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "open form listing failed")
	}
	for _, id := range openForms {
		touched[id] = struct{}{}
	}

	for formID := range touched {
		changed, err := s.workflow.RecomputeForm(ctx, formID)
		if err != nil {
			s.logger.Warn("form recompute failed during maintenance",
				zap.String("form_id", formID), zap.Error(err))
			continue
		}
		if changed {
			report.FormsRecomputed++
		}
	}

	s.logger.Info("maintenance sweep finished",
		zap.Int("duplicates_removed", report.DuplicatesRemoved),
		zap.Int("orphans_removed", report.OrphansRemoved),
		zap.Int("forms_recomputed", report.FormsRecomputed),
	)
	return report, nil
}
