package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type maintenanceRepoStub struct {
	dupForms    []string
	dupCount    int
	orphanForms []string
	orphanCount int
	openForms   []string
}

func (r *maintenanceRepoStub) RemoveDuplicateSlots(ctx context.Context) ([]string, int, error) {
	return r.dupForms, r.dupCount, nil
}

func (r *maintenanceRepoStub) RemoveOrphanSlots(ctx context.Context) ([]string, int, error) {
	return r.orphanForms, r.orphanCount, nil
}

func (r *maintenanceRepoStub) OpenFormIDs(ctx context.Context) ([]string, error) {
	return r.openForms, nil
}

type recomputeRecorder struct {
	recomputed map[string]int
	changed    map[string]bool
}

func newRecomputeRecorder(changed map[string]bool) *recomputeRecorder {
	return &recomputeRecorder{recomputed: make(map[string]int), changed: changed}
}

func (r *recomputeRecorder) RecomputeForm(ctx context.Context, formID string) (bool, error) {
	r.recomputed[formID]++
	return r.changed[formID], nil
}

func TestMaintenanceServiceRun(t *testing.T) {
	repo := &maintenanceRepoStub{
		dupForms:    []string{"form-1", "form-2"},
		dupCount:    3,
		orphanForms: []string{"form-2"},
		orphanCount: 1,
		openForms:   []string{"form-3"},
	}
	workflow := newRecomputeRecorder(map[string]bool{"form-1": true})
	svc := NewMaintenanceService(repo, workflow, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.DuplicatesRemoved)
	require.Equal(t, 1, report.OrphansRemoved)
	require.Equal(t, 1, report.FormsRecomputed)

	// Each touched form is recomputed exactly once, even when both sweeps
	// reported it.
	require.Equal(t, 1, workflow.recomputed["form-1"])
	require.Equal(t, 1, workflow.recomputed["form-2"])
	require.Equal(t, 1, workflow.recomputed["form-3"])
}

func TestMaintenanceServiceRunNothingToRepair(t *testing.T) {
	repo := &maintenanceRepoStub{}
	workflow := newRecomputeRecorder(nil)
	svc := NewMaintenanceService(repo, workflow, nil)

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.DuplicatesRemoved)
	require.Zero(t, report.OrphansRemoved)
	require.Zero(t, report.FormsRecomputed)
	require.Empty(t, workflow.recomputed)
}
