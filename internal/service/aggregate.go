package service

import (
	"github.com/campus-ops/clearance-api/internal/models"
)

// AggregateInput carries everything the status computation needs. It is
// derived from the locked form's full slot set so the result is independent
// of decision arrival order.
type AggregateInput struct {
	Type   models.FormType
	Roster []models.OfficeRole
	// Assigned marks roster offices that currently have an active signatory.
	Assigned map[models.OfficeRole]bool
	// SkipUnassigned drops vacant offices from the required set instead of
	// letting them block approval.
	SkipUnassigned bool
	Slots          []models.Slot
}

// ComputeAggregate derives a form's status from its slot set.
//
// Any disapproved slot wins immediately. Otherwise the form is approved once
// every required office holds an approved slot, in_progress when at least one
// decision exists and the form type tracks that state, and pending otherwise.
func ComputeAggregate(in AggregateInput) models.FormStatus {
	byOffice := slotsByOffice(in.Slots)

	decided := 0
	approvedOffices := 0
	required := 0
	for _, role := range in.Roster {
		if !in.Assigned[role] && in.SkipUnassigned {
			continue
		}
		required++
		slot, ok := byOffice[role]
		if !ok {
			continue
		}
		switch slot.Status {
		case models.SlotStatusDisapproved:
			return models.FormStatusDisapproved
		case models.SlotStatusApproved:
			decided++
			approvedOffices++
		}
	}

	// Slots held by offices outside the required set still veto: a
	// disapproval is never silently dropped.
	for _, slot := range in.Slots {
		if slot.Status == models.SlotStatusDisapproved {
			return models.FormStatusDisapproved
		}
	}

	if required > 0 && approvedOffices == required {
		return models.FormStatusApproved
	}
	if decided > 0 && in.Type.TracksInProgress() {
		return models.FormStatusInProgress
	}
	return models.FormStatusPending
}

// BuildVirtualStatuses merges the roster with the materialised slot set,
// synthesising a pending entry for every office that has not acted yet.
func BuildVirtualStatuses(roster []models.OfficeRole, slots []models.Slot) []models.VirtualSlotStatus {
	byOffice := slotsByOffice(slots)

	statuses := make([]models.VirtualSlotStatus, 0, len(roster))
	for _, role := range roster {
		slot, ok := byOffice[role]
		if !ok {
			statuses = append(statuses, models.VirtualSlotStatus{
				OfficeRole: role,
				Status:     models.SlotStatusPending,
			})
			continue
		}
		decidedAt := slot.UpdatedAt
		vs := models.VirtualSlotStatus{
			OfficeRole:   role,
			Status:       slot.Status,
			Remarks:      slot.Remarks,
			SignatoryID:  &slot.SignatoryID,
			Materialised: true,
		}
		if slot.Status != models.SlotStatusPending {
			vs.DecidedAt = &decidedAt
		}
		statuses = append(statuses, vs)
	}
	return statuses
}

// slotsByOffice indexes slots by office role. When duplicates survived a
// repair sweep, the earliest created slot is authoritative.
func slotsByOffice(slots []models.Slot) map[models.OfficeRole]models.Slot {
	byOffice := make(map[models.OfficeRole]models.Slot, len(slots))
	for _, slot := range slots {
		existing, ok := byOffice[slot.OfficeRole]
		if !ok || slot.CreatedAt.Before(existing.CreatedAt) {
			byOffice[slot.OfficeRole] = slot
		}
	}
	return byOffice
}
