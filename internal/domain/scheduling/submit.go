package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Persister stores submitted drafts.
type Persister interface {
	CreateSchedule(ctx context.Context, s *DoctorSchedule) error
	UpdateSchedule(ctx context.Context, id uuid.UUID, date string, slots []TimeSlot) (*DoctorSchedule, error)
}

type SubmitMode string

const (
	SubmitCreate SubmitMode = "create"
	SubmitUpdate SubmitMode = "update"
)

// SubmitTarget identifies whose draft is being submitted and, for an edit
// of an existing schedule, which one.
type SubmitTarget struct {
	DoctorID   uuid.UUID
	DoctorName string
	Specialty  string
	ScheduleID *uuid.UUID
}

func (t SubmitTarget) Mode() SubmitMode {
	if t.ScheduleID != nil {
		return SubmitUpdate
	}
	return SubmitCreate
}

// SubmitResult lists what a submit committed.
type SubmitResult struct {
	Mode      SubmitMode        `json:"mode"`
	Committed []string          `json:"committed"`
	Schedules []*DoctorSchedule `json:"schedules"`
}

// Submit hands the populated entries of d to p. Committed dates are dropped
// from d; failed ones remain so the caller can retry.
//
// A new schedule issues one independent create per date. Failures are
// collected into a *SubmitError returned alongside the partial result;
// successes are not rolled back. An existing schedule covers exactly one
// date and is written with a single update.
func Submit(ctx context.Context, p Persister, target SubmitTarget, d *Draft) (*SubmitResult, error) {
	entries := d.Populated()
	if len(entries) == 0 {
		return nil, ErrEmptyDraft
	}

	res := &SubmitResult{Mode: target.Mode()}

	if res.Mode == SubmitUpdate {
		if len(entries) != 1 {
			return nil, ErrMultiDateUpdate
		}
		e := entries[0]
		s, err := p.UpdateSchedule(ctx, *target.ScheduleID, e.Date, stripKeys(e.TimeSlots))
		if err != nil {
			return nil, fmt.Errorf("update schedule %s: %w", target.ScheduleID, err)
		}
		d.Drop(e.Date)
		res.Committed = append(res.Committed, e.Date)
		res.Schedules = append(res.Schedules, s)
		return res, nil
	}

	var failures []EntryFailure
	for _, e := range entries {
		s := &DoctorSchedule{
			DoctorID:   target.DoctorID,
			DoctorName: target.DoctorName,
			Specialty:  target.Specialty,
			Date:       e.Date,
			Day:        e.DayOfWeek,
			Status:     StatusPending,
			IsActive:   true,
			TimeSlots:  stripKeys(e.TimeSlots),
		}
		if err := p.CreateSchedule(ctx, s); err != nil {
			failures = append(failures, EntryFailure{Date: e.Date, Err: err})
			continue
		}
		d.Drop(e.Date)
		res.Committed = append(res.Committed, e.Date)
		res.Schedules = append(res.Schedules, s)
	}
	if len(failures) > 0 {
		return res, &SubmitError{Failures: failures}
	}
	return res, nil
}
