package scheduling

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

type fakePersister struct {
	createErr map[string]error
	updateErr error
	created   []*DoctorSchedule
	updated   []string
}

func (p *fakePersister) CreateSchedule(_ context.Context, s *DoctorSchedule) error {
	if err := p.createErr[s.Date]; err != nil {
		return err
	}
	s.ID = uuid.New()
	p.created = append(p.created, s)
	return nil
}

func (p *fakePersister) UpdateSchedule(_ context.Context, id uuid.UUID, date string, slots []TimeSlot) (*DoctorSchedule, error) {
	if p.updateErr != nil {
		return nil, p.updateErr
	}
	p.updated = append(p.updated, date)
	return &DoctorSchedule{ID: id, Date: date, Status: StatusReassigned, TimeSlots: slots}, nil
}

func TestSubmit_EmptyDraft(t *testing.T) {
	p := &fakePersister{}
	_, err := Submit(context.Background(), p, SubmitTarget{DoctorID: uuid.New()}, NewDraft())
	if !errors.Is(err, ErrEmptyDraft) {
		t.Fatalf("expected ErrEmptyDraft, got %v", err)
	}
	if err.Error() != "no schedules added" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if len(p.created)+len(p.updated) != 0 {
		t.Error("expected no requests")
	}
}

func TestSubmit_CreatesOneSchedulePerDate(t *testing.T) {
	p := &fakePersister{}
	e := NewEditor(NewDraft(), false)
	addSlot(t, e, day2, "09:00", "10:00")
	addSlot(t, e, day1, "09:00", "10:00")
	addSlot(t, e, day1, "10:30", "11:00")
	doctor := uuid.New()

	res, err := Submit(context.Background(), p, SubmitTarget{DoctorID: doctor, DoctorName: "Dr. Rao"}, e.Draft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != SubmitCreate {
		t.Errorf("expected create mode, got %s", res.Mode)
	}
	if !reflect.DeepEqual(res.Committed, []string{day1, day2}) {
		t.Errorf("expected both dates committed in order, got %v", res.Committed)
	}
	if len(p.created) != 2 {
		t.Fatalf("expected 2 create requests, got %d", len(p.created))
	}
	first := p.created[0]
	if first.DoctorID != doctor || first.Status != StatusPending || !first.IsActive || first.Day != "Friday" {
		t.Errorf("unexpected create request: %+v", first)
	}
	if len(first.TimeSlots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(first.TimeSlots))
	}
	for _, sl := range first.TimeSlots {
		if sl.Key != "" {
			t.Error("expected draft keys to stay out of the request")
		}
	}
	if !e.Draft.IsEmpty() {
		t.Error("expected committed dates to leave the draft")
	}
}

func TestSubmit_PartialFailure(t *testing.T) {
	day3 := "2025-06-22"
	p := &fakePersister{createErr: map[string]error{day2: errors.New("store unavailable")}}
	e := NewEditor(NewDraft(), false)
	addSlot(t, e, day1, "09:00", "10:00")
	addSlot(t, e, day2, "09:00", "10:00")
	addSlot(t, e, day3, "09:00", "10:00")

	res, err := Submit(context.Background(), p, SubmitTarget{DoctorID: uuid.New()}, e.Draft)
	var se *SubmitError
	if !errors.As(err, &se) {
		t.Fatalf("expected SubmitError, got %v", err)
	}
	if !reflect.DeepEqual(se.Dates(), []string{day2}) {
		t.Errorf("expected only %s to fail, got %v", day2, se.Dates())
	}
	if !reflect.DeepEqual(res.Committed, []string{day1, day3}) {
		t.Errorf("expected %s and %s committed, got %v", day1, day3, res.Committed)
	}
	if !reflect.DeepEqual(e.Draft.Dates(), []string{day2}) {
		t.Errorf("expected failed date to remain for retry, got %v", e.Draft.Dates())
	}
}

func TestSubmit_Update(t *testing.T) {
	p := &fakePersister{}
	id := uuid.New()
	e := NewEditor(NewDraft(), true)
	addSlot(t, e, day1, "09:00", "10:00")

	res, err := Submit(context.Background(), p, SubmitTarget{ScheduleID: &id}, e.Draft)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Mode != SubmitUpdate || len(res.Schedules) != 1 || res.Schedules[0].ID != id {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(p.created) != 0 || len(p.updated) != 1 {
		t.Errorf("expected a single update, got %d creates and %d updates", len(p.created), len(p.updated))
	}
	if !e.Draft.IsEmpty() {
		t.Error("expected draft to be emptied")
	}
}

func TestSubmit_UpdateErrors(t *testing.T) {
	id := uuid.New()
	e := NewEditor(NewDraft(), true)
	addSlot(t, e, day1, "09:00", "10:00")
	addSlot(t, e, day2, "09:00", "10:00")

	p := &fakePersister{}
	if _, err := Submit(context.Background(), p, SubmitTarget{ScheduleID: &id}, e.Draft); !errors.Is(err, ErrMultiDateUpdate) {
		t.Fatalf("expected ErrMultiDateUpdate, got %v", err)
	}
	if len(p.updated) != 0 {
		t.Error("expected no requests")
	}

	e.Draft.Drop(day2)
	p.updateErr = ErrInvalidTransition
	_, err := Submit(context.Background(), p, SubmitTarget{ScheduleID: &id}, e.Draft)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected wrapped ErrInvalidTransition, got %v", err)
	}
	if e.Draft.IsEmpty() {
		t.Error("expected draft to stay editable after a failed update")
	}
}
