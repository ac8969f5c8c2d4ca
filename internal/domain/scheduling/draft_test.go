package scheduling

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestSeedDraft(t *testing.T) {
	sched := &DoctorSchedule{
		ID:   uuid.New(),
		Date: day1,
		TimeSlots: []TimeSlot{
			{ID: "b", Start: 660, End: 720, MaxOccupancy: 1},
			{ID: "a", Start: 540, End: 600, MaxOccupancy: 2},
		},
	}
	d := SeedDraft(sched)

	slots := d.Slots(day1)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if slots[0].ID != "a" || slots[1].ID != "b" {
		t.Errorf("expected slots sorted by start, got %s then %s", slots[0].ID, slots[1].ID)
	}
	for _, sl := range slots {
		if sl.Key == "" {
			t.Errorf("expected key on slot %s", sl.ID)
		}
	}
	if sched.TimeSlots[0].Key != "" {
		t.Error("expected the source schedule to be left untouched")
	}
	e, _ := d.Entry(day1)
	if e.DayOfWeek != "Friday" {
		t.Errorf("expected Friday, got %s", e.DayOfWeek)
	}
}

func TestSeedDraft_NoSlots(t *testing.T) {
	d := SeedDraft(&DoctorSchedule{Date: day1})
	if !d.IsEmpty() || len(d.Entries) != 0 {
		t.Error("expected empty draft")
	}
}

func TestDraft_PopulatedAndDates(t *testing.T) {
	d := NewDraft()
	d.put(day2, TimeSlot{Key: "k2", Start: 540, End: 600, MaxOccupancy: 1})
	d.put(day1, TimeSlot{Key: "k1", Start: 540, End: 600, MaxOccupancy: 1})
	d.Entries["2025-06-22"] = &Entry{Date: "2025-06-22"}

	if got := d.Dates(); !reflect.DeepEqual(got, []string{day1, day2}) {
		t.Errorf("expected populated dates in order, got %v", got)
	}
	pop := d.Populated()
	if len(pop) != 2 || pop[0].Date != day1 {
		t.Fatalf("unexpected populated entries: %+v", pop)
	}
	pop[0].TimeSlots[0].MaxOccupancy = 99
	if d.Slots(day1)[0].MaxOccupancy != 1 {
		t.Error("expected Populated to return copies")
	}
}

func TestDraft_PutReplacesByKey(t *testing.T) {
	d := NewDraft()
	d.put(day1, TimeSlot{Key: "k", Start: 540, End: 600, MaxOccupancy: 1})
	d.put(day1, TimeSlot{Key: "k", Start: 600, End: 660, MaxOccupancy: 4})

	slots := d.Slots(day1)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if slots[0].MaxOccupancy != 4 {
		t.Errorf("expected replaced slot, got %+v", slots[0])
	}
}

func TestDraft_Drop(t *testing.T) {
	d := NewDraft()
	d.put(day1, TimeSlot{Key: "k", Start: 540, End: 600, MaxOccupancy: 1})
	d.Drop(day1)
	if !d.IsEmpty() {
		t.Error("expected empty draft after drop")
	}
}

func TestReviewDraft(t *testing.T) {
	e := NewEditor(NewDraft(), false)
	addSlot(t, e, day2, "13:00", "14:00")
	addSlot(t, e, day1, "10:00", "11:00")
	in := slotInput(day1, "08:00", "09:00")
	in.MaxOccupancy = "5"
	in.Reason = "early shift"
	if _, err := e.AddOrUpdateSlot(in); err != nil {
		t.Fatalf("add: %v", err)
	}

	r := ReviewDraft(e.Draft)
	if !r.Submittable {
		t.Error("expected review to be submittable")
	}
	if len(r.Entries) != 2 || r.Entries[0].Date != day1 || r.Entries[1].Date != day2 {
		t.Fatalf("expected entries sorted by date, got %+v", r.Entries)
	}
	first := r.Entries[0].Slots[0]
	if first.Label != "08:00 - 09:00" || first.MaxOccupancy != 5 || first.Reason != "early shift" {
		t.Errorf("unexpected first slot: %+v", first)
	}
	if r.TotalSlots != 3 {
		t.Errorf("expected 3 slots, got %d", r.TotalSlots)
	}
	if r.TotalCapacity != 9 {
		t.Errorf("expected capacity 9, got %d", r.TotalCapacity)
	}
	if r.Entries[1].DayOfWeek != "Saturday" {
		t.Errorf("expected Saturday, got %s", r.Entries[1].DayOfWeek)
	}
}

func TestReviewDraft_Empty(t *testing.T) {
	r := ReviewDraft(NewDraft())
	if r.Submittable || len(r.Entries) != 0 {
		t.Errorf("expected empty, non-submittable review, got %+v", r)
	}
}
