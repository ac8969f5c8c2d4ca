package scheduling

import (
	"sort"

	"github.com/google/uuid"
)

// Draft is the unsaved working copy of schedule entries, keyed by date.
// Entries with no slots do not exist: every removal prunes them.
type Draft struct {
	Entries map[string]*Entry `json:"entries"`
}

// NewDraft returns an empty draft for a new schedule.
func NewDraft() *Draft {
	return &Draft{Entries: make(map[string]*Entry)}
}

// SeedDraft returns a draft holding the single entry of an existing
// schedule. Slot ids are carried through; each slot gets a draft key.
func SeedDraft(s *DoctorSchedule) *Draft {
	d := NewDraft()
	e := s.Entry()
	if len(e.TimeSlots) == 0 {
		return d
	}
	for i := range e.TimeSlots {
		e.TimeSlots[i].Key = uuid.NewString()
	}
	e.sortSlots()
	d.Entries[e.Date] = &e
	return d
}

// Entry returns the entry for date.
func (d *Draft) Entry(date string) (*Entry, bool) {
	e, ok := d.Entries[date]
	return e, ok
}

// Slots returns the slot list for date, or nil.
func (d *Draft) Slots(date string) []TimeSlot {
	if e, ok := d.Entries[date]; ok {
		return e.TimeSlots
	}
	return nil
}

// Find returns the slot with the given key on date.
func (d *Draft) Find(date, key string) (TimeSlot, bool) {
	for _, sl := range d.Slots(date) {
		if sl.Key == key {
			return sl, true
		}
	}
	return TimeSlot{}, false
}

// IsEmpty reports whether no date holds a slot.
func (d *Draft) IsEmpty() bool {
	for _, e := range d.Entries {
		if len(e.TimeSlots) > 0 {
			return false
		}
	}
	return true
}

// Dates returns the populated dates in ascending order.
func (d *Draft) Dates() []string {
	dates := make([]string, 0, len(d.Entries))
	for date, e := range d.Entries {
		if len(e.TimeSlots) > 0 {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)
	return dates
}

// Populated returns copies of every entry with at least one slot, sorted
// by date.
func (d *Draft) Populated() []Entry {
	dates := d.Dates()
	out := make([]Entry, 0, len(dates))
	for _, date := range dates {
		e := d.Entries[date]
		slots := make([]TimeSlot, len(e.TimeSlots))
		copy(slots, e.TimeSlots)
		out = append(out, Entry{Date: date, DayOfWeek: DayOfWeek(date), TimeSlots: slots})
	}
	return out
}

// put inserts or replaces (by key) a slot and re-sorts the date's list.
func (d *Draft) put(date string, slot TimeSlot) {
	e, ok := d.Entries[date]
	if !ok {
		e = &Entry{Date: date, DayOfWeek: DayOfWeek(date)}
		d.Entries[date] = e
	}
	replaced := false
	for i := range e.TimeSlots {
		if e.TimeSlots[i].Key == slot.Key {
			e.TimeSlots[i] = slot
			replaced = true
			break
		}
	}
	if !replaced {
		e.TimeSlots = append(e.TimeSlots, slot)
	}
	e.sortSlots()
}

// remove deletes the slot with key from date, pruning the entry when it
// becomes empty.
func (d *Draft) remove(date, key string) (TimeSlot, bool) {
	e, ok := d.Entries[date]
	if !ok {
		return TimeSlot{}, false
	}
	kept := e.TimeSlots[:0]
	var removed TimeSlot
	found := false
	for _, sl := range e.TimeSlots {
		if sl.Key == key && !found {
			removed = sl
			found = true
			continue
		}
		kept = append(kept, sl)
	}
	e.TimeSlots = kept
	if len(e.TimeSlots) == 0 {
		delete(d.Entries, date)
	}
	return removed, found
}

// Drop removes a whole date from the draft.
func (d *Draft) Drop(date string) {
	delete(d.Entries, date)
}
