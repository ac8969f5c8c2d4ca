package scheduling

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// SlotInput is one add-or-update request from the schedule form.
type SlotInput struct {
	Date         string     `json:"date"`
	Start        string     `json:"start"`
	End          string     `json:"end"`
	MaxOccupancy FlexString `json:"maxOccupancy"`
	Reason       string     `json:"reason,omitempty"`
}

// EditTarget identifies the slot currently open for editing.
type EditTarget struct {
	Date string `json:"date"`
	Key  string `json:"key"`
}

// Editor mutates one draft slot by slot. Persisted is set when the draft
// was seeded from a schedule the store already holds.
type Editor struct {
	Draft     *Draft      `json:"draft"`
	Persisted bool        `json:"persisted"`
	Editing   *EditTarget `json:"editing,omitempty"`
}

// NewEditor returns an editor over d.
func NewEditor(d *Draft, persisted bool) *Editor {
	if d == nil {
		d = NewDraft()
	}
	return &Editor{Draft: d, Persisted: persisted}
}

// BeginEdit opens the slot with key on date for editing.
func (e *Editor) BeginEdit(date, key string) (TimeSlot, error) {
	sl, ok := e.Draft.Find(date, key)
	if !ok {
		return TimeSlot{}, ErrSlotNotFound
	}
	e.Editing = &EditTarget{Date: date, Key: key}
	return sl, nil
}

// CancelEdit abandons the edit in progress, if any.
func (e *Editor) CancelEdit() {
	e.Editing = nil
}

// ReasonRequired reports whether committing a change to the slot open for
// editing needs a reason.
func (e *Editor) ReasonRequired() bool {
	if e.Editing == nil || !e.Persisted {
		return false
	}
	sl, ok := e.Draft.Find(e.Editing.Date, e.Editing.Key)
	return ok && sl.ID != ""
}

// AddOrUpdateSlot validates in and commits it to the draft: as a change to
// the slot open for editing, or as a new slot otherwise. On any error the
// draft is left untouched.
func (e *Editor) AddOrUpdateSlot(in SlotInput) (TimeSlot, error) {
	candidate, date, err := parseSlotInput(in)
	if err != nil {
		return TimeSlot{}, err
	}

	var original TimeSlot
	editing := e.Editing
	if editing != nil {
		var ok bool
		original, ok = e.Draft.Find(editing.Date, editing.Key)
		if !ok {
			e.Editing = nil
			return TimeSlot{}, ErrSlotNotFound
		}
		candidate.Key = original.Key
		candidate.ID = original.ID
	}

	for _, existing := range e.Draft.Slots(date) {
		if editing != nil && existing.Key == candidate.Key {
			continue
		}
		if overlaps(candidate, existing) {
			return TimeSlot{}, &OverlapError{Date: date, Existing: existing}
		}
	}

	if editing != nil && e.Persisted && original.ID != "" && strings.TrimSpace(candidate.Reason) == "" {
		return TimeSlot{}, ErrReasonRequired
	}

	if e.Persisted && editing != nil && editing.Date != date && e.spansDates(editing, date) {
		return TimeSlot{}, invalid("date", "a saved schedule covers a single date")
	}

	if editing == nil {
		candidate.Key = uuid.NewString()
		e.Draft.put(date, candidate)
		return candidate, nil
	}

	if editing.Date != date {
		e.Draft.remove(editing.Date, editing.Key)
	}
	e.Draft.put(date, candidate)
	e.Editing = nil
	return candidate, nil
}

// spansDates reports whether moving the edited slot to date would leave
// more than one populated date.
func (e *Editor) spansDates(editing *EditTarget, date string) bool {
	for _, d := range e.Draft.Dates() {
		if d == date {
			continue
		}
		if d == editing.Date && len(e.Draft.Slots(d)) == 1 {
			continue
		}
		return true
	}
	return false
}

// RemoveSlot deletes a slot from date. Removing the slot open for editing
// clears the edit.
func (e *Editor) RemoveSlot(date, key string) error {
	if _, ok := e.Draft.Entry(date); !ok {
		return ErrEntryNotFound
	}
	if _, ok := e.Draft.remove(date, key); !ok {
		return ErrSlotNotFound
	}
	if e.Editing != nil && e.Editing.Date == date && e.Editing.Key == key {
		e.Editing = nil
	}
	return nil
}

func parseSlotInput(in SlotInput) (TimeSlot, string, error) {
	if strings.TrimSpace(in.Date) == "" {
		return TimeSlot{}, "", invalid("date", "date is required")
	}
	date, err := NormalizeDate(in.Date)
	if err != nil {
		return TimeSlot{}, "", invalid("date", "%v", err)
	}
	if strings.TrimSpace(in.Start) == "" || strings.TrimSpace(in.End) == "" {
		return TimeSlot{}, "", invalid("time", "start and end time are required")
	}
	start, err := ParseClock(in.Start)
	if err != nil {
		return TimeSlot{}, "", invalid("start", "%v", err)
	}
	end, err := ParseClock(in.End)
	if err != nil {
		return TimeSlot{}, "", invalid("end", "%v", err)
	}
	if start >= end {
		return TimeSlot{}, "", invalid("time", "end time must be after start time")
	}
	occupancy, err := parseOccupancy(string(in.MaxOccupancy))
	if err != nil {
		return TimeSlot{}, "", err
	}
	return TimeSlot{
		Start:        start,
		End:          end,
		MaxOccupancy: occupancy,
		Reason:       strings.TrimSpace(in.Reason),
	}, date, nil
}

func parseOccupancy(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return 0, invalid("maxOccupancy", "max occupancy must be a positive whole number")
	}
	return n, nil
}

// overlaps is the editor's conflict rule between a candidate and an
// existing slot on the same date. Besides any shared time and an exact
// match, a candidate starting at the instant an existing slot ends
// conflicts; a candidate ending where an existing slot starts does not.
func overlaps(candidate, existing TimeSlot) bool {
	if candidate.Start < existing.End && candidate.End > existing.Start {
		return true
	}
	if existing.Start < candidate.End && existing.End > candidate.Start {
		return true
	}
	if candidate.Start == existing.Start && candidate.End == existing.End {
		return true
	}
	return candidate.Start == existing.End
}

// intersects is the half-open interval test used when validating a whole
// persisted slot list.
func intersects(a, b TimeSlot) bool {
	return a.Start < b.End && b.Start < a.End
}
