package scheduling

import (
	"sort"

	"github.com/google/uuid"
)

// CandidateDoctors lists the doctors available on date, ordered by name.
func (ix *Index) CandidateDoctors(date string) []DoctorRef {
	ids := ix.DoctorsByDate[date]
	out := make([]DoctorRef, 0, len(ids))
	for id := range ids {
		out = append(out, ix.Doctors[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// SlotLabels returns the distinct "HH:MM - HH:MM" labels offered on date by
// doctorID, or by any doctor when doctorID is uuid.Nil, in start order.
func (ix *Index) SlotLabels(date string, doctorID uuid.UUID) []string {
	seen := make(map[string]bool)
	var slots []TimeSlot
	for _, sl := range ix.SlotsByDate[date] {
		if doctorID != uuid.Nil && sl.DoctorID != doctorID {
			continue
		}
		label := sl.Label()
		if seen[label] {
			continue
		}
		seen[label] = true
		slots = append(slots, sl.TimeSlot)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start != slots[j].Start {
			return slots[i].Start < slots[j].Start
		}
		return slots[i].End < slots[j].End
	})
	labels := make([]string, len(slots))
	for i, sl := range slots {
		labels[i] = sl.Label()
	}
	return labels
}

// BookingSelection is the date/doctor/time choice on the booking form.
// A zero DoctorID means any doctor.
type BookingSelection struct {
	Date     string    `json:"date"`
	DoctorID uuid.UUID `json:"doctorId"`
	TimeSlot string    `json:"timeSlot,omitempty"`
}

// BookingOptions is what the booking form offers for a selection.
type BookingOptions struct {
	Selection BookingSelection `json:"selection"`
	Doctors   []DoctorRef      `json:"doctors"`
	TimeSlots []string         `json:"timeSlots"`
}

// Refresh recomputes the options for sel against ix. A chosen doctor no
// longer available on the date falls back to any; a chosen time slot no
// longer offered is cleared.
func (sel BookingSelection) Refresh(ix *Index) BookingOptions {
	doctors := ix.CandidateDoctors(sel.Date)
	if sel.DoctorID != uuid.Nil {
		if _, ok := ix.DoctorsByDate[sel.Date][sel.DoctorID]; !ok {
			sel.DoctorID = uuid.Nil
		}
	}
	labels := ix.SlotLabels(sel.Date, sel.DoctorID)
	if sel.TimeSlot != "" {
		found := false
		for _, l := range labels {
			if l == sel.TimeSlot {
				found = true
				break
			}
		}
		if !found {
			sel.TimeSlot = ""
		}
	}
	return BookingOptions{Selection: sel, Doctors: doctors, TimeSlots: labels}
}
