package scheduling

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status is the review state of a doctor schedule.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusApproved   Status = "Approved"
	StatusReassigned Status = "Re-assigned"
	StatusCancelled  Status = "Cancelled"
	StatusRejected   Status = "Rejected"
)

var validStatuses = map[Status]bool{
	StatusPending: true, StatusApproved: true, StatusReassigned: true,
	StatusCancelled: true, StatusRejected: true,
}

// statusTransitions lists the statuses reachable through a status-only
// request. Re-assigned is only entered by updating an approved schedule.
var statusTransitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:   {StatusCancelled},
	StatusReassigned: {StatusApproved, StatusRejected, StatusCancelled},
}

// CanTransition reports whether a schedule in status from may move to to.
func CanTransition(from, to Status) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TimeSlot is a bounded interval on one date with a patient capacity.
//
// ID is assigned by the store and is empty for drafted slots. Key is a
// draft-local handle used by the editor; it is never persisted.
type TimeSlot struct {
	ID           string `json:"id,omitempty"`
	Key          string `json:"key,omitempty"`
	Start        Clock  `json:"start"`
	End          Clock  `json:"end"`
	MaxOccupancy int    `json:"maxOccupancy"`
	Reason       string `json:"reason,omitempty"`
}

// Label renders the slot as "HH:MM - HH:MM".
func (t TimeSlot) Label() string {
	return t.Start.String() + " - " + t.End.String()
}

// Entry is one date's slot list inside a draft.
type Entry struct {
	Date      string     `json:"date"`
	DayOfWeek string     `json:"dayOfWeek"`
	TimeSlots []TimeSlot `json:"timeSlots"`
}

func (e *Entry) sortSlots() {
	sortSlots(e.TimeSlots)
}

func sortSlots(slots []TimeSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		return slots[i].Start < slots[j].Start
	})
}

// DoctorSchedule maps to the doctor_schedule table: the slots one doctor
// offers on one date.
type DoctorSchedule struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	DoctorID   uuid.UUID  `db:"doctor_id" json:"doctorId"`
	DoctorName string     `db:"doctor_name" json:"doctorName"`
	Specialty  string     `db:"specialty" json:"specialty,omitempty"`
	Date       string     `db:"date" json:"date"`
	Day        string     `db:"day" json:"day"`
	Status     Status     `db:"status" json:"status"`
	IsActive   bool       `db:"is_active" json:"isActive"`
	TimeSlots  []TimeSlot `db:"time_slots" json:"timeSlots"`
	VersionID  int        `db:"version_id" json:"versionId"`
	CreatedAt  time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

// Bookable reports whether the schedule contributes to availability.
func (s *DoctorSchedule) Bookable() bool {
	return s.Status == StatusApproved && s.IsActive && len(s.TimeSlots) > 0
}

// Entry returns the schedule's slots as a draft entry.
func (s *DoctorSchedule) Entry() Entry {
	slots := make([]TimeSlot, len(s.TimeSlots))
	copy(slots, s.TimeSlots)
	return Entry{Date: s.Date, DayOfWeek: DayOfWeek(s.Date), TimeSlots: slots}
}

// Filter narrows schedule listings. Zero fields are ignored.
type Filter struct {
	DoctorID uuid.UUID
	Status   Status
	Date     string
	From     string
	To       string
}

func stripKeys(slots []TimeSlot) []TimeSlot {
	out := make([]TimeSlot, len(slots))
	for i, sl := range slots {
		sl.Key = ""
		out[i] = sl
	}
	return out
}
