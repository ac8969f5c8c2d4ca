package scheduling

import (
	"sort"

	"github.com/google/uuid"
)

// DoctorRef identifies a doctor offering slots.
type DoctorRef struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
}

// IndexedSlot is a bookable slot annotated with its owner.
type IndexedSlot struct {
	TimeSlot
	DoctorID   uuid.UUID `json:"doctorId"`
	DoctorName string    `json:"doctorName"`
	ScheduleID uuid.UUID `json:"scheduleId"`
}

// Index is the availability lookup built from a set of schedule records.
// DoctorsByDate and SlotsByDate only reflect bookable records; AllByDate
// holds every record regardless of status for search.
type Index struct {
	DoctorsByDate map[string]map[uuid.UUID]struct{} `json:"-"`
	SlotsByDate   map[string][]IndexedSlot          `json:"slotsByDate"`
	AllByDate     map[string][]*DoctorSchedule      `json:"-"`
	Doctors       map[uuid.UUID]DoctorRef           `json:"-"`
}

// BuildIndex derives the availability index from records. A record counts
// as available when its status is one of statuses (Approved when none are
// given), it is active, and it has at least one slot.
func BuildIndex(records []*DoctorSchedule, statuses ...Status) *Index {
	if len(statuses) == 0 {
		statuses = []Status{StatusApproved}
	}
	accept := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		accept[s] = true
	}

	ix := &Index{
		DoctorsByDate: make(map[string]map[uuid.UUID]struct{}),
		SlotsByDate:   make(map[string][]IndexedSlot),
		AllByDate:     make(map[string][]*DoctorSchedule),
		Doctors:       make(map[uuid.UUID]DoctorRef),
	}
	for _, r := range records {
		if r == nil {
			continue
		}
		ix.AllByDate[r.Date] = append(ix.AllByDate[r.Date], r)
		if !accept[r.Status] || !r.IsActive || len(r.TimeSlots) == 0 {
			continue
		}
		doctors, ok := ix.DoctorsByDate[r.Date]
		if !ok {
			doctors = make(map[uuid.UUID]struct{})
			ix.DoctorsByDate[r.Date] = doctors
		}
		doctors[r.DoctorID] = struct{}{}
		if _, seen := ix.Doctors[r.DoctorID]; !seen {
			ix.Doctors[r.DoctorID] = DoctorRef{ID: r.DoctorID, Name: r.DoctorName, Specialty: r.Specialty}
		}
		for _, sl := range r.TimeSlots {
			ix.SlotsByDate[r.Date] = append(ix.SlotsByDate[r.Date], IndexedSlot{
				TimeSlot:   sl,
				DoctorID:   r.DoctorID,
				DoctorName: r.DoctorName,
				ScheduleID: r.ID,
			})
		}
	}
	for date := range ix.SlotsByDate {
		slots := ix.SlotsByDate[date]
		sort.SliceStable(slots, func(i, j int) bool {
			if slots[i].Start != slots[j].Start {
				return slots[i].Start < slots[j].Start
			}
			return slots[i].End < slots[j].End
		})
	}
	return ix
}

// Dates returns the dates with availability in ascending order.
func (ix *Index) Dates() []string {
	dates := make([]string, 0, len(ix.DoctorsByDate))
	for d := range ix.DoctorsByDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates
}

// DayCount is the calendar summary for one date.
type DayCount struct {
	Date    string `json:"date"`
	Doctors int    `json:"doctors"`
	Slots   int    `json:"slots"`
}

// Calendar returns per-date doctor and slot counts in date order.
func (ix *Index) Calendar() []DayCount {
	dates := ix.Dates()
	out := make([]DayCount, 0, len(dates))
	for _, d := range dates {
		out = append(out, DayCount{Date: d, Doctors: len(ix.DoctorsByDate[d]), Slots: len(ix.SlotsByDate[d])})
	}
	return out
}

// Search returns every record on date whose doctor matches, or all records
// on date when doctorID is uuid.Nil.
func (ix *Index) Search(date string, doctorID uuid.UUID) []*DoctorSchedule {
	var out []*DoctorSchedule
	for _, r := range ix.AllByDate[date] {
		if doctorID == uuid.Nil || r.DoctorID == doctorID {
			out = append(out, r)
		}
	}
	return out
}
