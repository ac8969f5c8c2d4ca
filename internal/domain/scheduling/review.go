package scheduling

// ReviewSlot is one slot line of the pre-submit summary.
type ReviewSlot struct {
	Key          string `json:"key"`
	Label        string `json:"label"`
	Start        Clock  `json:"start"`
	End          Clock  `json:"end"`
	MaxOccupancy int    `json:"maxOccupancy"`
	Reason       string `json:"reason,omitempty"`
}

// ReviewEntry is one date of the pre-submit summary.
type ReviewEntry struct {
	Date      string       `json:"date"`
	DayOfWeek string       `json:"dayOfWeek"`
	Slots     []ReviewSlot `json:"slots"`
}

// Review is a read-only projection of a draft.
type Review struct {
	Entries       []ReviewEntry `json:"entries"`
	TotalSlots    int           `json:"totalSlots"`
	TotalCapacity int           `json:"totalCapacity"`
	Submittable   bool          `json:"submittable"`
}

// ReviewDraft lists every populated date of d in ascending order with its
// slots in start order.
func ReviewDraft(d *Draft) Review {
	entries := d.Populated()
	r := Review{Entries: make([]ReviewEntry, 0, len(entries))}
	for _, e := range entries {
		re := ReviewEntry{Date: e.Date, DayOfWeek: e.DayOfWeek, Slots: make([]ReviewSlot, 0, len(e.TimeSlots))}
		for _, sl := range e.TimeSlots {
			re.Slots = append(re.Slots, ReviewSlot{
				Key:          sl.Key,
				Label:        sl.Label(),
				Start:        sl.Start,
				End:          sl.End,
				MaxOccupancy: sl.MaxOccupancy,
				Reason:       sl.Reason,
			})
			r.TotalSlots++
			r.TotalCapacity += sl.MaxOccupancy
		}
		r.Entries = append(r.Entries, re)
	}
	r.Submittable = r.TotalSlots > 0
	return r
}
