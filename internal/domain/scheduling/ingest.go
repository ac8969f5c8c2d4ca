package scheduling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type rawSlot struct {
	ID                 FlexString  `json:"id"`
	LegacyID           FlexString  `json:"_id"`
	Start              string      `json:"start"`
	End                string      `json:"end"`
	MaxOccupancy       *FlexString `json:"maxOccupancy"`
	MaxPatientsPerSlot *FlexString `json:"maxPatientsPerSlot"`
	Reason             string      `json:"reason"`
}

type rawRecord struct {
	ID         FlexString      `json:"id"`
	LegacyID   FlexString      `json:"_id"`
	DoctorID   FlexString      `json:"doctorId"`
	DoctorName string          `json:"doctorName"`
	Specialty  string          `json:"specialty"`
	Date       string          `json:"date"`
	Status     string          `json:"status"`
	IsActive   *bool           `json:"isActive"`
	TimeSlots  json.RawMessage `json:"timeSlots"`
}

// DecodeRecords parses a JSON array of schedule records from an external
// store. Malformed records are skipped and reported individually; the error
// return is reserved for input that is not a JSON array at all.
func DecodeRecords(data []byte) ([]*DoctorSchedule, []*RecordError, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, nil, fmt.Errorf("decode schedule records: %w", err)
	}
	var (
		out      []*DoctorSchedule
		rejected []*RecordError
	)
	for i, raw := range raws {
		s, err := decodeRecord(raw)
		if err != nil {
			rejected = append(rejected, &RecordError{Index: i, Reason: err.Error()})
			continue
		}
		out = append(out, s)
	}
	return out, rejected, nil
}

func decodeRecord(raw json.RawMessage) (*DoctorSchedule, error) {
	var r rawRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}

	doctorID, err := ExternalID(firstNonEmpty(r.DoctorID))
	if err != nil || doctorID == uuid.Nil {
		return nil, fmt.Errorf("doctorId is required")
	}
	date, err := NormalizeDate(r.Date)
	if err != nil {
		return nil, err
	}
	status, err := ParseStatus(r.Status)
	if err != nil {
		return nil, err
	}

	s := &DoctorSchedule{
		DoctorID:   doctorID,
		DoctorName: strings.TrimSpace(r.DoctorName),
		Specialty:  strings.TrimSpace(r.Specialty),
		Date:       date,
		Day:        DayOfWeek(date),
		Status:     status,
		IsActive:   r.IsActive != nil && *r.IsActive,
	}
	if id := firstNonEmpty(r.ID, r.LegacyID); id != "" {
		if s.ID, err = ExternalID(id); err != nil {
			return nil, err
		}
	} else {
		s.ID = uuid.New()
	}

	slots, err := decodeSlots(r.TimeSlots)
	if err != nil {
		return nil, err
	}
	s.TimeSlots = slots
	return s, nil
}

// decodeSlots accepts a JSON array of slots. Anything else, including a
// missing field, yields no slots.
func decodeSlots(raw json.RawMessage) ([]TimeSlot, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, nil
	}
	var raws []rawSlot
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("timeSlots: %w", err)
	}
	slots := make([]TimeSlot, 0, len(raws))
	for i, rs := range raws {
		start, err := ParseClock(rs.Start)
		if err != nil {
			return nil, fmt.Errorf("timeSlots[%d]: %w", i, err)
		}
		end, err := ParseClock(rs.End)
		if err != nil {
			return nil, fmt.Errorf("timeSlots[%d]: %w", i, err)
		}
		if start >= end {
			return nil, fmt.Errorf("timeSlots[%d]: end time must be after start time", i)
		}
		capacity := rs.MaxOccupancy
		if capacity == nil || *capacity == "" {
			capacity = rs.MaxPatientsPerSlot
		}
		if capacity == nil {
			return nil, fmt.Errorf("timeSlots[%d]: maxOccupancy is required", i)
		}
		n, err := parseOccupancy(string(*capacity))
		if err != nil {
			return nil, fmt.Errorf("timeSlots[%d]: %w", i, err)
		}
		slots = append(slots, TimeSlot{
			ID:           string(firstNonEmpty(rs.ID, rs.LegacyID)),
			Start:        start,
			End:          end,
			MaxOccupancy: n,
			Reason:       strings.TrimSpace(rs.Reason),
		})
	}
	sortSlots(slots)
	return slots, nil
}

// ParseStatus matches a status label case-insensitively. An empty label is
// Pending.
func ParseStatus(s string) (Status, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	switch norm {
	case "":
		return StatusPending, nil
	case "reassigned", "re-assigned", "re_assigned":
		return StatusReassigned, nil
	case "canceled":
		return StatusCancelled, nil
	}
	for st := range validStatuses {
		if strings.ToLower(string(st)) == norm {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// ExternalID maps an external identifier onto a UUID. Identifiers that are
// not UUIDs map to a stable name-based UUID so repeated imports agree.
func ExternalID(id FlexString) (uuid.UUID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return uuid.Nil, nil
	}
	if u, err := uuid.Parse(s); err == nil {
		return u, nil
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(s)), nil
}

func firstNonEmpty(vals ...FlexString) FlexString {
	for _, v := range vals {
		if strings.TrimSpace(string(v)) != "" {
			return v
		}
	}
	return ""
}
