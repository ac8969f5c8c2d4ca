package scheduling

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dental/clinic/internal/platform/metrics"
	"github.com/dental/clinic/internal/platform/websocket"
)

// TxRunner runs fn inside a transaction carried by its context.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func noTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// TopicSchedules receives every schedule change.
const TopicSchedules = "schedules"

// DoctorTopic receives changes to one doctor's schedules.
func DoctorTopic(id uuid.UUID) string { return "doctor/" + id.String() }

// AvailabilityTopic receives changes affecting availability on date.
func AvailabilityTopic(date string) string { return "availability/" + date }

type Service struct {
	repo    Repository
	events  websocket.EventPublisher
	metrics *metrics.ScheduleMetrics
	logger  zerolog.Logger
	withTx  TxRunner
}

func NewService(repo Repository, events websocket.EventPublisher, m *metrics.ScheduleMetrics, logger zerolog.Logger) *Service {
	return &Service{repo: repo, events: events, metrics: m, logger: logger, withTx: noTx}
}

// WithTransactions makes read-modify-write operations run under tx.
func (s *Service) WithTransactions(tx TxRunner) *Service {
	if tx != nil {
		s.withTx = tx
	}
	return s
}

// ValidateSlots checks a persisted slot list: every slot well formed and no
// two sharing time. Touching boundaries are allowed here.
func ValidateSlots(slots []TimeSlot) error {
	if len(slots) == 0 {
		return invalid("timeSlots", "at least one time slot is required")
	}
	for i, sl := range slots {
		if sl.Start >= sl.End {
			return invalid("timeSlots", "slot %s: end time must be after start time", sl.Label())
		}
		if sl.MaxOccupancy <= 0 {
			return invalid("timeSlots", "slot %s: max occupancy must be a positive whole number", sl.Label())
		}
		for _, other := range slots[i+1:] {
			if intersects(sl, other) {
				return invalid("timeSlots", "slot %s overlaps %s", sl.Label(), other.Label())
			}
		}
	}
	return nil
}

// prepareSlots sorts slots, assigns ids to new ones and drops draft keys.
func prepareSlots(slots []TimeSlot) []TimeSlot {
	out := stripKeys(slots)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = uuid.NewString()
		}
		out[i].Reason = strings.TrimSpace(out[i].Reason)
	}
	sortSlots(out)
	return out
}

// -- Schedule --

// CreateSchedule stores a new schedule. It always starts Pending and active.
func (s *Service) CreateSchedule(ctx context.Context, sched *DoctorSchedule) error {
	if sched.DoctorID == uuid.Nil {
		return invalid("doctorId", "doctor is required")
	}
	date, err := NormalizeDate(sched.Date)
	if err != nil {
		return invalid("date", "%v", err)
	}
	if err := ValidateSlots(sched.TimeSlots); err != nil {
		return err
	}
	sched.Date = date
	sched.Day = DayOfWeek(date)
	sched.Status = StatusPending
	sched.IsActive = true
	sched.TimeSlots = prepareSlots(sched.TimeSlots)

	if err := s.repo.Create(ctx, sched); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	s.logger.Info().
		Str("schedule", sched.ID.String()).
		Str("doctor", sched.DoctorID.String()).
		Str("date", sched.Date).
		Int("slots", len(sched.TimeSlots)).
		Msg("schedule created")
	s.publish(ctx, "schedule.created", sched)
	return nil
}

func (s *Service) GetSchedule(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateSchedule replaces the slots of an existing schedule, possibly moving
// it to another date. An approved schedule goes back for review as
// Re-assigned; pending and re-assigned ones keep their status.
func (s *Service) UpdateSchedule(ctx context.Context, id uuid.UUID, date string, slots []TimeSlot) (*DoctorSchedule, error) {
	date, err := NormalizeDate(date)
	if err != nil {
		return nil, invalid("date", "%v", err)
	}
	if err := ValidateSlots(slots); err != nil {
		return nil, err
	}

	var updated *DoctorSchedule
	err = s.withTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		switch existing.Status {
		case StatusApproved:
			existing.Status = StatusReassigned
		case StatusPending, StatusReassigned:
		default:
			return fmt.Errorf("%w: cannot edit a %s schedule", ErrInvalidTransition, existing.Status)
		}
		existing.Date = date
		existing.Day = DayOfWeek(date)
		existing.TimeSlots = prepareSlots(slots)
		if err := s.repo.Update(ctx, existing); err != nil {
			return err
		}
		updated = existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update schedule: %w", err)
	}
	s.logger.Info().
		Str("schedule", updated.ID.String()).
		Str("date", updated.Date).
		Str("status", string(updated.Status)).
		Msg("schedule updated")
	s.publish(ctx, "schedule.updated", updated)
	return updated, nil
}

// SetStatus applies a status-only transition.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, to Status) (*DoctorSchedule, error) {
	if !validStatuses[to] {
		return nil, invalid("status", "unknown status %q", to)
	}
	var sched *DoctorSchedule
	err := s.withTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(existing.Status, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, existing.Status, to)
		}
		if err := s.repo.UpdateStatus(ctx, id, to); err != nil {
			return err
		}
		existing.Status = to
		sched = existing
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set schedule status: %w", err)
	}
	s.metrics.ObserveTransition(string(to))
	s.logger.Info().
		Str("schedule", id.String()).
		Str("status", string(to)).
		Msg("schedule status changed")
	s.publish(ctx, "schedule.status", sched)
	return sched, nil
}

func (s *Service) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	s.logger.Info().Str("schedule", id.String()).Msg("schedule deleted")
	s.publish(ctx, "schedule.deleted", existing)
	return nil
}

func (s *Service) ListSchedules(ctx context.Context, f Filter, limit, offset int) ([]*DoctorSchedule, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Availability builds the availability index over schedules dated from..to.
func (s *Service) Availability(ctx context.Context, from, to string) (*Index, error) {
	from, err := NormalizeDate(from)
	if err != nil {
		return nil, invalid("from", "%v", err)
	}
	to, err = NormalizeDate(to)
	if err != nil {
		return nil, invalid("to", "%v", err)
	}
	if to < from {
		return nil, invalid("to", "range end is before its start")
	}
	records, err := s.repo.ListRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	return BuildIndex(records), nil
}

// AvailabilityOn builds the index for a single date.
func (s *Service) AvailabilityOn(ctx context.Context, date string) (*Index, error) {
	return s.Availability(ctx, date, date)
}

func (s *Service) publish(ctx context.Context, eventType string, sched *DoctorSchedule) {
	if s.events == nil || sched == nil {
		return
	}
	ev, err := websocket.NewEvent(eventType, sched,
		TopicSchedules, DoctorTopic(sched.DoctorID), AvailabilityTopic(sched.Date))
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to encode schedule event")
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("failed to publish schedule event")
	}
}
