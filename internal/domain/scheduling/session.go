package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dental/clinic/internal/platform/metrics"
)

// Session is one server-held editing session over a draft.
type Session struct {
	ID         string     `json:"id"`
	DoctorID   uuid.UUID  `json:"doctorId"`
	DoctorName string     `json:"doctorName,omitempty"`
	Specialty  string     `json:"specialty,omitempty"`
	ScheduleID *uuid.UUID `json:"scheduleId,omitempty"`
	Editor     *Editor    `json:"editor"`
	Saving     bool       `json:"saving"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (s *Session) target() SubmitTarget {
	return SubmitTarget{
		DoctorID:   s.DoctorID,
		DoctorName: s.DoctorName,
		Specialty:  s.Specialty,
		ScheduleID: s.ScheduleID,
	}
}

// SessionStore holds sessions between requests.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// SessionBackend is the schedule store a session reads its seed from and
// submits to.
type SessionBackend interface {
	Persister
	GetSchedule(ctx context.Context, id uuid.UUID) (*DoctorSchedule, error)
}

// OpenRequest starts a session: blank for a doctor, or seeded from an
// existing schedule when ScheduleID is set.
type OpenRequest struct {
	DoctorID   uuid.UUID  `json:"doctorId"`
	DoctorName string     `json:"doctorName"`
	Specialty  string     `json:"specialty"`
	ScheduleID *uuid.UUID `json:"scheduleId,omitempty"`
}

// SessionManager runs editor operations against stored sessions.
type SessionManager struct {
	store   SessionStore
	backend SessionBackend
	metrics *metrics.ScheduleMetrics
	logger  zerolog.Logger
	now     func() time.Time

	// mu serialises read-modify-write of a session within this process.
	mu sync.Mutex
}

func NewSessionManager(store SessionStore, backend SessionBackend, m *metrics.ScheduleMetrics, logger zerolog.Logger) *SessionManager {
	return &SessionManager{store: store, backend: backend, metrics: m, logger: logger, now: time.Now}
}

func (m *SessionManager) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	sess := &Session{
		ID:         uuid.NewString(),
		DoctorID:   req.DoctorID,
		DoctorName: req.DoctorName,
		Specialty:  req.Specialty,
		UpdatedAt:  m.now().UTC(),
	}
	if req.ScheduleID != nil {
		existing, err := m.backend.GetSchedule(ctx, *req.ScheduleID)
		if err != nil {
			return nil, err
		}
		id := existing.ID
		sess.ScheduleID = &id
		sess.DoctorID = existing.DoctorID
		sess.DoctorName = existing.DoctorName
		sess.Specialty = existing.Specialty
		sess.Editor = NewEditor(SeedDraft(existing), true)
	} else {
		if req.DoctorID == uuid.Nil {
			return nil, invalid("doctorId", "doctor is required")
		}
		sess.Editor = NewEditor(NewDraft(), false)
	}
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

func (m *SessionManager) Get(ctx context.Context, id string) (*Session, error) {
	return m.store.Get(ctx, id)
}

func (m *SessionManager) Discard(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Delete(ctx, id)
}

// Mutate applies fn to the session's editor and stores the result. The
// session is not written when fn fails, so a rejected change leaves the
// stored draft as it was.
func (m *SessionManager) Mutate(ctx context.Context, id string, fn func(*Editor) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Saving {
		return sess, ErrSaveInProgress
	}
	if err := fn(sess.Editor); err != nil {
		if reason := rejectionReason(err); reason != "" {
			m.metrics.ObserveRejection(reason)
		}
		return sess, err
	}
	sess.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

func (m *SessionManager) BeginEdit(ctx context.Context, id, date, key string) (*Session, error) {
	return m.Mutate(ctx, id, func(e *Editor) error {
		_, err := e.BeginEdit(date, key)
		return err
	})
}

func (m *SessionManager) CancelEdit(ctx context.Context, id string) (*Session, error) {
	return m.Mutate(ctx, id, func(e *Editor) error {
		e.CancelEdit()
		return nil
	})
}

func (m *SessionManager) PutSlot(ctx context.Context, id string, in SlotInput) (TimeSlot, *Session, error) {
	var slot TimeSlot
	sess, err := m.Mutate(ctx, id, func(e *Editor) error {
		var err error
		slot, err = e.AddOrUpdateSlot(in)
		return err
	})
	return slot, sess, err
}

func (m *SessionManager) RemoveSlot(ctx context.Context, id, date, key string) (*Session, error) {
	return m.Mutate(ctx, id, func(e *Editor) error {
		return e.RemoveSlot(date, key)
	})
}

// Submit persists the session's draft. While the write is in flight the
// session is marked saving and rejects mutation. A fully successful submit
// ends the session; otherwise the returned session holds what is left.
func (m *SessionManager) Submit(ctx context.Context, id string) (*SubmitResult, *Session, error) {
	sess, err := m.beginSave(ctx, id)
	if err != nil {
		return nil, sess, err
	}
	target := sess.target()

	start := m.now()
	res, submitErr := Submit(ctx, m.backend, target, sess.Editor.Draft)
	outcome := submitOutcome(res, submitErr)
	m.metrics.ObserveSubmit(string(target.Mode()), outcome, m.now().Sub(start))

	evt := m.logger.Info()
	if submitErr != nil {
		evt = m.logger.Warn().Err(submitErr)
	}
	evt.Str("session", sess.ID).
		Str("doctor", sess.DoctorID.String()).
		Str("mode", string(target.Mode())).
		Str("outcome", outcome).
		Msg("draft submitted")

	m.mu.Lock()
	defer m.mu.Unlock()

	sess.Saving = false
	if submitErr == nil {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			m.logger.Error().Err(err).Str("session", sess.ID).Msg("failed to discard submitted session")
		}
		return res, nil, nil
	}
	// Discarded while the save was in flight.
	if _, err := m.store.Get(ctx, sess.ID); errors.Is(err, ErrSessionNotFound) {
		return res, nil, submitErr
	}
	if ed := sess.Editor; ed.Editing != nil {
		if _, ok := ed.Draft.Find(ed.Editing.Date, ed.Editing.Key); !ok {
			ed.Editing = nil
		}
	}
	sess.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, sess); err != nil {
		// The stored copy still has Saving set and the committed dates.
		if delErr := m.store.Delete(ctx, sess.ID); delErr != nil {
			m.logger.Error().Err(delErr).Str("session", sess.ID).Msg("failed to discard unsaved session")
		}
		return res, nil, fmt.Errorf("save session: %w", err)
	}
	return res, sess, submitErr
}

func (m *SessionManager) beginSave(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Saving {
		return sess, ErrSaveInProgress
	}
	if sess.Editor.Draft.IsEmpty() {
		return sess, ErrEmptyDraft
	}
	sess.Saving = true
	if err := m.store.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	return sess, nil
}

func submitOutcome(res *SubmitResult, err error) string {
	switch {
	case err == nil:
		return "ok"
	case res != nil && len(res.Committed) > 0:
		return "partial"
	default:
		return "failed"
	}
}

func rejectionReason(err error) string {
	var ve *ValidationError
	var oe *OverlapError
	switch {
	case errors.As(err, &oe):
		return "overlap"
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, ErrReasonRequired):
		return "reason_required"
	}
	return ""
}

// MemorySessionStore keeps sessions in process memory. Sessions are stored
// serialised so callers never share editor state.
type MemorySessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memorySession
}

type memorySession struct {
	data    []byte
	expires time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{ttl: ttl, now: time.Now, sessions: make(map[string]memorySession)}
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.ttl > 0 && s.now().After(entry.expires) {
		delete(s.sessions, id)
		return nil, ErrSessionNotFound
	}
	var sess Session
	if err := json.Unmarshal(entry.data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *MemorySessionStore) Save(_ context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = memorySession{data: data, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}
