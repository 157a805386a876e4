package intake

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hackgods/clinic-intake-agent/internal/patient"
	"github.com/hackgods/clinic-intake-agent/internal/schedule"
)

var ErrSessionNotFound = errors.New("session not found")

// Session is everything one conversation has collected so far.
type Session struct {
	ID            string            `json:"session_id"`
	Stage         Stage             `json:"stage"`
	Form          IntakeForm        `json:"form"`
	PatientID     int               `json:"patient_id,omitempty"`
	NewPatient    bool              `json:"new_patient"`
	Insurance     patient.Insurance `json:"insurance"`
	Slots         []schedule.Slot   `json:"slots,omitempty"`
	AppointmentID string            `json:"appointment_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{ID: id, Stage: StageGreet, CreatedAt: now, UpdatedAt: now}
}

// reset drops everything collected and goes back to greet.
func (s *Session) reset() {
	*s = Session{ID: s.ID, Stage: StageGreet, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

type SessionStore interface {
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore keeps sessions in process memory. Stored sessions are
// copies, so callers never share a *Session. A session not saved for ttl is
// gone; expired entries are swept on Save. ttl <= 0 keeps sessions forever.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	session Session
	expires time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemorySessionStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.expired(e) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	s := e.session
	s.Slots = append([]schedule.Slot(nil), s.Slots...)
	return &s, nil
}

func (m *MemorySessionStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, e := range m.sessions {
		if m.expired(e) {
			delete(m.sessions, id)
		}
	}

	cp := *s
	cp.Slots = append([]schedule.Slot(nil), s.Slots...)
	e := memoryEntry{session: cp}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	m.sessions[s.ID] = e
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of sessions held, expired ones included until
// the next sweep.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *MemorySessionStore) expired(e memoryEntry) bool {
	return !e.expires.IsZero() && !m.now().Before(e.expires)
}
