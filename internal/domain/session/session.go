// Package session holds ephemeral per-user conversation state. Exactly one
// session may be active per user; starting a new flow replaces it. The
// conversation package is the sole writer.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/okian/meetstake/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Flow identifies which multi-field conversation a session belongs to.
type Flow string

// Known flows.
const (
	FlowCreateEvent       Flow = "create_event"
	FlowJoinEvent         Flow = "join_event"
	FlowConfirmAttendance Flow = "confirm_attendance"
	FlowCreateMemory      Flow = "create_memory"
)

// Step identifies the field a session is currently collecting.
type Step string

// Steps, shared across flows where the shape is the same.
const (
	StepName          Step = "name"
	StepWhen          Step = "when"
	StepStake         Step = "stake"
	StepLocation      Step = "location"
	StepSelectEvent   Step = "select_event"
	StepConfirm       Step = "confirm"
	StepAwaitLocation Step = "await_location"
	StepAwaitPhoto    Step = "await_photo"
)

// Session accumulates fields for one user's active flow. Token is the
// client-generated idempotency token minted when the flow starts; it rides
// along into the completed intent.
type Session struct {
	UserID    int64
	Flow      Flow
	Step      Step
	Token     string
	StartedAt time.Time

	// Accumulated fields; which ones are meaningful depends on Flow.
	Name       string
	When       time.Time
	Stake      decimal.Decimal
	Anchor     *model.Location
	Venue      string
	EventID    int64
	Candidates []int64 // event ids offered during disambiguation
}

// Store keeps at most one session per user id.
type Store interface {
	// Get returns the active session for a user, if any.
	Get(ctx context.Context, userID int64) (Session, bool)

	// Put stores a session, replacing any existing one for the same user.
	Put(ctx context.Context, s Session)

	// Delete removes a user's session. Deleting a missing session is a no-op.
	Delete(ctx context.Context, userID int64)

	// Len returns the number of active sessions.
	Len() int
}

// MemoryStore implements Store with a mutex-guarded map.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[int64]Session),
	}
}

// Get returns the active session for a user, if any.
func (m *MemoryStore) Get(_ context.Context, userID int64) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Put stores a session, replacing any existing one for the same user.
func (m *MemoryStore) Put(_ context.Context, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s
}

// Delete removes a user's session.
func (m *MemoryStore) Delete(_ context.Context, userID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
}

// Len returns the number of active sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
