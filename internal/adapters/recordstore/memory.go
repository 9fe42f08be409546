package recordstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/okian/meetstake/internal/domain/model"
)

// MemoryStore implements Store with mutex-guarded maps. It enforces the
// same uniqueness rules as the Postgres schema and backs the test suites.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[int64]model.User
	events       map[int64]model.Event
	participants map[int64]map[string]model.Participant
	memories     map[int64][]model.MemoryAsset
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[int64]model.User),
		events:       make(map[int64]model.Event),
		participants: make(map[int64]map[string]model.Participant),
		memories:     make(map[int64][]model.MemoryAsset),
	}
}

// CreateUser inserts a user row.
func (m *MemoryStore) CreateUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; ok {
		return ErrDuplicate
	}
	m.users[u.ID] = u
	return nil
}

// GetUser returns a user by chat id.
func (m *MemoryStore) GetUser(_ context.Context, id int64) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

// TouchUser updates display name and last-active.
func (m *MemoryStore) TouchUser(_ context.Context, id int64, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Name = name
	u.LastActive = at
	m.users[id] = u
	return nil
}

// InsertEvent mirrors a ledger-created event.
func (m *MemoryStore) InsertEvent(_ context.Context, e model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return ErrDuplicate
	}
	m.events[e.ID] = e
	return nil
}

// GetEvent returns an event by ledger id.
func (m *MemoryStore) GetEvent(_ context.Context, id int64) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return e, nil
}

// SetFinalized flips the one-way finalized flag.
func (m *MemoryStore) SetFinalized(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return ErrNotFound
	}
	e.Finalized = true
	m.events[id] = e
	return nil
}

// FindEventsByName returns events matching q, case-insensitive.
func (m *MemoryStore) FindEventsByName(_ context.Context, q string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Event
	needle := strings.ToLower(q)
	for _, e := range m.events {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			out = append(out, e)
		}
	}
	sortEvents(out)
	return out, nil
}

// ListEvents returns events matching the filter.
func (m *MemoryStore) ListEvents(_ context.Context, f EventFilter) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Event
	for _, e := range m.events {
		if f.Creator != "" && e.Creator != f.Creator {
			continue
		}
		if f.ActiveOnly && e.Finalized {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	return out, nil
}

// InsertParticipant records a confirmed stake.
func (m *MemoryStore) InsertParticipant(_ context.Context, p model.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byAddr, ok := m.participants[p.EventID]
	if !ok {
		byAddr = make(map[string]model.Participant)
		m.participants[p.EventID] = byAddr
	}
	if _, ok := byAddr[p.Address]; ok {
		return ErrDuplicate
	}
	byAddr[p.Address] = p
	return nil
}

// GetParticipant returns the row for (eventID, address).
func (m *MemoryStore) GetParticipant(_ context.Context, eventID int64, address string) (model.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.participants[eventID][address]
	if !ok {
		return model.Participant{}, ErrNotFound
	}
	return p, nil
}

// SetAttended marks a participant attended.
func (m *MemoryStore) SetAttended(_ context.Context, eventID int64, address string, loc *model.Location, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[eventID][address]
	if !ok {
		return ErrNotFound
	}
	p.Attended = true
	p.CheckIn = loc
	p.CheckInAt = at
	m.participants[eventID][address] = p
	return nil
}

// ListParticipants returns all participants of an event.
func (m *MemoryStore) ListParticipants(_ context.Context, eventID int64) ([]model.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Participant
	for _, p := range m.participants[eventID] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt.Before(out[j].JoinedAt) })
	return out, nil
}

// AttendableEvents returns joined, active, not-yet-attended events.
func (m *MemoryStore) AttendableEvents(_ context.Context, address string) ([]model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Event
	for eventID, byAddr := range m.participants {
		p, ok := byAddr[address]
		if !ok || p.Attended {
			continue
		}
		e, ok := m.events[eventID]
		if !ok || e.Finalized {
			continue
		}
		out = append(out, e)
	}
	sortEvents(out)
	return out, nil
}

// InsertMemory stores a memory asset row.
func (m *MemoryStore) InsertMemory(_ context.Context, a model.MemoryAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memories[a.EventID] = append(m.memories[a.EventID], a)
	return nil
}

// ListMemories returns an event's memory assets, newest first.
func (m *MemoryStore) ListMemories(_ context.Context, eventID int64) ([]model.MemoryAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MemoryAsset, len(m.memories[eventID]))
	copy(out, m.memories[eventID])
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func sortEvents(events []model.Event) {
	sort.Slice(events, func(i, j int) bool { return events[i].When.Before(events[j].When) })
}
