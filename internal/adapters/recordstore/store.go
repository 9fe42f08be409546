// Package recordstore defines the mirrored record store interface and
// errors. The store is the queryable off-chain mirror of ledger state; the
// orchestrator is its sole writer.
package recordstore

import (
	"context"
	"time"

	"github.com/okian/meetstake/internal/domain/model"
)

// EventFilter narrows ListEvents. Zero value lists everything ordered by
// scheduled date.
type EventFilter struct {
	Creator    string // restrict to events created by this address
	ActiveOnly bool   // exclude finalized events
}

// Store provides read/write access to mirrored users, events, participants
// and memory assets.
type Store interface {
	// CreateUser inserts a user row. Returns ErrDuplicate when the user id
	// already exists.
	CreateUser(ctx context.Context, u model.User) error

	// GetUser returns a user by chat id. Returns ErrNotFound when unknown.
	GetUser(ctx context.Context, id int64) (model.User, error)

	// TouchUser updates the mutable identity fields: display name and
	// last-active timestamp.
	TouchUser(ctx context.Context, id int64, name string, at time.Time) error

	// InsertEvent mirrors a ledger-created event. The id is the ledger's.
	// Returns ErrDuplicate when the event id is already mirrored.
	InsertEvent(ctx context.Context, e model.Event) error

	// GetEvent returns an event by ledger id. Returns ErrNotFound when unknown.
	GetEvent(ctx context.Context, id int64) (model.Event, error)

	// SetFinalized flips the one-way finalized flag.
	SetFinalized(ctx context.Context, id int64) error

	// FindEventsByName returns events whose name contains q, case-insensitive,
	// ordered by scheduled date.
	FindEventsByName(ctx context.Context, q string) ([]model.Event, error)

	// ListEvents returns events matching the filter, ordered by scheduled date.
	ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error)

	// InsertParticipant records a confirmed stake. The (event, address) pair
	// is unique; a second insert returns ErrDuplicate.
	InsertParticipant(ctx context.Context, p model.Participant) error

	// GetParticipant returns the participant row for (eventID, address).
	// Returns ErrNotFound when the user never joined.
	GetParticipant(ctx context.Context, eventID int64, address string) (model.Participant, error)

	// SetAttended marks a participant attended with their check-in location.
	SetAttended(ctx context.Context, eventID int64, address string, loc *model.Location, at time.Time) error

	// ListParticipants returns all participants of an event ordered by join time.
	ListParticipants(ctx context.Context, eventID int64) ([]model.Participant, error)

	// AttendableEvents returns events the address has joined that are not
	// finalized and not yet attended, ordered by scheduled date.
	AttendableEvents(ctx context.Context, address string) ([]model.Event, error)

	// InsertMemory stores a memory asset row.
	InsertMemory(ctx context.Context, m model.MemoryAsset) error

	// ListMemories returns an event's memory assets, newest first.
	ListMemories(ctx context.Context, eventID int64) ([]model.MemoryAsset, error)
}
