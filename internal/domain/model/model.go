// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// User identifies a participant. The ID is the chat transport's stable
// numeric identifier; Address is the user's ledger address. Identity is
// immutable after creation, only Name and LastActive may change.
type User struct {
	ID         int64
	Name       string
	Address    string
	CreatedAt  time.Time
	LastActive time.Time
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64
	Lng float64
}

// Event mirrors a ledger event. ID is assigned by the ledger at creation
// and carried into the record store unchanged.
type Event struct {
	ID        int64
	Name      string
	When      time.Time
	Stake     decimal.Decimal
	Creator   string // creator's ledger address
	Anchor    *Location
	Venue     string // free-text venue when no coordinates were given
	Finalized bool
	CreatedAt time.Time
}

// Active reports whether the event still accepts joins and attendance.
func (e Event) Active() bool {
	return !e.Finalized
}

// Participant records one user's stake in one event. The (EventID, Address)
// pair is unique; a row exists only after the stake transfer confirmed.
type Participant struct {
	EventID   int64
	Address   string
	HasStaked bool
	Attended  bool
	CheckIn   *Location
	CheckInAt time.Time
	JoinedAt  time.Time
}

// MemoryAsset is a poster stored in the content-addressed blob store,
// created for finalized events.
type MemoryAsset struct {
	ID        string // client-generated uuid
	EventID   int64
	BlobID    string
	CreatedAt time.Time
}
