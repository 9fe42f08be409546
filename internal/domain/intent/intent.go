// Package intent defines the completed conversational intents handed from
// the conversation state machine to the orchestrator. Each flow produces
// its own struct; the sealed interface keeps dispatch exhaustive.
package intent

import (
	"time"

	"github.com/okian/meetstake/internal/domain/model"
	"github.com/shopspring/decimal"
)

// Intent is implemented by every completed flow result.
type Intent interface {
	// Flow names the flow the intent completed, for logging and metrics.
	Flow() string
	// IdempotencyToken returns the client-generated token minted when the
	// flow started. Retrying a timed-out submission reuses the token so the
	// ledger operation cannot double-spend.
	IdempotencyToken() string
}

// CreateEvent asks the orchestrator to create a staked event.
type CreateEvent struct {
	UserID int64
	Token  string
	Name   string
	When   time.Time
	Stake  decimal.Decimal
	Anchor *model.Location // nil when the location was free text
	Venue  string
}

func (i CreateEvent) Flow() string { return "create_event" }
func (i CreateEvent) IdempotencyToken() string { return i.Token }

// JoinEvent asks the orchestrator to stake into an existing event.
type JoinEvent struct {
	UserID  int64
	Token   string
	EventID int64
}

func (i JoinEvent) Flow() string { return "join_event" }
func (i JoinEvent) IdempotencyToken() string { return i.Token }

// ConfirmAttendance asks the orchestrator to mark attendance with the
// reported check-in coordinates.
type ConfirmAttendance struct {
	UserID   int64
	Token    string
	EventID  int64
	Location model.Location
}

func (i ConfirmAttendance) Flow() string { return "confirm_attendance" }
func (i ConfirmAttendance) IdempotencyToken() string { return i.Token }

// CreateMemory asks the orchestrator to store a memory poster for a
// finalized event.
type CreateMemory struct {
	UserID   int64
	Token    string
	EventID  int64
	PhotoRef string // transport file reference for the submitted photo
}

func (i CreateMemory) Flow() string { return "create_memory" }
func (i CreateMemory) IdempotencyToken() string { return i.Token }
