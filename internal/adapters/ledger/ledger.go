// Package ledger defines the contract-runtime collaborator. All mutating
// calls are submit-then-confirm: submission returns a transaction handle,
// Confirm blocks until the receipt lands or ctx is done. Key custody is
// external; callers only ever see Signer capabilities.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TxHandle identifies a submitted transaction; its string form is the
// transaction hash used for audit display.
type TxHandle string

// Receipt is the confirmed outcome of a transaction.
type Receipt struct {
	Hash        TxHandle
	Succeeded   bool
	ConfirmedAt time.Time
}

// Signer is an opaque signing capability for one ledger address.
type Signer interface {
	Address() string
}

// Keyring resolves signing capabilities. The operator signer pays gas for
// finalize and attendance transactions.
type Keyring interface {
	// SignerFor returns the signer for a user, creating a wallet on first
	// request. The bool reports whether a wallet was newly created.
	SignerFor(ctx context.Context, userID int64) (Signer, bool, error)

	// Operator returns the service operator's signer.
	Operator(ctx context.Context) (Signer, error)
}

// EventState is the ledger's authoritative view of one event, used by the
// reconciler to repair missed mirror writes.
type EventState struct {
	ID        int64
	Finalized bool
	Attendees []string // addresses with attendance recorded on-ledger
	Stakers   []string // addresses with a stake locked
}

// Ledger is the contract runtime surface the orchestrator consumes.
type Ledger interface {
	// CreateEvent submits an event-creation transaction. The ledger assigns
	// the authoritative event id at submission time.
	CreateEvent(ctx context.Context, signer Signer, name string, when time.Time, stake decimal.Decimal) (int64, TxHandle, error)

	// JoinEvent transfers the stake from the signer's address into the pool.
	JoinEvent(ctx context.Context, signer Signer, eventID int64, stake decimal.Decimal) (TxHandle, error)

	// FinalizeEvent closes the event to further joins and attendance.
	FinalizeEvent(ctx context.Context, signer Signer, eventID int64) (TxHandle, error)

	// MarkAttendance records on-ledger attendance for an address. The signer
	// is the operator: attendees do not pay gas for this step.
	MarkAttendance(ctx context.Context, signer Signer, eventID int64, attendee string) (TxHandle, error)

	// Confirm blocks until the transaction's receipt is available or ctx is
	// done. Returns ErrConfirmFailed when the transaction reverted.
	Confirm(ctx context.Context, tx TxHandle) (Receipt, error)

	// EventState reads back authoritative event state for reconciliation.
	EventState(ctx context.Context, eventID int64) (EventState, error)

	// Balance returns the spendable balance of an address.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}
