package orchestrator

import (
	"errors"
	"fmt"

	"github.com/okian/meetstake/internal/adapters/ledger"
)

// Sentinel kinds for precondition failures. All of them are raised before
// anything reaches the ledger; the intent token is released so the user can
// retry.
var (
	ErrDuplicateIntent = errors.New("intent already processed")
	ErrEventNotFound   = errors.New("event not found")
	ErrEventFinalized  = errors.New("event already finalized")
	ErrAlreadyJoined   = errors.New("stake already locked for this event")
	ErrNotParticipant  = errors.New("no stake locked for this event")
	ErrAlreadyAttended = errors.New("attendance already recorded")
	ErrAbsent          = errors.New("reported location outside the event radius")
	ErrNotCreator      = errors.New("only the event creator can finalize")

	// Memory preconditions: posters exist only for settled events that had
	// someone in them.
	ErrEventNotFinalized = errors.New("event not finalized")
	ErrNoParticipants    = errors.New("event has no participants")
)

// PendingError reports a submitted transaction whose confirmation did not
// arrive in time. The transaction may still land; the intent token stays
// consumed so a retry cannot double-submit.
type PendingError struct {
	Tx ledger.TxHandle
}

func (e *PendingError) Error() string {
	return fmt.Sprintf("transaction %s pending confirmation", e.Tx)
}

// MirrorWriteError reports a ledger-confirmed operation whose record-store
// write failed. The ledger holds the truth; the reconciler repairs the
// mirror on its next sweep.
type MirrorWriteError struct {
	Tx  ledger.TxHandle
	Err error
}

func (e *MirrorWriteError) Error() string {
	return fmt.Sprintf("transaction %s confirmed but record write failed: %v", e.Tx, e.Err)
}

func (e *MirrorWriteError) Unwrap() error {
	return e.Err
}
