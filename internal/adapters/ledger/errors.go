package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrSubmitFailed  = errors.New("transaction submission failed")
	ErrConfirmFailed = errors.New("transaction reverted")
	ErrUnknownTx     = errors.New("unknown transaction")
	ErrUnknownEvent  = errors.New("unknown event")
)
