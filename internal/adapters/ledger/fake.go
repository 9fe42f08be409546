package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// FakeLedger implements Ledger in memory for tests and local development.
// Failures can be scripted per method; every submission and confirmation is
// counted so tests can assert that rejected operations never reached the
// ledger.
type FakeLedger struct {
	mu          sync.Mutex
	nextEventID int64
	nextTxSeq   int64
	events      map[int64]*EventState
	stakes      map[int64]map[string]decimal.Decimal
	balances    map[string]decimal.Decimal

	// FailNext maps a method name ("createEvent", "joinEvent",
	// "finalizeEvent", "markAttendance", "confirm") to an error returned on
	// the next call, then cleared.
	FailNext map[string]error

	// ConfirmDelay makes Confirm block, for timeout tests.
	ConfirmDelay time.Duration

	// Call counters.
	Submissions   int
	Confirmations int
}

// NewFakeLedger creates an empty fake ledger.
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{
		nextEventID: 1,
		events:      make(map[int64]*EventState),
		stakes:      make(map[int64]map[string]decimal.Decimal),
		balances:    make(map[string]decimal.Decimal),
		FailNext:    make(map[string]error),
	}
}

// SetBalance seeds an address balance.
func (f *FakeLedger) SetBalance(address string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = amount
}

func (f *FakeLedger) failNext(method string) error {
	if err, ok := f.FailNext[method]; ok {
		delete(f.FailNext, method)
		return err
	}
	return nil
}

func (f *FakeLedger) newTx() TxHandle {
	f.nextTxSeq++
	return TxHandle(fmt.Sprintf("0xtx%04d", f.nextTxSeq))
}

// CreateEvent assigns the next event id.
func (f *FakeLedger) CreateEvent(_ context.Context, _ Signer, _ string, _ time.Time, _ decimal.Decimal) (int64, TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions++
	if err := f.failNext("createEvent"); err != nil {
		return 0, "", err
	}

	id := f.nextEventID
	f.nextEventID++
	f.events[id] = &EventState{ID: id}
	f.stakes[id] = make(map[string]decimal.Decimal)
	return id, f.newTx(), nil
}

// JoinEvent locks the stake for the signer's address.
func (f *FakeLedger) JoinEvent(_ context.Context, signer Signer, eventID int64, stake decimal.Decimal) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions++
	if err := f.failNext("joinEvent"); err != nil {
		return "", err
	}

	ev, ok := f.events[eventID]
	if !ok {
		return "", ErrUnknownEvent
	}
	f.stakes[eventID][signer.Address()] = stake
	ev.Stakers = append(ev.Stakers, signer.Address())
	return f.newTx(), nil
}

// FinalizeEvent closes the event.
func (f *FakeLedger) FinalizeEvent(_ context.Context, _ Signer, eventID int64) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions++
	if err := f.failNext("finalizeEvent"); err != nil {
		return "", err
	}

	ev, ok := f.events[eventID]
	if !ok {
		return "", ErrUnknownEvent
	}
	ev.Finalized = true
	return f.newTx(), nil
}

// MarkAttendance records attendance for an address.
func (f *FakeLedger) MarkAttendance(_ context.Context, _ Signer, eventID int64, attendee string) (TxHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submissions++
	if err := f.failNext("markAttendance"); err != nil {
		return "", err
	}

	ev, ok := f.events[eventID]
	if !ok {
		return "", ErrUnknownEvent
	}
	ev.Attendees = append(ev.Attendees, attendee)
	return f.newTx(), nil
}

// Confirm returns a successful receipt, honoring ConfirmDelay and scripted
// failures.
func (f *FakeLedger) Confirm(ctx context.Context, tx TxHandle) (Receipt, error) {
	f.mu.Lock()
	f.Confirmations++
	err := f.failNext("confirm")
	delay := f.ConfirmDelay
	f.mu.Unlock()

	if err != nil {
		return Receipt{Hash: tx}, err
	}
	if delay > 0 {
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return Receipt{Hash: tx, Succeeded: true, ConfirmedAt: time.Now()}, nil
}

// EventState reads back authoritative event state.
func (f *FakeLedger) EventState(_ context.Context, eventID int64) (EventState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[eventID]
	if !ok {
		return EventState{}, ErrUnknownEvent
	}
	out := *ev
	out.Attendees = append([]string(nil), ev.Attendees...)
	out.Stakers = append([]string(nil), ev.Stakers...)
	return out, nil
}

// Balance returns a seeded balance, defaulting to zero.
func (f *FakeLedger) Balance(_ context.Context, address string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[address], nil
}

// FakeKeyring implements Keyring with deterministic addresses derived from
// user ids.
type FakeKeyring struct {
	mu       sync.Mutex
	operator Signer
	known    map[int64]Signer
}

// NewFakeKeyring creates a keyring with the given operator address.
func NewFakeKeyring(operatorAddress string) *FakeKeyring {
	return &FakeKeyring{
		operator: StaticSigner(operatorAddress),
		known:    make(map[int64]Signer),
	}
}

// SignerFor derives a stable per-user address; the first call reports a
// wallet creation.
func (k *FakeKeyring) SignerFor(_ context.Context, userID int64) (Signer, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.known[userID]; ok {
		return s, false, nil
	}
	s := StaticSigner(fmt.Sprintf("0xuser%d", userID))
	k.known[userID] = s
	return s, true, nil
}

// Operator returns the operator signer.
func (k *FakeKeyring) Operator(_ context.Context) (Signer, error) {
	return k.operator, nil
}
