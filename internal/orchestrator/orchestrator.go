// Package orchestrator executes completed intents against the ledger and
// mirrors confirmed outcomes into the record store. Every mutating
// operation follows the same two-phase shape: validate against the mirror,
// submit and confirm on the ledger, then write the mirror row. The ledger
// is authoritative; a failed mirror write is surfaced as a distinguished
// error and repaired by the reconciler.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/okian/meetstake/internal/adapters/recordstore"
	"github.com/okian/meetstake/internal/domain/geofence"
	"github.com/okian/meetstake/internal/domain/idempotency"
	"github.com/okian/meetstake/internal/domain/intent"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/okian/meetstake/pkg/logger"
	"github.com/okian/meetstake/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Default configuration.
const (
	defaultConfirmTimeout = 60 * time.Second
)

// BlobStore is the content-addressed store for memory photos.
type BlobStore interface {
	Store(ctx context.Context, data []byte) (string, error)
	URL(blobID string) string
}

// PhotoSource fetches photo bytes by the chat transport's file reference.
type PhotoSource interface {
	FetchFile(ctx context.Context, ref string) ([]byte, error)
}

// Orchestrator coordinates the ledger, the record store and the blob store.
type Orchestrator struct {
	store  recordstore.Store
	ledger ledger.Ledger
	keys   ledger.Keyring
	blobs  BlobStore
	photos PhotoSource
	fence  *geofence.Verifier
	tokens idempotency.Registry
	logger logger.Logger

	confirmTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

// New creates an Orchestrator over its collaborators.
func New(store recordstore.Store, lgr ledger.Ledger, keys ledger.Keyring, blobs BlobStore, photos PhotoSource, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:          store,
		ledger:         lgr,
		keys:           keys,
		blobs:          blobs,
		photos:         photos,
		fence:          geofence.New(),
		tokens:         idempotency.NewInMemoryRegistry(),
		confirmTimeout: defaultConfirmTimeout,
		now:            time.Now,
		newID:          uuid.NewString,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = logger.Named("orchestrator")
	}

	return o
}

// CreateEventResult is the confirmed outcome of an event creation.
type CreateEventResult struct {
	Event model.Event
	Tx    ledger.TxHandle
}

// JoinResult is the confirmed outcome of a stake lock.
type JoinResult struct {
	Event model.Event
	Tx    ledger.TxHandle
}

// AttendanceResult is the confirmed outcome of an attendance check-in.
type AttendanceResult struct {
	Event    model.Event
	Decision geofence.Decision
	Tx       ledger.TxHandle
}

// FinalizeResult is the confirmed outcome of an event settlement.
type FinalizeResult struct {
	Event     model.Event
	Tx        ledger.TxHandle
	Attendees int
	Stakers   int
}

// MemoryResult is the outcome of a stored memory photo.
type MemoryResult struct {
	Event model.Event
	Asset model.MemoryAsset
	URL   string
}

// EnsureUser resolves the user row for a chat identity, creating the wallet
// and the row on first contact. The bool reports a fresh wallet.
func (o *Orchestrator) EnsureUser(ctx context.Context, userID int64, name string) (model.User, bool, error) {
	u, err := o.store.GetUser(ctx, userID)
	if err == nil {
		if terr := o.store.TouchUser(ctx, userID, name, o.now()); terr != nil {
			o.logger.Warn(ctx, "touch user failed", logger.Int("user", int(userID)), logger.Error(terr))
		}
		return u, false, nil
	}
	if !errors.Is(err, recordstore.ErrNotFound) {
		return model.User{}, false, fmt.Errorf("get user: %w", err)
	}

	signer, created, err := o.keys.SignerFor(ctx, userID)
	if err != nil {
		return model.User{}, false, fmt.Errorf("resolve signer: %w", err)
	}

	u = model.User{
		ID:         userID,
		Name:       name,
		Address:    signer.Address(),
		CreatedAt:  o.now(),
		LastActive: o.now(),
	}
	if err := o.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, recordstore.ErrDuplicate) {
			// Lost a race with a concurrent first contact.
			u, err = o.store.GetUser(ctx, userID)
			return u, false, err
		}
		return model.User{}, false, fmt.Errorf("create user: %w", err)
	}
	return u, created, nil
}

// Balance returns the spendable balance and address of a user's wallet.
func (o *Orchestrator) Balance(ctx context.Context, userID int64) (decimal.Decimal, string, error) {
	signer, _, err := o.keys.SignerFor(ctx, userID)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("resolve signer: %w", err)
	}
	bal, err := o.ledger.Balance(ctx, signer.Address())
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("balance: %w", err)
	}
	return bal, signer.Address(), nil
}

// CreateEvent submits an event creation signed by the creator and mirrors
// the confirmed event under the ledger-assigned id.
func (o *Orchestrator) CreateEvent(ctx context.Context, in intent.CreateEvent) (CreateEventResult, error) {
	if o.consumeToken(ctx, in) {
		return CreateEventResult{}, ErrDuplicateIntent
	}

	signer, _, err := o.keys.SignerFor(ctx, in.UserID)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return CreateEventResult{}, fmt.Errorf("resolve signer: %w", err)
	}

	id, tx, err := o.ledger.CreateEvent(ctx, signer, in.Name, in.When, in.Stake)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		metrics.RecordLedgerSubmitError("createEvent")
		return CreateEventResult{}, fmt.Errorf("create event: %w", err)
	}
	metrics.RecordLedgerSubmission("createEvent")

	if err := o.confirm(ctx, tx, in.Token); err != nil {
		return CreateEventResult{}, err
	}

	ev := model.Event{
		ID:        id,
		Name:      in.Name,
		When:      in.When,
		Stake:     in.Stake,
		Creator:   signer.Address(),
		Anchor:    in.Anchor,
		Venue:     in.Venue,
		CreatedAt: o.now(),
	}
	if err := o.store.InsertEvent(ctx, ev); err != nil && !errors.Is(err, recordstore.ErrDuplicate) {
		return CreateEventResult{}, o.mirrorFailure(ctx, tx, "insert event", err)
	}

	return CreateEventResult{Event: ev, Tx: tx}, nil
}

// JoinEvent locks the caller's stake into the event pool. The duplicate
// check runs against the mirror before anything is signed: a user who
// already joined never reaches the ledger.
func (o *Orchestrator) JoinEvent(ctx context.Context, in intent.JoinEvent) (JoinResult, error) {
	if o.consumeToken(ctx, in) {
		return JoinResult{}, ErrDuplicateIntent
	}

	ev, err := o.eventForUpdate(ctx, in.EventID)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return JoinResult{}, err
	}

	signer, _, err := o.keys.SignerFor(ctx, in.UserID)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return JoinResult{}, fmt.Errorf("resolve signer: %w", err)
	}

	if _, err := o.store.GetParticipant(ctx, ev.ID, signer.Address()); err == nil {
		o.tokens.Unrecord(ctx, in.Token)
		return JoinResult{}, ErrAlreadyJoined
	} else if !errors.Is(err, recordstore.ErrNotFound) {
		o.tokens.Unrecord(ctx, in.Token)
		return JoinResult{}, fmt.Errorf("get participant: %w", err)
	}

	tx, err := o.ledger.JoinEvent(ctx, signer, ev.ID, ev.Stake)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		metrics.RecordLedgerSubmitError("joinEvent")
		return JoinResult{}, fmt.Errorf("join event: %w", err)
	}
	metrics.RecordLedgerSubmission("joinEvent")

	if err := o.confirm(ctx, tx, in.Token); err != nil {
		return JoinResult{}, err
	}

	p := model.Participant{
		EventID:   ev.ID,
		Address:   signer.Address(),
		HasStaked: true,
		JoinedAt:  o.now(),
	}
	if err := o.store.InsertParticipant(ctx, p); err != nil && !errors.Is(err, recordstore.ErrDuplicate) {
		return JoinResult{}, o.mirrorFailure(ctx, tx, "insert participant", err)
	}

	return JoinResult{Event: ev, Tx: tx}, nil
}

// ConfirmAttendance verifies the reported location against the event anchor
// and, when present, records on-ledger attendance signed by the operator so
// the attendee pays no gas.
func (o *Orchestrator) ConfirmAttendance(ctx context.Context, in intent.ConfirmAttendance) (AttendanceResult, error) {
	if o.consumeToken(ctx, in) {
		return AttendanceResult{}, ErrDuplicateIntent
	}

	ev, err := o.eventForUpdate(ctx, in.EventID)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return AttendanceResult{}, err
	}

	signer, _, err := o.keys.SignerFor(ctx, in.UserID)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return AttendanceResult{}, fmt.Errorf("resolve signer: %w", err)
	}
	address := signer.Address()

	p, err := o.store.GetParticipant(ctx, ev.ID, address)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		if errors.Is(err, recordstore.ErrNotFound) {
			return AttendanceResult{}, ErrNotParticipant
		}
		return AttendanceResult{}, fmt.Errorf("get participant: %w", err)
	}
	if p.Attended {
		o.tokens.Unrecord(ctx, in.Token)
		return AttendanceResult{}, ErrAlreadyAttended
	}

	decision := o.fence.Verify(in.Location, ev.Anchor)
	metrics.RecordGeofenceDecision(string(decision))
	if decision == geofence.Absent {
		o.tokens.Unrecord(ctx, in.Token)
		return AttendanceResult{}, ErrAbsent
	}

	operator, err := o.keys.Operator(ctx)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return AttendanceResult{}, fmt.Errorf("operator signer: %w", err)
	}

	tx, err := o.ledger.MarkAttendance(ctx, operator, ev.ID, address)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		metrics.RecordLedgerSubmitError("markAttendance")
		return AttendanceResult{}, fmt.Errorf("mark attendance: %w", err)
	}
	metrics.RecordLedgerSubmission("markAttendance")

	if err := o.confirm(ctx, tx, in.Token); err != nil {
		return AttendanceResult{}, err
	}

	loc := in.Location
	if err := o.store.SetAttended(ctx, ev.ID, address, &loc, o.now()); err != nil {
		return AttendanceResult{}, o.mirrorFailure(ctx, tx, "set attended", err)
	}

	return AttendanceResult{Event: ev, Decision: decision, Tx: tx}, nil
}

// FinalizeEvent settles the event: stakes are redistributed on-ledger to
// the recorded attendees. Only the creator may finalize, and the operator
// signs the settlement transaction.
func (o *Orchestrator) FinalizeEvent(ctx context.Context, userID, eventID int64) (FinalizeResult, error) {
	ev, err := o.eventForUpdate(ctx, eventID)
	if err != nil {
		return FinalizeResult{}, err
	}

	signer, _, err := o.keys.SignerFor(ctx, userID)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("resolve signer: %w", err)
	}
	if signer.Address() != ev.Creator {
		return FinalizeResult{}, ErrNotCreator
	}

	operator, err := o.keys.Operator(ctx)
	if err != nil {
		return FinalizeResult{}, fmt.Errorf("operator signer: %w", err)
	}

	tx, err := o.ledger.FinalizeEvent(ctx, operator, eventID)
	if err != nil {
		metrics.RecordLedgerSubmitError("finalizeEvent")
		return FinalizeResult{}, fmt.Errorf("finalize event: %w", err)
	}
	metrics.RecordLedgerSubmission("finalizeEvent")

	if err := o.confirm(ctx, tx, ""); err != nil {
		return FinalizeResult{}, err
	}

	if err := o.store.SetFinalized(ctx, eventID); err != nil {
		return FinalizeResult{}, o.mirrorFailure(ctx, tx, "set finalized", err)
	}

	participants, err := o.store.ListParticipants(ctx, eventID)
	if err != nil {
		o.logger.Warn(ctx, "list participants failed", logger.Int("event", int(eventID)), logger.Error(err))
	}
	res := FinalizeResult{Event: ev, Tx: tx, Stakers: len(participants)}
	res.Event.Finalized = true
	for _, p := range participants {
		if p.Attended {
			res.Attendees++
		}
	}
	return res, nil
}

// CreateMemory uploads the photo to the blob store and records the asset.
// Memories exist only for finalized events with at least one participant.
// No ledger transaction is involved; the blob id is content-addressed, so a
// retried upload of the same bytes is harmless.
func (o *Orchestrator) CreateMemory(ctx context.Context, in intent.CreateMemory) (MemoryResult, error) {
	if o.consumeToken(ctx, in) {
		return MemoryResult{}, ErrDuplicateIntent
	}

	ev, err := o.store.GetEvent(ctx, in.EventID)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		if errors.Is(err, recordstore.ErrNotFound) {
			return MemoryResult{}, ErrEventNotFound
		}
		return MemoryResult{}, fmt.Errorf("get event: %w", err)
	}
	if !ev.Finalized {
		o.tokens.Unrecord(ctx, in.Token)
		return MemoryResult{}, ErrEventNotFinalized
	}
	participants, err := o.store.ListParticipants(ctx, ev.ID)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return MemoryResult{}, fmt.Errorf("list participants: %w", err)
	}
	if len(participants) == 0 {
		o.tokens.Unrecord(ctx, in.Token)
		return MemoryResult{}, ErrNoParticipants
	}

	data, err := o.photos.FetchFile(ctx, in.PhotoRef)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return MemoryResult{}, fmt.Errorf("fetch photo: %w", err)
	}

	blobID, err := o.blobs.Store(ctx, data)
	if err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		metrics.RecordBlobUploadError()
		return MemoryResult{}, fmt.Errorf("store blob: %w", err)
	}
	metrics.RecordBlobUpload()

	asset := model.MemoryAsset{
		ID:        o.newID(),
		EventID:   ev.ID,
		BlobID:    blobID,
		CreatedAt: o.now(),
	}
	if err := o.store.InsertMemory(ctx, asset); err != nil {
		o.tokens.Unrecord(ctx, in.Token)
		return MemoryResult{}, fmt.Errorf("insert memory: %w", err)
	}

	return MemoryResult{Event: ev, Asset: asset, URL: o.blobs.URL(blobID)}, nil
}

// Memories lists an event's stored memory assets, newest first.
func (o *Orchestrator) Memories(ctx context.Context, eventID int64) ([]model.MemoryAsset, error) {
	return o.store.ListMemories(ctx, eventID)
}

// MemoryLinks resolves an event and the display URLs of its memories.
func (o *Orchestrator) MemoryLinks(ctx context.Context, eventID int64) (model.Event, []string, error) {
	ev, err := o.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return model.Event{}, nil, ErrEventNotFound
		}
		return model.Event{}, nil, fmt.Errorf("get event: %w", err)
	}
	assets, err := o.store.ListMemories(ctx, eventID)
	if err != nil {
		return model.Event{}, nil, fmt.Errorf("list memories: %w", err)
	}
	urls := make([]string, len(assets))
	for i, a := range assets {
		urls[i] = o.blobs.URL(a.BlobID)
	}
	return ev, urls, nil
}

// FindEventsByName implements conversation.Directory.
func (o *Orchestrator) FindEventsByName(ctx context.Context, q string) ([]model.Event, error) {
	return o.store.FindEventsByName(ctx, q)
}

// AttendableEvents implements conversation.Directory. The chat identity is
// resolved to a ledger address first.
func (o *Orchestrator) AttendableEvents(ctx context.Context, userID int64) ([]model.Event, error) {
	signer, _, err := o.keys.SignerFor(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve signer: %w", err)
	}
	return o.store.AttendableEvents(ctx, signer.Address())
}

// ListEvents implements conversation.Directory.
func (o *Orchestrator) ListEvents(ctx context.Context) ([]model.Event, error) {
	return o.store.ListEvents(ctx, recordstore.EventFilter{})
}

// eventForUpdate loads an event and rejects mutations on finalized ones.
func (o *Orchestrator) eventForUpdate(ctx context.Context, eventID int64) (model.Event, error) {
	ev, err := o.store.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, recordstore.ErrNotFound) {
			return model.Event{}, ErrEventNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	if ev.Finalized {
		return model.Event{}, ErrEventFinalized
	}
	return ev, nil
}

// consumeToken spends the intent's idempotency token, reporting true when
// an earlier submission already spent it.
func (o *Orchestrator) consumeToken(ctx context.Context, in intent.Intent) bool {
	return o.tokens.SeenAndRecord(ctx, in.IdempotencyToken())
}

// confirm awaits the receipt within the configured timeout. On timeout the
// token stays consumed: the transaction may still land, and a retry with
// the same token must not double-submit. A reverted transaction releases
// the token.
func (o *Orchestrator) confirm(ctx context.Context, tx ledger.TxHandle, token string) error {
	cctx, cancel := context.WithTimeout(ctx, o.confirmTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := o.ledger.Confirm(cctx, tx)
	if err != nil {
		if cctx.Err() != nil {
			metrics.RecordLedgerConfirmTimeout()
			o.logger.Warn(ctx, "confirmation timed out", logger.String("tx", string(tx)))
			return &PendingError{Tx: tx}
		}
		if token != "" {
			o.tokens.Unrecord(ctx, token)
		}
		return fmt.Errorf("confirm %s: %w", tx, err)
	}
	metrics.RecordLedgerConfirmLatency(float64(time.Since(start).Milliseconds()))

	if !receipt.Succeeded {
		if token != "" {
			o.tokens.Unrecord(ctx, token)
		}
		return fmt.Errorf("confirm %s: %w", tx, ledger.ErrConfirmFailed)
	}
	return nil
}

// mirrorFailure logs a confirmed transaction whose mirror write failed and
// wraps it in the distinguished error the renderer reports truthfully.
func (o *Orchestrator) mirrorFailure(ctx context.Context, tx ledger.TxHandle, op string, err error) error {
	metrics.RecordMirrorWriteFailure()
	o.logger.Error(ctx, "record write failed after confirmation",
		logger.String("op", op),
		logger.String("tx", string(tx)),
		logger.Error(err),
	)
	return &MirrorWriteError{Tx: tx, Err: err}
}
