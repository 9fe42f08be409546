// Package simulator drives the full bot stack against in-memory
// collaborators: scripted users create events, lock stakes, check in and
// settle, and the resulting mirror is verified against the ledger. It is a
// smoke and load tool for local runs, not a test suite.
package simulator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/meetstake/internal/adapters/chat"
	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/okian/meetstake/internal/adapters/recordstore"
	service "github.com/okian/meetstake/internal/app"
	"github.com/okian/meetstake/internal/conversation"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/okian/meetstake/internal/domain/session"
	"github.com/okian/meetstake/internal/orchestrator"
	"github.com/okian/meetstake/internal/render"
	"github.com/okian/meetstake/pkg/logger"
)

// Simulated user id ranges. Creators and joiners never overlap.
const (
	creatorIDBase = 1
	joinerIDBase  = 1000

	pollInterval = 10 * time.Millisecond
)

// scriptedDelivery feeds turns from the script and counts replies.
type scriptedDelivery struct {
	mu      sync.Mutex
	updates chan chat.Turn
	replies int
}

func (d *scriptedDelivery) Updates(_ context.Context) <-chan chat.Turn { return d.updates }

func (d *scriptedDelivery) SendText(_ context.Context, _ int64, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies++
	return nil
}

func (d *scriptedDelivery) SendOptions(_ context.Context, _ int64, _ string, _ []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies++
	return nil
}

func (d *scriptedDelivery) replyCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.replies
}

// memBlobs is a content-counting blob stub.
type memBlobs struct {
	mu     sync.Mutex
	stored int
}

func (b *memBlobs) Store(_ context.Context, _ []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stored++
	return fmt.Sprintf("blob-%d", b.stored), nil
}

func (b *memBlobs) URL(id string) string { return "sim://blobs/" + id }

type memPhotos struct{}

func (memPhotos) FetchFile(_ context.Context, ref string) ([]byte, error) {
	return []byte("photo:" + ref), nil
}

// Run executes one simulation and verifies the mirror against the ledger.
func Run(ctx context.Context, cfg *Config) error {
	log := logger.Named("simulator")

	store := recordstore.NewMemoryStore()
	lgr := ledger.NewFakeLedger()
	delivery := &scriptedDelivery{updates: make(chan chat.Turn, cfg.Joiners*8+cfg.Events*16)}
	blobs := &memBlobs{}

	if cfg.Events <= 0 || cfg.Joiners < cfg.Events {
		return fmt.Errorf("need at least one joiner per event (events=%d, joiners=%d)", cfg.Events, cfg.Joiners)
	}

	orch := orchestrator.New(store, lgr, ledger.NewFakeKeyring("0xoperator"), blobs, memPhotos{})
	machine := conversation.New(session.NewMemoryStore(), orch)
	svc := service.New(delivery, machine, orch, render.New("ETH", "Sim"))

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	log.Info(ctx, "simulation starting",
		logger.Int("events", cfg.Events),
		logger.Int("joiners", cfg.Joiners),
		logger.Int("seed", int(seed)),
	)

	start := time.Now()
	when := time.Now().Add(24 * time.Hour).Format("2006-01-02 15:04")

	// Phase 1: each creator builds one anchored event.
	for i := 0; i < cfg.Events; i++ {
		userID := int64(creatorIDBase + i)
		anchor := anchorFor(i)
		push(delivery,
			cmd(userID, "create_event", ""),
			txt(userID, eventName(i)),
			txt(userID, when),
			txt(userID, "0.01"),
			txt(userID, fmt.Sprintf("%f, %f", anchor.Lat, anchor.Lng)),
		)
	}
	if err := await(ctx, cfg.PhaseTimeout, "events mirrored", func() (bool, error) {
		events, err := store.ListEvents(ctx, recordstore.EventFilter{})
		return len(events) == cfg.Events, err
	}); err != nil {
		return err
	}

	// Creators race, so ledger ids do not follow creator order. Resolve
	// each scripted event's id by its unique name.
	ids := make([]int64, cfg.Events)
	for i := 0; i < cfg.Events; i++ {
		matches, err := store.FindEventsByName(ctx, eventName(i))
		if err != nil || len(matches) != 1 {
			return fmt.Errorf("resolve event %q: %d matches, err=%v", eventName(i), len(matches), err)
		}
		ids[i] = matches[0].ID
	}

	// Phase 2: joiners pick an event and lock their stake. The first
	// cfg.Events joiners cover every event so settlement and memories have
	// a participant everywhere; the rest pick at random.
	assignment := make(map[int64]int) // joiner id -> event index
	for j := 0; j < cfg.Joiners; j++ {
		userID := int64(joinerIDBase + j)
		idx := j % cfg.Events
		if j >= cfg.Events {
			idx = rng.Intn(cfg.Events)
		}
		assignment[userID] = idx
		push(delivery,
			cmd(userID, "join_event", ""),
			txt(userID, eventName(idx)),
			sel(userID, "confirm"),
		)
	}
	if err := await(ctx, cfg.PhaseTimeout, "stakes locked", func() (bool, error) {
		n, err := participantCount(ctx, store, cfg.Events)
		return n == cfg.Joiners, err
	}); err != nil {
		return err
	}

	// Phase 3: every joiner checks in at the event anchor. Each joined
	// exactly one event, so the attendance flow skips the selector.
	for userID, idx := range assignment {
		anchor := anchorFor(idx)
		push(delivery,
			cmd(userID, "attend", ""),
			loc(userID, anchor),
		)
	}
	if err := await(ctx, cfg.PhaseTimeout, "attendance recorded", func() (bool, error) {
		n, err := attendedCount(ctx, store, cfg.Events)
		return n == cfg.Joiners, err
	}); err != nil {
		return err
	}

	// Phase 4: creators settle, then post one memory each.
	for i := 0; i < cfg.Events; i++ {
		userID := int64(creatorIDBase + i)
		push(delivery, cmd(userID, "finalize", fmt.Sprintf("%d", ids[i])))
	}
	if err := await(ctx, cfg.PhaseTimeout, "events settled", func() (bool, error) {
		events, err := store.ListEvents(ctx, recordstore.EventFilter{ActiveOnly: true})
		return len(events) == 0, err
	}); err != nil {
		return err
	}

	for i := 0; i < cfg.Events; i++ {
		userID := int64(creatorIDBase + i)
		push(delivery,
			cmd(userID, "memory", ""),
			sel(userID, fmt.Sprintf("#%d", ids[i])),
			photo(userID, fmt.Sprintf("file-%d", ids[i])),
		)
	}
	if err := await(ctx, cfg.PhaseTimeout, "memories stored", func() (bool, error) {
		n := 0
		for _, id := range ids {
			assets, err := store.ListMemories(ctx, id)
			if err != nil {
				return false, err
			}
			n += len(assets)
		}
		return n == cfg.Events, nil
	}); err != nil {
		return err
	}

	close(delivery.updates)
	if err := svc.Stop(ctx); err != nil {
		return fmt.Errorf("stop service: %w", err)
	}

	if err := verify(ctx, store, lgr, cfg.Events); err != nil {
		return err
	}

	log.Info(ctx, "simulation passed",
		logger.Int("events", cfg.Events),
		logger.Int("joiners", cfg.Joiners),
		logger.Int("ledgerSubmissions", lgr.Submissions),
		logger.Int("replies", delivery.replyCount()),
		logger.String("elapsed", time.Since(start).String()),
	)
	return nil
}

func eventName(i int) string { return fmt.Sprintf("Meetup %03d", i+1) }

// anchorFor spreads event anchors far enough apart that only an exact
// check-in lands inside the presence radius.
func anchorFor(i int) model.Location {
	return model.Location{Lat: 1.0 + float64(i)*0.1, Lng: 103.8}
}

func cmd(userID int64, name, args string) chat.Turn {
	return chat.Turn{UserID: userID, UserName: fmt.Sprintf("sim-%d", userID), Kind: chat.KindCommand, Command: name, Args: args}
}

func txt(userID int64, s string) chat.Turn {
	return chat.Turn{UserID: userID, UserName: fmt.Sprintf("sim-%d", userID), Kind: chat.KindText, Text: s}
}

func sel(userID int64, payload string) chat.Turn {
	return chat.Turn{UserID: userID, Kind: chat.KindSelection, Selection: payload}
}

func loc(userID int64, l model.Location) chat.Turn {
	return chat.Turn{UserID: userID, Kind: chat.KindLocation, Location: &l}
}

func photo(userID int64, ref string) chat.Turn {
	return chat.Turn{UserID: userID, Kind: chat.KindPhoto, PhotoRef: ref}
}

func push(d *scriptedDelivery, turns ...chat.Turn) {
	for _, t := range turns {
		d.updates <- t
	}
}

// await polls until cond holds or the phase times out.
func await(ctx context.Context, timeout time.Duration, phase string, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := cond()
		if err != nil {
			return fmt.Errorf("%s: %w", phase, err)
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s: phase did not settle within %s", phase, timeout)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", phase, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func participantCount(ctx context.Context, store recordstore.Store, events int) (int, error) {
	n := 0
	for i := 0; i < events; i++ {
		ps, err := store.ListParticipants(ctx, int64(i+1))
		if err != nil {
			return 0, err
		}
		n += len(ps)
	}
	return n, nil
}

func attendedCount(ctx context.Context, store recordstore.Store, events int) (int, error) {
	n := 0
	for i := 0; i < events; i++ {
		ps, err := store.ListParticipants(ctx, int64(i+1))
		if err != nil {
			return 0, err
		}
		for _, p := range ps {
			if p.Attended {
				n++
			}
		}
	}
	return n, nil
}

// verify compares the mirror against authoritative ledger state, the same
// comparison the reconciler makes.
func verify(ctx context.Context, store recordstore.Store, lgr ledger.Ledger, events int) error {
	for i := 0; i < events; i++ {
		id := int64(i + 1)

		state, err := lgr.EventState(ctx, id)
		if err != nil {
			return fmt.Errorf("ledger state for event %d: %w", id, err)
		}
		ev, err := store.GetEvent(ctx, id)
		if err != nil {
			return fmt.Errorf("mirror row for event %d: %w", id, err)
		}
		if ev.Finalized != state.Finalized {
			return fmt.Errorf("event %d: finalized mismatch (mirror %t, ledger %t)", id, ev.Finalized, state.Finalized)
		}

		ps, err := store.ListParticipants(ctx, id)
		if err != nil {
			return fmt.Errorf("mirror participants for event %d: %w", id, err)
		}
		if len(ps) != len(state.Stakers) {
			return fmt.Errorf("event %d: staker count mismatch (mirror %d, ledger %d)", id, len(ps), len(state.Stakers))
		}
		attended := 0
		for _, p := range ps {
			if p.Attended {
				attended++
			}
		}
		if attended != len(state.Attendees) {
			return fmt.Errorf("event %d: attendee count mismatch (mirror %d, ledger %d)", id, attended, len(state.Attendees))
		}
	}
	return nil
}
