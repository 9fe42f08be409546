package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/meetstake/internal/adapters/ledger"
	"github.com/okian/meetstake/internal/adapters/recordstore"
	"github.com/okian/meetstake/internal/domain/model"
	"github.com/okian/meetstake/pkg/logger"
	"github.com/okian/meetstake/pkg/metrics"
)

// Default reconciler configuration.
const (
	defaultSweepInterval = 5 * time.Minute
)

// Reconciler repairs the record store from authoritative ledger state. A
// mirror write that failed after confirmation leaves the stores divergent;
// each sweep walks the active events and replays what the ledger knows.
type Reconciler struct {
	store    recordstore.Store
	ledger   ledger.Ledger
	interval time.Duration
	logger   logger.Logger
	now      func() time.Time
}

// ReconcilerOption applies a configuration option to the Reconciler.
type ReconcilerOption func(*Reconciler)

// WithSweepInterval sets the time between sweeps.
func WithSweepInterval(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithReconcilerClock injects the time source.
func WithReconcilerClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler creates a Reconciler over the mirror and the ledger.
func NewReconciler(store recordstore.Store, lgr ledger.Ledger, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store:    store,
		ledger:   lgr,
		interval: defaultSweepInterval,
		logger:   logger.Named("reconciler"),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run sweeps on the configured interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				r.logger.Error(ctx, "sweep failed", logger.Error(err))
			}
		}
	}
}

// Sweep runs one reconciliation pass over all non-finalized events and
// returns the first listing error. Per-event repair errors are logged and
// skipped so one bad event cannot starve the rest.
func (r *Reconciler) Sweep(ctx context.Context) error {
	metrics.RecordReconcileRun()

	events, err := r.store.ListEvents(ctx, recordstore.EventFilter{ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	for _, ev := range events {
		if err := r.reconcileEvent(ctx, ev); err != nil {
			r.logger.Error(ctx, "event reconcile failed",
				logger.Int("event", int(ev.ID)),
				logger.Error(err),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (r *Reconciler) reconcileEvent(ctx context.Context, ev model.Event) error {
	state, err := r.ledger.EventState(ctx, ev.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownEvent) {
			// Mirrored but never confirmed on-ledger; nothing to repair from.
			return nil
		}
		return fmt.Errorf("event state: %w", err)
	}

	participants, err := r.store.ListParticipants(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}
	known := make(map[string]model.Participant, len(participants))
	for _, p := range participants {
		known[p.Address] = p
	}

	for _, address := range state.Stakers {
		if _, ok := known[address]; ok {
			continue
		}
		p := model.Participant{
			EventID:   ev.ID,
			Address:   address,
			HasStaked: true,
			JoinedAt:  r.now(),
		}
		if err := r.store.InsertParticipant(ctx, p); err != nil && !errors.Is(err, recordstore.ErrDuplicate) {
			return fmt.Errorf("repair participant %s: %w", address, err)
		}
		metrics.RecordReconcileRepair()
		r.logger.Info(ctx, "repaired missing participant",
			logger.Int("event", int(ev.ID)),
			logger.String("address", address),
		)
		known[p.Address] = p
	}

	for _, address := range state.Attendees {
		p, ok := known[address]
		if !ok || p.Attended {
			continue
		}
		// The check-in location was lost with the original write.
		if err := r.store.SetAttended(ctx, ev.ID, address, nil, r.now()); err != nil {
			return fmt.Errorf("repair attendance %s: %w", address, err)
		}
		metrics.RecordReconcileRepair()
		r.logger.Info(ctx, "repaired missing attendance",
			logger.Int("event", int(ev.ID)),
			logger.String("address", address),
		)
	}

	if state.Finalized && !ev.Finalized {
		if err := r.store.SetFinalized(ctx, ev.ID); err != nil {
			return fmt.Errorf("repair finalized: %w", err)
		}
		metrics.RecordReconcileRepair()
		r.logger.Info(ctx, "repaired finalized flag", logger.Int("event", int(ev.ID)))
	}

	return nil
}
