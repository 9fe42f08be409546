package orchestrator

import (
	"time"

	"github.com/okian/meetstake/internal/domain/geofence"
	"github.com/okian/meetstake/internal/domain/idempotency"
	"github.com/okian/meetstake/pkg/logger"
)

// Option applies a configuration option to the Orchestrator.
type Option func(*Orchestrator)

// WithConfirmTimeout bounds how long a submitted transaction is awaited
// before the operation is reported as pending.
func WithConfirmTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.confirmTimeout = d
		}
	}
}

// WithGeofence overrides the presence verifier.
func WithGeofence(v *geofence.Verifier) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.fence = v
		}
	}
}

// WithIdempotencyRegistry overrides the intent token registry.
func WithIdempotencyRegistry(r idempotency.Registry) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.tokens = r
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithIDSource injects the memory asset id generator.
func WithIDSource(gen func() string) Option {
	return func(o *Orchestrator) {
		if gen != nil {
			o.newID = gen
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}
