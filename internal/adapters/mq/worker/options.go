// Package worker drains the turn queue onto per-user lanes.
package worker

import (
	"github.com/okian/meetstake/pkg/logger"
)

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithLaneCount sets the number of parallel lanes.
func WithLaneCount(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.laneCount = n
		}
	}
}

// WithLaneBuffer sets the per-lane channel buffer.
func WithLaneBuffer(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.laneBuffer = n
		}
	}
}

// WithLogger sets a custom logger for the dispatcher.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}
