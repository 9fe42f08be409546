// Package worker drains the turn queue onto a fixed set of lanes. Turns
// are routed by user id, so one user's turns are processed strictly in
// order while different users proceed in parallel.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/meetstake/internal/adapters/chat"
	"github.com/okian/meetstake/pkg/logger"
	"github.com/okian/meetstake/pkg/metrics"
)

// Default dispatcher configuration constants.
const (
	defaultLaneBuffer      = 64
	dispatchShutdownGrace  = 30 * time.Second
	defaultLaneCountFactor = 4 // lanes per CPU
)

// Turn is what lanes read off the queue.
type Turn = chat.Turn

// Handler processes one turn to completion, replies included.
type Handler interface {
	HandleTurn(ctx context.Context, t Turn)
}

// Queue defines how the dispatcher receives turns.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Turn
}

// Dispatcher fans turns out to lanes keyed by user id.
type Dispatcher struct {
	queue      Queue
	handler    Handler
	lanes      []chan Turn
	laneCount  int
	laneBuffer int

	// Shutdown control
	done chan struct{}
	wg   sync.WaitGroup

	// Logging
	logger logger.Logger
}

// NewDispatcher creates a dispatcher with configuration options.
func NewDispatcher(queue Queue, handler Handler, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		queue:      queue,
		handler:    handler,
		laneCount:  runtime.NumCPU() * defaultLaneCountFactor,
		laneBuffer: defaultLaneBuffer,
		done:       make(chan struct{}),
	}

	// Apply all options
	for _, opt := range opts {
		opt(d)
	}

	if d.logger == nil {
		d.logger = logger.Named("dispatcher")
	}

	d.lanes = make([]chan Turn, d.laneCount)
	for i := range d.lanes {
		d.lanes[i] = make(chan Turn, d.laneBuffer)
	}

	metrics.UpdateWorkerActiveCount(d.laneCount)

	return d
}

// laneFor maps a user id onto a lane. All turns of one user share a lane,
// which is what serializes their processing.
func (d *Dispatcher) laneFor(userID int64) chan Turn {
	idx := int(uint64(userID) % uint64(d.laneCount))
	return d.lanes[idx]
}

// Start launches the lane workers and the routing loop. It returns
// immediately; processing stops when ctx is done or the queue closes.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, lane := range d.lanes {
		d.wg.Add(1)
		go d.runLane(ctx, lane, "lane-"+strconv.Itoa(i))
	}

	go func() {
		defer func() {
			for _, lane := range d.lanes {
				close(lane)
			}
			d.wg.Wait()
			close(d.done)
		}()

		turns := d.queue.Dequeue(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case t, ok := <-turns:
				if !ok {
					return
				}
				select {
				case d.laneFor(t.UserID) <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
}

// runLane processes one lane until it is closed.
func (d *Dispatcher) runLane(ctx context.Context, lane <-chan Turn, name string) {
	defer d.wg.Done()
	log := d.logger.Named(name)

	for t := range lane {
		start := time.Now()
		func() {
			defer func() {
				if r := recover(); r != nil {
					metrics.RecordWorkerError()
					metrics.RecordErrorByComponent("dispatcher", "panic")
					log.Error(ctx, "turn handler panicked",
						logger.Int("user", int(t.UserID)),
						logger.Any("panic", r),
					)
				}
			}()
			d.handler.HandleTurn(ctx, t)
		}()
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
		metrics.RecordTurnProcessed()
	}
}

// Shutdown waits for in-flight turns to finish. The queue must be closed
// first so the routing loop drains and exits.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	sctx, cancel := context.WithTimeout(ctx, dispatchShutdownGrace)
	defer cancel()

	select {
	case <-d.done:
		return nil
	case <-sctx.Done():
		d.logger.Warn(ctx, "dispatcher shutdown timed out")
		return fmt.Errorf("dispatcher shutdown: %w", sctx.Err())
	}
}
