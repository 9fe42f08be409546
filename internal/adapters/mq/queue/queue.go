// Package queue buffers inbound chat turns between the transport poller
// and the dispatcher. The queue is bounded; when it is full turns are
// dropped at enqueue so a flood of messages cannot exhaust memory.
package queue

import (
	"context"
	"sync"

	"github.com/okian/meetstake/internal/adapters/chat"
	"github.com/okian/meetstake/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
	defaultBufferSize    = 1024
)

// Turn is the payload type flowing through the queue.
type Turn = chat.Turn

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a turn to the queue.
	// Returns false if the queue is full and the turn was not enqueued.
	Enqueue(ctx context.Context, t Turn) bool

	// Dequeue returns a channel that will receive turns as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Turn

	// Len returns the current number of queued turns.
	Len(ctx context.Context) int

	// Close gracefully shuts down the queue. After closing, no new turns
	// can be enqueued and the dequeue channel is closed.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	turns      chan Turn
	capacity   int
	bufferSize int
	mu         sync.RWMutex
	closed     bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity:   defaultQueueCapacity,
		bufferSize: defaultBufferSize,
	}

	// Apply all options
	for _, opt := range opts {
		opt(q)
	}

	q.turns = make(chan Turn, q.bufferSize)

	// Initialize metrics
	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)

	return q
}

// Enqueue adds a turn to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, t Turn) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return false
	}

	if len(q.turns) >= q.capacity {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "capacity_exceeded")
		return false
	}

	select {
	case q.turns <- t:
		metrics.RecordQueueEnqueue()
		q.observeSize()
		return true
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return false
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return false
	}
}

// Dequeue returns a channel that will receive turns as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Turn {
	out := make(chan Turn)
	go func() {
		defer close(out)
		for t := range q.turns {
			select {
			case out <- t:
				metrics.RecordQueueDequeue()
				q.observeSize()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued turns.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.turns)
	q.observeSize()
	return size
}

func (q *InMemoryQueue) observeSize() {
	size := len(q.turns)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	close(q.turns)
	q.closed = true

	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
