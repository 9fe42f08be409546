// Package idempotency tracks intent tokens so a retried submission cannot
// reach the ledger twice.
package idempotency

import (
	"context"
	"sync"
	"sync/atomic"
)

// Registry records consumed idempotency tokens.
type Registry interface {
	// SeenAndRecord atomically checks whether token was consumed and records
	// it if not. Returns true if the token was already consumed.
	SeenAndRecord(ctx context.Context, token string) bool

	// Unrecord releases a token so the intent may be retried. Used when the
	// operation failed before anything reached the ledger.
	Unrecord(ctx context.Context, token string)

	Size() int64
}

// inMemoryRegistry implements Registry with a bounded map. When the bound
// is hit the whole oldest generation is dropped; tokens are uuids minted per
// flow, so a false negative after eviction only costs a precondition
// re-check, never a double ledger write (the record-store uniqueness
// constraint is the final guard).
type inMemoryRegistry struct {
	mu      sync.Mutex
	current map[string]struct{}
	prior   map[string]struct{}
	maxSize int
	size    atomic.Int64
}

const defaultMaxSize = 100_000

// Option applies a configuration option to the registry.
type Option func(*inMemoryRegistry)

// WithMaxSize bounds the number of tokens kept per generation.
func WithMaxSize(n int) Option {
	return func(r *inMemoryRegistry) {
		if n > 0 {
			r.maxSize = n
		}
	}
}

// NewInMemoryRegistry creates a registry with two-generation eviction.
func NewInMemoryRegistry(opts ...Option) Registry {
	r := &inMemoryRegistry{
		maxSize: defaultMaxSize,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.current = make(map[string]struct{})
	r.prior = make(map[string]struct{})

	return r
}

// SeenAndRecord atomically checks and records a token.
func (r *inMemoryRegistry) SeenAndRecord(_ context.Context, token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.current[token]; ok {
		return true
	}
	if _, ok := r.prior[token]; ok {
		return true
	}

	if len(r.current) >= r.maxSize {
		r.size.Add(int64(-len(r.prior)))
		r.prior = r.current
		r.current = make(map[string]struct{})
	}

	r.current[token] = struct{}{}
	r.size.Add(1)
	return false
}

// Unrecord releases a token.
func (r *inMemoryRegistry) Unrecord(_ context.Context, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.current[token]; ok {
		delete(r.current, token)
		r.size.Add(-1)
		return
	}
	if _, ok := r.prior[token]; ok {
		delete(r.prior, token)
		r.size.Add(-1)
	}
}

// Size returns the number of tracked tokens.
func (r *inMemoryRegistry) Size() int64 {
	return r.size.Load()
}
