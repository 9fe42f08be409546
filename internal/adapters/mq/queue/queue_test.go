package queue

import (
	"context"
	"testing"
	"time"

	"github.com/okian/meetstake/internal/adapters/chat"
)

func textTurn(userID int64, text string) Turn {
	return Turn{UserID: userID, Kind: chat.KindText, Text: text}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if !q.Enqueue(ctx, textTurn(1, "hello")) {
		t.Error("expected enqueue to succeed")
	}

	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	turnChan := q.Dequeue(ctx)
	turn := <-turnChan
	if turn.Text != "hello" {
		t.Errorf("expected hello, got %q", turn.Text)
	}

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if !q.Enqueue(ctx, textTurn(1, "one")) {
		t.Error("expected enqueue to succeed")
	}
	if !q.Enqueue(ctx, textTurn(2, "two")) {
		t.Error("expected enqueue to succeed")
	}

	// Try to enqueue when full
	if q.Enqueue(ctx, textTurn(3, "three")) {
		t.Error("expected enqueue to fail when full")
	}

	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx := context.Background()
	numGoroutines := 10
	numTurns := 100

	done := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			for j := 0; j < numTurns; j++ {
				turn := textTurn(int64(id), "msg")
				for !q.Enqueue(ctx, turn) {
					time.Sleep(time.Millisecond)
				}
			}
			done <- true
		}(i)
	}

	consumed := make(chan int64, numGoroutines*numTurns)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			turnChan := q.Dequeue(ctx)
			for turn := range turnChan {
				consumed <- turn.UserID
			}
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	time.Sleep(100 * time.Millisecond)

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected final length 0, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, textTurn(1, "pending")) {
		t.Error("expected enqueue to succeed")
	}

	if err := q.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}

	// Enqueue after close fails
	if q.Enqueue(ctx, textTurn(2, "late")) {
		t.Error("expected enqueue to fail after close")
	}

	// Buffered turns drain, then the channel closes
	turnChan := q.Dequeue(ctx)
	turn, ok := <-turnChan
	if !ok || turn.Text != "pending" {
		t.Errorf("expected buffered turn, got %v ok=%v", turn, ok)
	}
	if _, ok := <-turnChan; ok {
		t.Error("expected channel to close after drain")
	}

	// Double close is a no-op
	if err := q.Close(); err != nil {
		t.Errorf("unexpected second close error: %v", err)
	}
}
