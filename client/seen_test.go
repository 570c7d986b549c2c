package client

import (
	"sync"
	"testing"
	"time"
)

type seenRecorder struct {
	mu    sync.Mutex
	calls [][]int64
	convs []int64
}

func (r *seenRecorder) emit(conversationID int64, messageIDs []int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.convs = append(r.convs, conversationID)
	r.calls = append(r.calls, messageIDs)
}

func (r *seenRecorder) snapshot() [][]int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]int64(nil), r.calls...)
}

func TestBatcherCoalescesBurstIntoOneEmission(t *testing.T) {
	rec := &seenRecorder{}
	b := NewSeenBatcher(30*time.Millisecond, rec.emit)

	b.Schedule(9, 1)
	b.Schedule(9, 2)
	b.Schedule(9, 3)

	time.Sleep(100 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected one batched emission, got %d", len(calls))
	}
	if len(calls[0]) != 3 {
		t.Fatalf("expected all three ids in the batch, got %v", calls[0])
	}
}

func TestBatcherDeduplicatesIDs(t *testing.T) {
	rec := &seenRecorder{}
	b := NewSeenBatcher(30*time.Millisecond, rec.emit)

	b.Schedule(9, 1)
	b.Schedule(9, 1)
	b.Schedule(9, 1)

	time.Sleep(100 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 1 || len(calls[0]) != 1 {
		t.Fatalf("expected one emission with one id, got %v", calls)
	}
}

func TestBatcherTimerRestartsNotStacks(t *testing.T) {
	rec := &seenRecorder{}
	b := NewSeenBatcher(50*time.Millisecond, rec.emit)

	// Keep scheduling inside the window; nothing may fire until the
	// stream goes quiet.
	for i := int64(1); i <= 3; i++ {
		b.Schedule(9, i)
		time.Sleep(20 * time.Millisecond)
	}
	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("emission fired while events kept arriving: %v", got)
	}

	time.Sleep(120 * time.Millisecond)
	calls := rec.snapshot()
	if len(calls) != 1 || len(calls[0]) != 3 {
		t.Fatalf("expected one emission with 3 ids after quiet, got %v", calls)
	}
}

func TestResetCancelsWithoutEmitting(t *testing.T) {
	rec := &seenRecorder{}
	b := NewSeenBatcher(30*time.Millisecond, rec.emit)

	b.Schedule(9, 1)
	b.Schedule(9, 2)
	b.Reset()

	time.Sleep(100 * time.Millisecond)

	if got := rec.snapshot(); len(got) != 0 {
		t.Fatalf("reset must drop the buffer silently, got %v", got)
	}
}

func TestSwitchingConversationDropsOldBuffer(t *testing.T) {
	rec := &seenRecorder{}
	b := NewSeenBatcher(30*time.Millisecond, rec.emit)

	b.Schedule(9, 1)
	b.Schedule(8, 2) // different conversation before the window closed

	time.Sleep(100 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("expected only the new conversation's batch, got %d emissions", len(calls))
	}
	if rec.convs[0] != 8 || len(calls[0]) != 1 || calls[0][0] != 2 {
		t.Fatalf("old conversation's ids leaked into the batch: conv=%d ids=%v", rec.convs[0], calls[0])
	}
}
