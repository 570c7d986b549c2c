package client

import (
	"sync"
	"time"
)

// DefaultSeenWindow is the debounce applied before a batched seen
// acknowledgment goes out.
const DefaultSeenWindow = 500 * time.Millisecond

// SeenBatcher buffers message ids pending acknowledgment and emits one
// messageSeen command per debounce window. The timer is always cancelled
// before rescheduling, never stacked, and Reset tears buffer and timer
// down together so an acknowledgment can't leak into the wrong
// conversation.
type SeenBatcher struct {
	mu             sync.Mutex
	window         time.Duration
	emit           func(conversationID int64, messageIDs []int64)
	conversationID int64
	ids            []int64
	queued         map[int64]bool
	timer          *time.Timer
}

func NewSeenBatcher(window time.Duration, emit func(conversationID int64, messageIDs []int64)) *SeenBatcher {
	if window <= 0 {
		window = DefaultSeenWindow
	}
	return &SeenBatcher{
		window: window,
		emit:   emit,
		queued: make(map[int64]bool),
	}
}

// Schedule adds the message id to the buffer and restarts the debounce
// timer. A message from a different conversation first drops whatever was
// buffered for the previous one.
func (b *SeenBatcher) Schedule(conversationID, messageID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conversationID != conversationID {
		b.clearLocked()
		b.conversationID = conversationID
	}
	if !b.queued[messageID] {
		b.queued[messageID] = true
		b.ids = append(b.ids, messageID)
	}

	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.window, b.flush)
}

func (b *SeenBatcher) flush() {
	b.mu.Lock()
	ids := b.ids
	conversationID := b.conversationID
	b.ids = nil
	b.queued = make(map[int64]bool)
	b.timer = nil
	b.mu.Unlock()

	if len(ids) > 0 && b.emit != nil {
		b.emit(conversationID, ids)
	}
}

// Reset cancels any pending timer and clears the buffer without emitting.
// Called when the active conversation changes or the view goes away.
func (b *SeenBatcher) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clearLocked()
	b.conversationID = 0
}

func (b *SeenBatcher) clearLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.ids = nil
	b.queued = make(map[int64]bool)
}
