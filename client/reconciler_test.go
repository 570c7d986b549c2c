package client

import (
	"testing"
	"time"

	"gatherlyAPI/internal/realtime"
)

func TestSendAppendsOptimisticEntry(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, nil)

	msg, payload := r.Send(9, "hi", "")

	if msg.State != MessagePending {
		t.Fatalf("expected pending state, got %v", msg.State)
	}
	if msg.ID >= 0 {
		t.Fatalf("provisional id should be negative, got %d", msg.ID)
	}
	if msg.TempID == "" || payload.TempID != msg.TempID {
		t.Fatalf("payload must carry the entry's tempId, got %q vs %q", payload.TempID, msg.TempID)
	}
	if got := r.Messages(); len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
}

func TestEchoPromotesOptimisticEntryInPlace(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, []*Message{
		{ID: 10, ConversationID: 9, SenderID: 2, Text: "earlier", State: MessageConfirmed},
	})
	msg, _ := r.Send(9, "hi", "")

	ack := r.ApplyNew(&realtime.NewMessagePayload{
		ID: 77, ConversationID: 9, SenderID: 1, Text: "hi",
		CreatedAt: time.Now(), TempID: msg.TempID,
	})
	if ack {
		t.Fatal("own message must not be scheduled for a seen ack")
	}

	got := r.Messages()
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	// The entry keeps its list position.
	if got[1].ID != 77 || got[1].State != MessageConfirmed {
		t.Fatalf("expected confirmed id 77 in place, got id=%d state=%v", got[1].ID, got[1].State)
	}
	if got[1].TempID != msg.TempID {
		t.Fatal("tempId is kept on the promoted entry")
	}
}

func TestDuplicateIDIsDiscarded(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, nil)

	p := &realtime.NewMessagePayload{
		ID: 55, ConversationID: 9, SenderID: 2, Text: "hello", CreatedAt: time.Now(),
	}
	r.ApplyNew(p)
	r.ApplyNew(p)

	if got := r.Messages(); len(got) != 1 {
		t.Fatalf("duplicate delivery must not grow the list, got %d entries", len(got))
	}
}

func TestRedeliveryWithinWindowIsDiscarded(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, nil)
	now := time.Now()

	r.ApplyNew(&realtime.NewMessagePayload{
		ID: 60, ConversationID: 9, SenderID: 2, Text: "same", CreatedAt: now,
	})
	// Same sender and content, different id, 3s apart: an ack racing the
	// broadcast.
	r.ApplyNew(&realtime.NewMessagePayload{
		ID: 61, ConversationID: 9, SenderID: 2, Text: "same", CreatedAt: now.Add(3 * time.Second),
	})

	got := r.Messages()
	if len(got) != 1 {
		t.Fatalf("redelivery within the window must be dropped, got %d entries", len(got))
	}
	if got[0].ID != 60 {
		t.Fatalf("original entry should survive, got id %d", got[0].ID)
	}
}

func TestSameContentOutsideWindowAppends(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, nil)
	now := time.Now()

	r.ApplyNew(&realtime.NewMessagePayload{
		ID: 60, ConversationID: 9, SenderID: 2, Text: "same", CreatedAt: now,
	})
	r.ApplyNew(&realtime.NewMessagePayload{
		ID: 61, ConversationID: 9, SenderID: 2, Text: "same", CreatedAt: now.Add(10 * time.Second),
	})

	if got := r.Messages(); len(got) != 2 {
		t.Fatalf("a genuine repeat outside the window appends, got %d entries", len(got))
	}
}

func TestApplyNewReportsAckOnlyForOthersMessages(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, nil)

	if ack := r.ApplyNew(&realtime.NewMessagePayload{
		ID: 70, ConversationID: 9, SenderID: 2, Text: "their msg", CreatedAt: time.Now(),
	}); !ack {
		t.Fatal("someone else's message in the active conversation needs a seen ack")
	}
	if ack := r.ApplyNew(&realtime.NewMessagePayload{
		ID: 71, ConversationID: 9, SenderID: 1, Text: "my msg", CreatedAt: time.Now(),
	}); ack {
		t.Fatal("own message never needs a seen ack")
	}
	if ack := r.ApplyNew(&realtime.NewMessagePayload{
		ID: 72, ConversationID: 8, SenderID: 2, Text: "other conv", CreatedAt: time.Now(),
	}); ack {
		t.Fatal("message outside the active conversation never needs a seen ack")
	}
}

func TestMarkFailedLeavesConfirmedAlone(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, nil)
	msg, _ := r.Send(9, "hi", "")

	r.ApplyNew(&realtime.NewMessagePayload{
		ID: 77, ConversationID: 9, SenderID: 1, Text: "hi",
		CreatedAt: time.Now(), TempID: msg.TempID,
	})
	r.MarkFailed(msg.TempID)

	got := r.Messages()
	if got[0].State != MessageConfirmed {
		t.Fatalf("late failure must not demote a confirmed message, got %v", got[0].State)
	}
}

func TestApplySeenGrowsSeenBy(t *testing.T) {
	r := NewReconciler(1)
	r.SetActiveConversation(9, []*Message{
		{ID: 30, ConversationID: 9, SenderID: 1, Text: "a", State: MessageConfirmed},
		{ID: 31, ConversationID: 9, SenderID: 1, Text: "b", State: MessageConfirmed},
	})

	seen := &realtime.MessageSeenPayload{
		ConversationID: 9, MessageIDs: []realtime.ID{30, 31}, UserID: 2,
	}
	r.ApplySeen(seen)
	r.ApplySeen(seen) // replay

	for _, m := range r.Messages() {
		if len(m.SeenBy) != 1 || m.SeenBy[0] != 2 {
			t.Fatalf("message %d: expected seenBy [2], got %v", m.ID, m.SeenBy)
		}
	}
}

func TestConversationOrdering(t *testing.T) {
	l := NewConversationList()
	base := time.Now()

	l.Upsert(&ConversationSummary{ID: 1}) // no messages
	l.Upsert(&ConversationSummary{ID: 2, LastMessageAt: base.Add(-time.Hour)})
	l.Upsert(&ConversationSummary{ID: 3, LastMessageAt: base})
	l.Upsert(&ConversationSummary{ID: 4}) // no messages

	got := l.Ordered()
	wantOrder := []int64{3, 2, 1, 4}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("position %d: want conversation %d, got %d", i, want, got[i].ID)
		}
	}

	// A new message moves its conversation to the front; the empty ones
	// stay behind everything, in stable order.
	l.Touch(2, base.Add(time.Minute))
	got = l.Ordered()
	wantOrder = []int64{2, 3, 1, 4}
	for i, want := range wantOrder {
		if got[i].ID != want {
			t.Fatalf("after touch, position %d: want conversation %d, got %d", i, want, got[i].ID)
		}
	}
}

func TestTouchUnknownConversationAddsEntry(t *testing.T) {
	l := NewConversationList()
	base := time.Now()
	l.Upsert(&ConversationSummary{ID: 1, LastMessageAt: base.Add(-time.Hour)})

	// First message of a conversation the list has never seen: it must
	// surface right away, ordered by its message time.
	l.Touch(7, base)

	got := l.Ordered()
	if len(got) != 2 {
		t.Fatalf("expected the unknown conversation to be added, got %d entries", len(got))
	}
	if got[0].ID != 7 {
		t.Fatalf("expected new conversation 7 first, got %d", got[0].ID)
	}
	if !got[0].LastMessageAt.Equal(base) {
		t.Fatalf("placeholder should carry the message time, got %v", got[0].LastMessageAt)
	}

	// The REST refresh later fills in the placeholder.
	l.Upsert(&ConversationSummary{ID: 7, ParticipantIDs: []int64{1, 2}, LastMessageAt: base})
	got = l.Ordered()
	if len(got) != 2 || len(got[0].ParticipantIDs) != 2 {
		t.Fatalf("upsert should replace the placeholder in place, got %+v", got)
	}
}

func TestTouchIgnoresOlderTimestamp(t *testing.T) {
	l := NewConversationList()
	base := time.Now()
	l.Upsert(&ConversationSummary{ID: 1, LastMessageAt: base})

	l.Touch(1, base.Add(-time.Minute))

	if got := l.Ordered()[0].LastMessageAt; !got.Equal(base) {
		t.Fatalf("older redelivery must not move the timestamp back, got %v", got)
	}
}
