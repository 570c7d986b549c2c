package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gatherlyAPI/internal/types/chat"
)

type recordChatBackend struct {
	saved int
}

func (b *recordChatBackend) SaveMessage(_ context.Context, conversationID, senderID int64, text, imageURL string) (*chat.Message, error) {
	b.saved++
	return &chat.Message{
		ID:             int64(b.saved),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		ImageURL:       imageURL,
		CreatedAt:      time.Now(),
	}, nil
}

func (b *recordChatBackend) Participants(_ context.Context, conversationID int64) ([]int64, error) {
	return []int64{42, 43}, nil
}

func (b *recordChatBackend) MarkSeen(_ context.Context, conversationID int64, messageIDs []int64, userID int64) error {
	return nil
}

func envelopeFor(t *testing.T, eventType EventType, payload any) *Envelope {
	t.Helper()
	data, err := Encode(eventType, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", eventType, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal %s: %v", eventType, err)
	}
	return &env
}

func TestRegisterBindsAuthenticatedUser(t *testing.T) {
	registry := NewRegistry()
	c := NewClient(nil, 42, registry, NewFanout(registry), nil)

	c.handleEvent(envelopeFor(t, EventRegister, RegisterPayload{UserID: 42}))

	if got := len(registry.ConnectionsFor(42)); got != 1 {
		t.Fatalf("expected one connection for user 42, got %d", got)
	}
}

func TestRegisterAsAnotherUserIsDropped(t *testing.T) {
	registry := NewRegistry()
	c := NewClient(nil, 42, registry, NewFanout(registry), nil)

	c.handleEvent(envelopeFor(t, EventRegister, RegisterPayload{UserID: 99}))

	if got := len(registry.ConnectionsFor(99)); got != 0 {
		t.Fatalf("connection must not appear under the claimed user, got %d", got)
	}
	if got := len(registry.ConnectionsFor(42)); got != 0 {
		t.Fatalf("a rejected register must not start presence, got %d", got)
	}
	if c.registered {
		t.Fatal("mismatched register must leave the connection unregistered")
	}
}

func TestRegisterWithoutUserIDUsesHandshakeIdentity(t *testing.T) {
	registry := NewRegistry()
	c := NewClient(nil, 42, registry, NewFanout(registry), nil)

	c.handleEvent(envelopeFor(t, EventRegister, RegisterPayload{}))

	if got := len(registry.ConnectionsFor(42)); got != 1 {
		t.Fatalf("expected presence under the handshake identity, got %d", got)
	}
}

func TestSendMessageBeforeRegisterIsDropped(t *testing.T) {
	registry := NewRegistry()
	backend := &recordChatBackend{}
	c := NewClient(nil, 42, registry, NewFanout(registry), backend)

	c.handleEvent(envelopeFor(t, EventSendMessage, SendMessagePayload{
		ConversationID: 1,
		Text:           "too early",
	}))

	if backend.saved != 0 {
		t.Fatalf("message before register must not persist, got %d saves", backend.saved)
	}
}
