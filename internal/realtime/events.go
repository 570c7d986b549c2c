package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gatherlyAPI/internal/types/chat"
	"gatherlyAPI/internal/types/friendship"
)

// EventType enumerates every message kind carried over a realtime
// connection, in both directions. Inbound dispatch switches over this enum
// so unknown kinds fail in one place instead of silently registering ad hoc
// string handlers.
type EventType string

const (
	// client -> server
	EventRegister          EventType = "register"
	EventJoinConversation  EventType = "joinConversation"
	EventLeaveConversation EventType = "leaveConversation"
	EventSendMessage       EventType = "sendMessage"
	EventMessageSeen       EventType = "messageSeen"

	// server -> client
	EventNewMessage              EventType = "newMessage"
	EventFriendRequestSent       EventType = "friendRequestSent"
	EventFriendRequestAccepted   EventType = "friendRequestAccepted"
	EventFriendRequestRejected   EventType = "friendRequestRejected"
	EventFriendRequestDeleted    EventType = "friendRequestDeleted"
	EventUserBlocked             EventType = "userBlocked"
	EventUserBlockedConfirmation EventType = "userBlockedConfirmation"
)

// Envelope is the wire frame: a type tag plus the kind-specific payload.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames a payload for the wire.
func Encode(t EventType, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("event %s: %w", e.Type, err)
	}
	return nil
}

// ID is an int64 that tolerates both numeric and quoted-string JSON forms.
// Browser clients are sloppy about this, so every id field on the wire goes
// through the coercion.
type ID int64

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(b), 64)
		if ferr != nil {
			return fmt.Errorf("id %q is not numeric", b)
		}
		v = int64(f)
	}
	*id = ID(v)
	return nil
}

type RegisterPayload struct {
	UserID ID `json:"userId"`
}

type ConversationPayload struct {
	ConversationID ID `json:"conversationId"`
}

type SendMessagePayload struct {
	ConversationID ID     `json:"conversationId"`
	SenderID       ID     `json:"senderId"`
	Text           string `json:"text"`
	ImageURL       string `json:"imageUrl,omitempty"`
	TempID         string `json:"tempId"`
}

type MessageSeenPayload struct {
	ConversationID ID   `json:"conversationId"`
	MessageIDs     []ID `json:"messageIds"`
	UserID         ID   `json:"userId"`
}

type NewMessagePayload struct {
	ID             ID        `json:"id"`
	ConversationID ID        `json:"conversationId"`
	SenderID       ID        `json:"senderId"`
	Text           string    `json:"text"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	TempID         string    `json:"tempId,omitempty"`
}

// NewMessageFromModel echoes a stored message back onto the wire, carrying
// the sender's correlation token along.
func NewMessageFromModel(m *chat.Message) *NewMessagePayload {
	return &NewMessagePayload{
		ID:             ID(m.ID),
		ConversationID: ID(m.ConversationID),
		SenderID:       ID(m.SenderID),
		Text:           m.Text,
		ImageURL:       m.ImageURL,
		CreatedAt:      m.CreatedAt,
		TempID:         m.TempID,
	}
}

type FriendRequestPayload struct {
	Request      *friendship.FriendRequest `json:"request"`
	Conversation *chat.Conversation        `json:"conversation,omitempty"`
}

type BlockPayload struct {
	BlockerID ID `json:"blockerId"`
	BlockedID ID `json:"blockedId"`
}
