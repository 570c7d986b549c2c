package chat

import "time"

type Conversation struct {
	ID             int64     `json:"id"`
	ParticipantIDs []int64   `json:"participantIds"`
	CreatedAt      time.Time `json:"createdAt"`

	// LastMessageAt is zero for conversations that have no messages yet.
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
}

type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversationId"`
	SenderID       int64     `json:"senderId"`
	Text           string    `json:"text"`
	ImageURL       string    `json:"imageUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	SeenBy         []int64   `json:"seenBy,omitempty"`

	// TempID is the client correlation token. It is echoed back on the
	// confirmation broadcast and never stored beyond delivery.
	TempID string `json:"tempId,omitempty"`
}
