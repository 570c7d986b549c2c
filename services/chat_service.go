package services

import (
	"context"
	"strings"

	"gatherlyAPI/internal/apperrors"
	"gatherlyAPI/internal/types/chat"
)

// ChatService fronts the message store for both the REST history surface
// and the realtime gateway. It implements realtime.ChatBackend and the
// ConversationEnsurer the friendship state machine calls on accept.
type ChatService struct {
	store ChatStore
}

func NewChatService(store ChatStore) *ChatService {
	return &ChatService{store: store}
}

func (s *ChatService) EnsureConversation(ctx context.Context, a, b int64) (*chat.Conversation, error) {
	if a == b {
		return nil, apperrors.NewValidationError(map[string]string{
			"participants": "a conversation needs two distinct users",
		})
	}
	return s.store.EnsureConversation(ctx, a, b)
}

func (s *ChatService) Participants(ctx context.Context, conversationID int64) ([]int64, error) {
	return s.store.Participants(ctx, conversationID)
}

func (s *ChatService) SaveMessage(ctx context.Context, conversationID, senderID int64, text, imageURL string) (*chat.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && imageURL == "" {
		return nil, apperrors.NewValidationError(map[string]string{
			"text": "message needs text or an image",
		})
	}
	return s.store.SaveMessage(ctx, conversationID, senderID, text, imageURL)
}

func (s *ChatService) MarkSeen(ctx context.Context, conversationID int64, messageIDs []int64, userID int64) error {
	return s.store.MarkSeen(ctx, conversationID, messageIDs, userID)
}

func (s *ChatService) ListConversations(ctx context.Context, userID int64) ([]*chat.Conversation, error) {
	return s.store.ListConversations(ctx, userID)
}

// ListMessages returns recent history, oldest first, for a participant.
// Non-participants get ErrForbidden rather than an empty page.
func (s *ChatService) ListMessages(ctx context.Context, conversationID, userID int64, limit int) ([]*chat.Message, error) {
	participants, err := s.store.Participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	member := false
	for _, id := range participants {
		if id == userID {
			member = true
			break
		}
	}
	if !member {
		return nil, apperrors.ErrForbidden
	}
	return s.store.ListMessages(ctx, conversationID, limit)
}
