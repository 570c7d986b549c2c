package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatherlyAPI/internal/apperrors"
	"gatherlyAPI/internal/types/chat"
)

// ChatStore persists conversations and messages.
type ChatStore interface {
	// EnsureConversation looks up or creates the direct conversation for
	// the unordered pair. At most one conversation ever exists per pair;
	// concurrent calls converge on the same row.
	EnsureConversation(ctx context.Context, a, b int64) (*chat.Conversation, error)
	Participants(ctx context.Context, conversationID int64) ([]int64, error)
	SaveMessage(ctx context.Context, conversationID, senderID int64, text, imageURL string) (*chat.Message, error)
	// MarkSeen records that userID has seen the given messages. Rows only
	// accumulate; replays are absorbed.
	MarkSeen(ctx context.Context, conversationID int64, messageIDs []int64, userID int64) error
	ListConversations(ctx context.Context, userID int64) ([]*chat.Conversation, error)
	ListMessages(ctx context.Context, conversationID int64, limit int) ([]*chat.Message, error)
}

type PgChatStore struct {
	db *pgxpool.Pool
}

func NewPgChatStore(db *pgxpool.Pool) *PgChatStore {
	return &PgChatStore{db: db}
}

func (s *PgChatStore) EnsureConversation(ctx context.Context, a, b int64) (*chat.Conversation, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	conv := &chat.Conversation{ParticipantIDs: []int64{lo, hi}}
	// The unique index on (user_a, user_b) makes the insert race-safe; the
	// union picks up the existing row when the insert loses.
	err := s.db.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO conversations (user_a, user_b, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_a, user_b) DO NOTHING
			RETURNING id, created_at
		)
		SELECT id, created_at FROM ins
		UNION ALL
		SELECT id, created_at FROM conversations WHERE user_a = $1 AND user_b = $2
		LIMIT 1
	`, lo, hi).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure conversation for (%d,%d): %w", lo, hi, err)
	}
	return conv, nil
}

func (s *PgChatStore) Participants(ctx context.Context, conversationID int64) ([]int64, error) {
	var a, b int64
	err := s.db.QueryRow(ctx,
		`SELECT user_a, user_b FROM conversations WHERE id = $1`, conversationID).Scan(&a, &b)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("conversation")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %d: %w", conversationID, err)
	}
	return []int64{a, b}, nil
}

func (s *PgChatStore) SaveMessage(ctx context.Context, conversationID, senderID int64, text, imageURL string) (*chat.Message, error) {
	msg := &chat.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		ImageURL:       imageURL,
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, text, image_url, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NOW())
		RETURNING id, created_at
	`, conversationID, senderID, text, imageURL).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return msg, nil
}

func (s *PgChatStore) MarkSeen(ctx context.Context, conversationID int64, messageIDs []int64, userID int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	// The join keeps ids from other conversations out, whatever the client
	// claims.
	_, err := s.db.Exec(ctx, `
		INSERT INTO message_seen (message_id, user_id, seen_at)
		SELECT m.id, $3, NOW()
		FROM messages m
		WHERE m.id = ANY($1) AND m.conversation_id = $2
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageIDs, conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return nil
}

func (s *PgChatStore) ListConversations(ctx context.Context, userID int64) ([]*chat.Conversation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.user_a, c.user_b, c.created_at,
		       COALESCE(MAX(m.created_at), 'epoch'::timestamptz)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.user_a = $1 OR c.user_b = $1
		GROUP BY c.id
		ORDER BY MAX(m.created_at) DESC NULLS LAST, c.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]*chat.Conversation, 0)
	for rows.Next() {
		var a, b int64
		conv := &chat.Conversation{}
		if err := rows.Scan(&conv.ID, &a, &b, &conv.CreatedAt, &conv.LastMessageAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.ParticipantIDs = []int64{a, b}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (s *PgChatStore) ListMessages(ctx context.Context, conversationID int64, limit int) ([]*chat.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT m.id, m.conversation_id, m.sender_id, m.text,
		       COALESCE(m.image_url, ''), m.created_at,
		       COALESCE(ARRAY_AGG(ms.user_id) FILTER (WHERE ms.user_id IS NOT NULL), '{}')
		FROM messages m
		LEFT JOIN message_seen ms ON ms.message_id = m.id
		WHERE m.conversation_id = $1
		GROUP BY m.id
		ORDER BY m.created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]*chat.Message, 0)
	for rows.Next() {
		m := &chat.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.ImageURL, &m.CreatedAt, &m.SeenBy); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	// Oldest first for display.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, rows.Err()
}
