package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gatherlyAPI/internal/apperrors"
	"gatherlyAPI/internal/types/friendship"
	"gatherlyAPI/internal/types/user"
)

// FriendStore is the persistence surface of the friendship state machine.
// The pgx implementation below is the production one; tests substitute an
// in-memory fake.
type FriendStore interface {
	UserExists(ctx context.Context, id int64) (bool, error)
	UserSummary(ctx context.Context, id int64) (*user.Summary, error)
	AreFriends(ctx context.Context, a, b int64) (bool, error)
	// CreatePending inserts a new PENDING request. It fails with
	// apperrors.ErrConflict when a pending request already exists between
	// the pair, in either direction — the check and the insert are atomic.
	CreatePending(ctx context.Context, senderID, receiverID int64) (*friendship.FriendRequest, error)
	GetRequest(ctx context.Context, id int64) (*friendship.FriendRequest, error)
	MarkRejected(ctx context.Context, id int64) error
	// AcceptAndBefriend marks the request accepted and, when addEdge is
	// set, inserts both directions of the friendship edge. Everything runs
	// in one transaction and is idempotent on replay.
	AcceptAndBefriend(ctx context.Context, id int64, addEdge bool) error
	DeleteRequest(ctx context.Context, id int64) error
	ListIncoming(ctx context.Context, userID int64) ([]*friendship.FriendRequest, error)
	ListOutgoing(ctx context.Context, userID int64) ([]*friendship.FriendRequest, error)
	ListFriends(ctx context.Context, userID int64) ([]*user.Summary, error)
	BlockedEitherWay(ctx context.Context, a, b int64) (bool, error)
	Block(ctx context.Context, blockerID, blockedID int64) error
	Unblock(ctx context.Context, blockerID, blockedID int64) error
}

type PgFriendStore struct {
	db *pgxpool.Pool
}

func NewPgFriendStore(db *pgxpool.Pool) *PgFriendStore {
	return &PgFriendStore{db: db}
}

func (s *PgFriendStore) UserExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user %d: %w", id, err)
	}
	return exists, nil
}

func (s *PgFriendStore) UserSummary(ctx context.Context, id int64) (*user.Summary, error) {
	u := &user.Summary{}
	err := s.db.QueryRow(ctx,
		`SELECT id, username, COALESCE(image_url, '') FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.ImageURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	return u, nil
}

func (s *PgFriendStore) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM friendships
			WHERE user_id = $1 AND friend_id = $2
		)
	`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

func (s *PgFriendStore) CreatePending(ctx context.Context, senderID, receiverID int64) (*friendship.FriendRequest, error) {
	req := &friendship.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     friendship.RequestPending,
	}
	// The partial unique index on (LEAST, GREATEST) WHERE status='pending'
	// makes concurrent sends from both directions collapse to one winner.
	err := s.db.QueryRow(ctx, `
		INSERT INTO friend_requests (sender_id, receiver_id, status, created_at)
		VALUES ($1, $2, 'pending', NOW())
		RETURNING id, created_at
	`, senderID, receiverID).Scan(&req.ID, &req.CreatedAt)
	if isUniqueViolation(err) {
		return nil, apperrors.Conflict("a friend request is already pending between these users")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create friend request: %w", err)
	}
	return req, nil
}

func (s *PgFriendStore) GetRequest(ctx context.Context, id int64) (*friendship.FriendRequest, error) {
	req := &friendship.FriendRequest{}
	err := s.db.QueryRow(ctx, `
		SELECT id, sender_id, receiver_id, status, created_at
		FROM friend_requests WHERE id = $1
	`, id).Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("friend request")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load friend request %d: %w", id, err)
	}
	return req, nil
}

func (s *PgFriendStore) MarkRejected(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE friend_requests SET status = 'rejected' WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("failed to reject friend request %d: %w", id, err)
	}
	return nil
}

func (s *PgFriendStore) AcceptAndBefriend(ctx context.Context, id int64, addEdge bool) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin accept transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var senderID, receiverID int64
	err = tx.QueryRow(ctx, `
		UPDATE friend_requests SET status = 'accepted'
		WHERE id = $1 AND status IN ('pending', 'accepted')
		RETURNING sender_id, receiver_id
	`, id).Scan(&senderID, &receiverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NotFound("friend request")
	}
	if err != nil {
		return fmt.Errorf("failed to accept friend request %d: %w", id, err)
	}

	if addEdge {
		// Both directions in one statement so the edge can never exist
		// half-present.
		_, err = tx.Exec(ctx, `
			INSERT INTO friendships (user_id, friend_id, created_at)
			VALUES ($1, $2, NOW()), ($2, $1, NOW())
			ON CONFLICT (user_id, friend_id) DO NOTHING
		`, senderID, receiverID)
		if err != nil {
			return fmt.Errorf("failed to insert friendship edge: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit accept transaction: %w", err)
	}
	return nil
}

func (s *PgFriendStore) DeleteRequest(ctx context.Context, id int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM friend_requests WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete friend request %d: %w", id, err)
	}
	return nil
}

func (s *PgFriendStore) ListIncoming(ctx context.Context, userID int64) ([]*friendship.FriendRequest, error) {
	return s.listRequests(ctx, `fr.receiver_id = $1`, userID)
}

func (s *PgFriendStore) ListOutgoing(ctx context.Context, userID int64) ([]*friendship.FriendRequest, error) {
	return s.listRequests(ctx, `fr.sender_id = $1`, userID)
}

func (s *PgFriendStore) listRequests(ctx context.Context, where string, userID int64) ([]*friendship.FriendRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT fr.id, fr.sender_id, fr.receiver_id, fr.status, fr.created_at,
		       su.username, COALESCE(su.image_url, ''),
		       ru.username, COALESCE(ru.image_url, '')
		FROM friend_requests fr
		JOIN users su ON su.id = fr.sender_id
		JOIN users ru ON ru.id = fr.receiver_id
		WHERE fr.status = 'pending' AND `+where+`
		ORDER BY fr.created_at DESC, fr.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friend requests: %w", err)
	}
	defer rows.Close()

	reqs := make([]*friendship.FriendRequest, 0)
	for rows.Next() {
		req := &friendship.FriendRequest{
			Sender:   &user.Summary{},
			Receiver: &user.Summary{},
		}
		err := rows.Scan(
			&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt,
			&req.Sender.Username, &req.Sender.ImageURL,
			&req.Receiver.Username, &req.Receiver.ImageURL,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		req.Sender.ID = req.SenderID
		req.Receiver.ID = req.ReceiverID
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (s *PgFriendStore) ListFriends(ctx context.Context, userID int64) ([]*user.Summary, error) {
	rows, err := s.db.Query(ctx, `
		SELECT u.id, u.username, COALESCE(u.image_url, '')
		FROM friendships f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = $1
		ORDER BY u.username
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	defer rows.Close()

	friends := make([]*user.Summary, 0)
	for rows.Next() {
		u := &user.Summary{}
		if err := rows.Scan(&u.ID, &u.Username, &u.ImageURL); err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, u)
	}
	return friends, rows.Err()
}

func (s *PgFriendStore) BlockedEitherWay(ctx context.Context, a, b int64) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM blocks
			WHERE (blocker_id = $1 AND blocked_id = $2)
			   OR (blocker_id = $2 AND blocked_id = $1)
		)
	`, a, b).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blocks: %w", err)
	}
	return exists, nil
}

func (s *PgFriendStore) Block(ctx context.Context, blockerID, blockedID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO blocks (blocker_id, blocked_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (blocker_id, blocked_id) DO NOTHING
	`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("failed to insert block: %w", err)
	}
	return nil
}

func (s *PgFriendStore) Unblock(ctx context.Context, blockerID, blockedID int64) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM blocks WHERE blocker_id = $1 AND blocked_id = $2`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
