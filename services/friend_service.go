package services

import (
	"context"
	"errors"
	"log"

	"gatherlyAPI/internal/apperrors"
	"gatherlyAPI/internal/types/chat"
	"gatherlyAPI/internal/types/friendship"
	"gatherlyAPI/internal/types/user"
)

// FriendNotifier is the fanout surface the state machine drives on
// transitions. realtime.Fanout implements it.
type FriendNotifier interface {
	RequestSent(req *friendship.FriendRequest)
	RequestAccepted(req *friendship.FriendRequest, conv *chat.Conversation)
	RequestDeleted(req *friendship.FriendRequest)
	UserBlocked(blockerID, blockedID int64)
}

// ConversationEnsurer creates (at most once) the direct conversation for a
// newly-accepted pair. The chat service implements it.
type ConversationEnsurer interface {
	EnsureConversation(ctx context.Context, a, b int64) (*chat.Conversation, error)
}

// FriendService owns the friend-request lifecycle. Per unordered pair the
// states are NONE -> PENDING -> ACCEPTED | REJECTED; the settled states are
// terminal.
type FriendService struct {
	store         FriendStore
	notifier      FriendNotifier
	conversations ConversationEnsurer
}

func NewFriendService(store FriendStore, notifier FriendNotifier, conversations ConversationEnsurer) *FriendService {
	return &FriendService{
		store:         store,
		notifier:      notifier,
		conversations: conversations,
	}
}

func (s *FriendService) SendRequest(ctx context.Context, senderID, receiverID int64) (*friendship.FriendRequest, error) {
	if senderID == receiverID {
		return nil, apperrors.NewValidationError(map[string]string{
			"receiverId": "cannot send a friend request to yourself",
		})
	}

	for _, id := range []int64{senderID, receiverID} {
		exists, err := s.store.UserExists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperrors.NotFound("user")
		}
	}

	// Deliberately no block-list check here: a blocked user can still see
	// a pending request land. Only the accept path consults blocks.
	friends, err := s.store.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, apperrors.Conflict("users are already friends")
	}

	req, err := s.store.CreatePending(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	s.attachSummaries(ctx, req)
	s.notifier.RequestSent(req)
	return req, nil
}

// Respond settles a pending request. Only the receiver may respond.
// Rejection is silent: no fanout event fires. Accepting is safe to replay —
// a duplicate accept neither duplicates the friendship edge nor creates a
// second conversation.
func (s *FriendService) Respond(ctx context.Context, requestID, actorID int64, accept bool) (*friendship.FriendRequest, error) {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != actorID {
		return nil, apperrors.ErrForbidden
	}

	if !accept {
		switch req.Status {
		case friendship.RequestAccepted:
			return nil, apperrors.Conflict("friend request was already accepted")
		case friendship.RequestRejected:
			return req, nil
		}
		if err := s.store.MarkRejected(ctx, requestID); err != nil {
			return nil, err
		}
		req.Status = friendship.RequestRejected
		return req, nil
	}

	if req.Status == friendship.RequestRejected {
		return nil, apperrors.Conflict("friend request was already rejected")
	}
	wasPending := req.Status == friendship.RequestPending

	blocked, err := s.store.BlockedEitherWay(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	if err := s.store.AcceptAndBefriend(ctx, requestID, !blocked); err != nil {
		return nil, err
	}
	req.Status = friendship.RequestAccepted
	s.attachSummaries(ctx, req)

	if blocked {
		// Edge and conversation are skipped when either side blocks the
		// other; the request still settles as accepted.
		log.Printf("FriendService: accept of request %d skipped befriending, pair is blocked", requestID)
		return req, nil
	}

	// Ensuring on every accept (not just the first) heals a crash between
	// the status update and conversation creation.
	conv, err := s.conversations.EnsureConversation(ctx, req.SenderID, req.ReceiverID)
	if err != nil {
		return nil, err
	}

	// Only the PENDING -> ACCEPTED transition fans out; a replayed accept
	// must not toast the sender again.
	if wasPending {
		s.notifier.RequestAccepted(req, conv)
	}
	return req, nil
}

// Cancel withdraws a pending request. Either participant may cancel: the
// sender retracting, or the receiver clearing it without the rejection
// becoming visible.
func (s *FriendService) Cancel(ctx context.Context, requestID, actorID int64) error {
	req, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.SenderID != actorID && req.ReceiverID != actorID {
		return apperrors.ErrForbidden
	}
	if req.Status != friendship.RequestPending {
		return apperrors.Conflict("friend request is no longer pending")
	}

	if err := s.store.DeleteRequest(ctx, requestID); err != nil {
		return err
	}

	s.attachSummaries(ctx, req)
	s.notifier.RequestDeleted(req)
	return nil
}

func (s *FriendService) GetIncoming(ctx context.Context, userID int64) ([]*friendship.FriendRequest, error) {
	return s.store.ListIncoming(ctx, userID)
}

func (s *FriendService) GetOutgoing(ctx context.Context, userID int64) ([]*friendship.FriendRequest, error) {
	return s.store.ListOutgoing(ctx, userID)
}

func (s *FriendService) GetFriends(ctx context.Context, userID int64) ([]*user.Summary, error) {
	return s.store.ListFriends(ctx, userID)
}

// Block adds the directed edge and notifies both parties. An existing
// friendship edge is left in place.
func (s *FriendService) Block(ctx context.Context, blockerID, targetID int64) error {
	if blockerID == targetID {
		return apperrors.NewValidationError(map[string]string{
			"targetId": "cannot block yourself",
		})
	}
	exists, err := s.store.UserExists(ctx, targetID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("user")
	}

	if err := s.store.Block(ctx, blockerID, targetID); err != nil {
		return err
	}

	s.notifier.UserBlocked(blockerID, targetID)
	return nil
}

func (s *FriendService) Unblock(ctx context.Context, blockerID, targetID int64) error {
	return s.store.Unblock(ctx, blockerID, targetID)
}

func (s *FriendService) attachSummaries(ctx context.Context, req *friendship.FriendRequest) {
	if req.Sender == nil {
		if u, err := s.store.UserSummary(ctx, req.SenderID); err == nil {
			req.Sender = u
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("FriendService: failed to load sender %d: %v", req.SenderID, err)
		}
	}
	if req.Receiver == nil {
		if u, err := s.store.UserSummary(ctx, req.ReceiverID); err == nil {
			req.Receiver = u
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			log.Printf("FriendService: failed to load receiver %d: %v", req.ReceiverID, err)
		}
	}
}
