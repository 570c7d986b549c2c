package realtime

import (
	"fmt"
	"log"

	"gatherlyAPI/internal/types/chat"
	"gatherlyAPI/internal/types/friendship"
)

// PushQueue accepts offline notifications for users with no live
// connections. Delivery is best-effort; the queue never reports back.
type PushQueue interface {
	EnqueuePush(userID int64, title, body string, data map[string]any)
}

// Fanout delivers one logical event to every live connection of a user.
// Delivery is fire-and-forget per connection: a connection with a full
// buffer is logged and skipped, never allowed to block its siblings. A user
// with zero connections is a silent no-op (plus, for friend lifecycle
// events, an optional offline push).
type Fanout struct {
	registry *Registry
	push     PushQueue
}

func NewFanout(registry *Registry) *Fanout {
	return &Fanout{registry: registry}
}

// SetPushQueue injects the offline push dispatcher from main.go.
func (f *Fanout) SetPushQueue(q PushQueue) {
	f.push = q
}

// EmitToUser sends the event to all of the user's connections and reports
// how many were attempted. Zero connections is not an error.
func (f *Fanout) EmitToUser(userID int64, t EventType, payload any) int {
	data, err := Encode(t, payload)
	if err != nil {
		log.Printf("Fanout: failed to encode %s for user %d: %v", t, userID, err)
		return 0
	}

	conns := f.registry.ConnectionsFor(userID)
	for connID, c := range conns {
		if err := c.Send(data); err != nil {
			// Best-effort push: the user misses one live event and
			// catches up on the next poll.
			log.Printf("Fanout: dropped %s for user %d conn %s: %v", t, userID, connID, err)
			fanoutFailures.Inc()
			continue
		}
		fanoutDeliveries.WithLabelValues(string(t)).Inc()
	}
	return len(conns)
}

// emitOrPush falls back to the offline push queue when the user has no live
// connections at all.
func (f *Fanout) emitOrPush(userID int64, t EventType, payload any, title, body string, data map[string]any) {
	if f.EmitToUser(userID, t, payload) > 0 {
		return
	}
	if f.push != nil {
		f.push.EnqueuePush(userID, title, body, data)
	}
}

func (f *Fanout) RequestSent(req *friendship.FriendRequest) {
	payload := &FriendRequestPayload{Request: req}
	title := "New friend request"
	body := "You have a new friend request"
	if req.Sender != nil {
		body = fmt.Sprintf("%s sent you a friend request", req.Sender.Username)
	}
	f.emitOrPush(req.ReceiverID, EventFriendRequestSent, payload,
		title, body, map[string]any{"requestId": req.ID})
}

func (f *Fanout) RequestAccepted(req *friendship.FriendRequest, conv *chat.Conversation) {
	payload := &FriendRequestPayload{Request: req, Conversation: conv}
	body := "Your friend request was accepted"
	if req.Receiver != nil {
		body = fmt.Sprintf("%s accepted your friend request", req.Receiver.Username)
	}
	f.emitOrPush(req.SenderID, EventFriendRequestAccepted, payload,
		"Friend request accepted", body, map[string]any{"requestId": req.ID})
	f.EmitToUser(req.ReceiverID, EventFriendRequestAccepted, payload)
}

// RequestRejected notifies the sender only. The respond path deliberately
// does not call this: rejections are silent. It stays wired for the REST
// surface should product ever flip that decision.
func (f *Fanout) RequestRejected(req *friendship.FriendRequest) {
	f.EmitToUser(req.SenderID, EventFriendRequestRejected, &FriendRequestPayload{Request: req})
}

func (f *Fanout) RequestDeleted(req *friendship.FriendRequest) {
	payload := &FriendRequestPayload{Request: req}
	f.EmitToUser(req.SenderID, EventFriendRequestDeleted, payload)
	f.EmitToUser(req.ReceiverID, EventFriendRequestDeleted, payload)
}

// UserBlocked sends the blocked user a notice and the blocker a
// confirmation.
func (f *Fanout) UserBlocked(blockerID, blockedID int64) {
	payload := &BlockPayload{BlockerID: ID(blockerID), BlockedID: ID(blockedID)}
	f.EmitToUser(blockedID, EventUserBlocked, payload)
	f.EmitToUser(blockerID, EventUserBlockedConfirmation, payload)
}

// NewMessage broadcasts a stored message to every participant, the sender
// included so their other devices stay in sync. The sender's own optimistic
// copy reconciles via the echoed tempId.
func (f *Fanout) NewMessage(participantIDs []int64, m *chat.Message) {
	payload := NewMessageFromModel(m)
	for _, uid := range participantIDs {
		if uid == m.SenderID {
			f.EmitToUser(uid, EventNewMessage, payload)
			continue
		}
		f.emitOrPush(uid, EventNewMessage, payload,
			"New message", messagePreview(m), map[string]any{"conversationId": m.ConversationID})
	}
}

// MessageSeen echoes a seen acknowledgment to every participant except the
// reader who produced it.
func (f *Fanout) MessageSeen(participantIDs []int64, readerID int64, p *MessageSeenPayload) {
	for _, uid := range participantIDs {
		if uid == readerID {
			continue
		}
		f.EmitToUser(uid, EventMessageSeen, p)
	}
}

func messagePreview(m *chat.Message) string {
	if m.Text != "" {
		if len(m.Text) > 80 {
			return m.Text[:80]
		}
		return m.Text
	}
	if m.ImageURL != "" {
		return "Sent a photo"
	}
	return "Sent a message"
}
