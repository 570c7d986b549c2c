package friendship

import (
	"time"

	"gatherlyAPI/internal/types/user"
)

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// FriendRequest is one side's pending (or settled) invitation. At most one
// pending request may exist per unordered user pair, in either direction.
type FriendRequest struct {
	ID         int64         `json:"id"`
	SenderID   int64         `json:"senderId"`
	ReceiverID int64         `json:"receiverId"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`

	Sender   *user.Summary `json:"sender,omitempty"`
	Receiver *user.Summary `json:"receiver,omitempty"`
}

// Block is a directed edge, independent of any friendship edge.
type Block struct {
	BlockerID int64     `json:"blockerId"`
	BlockedID int64     `json:"blockedId"`
	CreatedAt time.Time `json:"createdAt"`
}

type SendRequestRequest struct {
	ReceiverID int64 `json:"receiverId"`
}

type RespondRequest struct {
	Accept bool `json:"accept"`
}

type BlockRequest struct {
	TargetID int64 `json:"targetId"`
}
