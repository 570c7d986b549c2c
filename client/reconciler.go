package client

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"gatherlyAPI/internal/realtime"
)

// MessageState tracks an outgoing message through its lifecycle. A message
// starts Pending with only a tempId, becomes Confirmed when the server
// echoes it back with a real id, or Failed when the send never left.
type MessageState int

const (
	MessagePending MessageState = iota
	MessageConfirmed
	MessageFailed
)

// Redeliveries without a shared tempId (an ack racing the broadcast) are
// matched by sender+content within this window.
const dedupeWindow = 5 * time.Second

type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Text           string
	ImageURL       string
	CreatedAt      time.Time
	TempID         string
	State          MessageState
	SeenBy         []int64
}

// Reconciler holds the in-order message list for the active conversation
// and merges optimistic local sends with server confirmations. All methods
// are safe for concurrent use; each call resolves atomically.
type Reconciler struct {
	mu         sync.Mutex
	userID     int64
	activeConv int64
	messages   []*Message
	// Provisional list-key ids for unconfirmed messages count down from
	// -1 so they can never collide with server ids.
	nextLocalID int64
}

func NewReconciler(userID int64) *Reconciler {
	return &Reconciler{userID: userID}
}

// SetActiveConversation swaps the working set. History comes from the REST
// surface; live events only ever merge into the active conversation.
func (r *Reconciler) SetActiveConversation(conversationID int64, history []*Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeConv = conversationID
	r.messages = append([]*Message(nil), history...)
}

func (r *Reconciler) ActiveConversation() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeConv
}

// Send synthesizes the optimistic entry, appends it, and returns the wire
// payload the connection should emit. The entry keeps its list position
// when the confirmation later lands.
func (r *Reconciler) Send(conversationID int64, text, imageURL string) (*Message, realtime.SendMessagePayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextLocalID--
	msg := &Message{
		ID:             r.nextLocalID,
		ConversationID: conversationID,
		SenderID:       r.userID,
		Text:           text,
		ImageURL:       imageURL,
		CreatedAt:      time.Now(),
		TempID:         uuid.New().String(),
		State:          MessagePending,
	}
	if conversationID == r.activeConv {
		r.messages = append(r.messages, msg)
	}

	return msg, realtime.SendMessagePayload{
		ConversationID: realtime.ID(conversationID),
		SenderID:       realtime.ID(r.userID),
		Text:           text,
		ImageURL:       imageURL,
		TempID:         msg.TempID,
	}
}

// MarkFailed flips a still-pending message to Failed. Confirmed messages
// are left alone: a late transport error after the echo means nothing.
func (r *Reconciler) MarkFailed(tempID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.TempID == tempID && m.State == MessagePending {
			m.State = MessageFailed
			return
		}
	}
}

// ApplyNew resolves an inbound newMessage event against the list, in
// order: tempId match replaces the optimistic entry in place, a known id
// is a duplicate delivery and dropped, a same-sender same-content message
// within the dedupe window is a redelivery and dropped, anything else
// appends. The return value reports whether the message should be
// acknowledged as seen (someone else's message in the active
// conversation).
func (r *Reconciler) ApplyNew(p *realtime.NewMessagePayload) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int64(p.ConversationID) != r.activeConv {
		return false
	}

	if p.TempID != "" {
		for _, m := range r.messages {
			if m.TempID != "" && m.TempID == p.TempID {
				m.ID = int64(p.ID)
				m.Text = p.Text
				m.ImageURL = p.ImageURL
				m.CreatedAt = p.CreatedAt
				m.State = MessageConfirmed
				return false
			}
		}
	}

	for _, m := range r.messages {
		if m.ID == int64(p.ID) {
			return false
		}
	}

	for _, m := range r.messages {
		if m.SenderID == int64(p.SenderID) && m.Text == p.Text && m.ImageURL == p.ImageURL &&
			absDuration(m.CreatedAt.Sub(p.CreatedAt)) <= dedupeWindow {
			return false
		}
	}

	msg := &Message{
		ID:             int64(p.ID),
		ConversationID: int64(p.ConversationID),
		SenderID:       int64(p.SenderID),
		Text:           p.Text,
		ImageURL:       p.ImageURL,
		CreatedAt:      p.CreatedAt,
		State:          MessageConfirmed,
	}
	r.messages = append(r.messages, msg)
	return msg.SenderID != r.userID
}

// ApplySeen grows the seenBy sets of the named messages. SeenBy never
// shrinks and replays are absorbed.
func (r *Reconciler) ApplySeen(p *realtime.MessageSeenPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int64(p.ConversationID) != r.activeConv {
		return
	}
	ids := make(map[int64]bool, len(p.MessageIDs))
	for _, id := range p.MessageIDs {
		ids[int64(id)] = true
	}
	for _, m := range r.messages {
		if !ids[m.ID] {
			continue
		}
		already := false
		for _, u := range m.SeenBy {
			if u == int64(p.UserID) {
				already = true
				break
			}
		}
		if !already {
			m.SeenBy = append(m.SeenBy, int64(p.UserID))
		}
	}
}

// Messages returns a snapshot of the active conversation, in list order.
func (r *Reconciler) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Message, len(r.messages))
	for i, m := range r.messages {
		cp := *m
		out[i] = &cp
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// ConversationSummary is a row in the conversation list. LastMessageAt is
// the zero time for an empty conversation.
type ConversationSummary struct {
	ID             int64
	ParticipantIDs []int64
	LastMessageAt  time.Time
}

// ConversationList keeps the sidebar ordering: most recent message first,
// empty conversations after all others, ties stable.
type ConversationList struct {
	mu    sync.Mutex
	items []*ConversationSummary
}

func NewConversationList() *ConversationList {
	return &ConversationList{}
}

func (l *ConversationList) Upsert(conv *ConversationSummary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, c := range l.items {
		if c.ID == conv.ID {
			l.items[i] = conv
			l.sortLocked()
			return
		}
	}
	l.items = append(l.items, conv)
	l.sortLocked()
}

// Touch bumps a conversation's last-message time. Earlier timestamps are
// ignored so an out-of-order redelivery cannot move a conversation down.
// An unknown id gets a placeholder row, so the first message of a
// brand-new conversation surfaces immediately; Upsert fills in the
// participants when the REST refresh lands.
func (l *ConversationList) Touch(conversationID int64, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.items {
		if c.ID == conversationID {
			if at.After(c.LastMessageAt) {
				c.LastMessageAt = at
			}
			l.sortLocked()
			return
		}
	}
	l.items = append(l.items, &ConversationSummary{ID: conversationID, LastMessageAt: at})
	l.sortLocked()
}

func (l *ConversationList) Ordered() []*ConversationSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*ConversationSummary(nil), l.items...)
}

func (l *ConversationList) sortLocked() {
	sort.SliceStable(l.items, func(i, j int) bool {
		a, b := l.items[i].LastMessageAt, l.items[j].LastMessageAt
		if a.IsZero() || b.IsZero() {
			return !a.IsZero() && b.IsZero()
		}
		return a.After(b)
	})
}
