package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gatherlyAPI/internal/realtime"
)

var errNotConnected = errors.New("realtime channel is not connected")

// Handlers receives decoded server events. Nil entries are skipped.
type Handlers struct {
	OnNewMessage    func(*realtime.NewMessagePayload)
	OnMessageSeen   func(*realtime.MessageSeenPayload)
	OnFriendRequest func(realtime.EventType, *realtime.FriendRequestPayload)
	OnBlocked       func(realtime.EventType, *realtime.BlockPayload)
}

// Conn keeps one realtime channel alive: dial, register, dispatch inbound
// events, and reconnect with capped backoff when the channel drops.
// Presence does not survive a reconnect, so register is re-issued after
// every successful dial.
type Conn struct {
	url      string
	userID   int64
	handlers Handlers

	backoffMin time.Duration
	backoffMax time.Duration

	mu sync.Mutex
	ws *websocket.Conn
}

func NewConn(url string, userID int64, handlers Handlers) *Conn {
	return &Conn{
		url:        url,
		userID:     userID,
		handlers:   handlers,
		backoffMin: time.Second,
		backoffMax: 30 * time.Second,
	}
}

// Run blocks until ctx is cancelled, redialing whenever the connection
// drops. Transport failures are never surfaced to the caller; the
// relationship and message logic only ever sees decoded events.
func (c *Conn) Run(ctx context.Context) error {
	backoff := c.backoffMin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			log.Printf("Conn: dial %s failed: %v, retrying in %s", c.url, err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > c.backoffMax {
				backoff = c.backoffMax
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()

		if err := c.Emit(realtime.EventRegister, realtime.RegisterPayload{UserID: realtime.ID(c.userID)}); err != nil {
			log.Printf("Conn: register failed: %v", err)
			ws.Close()
			continue
		}
		backoff = c.backoffMin

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				ws.Close()
			case <-done:
			}
		}()
		c.readLoop(ws)
		close(done)
		ws.Close()

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
	}
}

func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			log.Printf("Conn: read failed: %v", err)
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("Conn: malformed frame: %v", err)
			continue
		}
		c.dispatch(&env)
	}
}

func (c *Conn) dispatch(env *realtime.Envelope) {
	switch env.Type {
	case realtime.EventNewMessage:
		if c.handlers.OnNewMessage == nil {
			return
		}
		p := &realtime.NewMessagePayload{}
		if err := env.Decode(p); err != nil {
			log.Printf("Conn: %v", err)
			return
		}
		c.handlers.OnNewMessage(p)

	case realtime.EventMessageSeen:
		if c.handlers.OnMessageSeen == nil {
			return
		}
		p := &realtime.MessageSeenPayload{}
		if err := env.Decode(p); err != nil {
			log.Printf("Conn: %v", err)
			return
		}
		c.handlers.OnMessageSeen(p)

	case realtime.EventFriendRequestSent, realtime.EventFriendRequestAccepted,
		realtime.EventFriendRequestRejected, realtime.EventFriendRequestDeleted:
		if c.handlers.OnFriendRequest == nil {
			return
		}
		p := &realtime.FriendRequestPayload{}
		if err := env.Decode(p); err != nil {
			log.Printf("Conn: %v", err)
			return
		}
		c.handlers.OnFriendRequest(env.Type, p)

	case realtime.EventUserBlocked, realtime.EventUserBlockedConfirmation:
		if c.handlers.OnBlocked == nil {
			return
		}
		p := &realtime.BlockPayload{}
		if err := env.Decode(p); err != nil {
			log.Printf("Conn: %v", err)
			return
		}
		c.handlers.OnBlocked(env.Type, p)

	default:
		log.Printf("Conn: unhandled event type %q", env.Type)
	}
}

// Emit frames and writes one event. Safe for concurrent use.
func (c *Conn) Emit(t realtime.EventType, payload any) error {
	data, err := realtime.Encode(t, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return errNotConnected
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) JoinConversation(conversationID int64) error {
	return c.Emit(realtime.EventJoinConversation, realtime.ConversationPayload{
		ConversationID: realtime.ID(conversationID),
	})
}

func (c *Conn) LeaveConversation(conversationID int64) error {
	return c.Emit(realtime.EventLeaveConversation, realtime.ConversationPayload{
		ConversationID: realtime.ID(conversationID),
	})
}

func (c *Conn) ReportSeen(conversationID int64, messageIDs []int64, userID int64) error {
	ids := make([]realtime.ID, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = realtime.ID(id)
	}
	return c.Emit(realtime.EventMessageSeen, realtime.MessageSeenPayload{
		ConversationID: realtime.ID(conversationID),
		MessageIDs:     ids,
		UserID:         realtime.ID(userID),
	})
}

// Session wires a connection to a reconciler and a seen batcher: the
// standard client setup for one logged-in user.
type Session struct {
	Conn          *Conn
	Reconciler    *Reconciler
	Seen          *SeenBatcher
	Conversations *ConversationList
}

func NewSession(url string, userID int64) *Session {
	s := &Session{
		Reconciler:    NewReconciler(userID),
		Conversations: NewConversationList(),
	}
	s.Seen = NewSeenBatcher(DefaultSeenWindow, func(conversationID int64, messageIDs []int64) {
		if err := s.Conn.ReportSeen(conversationID, messageIDs, userID); err != nil {
			log.Printf("Session: seen report failed: %v", err)
		}
	})
	s.Conn = NewConn(url, userID, Handlers{
		OnNewMessage: func(p *realtime.NewMessagePayload) {
			ack := s.Reconciler.ApplyNew(p)
			s.Conversations.Touch(int64(p.ConversationID), p.CreatedAt)
			if ack {
				s.Seen.Schedule(int64(p.ConversationID), int64(p.ID))
			}
		},
		OnMessageSeen: func(p *realtime.MessageSeenPayload) {
			s.Reconciler.ApplySeen(p)
		},
	})
	return s
}

// OpenConversation switches the active conversation: pending seen state is
// dropped first so nothing buffered leaks across.
func (s *Session) OpenConversation(conversationID int64, history []*Message) error {
	s.Seen.Reset()
	s.Reconciler.SetActiveConversation(conversationID, history)
	return s.Conn.JoinConversation(conversationID)
}

// Send appends the optimistic entry and pushes the command out. A write
// failure marks the entry Failed; the reconnect loop owns recovery of the
// channel itself.
func (s *Session) Send(conversationID int64, text, imageURL string) *Message {
	msg, payload := s.Reconciler.Send(conversationID, text, imageURL)
	if err := s.Conn.Emit(realtime.EventSendMessage, payload); err != nil {
		log.Printf("Session: send failed: %v", err)
		s.Reconciler.MarkFailed(msg.TempID)
	}
	return msg
}
