package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gatherlyAPI/internal/types/chat"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	handlerTimeout = 5 * time.Second
)

var errSendBufferFull = errors.New("client send buffer full")

// ChatBackend is the persistence surface the gateway needs for message
// traffic. The chat service implements it.
type ChatBackend interface {
	SaveMessage(ctx context.Context, conversationID, senderID int64, text, imageURL string) (*chat.Message, error)
	Participants(ctx context.Context, conversationID int64) ([]int64, error)
	MarkSeen(ctx context.Context, conversationID int64, messageIDs []int64, userID int64) error
}

// Client is one live websocket connection. The user id is fixed at
// upgrade time from the authenticated handshake; the peer's register
// command only starts presence tracking, it cannot pick an identity.
type Client struct {
	connID   string
	userID   int64
	conn     *websocket.Conn
	send     chan []byte
	registry *Registry
	fanout   *Fanout
	chat     ChatBackend

	// registered and joined are only touched from ReadPump's goroutine.
	registered bool
	joined     map[int64]bool
}

func NewClient(conn *websocket.Conn, userID int64, registry *Registry, fanout *Fanout, chatBackend ChatBackend) *Client {
	return &Client{
		connID:   uuid.New().String(),
		userID:   userID,
		conn:     conn,
		send:     make(chan []byte, 256),
		registry: registry,
		fanout:   fanout,
		chat:     chatBackend,
		joined:   make(map[int64]bool),
	}
}

// Send queues a frame for the write pump. It never blocks: a peer that
// cannot drain its buffer loses the frame.
func (c *Client) Send(data []byte) error {
	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.registry.Unregister(c.connID)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Realtime: conn %s closed unexpectedly: %v", c.connID, err)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("Realtime: conn %s sent malformed frame: %v", c.connID, err)
			continue
		}
		c.handleEvent(&env)
	}
}

func (c *Client) handleEvent(env *Envelope) {
	switch env.Type {
	case EventRegister:
		var p RegisterPayload
		if err := env.Decode(&p); err != nil {
			log.Printf("Realtime: %v", err)
			return
		}
		if p.UserID != 0 && int64(p.UserID) != c.userID {
			log.Printf("Realtime: conn %s (user %d) tried to register as user %d, dropping", c.connID, c.userID, p.UserID)
			return
		}
		c.registered = true
		c.registry.Register(c.connID, c.userID, c)

	case EventJoinConversation:
		var p ConversationPayload
		if err := env.Decode(&p); err != nil {
			log.Printf("Realtime: %v", err)
			return
		}
		c.joined[int64(p.ConversationID)] = true

	case EventLeaveConversation:
		var p ConversationPayload
		if err := env.Decode(&p); err != nil {
			log.Printf("Realtime: %v", err)
			return
		}
		delete(c.joined, int64(p.ConversationID))

	case EventSendMessage:
		var p SendMessagePayload
		if err := env.Decode(&p); err != nil {
			log.Printf("Realtime: %v", err)
			return
		}
		c.handleSendMessage(&p)

	case EventMessageSeen:
		var p MessageSeenPayload
		if err := env.Decode(&p); err != nil {
			log.Printf("Realtime: %v", err)
			return
		}
		c.handleMessageSeen(&p)

	default:
		log.Printf("Realtime: conn %s sent unsupported event %q", c.connID, env.Type)
	}
}

func (c *Client) handleSendMessage(p *SendMessagePayload) {
	if !c.registered {
		log.Printf("Realtime: conn %s sent message before register", c.connID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	convID := int64(p.ConversationID)
	participants, err := c.chat.Participants(ctx, convID)
	if err != nil {
		log.Printf("Realtime: failed to load participants for conversation %d: %v", convID, err)
		return
	}
	if !contains(participants, c.userID) {
		log.Printf("Realtime: user %d is not in conversation %d, dropping message", c.userID, convID)
		return
	}

	msg, err := c.chat.SaveMessage(ctx, convID, c.userID, p.Text, p.ImageURL)
	if err != nil {
		log.Printf("Realtime: failed to save message in conversation %d: %v", convID, err)
		return
	}
	// Echo the correlation token so the sender can promote its optimistic
	// copy in place.
	msg.TempID = p.TempID

	c.fanout.NewMessage(participants, msg)
}

func (c *Client) handleMessageSeen(p *MessageSeenPayload) {
	if !c.registered {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	convID := int64(p.ConversationID)
	ids := make([]int64, 0, len(p.MessageIDs))
	for _, id := range p.MessageIDs {
		ids = append(ids, int64(id))
	}

	if err := c.chat.MarkSeen(ctx, convID, ids, c.userID); err != nil {
		log.Printf("Realtime: failed to mark %d messages seen in conversation %d: %v", len(ids), convID, err)
		return
	}

	participants, err := c.chat.Participants(ctx, convID)
	if err != nil {
		log.Printf("Realtime: failed to load participants for conversation %d: %v", convID, err)
		return
	}
	c.fanout.MessageSeen(participants, c.userID, &MessageSeenPayload{
		ConversationID: p.ConversationID,
		MessageIDs:     p.MessageIDs,
		UserID:         ID(c.userID),
	})
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
