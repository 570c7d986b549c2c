package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"gatherlyAPI/internal/realtime"
)

// wsTestServer accepts connections, records the first frame of each, and
// drops every connection right after so the client is forced to redial.
type wsTestServer struct {
	mu       sync.Mutex
	firstMsg []realtime.Envelope

	upgrader websocket.Upgrader
	srv      *httptest.Server
}

func newWSTestServer(t *testing.T) *wsTestServer {
	s := &wsTestServer{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade failed: %v", err)
			return
		}
		var env realtime.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			ws.Close()
			return
		}
		s.mu.Lock()
		s.firstMsg = append(s.firstMsg, env)
		s.mu.Unlock()
		ws.Close()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsTestServer) firstFrames() []realtime.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]realtime.Envelope(nil), s.firstMsg...)
}

func TestConnReRegistersAfterReconnect(t *testing.T) {
	srv := newWSTestServer(t)

	c := NewConn(srv.url(), 42, Handlers{})
	c.backoffMin = 10 * time.Millisecond
	c.backoffMax = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	// The server drops every connection after its first frame, so two
	// recorded frames means the client dialed, registered, lost the
	// channel, and registered again.
	deadline := time.After(3 * time.Second)
	for {
		if len(srv.firstFrames()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected at least 2 connections, got %d", len(srv.firstFrames()))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	for i, env := range srv.firstFrames()[:2] {
		if env.Type != realtime.EventRegister {
			t.Fatalf("connection %d: first frame was %q, want %q", i, env.Type, realtime.EventRegister)
		}
		var p realtime.RegisterPayload
		if err := env.Decode(&p); err != nil {
			t.Fatalf("connection %d: decode register: %v", i, err)
		}
		if int64(p.UserID) != 42 {
			t.Fatalf("connection %d: registered user %d, want 42", i, p.UserID)
		}
	}
}

func TestEmitWhileDisconnectedFails(t *testing.T) {
	c := NewConn("ws://127.0.0.1:1/ws", 7, Handlers{})
	if err := c.Emit(realtime.EventJoinConversation, realtime.ConversationPayload{ConversationID: 1}); err == nil {
		t.Fatal("expected an error when emitting without a connection")
	}
}
