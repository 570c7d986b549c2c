package handlers

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"gatherlyAPI/internal/realtime"
	"gatherlyAPI/middleware"
	"gatherlyAPI/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The mobile and web clients connect from their own origins; auth
	// happens via the bearer token, not the Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	registry    *realtime.Registry
	fanout      *realtime.Fanout
	chatService *services.ChatService
	userService *services.UserService
}

func NewWSHandler(registry *realtime.Registry, fanout *realtime.Fanout, chatService *services.ChatService, userService *services.UserService) *WSHandler {
	return &WSHandler{
		registry:    registry,
		fanout:      fanout,
		chatService: chatService,
		userService: userService,
	}
}

// Serve resolves the authenticated user, upgrades the request, and hands
// the socket to the realtime client. The connection is bound to that user
// for its whole lifetime; presence starts when the peer sends its register
// command, not at upgrade time.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	clerkID, ok := middleware.GetClerkID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}
	userID, err := h.userService.ResolveClerkID(r.Context(), clerkID)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Unknown user")
		return
	}

	middleware.CountWSUpgrade()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WSHandler: upgrade failed: %v", err)
		return
	}

	client := realtime.NewClient(conn, userID, h.registry, h.fanout, h.chatService)
	go client.WritePump()
	go client.ReadPump()
}
