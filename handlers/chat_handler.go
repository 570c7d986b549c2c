package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"gatherlyAPI/middleware"
	"gatherlyAPI/services"
)

type ChatHandler struct {
	chatService *services.ChatService
	userService *services.UserService
}

func NewChatHandler(chatService *services.ChatService, userService *services.UserService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
	}
}

func (h *ChatHandler) requireUser(ctx context.Context, w http.ResponseWriter) int64 {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return 0
	}
	userID, err := h.userService.ResolveClerkID(ctx, clerkID)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, "Unknown user")
		return 0
	}
	return userID
}

func (h *ChatHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID := h.requireUser(ctx, w)
	if userID == 0 {
		return
	}

	conversations, err := h.chatService.ListConversations(ctx, userID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, conversations)
}

// EnsureConversation looks up or creates the conversation with another
// user. Accepting a friend request already does this server-side; the
// endpoint exists so a client can recover the conversation id without
// waiting for a message.
func (h *ChatHandler) EnsureConversation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID := h.requireUser(ctx, w)
	if userID == 0 {
		return
	}

	var req struct {
		FriendID int64 `json:"friendId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.userService.GetUserByID(ctx, req.FriendID); err != nil {
		respondWithServiceError(w, err)
		return
	}

	conversation, err := h.chatService.EnsureConversation(ctx, userID, req.FriendID)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, conversation)
}

// GetMessages returns recent history for one conversation, oldest first.
// Supports ?limit=N up to 200.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID := h.requireUser(ctx, w)
	if userID == 0 {
		return
	}

	conversationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid conversation id")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	messages, err := h.chatService.ListMessages(ctx, conversationID, userID, limit)
	if err != nil {
		respondWithServiceError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, messages)
}
