package handler

import (
	"log/slog"
	"net/http"

	chatmodel "kakehashi/internal/domain/models/chat"
	"kakehashi/internal/httputil"
	chatsvc "kakehashi/internal/service/chat"
)

// ConversationHandler serves conversation listings and mirrors.
type ConversationHandler struct {
	chat   *chatsvc.Service
	logger *slog.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(chat *chatsvc.Service, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{chat: chat, logger: logger}
}

// List returns the user's conversation summaries.
// GET /api/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	summaries, err := h.chat.ListConversations(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}
	if summaries == nil {
		summaries = []chatmodel.Summary{}
	}

	httputil.RespondJSON(w, http.StatusOK, summaries)
}

// Get returns the client mirror of one conversation.
// GET /api/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	mirror, err := h.chat.GetMirror(r.Context(), httputil.GetUserID(r), conversationID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, mirror)
}

// GetActive returns the mirror of the user's active conversation.
// GET /api/conversations/active
func (h *ConversationHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	mirror, err := h.chat.ActiveConversation(r.Context(), httputil.GetUserID(r))
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, mirror)
}
