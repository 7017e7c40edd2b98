package handler

import (
	"log/slog"
	"net/http"

	chatmodel "kakehashi/internal/domain/models/chat"
	"kakehashi/internal/handler/sse"
	"kakehashi/internal/httputil"
	chatsvc "kakehashi/internal/service/chat"
)

// ChatHandler handles message sending and event streaming.
// Handlers only communicate with services, never repositories.
type ChatHandler struct {
	chat      *chatsvc.Service
	sseConfig *sse.Config
	logger    *slog.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *chatsvc.Service, sseConfig *sse.Config, logger *slog.Logger) *ChatHandler {
	if sseConfig == nil {
		sseConfig = sse.DefaultConfig()
	}
	return &ChatHandler{
		chat:      chat,
		sseConfig: sseConfig,
		logger:    logger,
	}
}

// sendMessageBody is the request body for SendMessage.
type sendMessageBody struct {
	Message string `json:"message"`
}

// sessionInfo is the first SSE frame of an exchange, naming the session so
// the client can re-attach after a disconnect.
type sessionInfo struct {
	SessionID      string         `json:"session_id"`
	ConversationID string         `json:"conversation_id"`
	IsNew          bool           `json:"is_new"`
	UserTurn       chatmodel.Turn `json:"user_turn"`
}

// SendMessage starts an exchange and streams its events inline as SSE.
//
//	POST /api/chat           - active (or new) conversation
//	POST /api/chat/{id}      - explicit conversation
//
// The response opens with a "session" event, then forwards exchange events
// until the terminal "settled" event. A dropped connection does not abort the
// exchange; the client re-attaches via StreamSession.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var body sendMessageBody
	if err := httputil.ParseJSON(w, r, &body); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.chat.SendMessage(r.Context(), &chatsvc.SendMessageRequest{
		UserID:         userID,
		ConversationID: r.PathValue("id"),
		Message:        body.Message,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := writer.WriteNamed("session", sessionInfo{
		SessionID:      result.SessionID,
		ConversationID: result.ConversationID,
		IsNew:          result.IsNew,
		UserTurn:       result.UserTurn,
	}); err != nil {
		return
	}

	h.stream(r, writer, result.Session.Subscribe(r.Context()))
}

// StreamSession re-attaches to a running or recently settled exchange.
//
//	GET /api/chat/sessions/{id}/stream
//
// The full event history replays from the beginning, ending with the settled
// event.
func (h *ChatHandler) StreamSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := PathParam(w, r, "id", "Session ID")
	if !ok {
		return
	}

	events, err := h.chat.Subscribe(r.Context(), httputil.GetUserID(r), sessionID)
	if err != nil {
		handleError(w, err)
		return
	}

	writer, err := sse.NewWriter(w)
	if err != nil {
		httputil.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.stream(r, writer, events)
}

// stream forwards events to the client until the channel closes, the client
// disconnects, or a keep-alive write fails.
func (h *ChatHandler) stream(r *http.Request, writer *sse.Writer, events <-chan chatmodel.StreamEvent) {
	keepAlive := sse.NewTickerKeepAlive(h.sseConfig.KeepAliveInterval)
	stopped := keepAlive.Start(writer, h.logger)
	defer keepAlive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := writer.WriteEvent(event); err != nil {
				h.logger.Debug("client disconnected mid-stream",
					"path", r.URL.Path,
					"error", err,
				)
				return
			}

		case <-stopped:
			// Keep-alive detected a dead connection
			return
		}
	}
}
