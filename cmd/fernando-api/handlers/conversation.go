package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/conversation"
	"github.com/fernando-x/platform/libs/intelligence-engine/internal/observability"
)

// Conversations answers chat messages and exposes session state.
type Conversations interface {
	ProcessMessage(ctx context.Context, sessionID, userID, text string) (*conversation.Reply, error)
	Context(sessionID string) (*conversation.Context, bool)
	Summary(sessionID string) string
	Reset(sessionID string) bool
}

// ConversationHandler handles chat requests.
type ConversationHandler struct {
	logger   *observability.Logger
	sessions Conversations
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(logger *observability.Logger, sessions Conversations) *ConversationHandler {
	return &ConversationHandler{logger: logger, sessions: sessions}
}

// MessageRequest is the body of POST /conversation/messages.
type MessageRequest struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Message   string `json:"message"`
}

// Message handles POST /conversation/messages.
func (h *ConversationHandler) Message(w http.ResponseWriter, r *http.Request) {
	var req MessageRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reply, err := h.sessions.ProcessMessage(r.Context(), req.SessionID, req.UserID, req.Message)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("Message processing failed")
		writeError(w, http.StatusInternalServerError, "message processing failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// Session handles GET /conversation/{sessionID}.
func (h *ConversationHandler) Session(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	conv, ok := h.sessions.Context(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found", id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"context": conv,
		"summary": h.sessions.Summary(id),
	})
}

// Reset handles DELETE /conversation/{sessionID}.
func (h *ConversationHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if !h.sessions.Reset(id) {
		writeError(w, http.StatusNotFound, "session not found", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
