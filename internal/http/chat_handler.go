package httpapi

import (
	"context"
	"net/http"
	"strings"

	"tamgiao-hitl/internal/models"

	"go.uber.org/zap"
)

// ChatService scores one user message and runs the detection side effects.
type ChatService interface {
	HandleUserMessage(ctx context.Context, userID, sessionID, message string) (*models.ChatReply, error)
}

// ChatHandler is the synchronous entry point of the chat pipeline: the bot
// backend posts every user message here before answering.
type ChatHandler struct {
	chat   ChatService
	logger *zap.Logger
}

func NewChatHandler(chat ChatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger,
	}
}

type scoreRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *ChatHandler) Score(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := readBodyJSON(r, 1<<20, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.SessionID) == "" {
		writeError(w, http.StatusBadRequest, "user_id and session_id are required")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.chat.HandleUserMessage(r.Context(), req.UserID, req.SessionID, req.Message)
	if err != nil {
		h.logger.Error("Failed to handle user message",
			zap.String("user_id", req.UserID),
			zap.String("session_id", req.SessionID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, reply)
}
