package api

import (
	"encoding/json"
	"net/http"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/internal/relay"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ChatHandler handles the streaming chat-turn endpoint
type ChatHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

func NewChatHandler(chat *service.ChatService, logger *logger.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

// ChatTurn runs one chat turn and streams the assistant's reply as chunked
// plain text with a trailing usage marker. All error statuses are decided
// before the first byte is written; once streaming starts, a failure just
// truncates the body.
func (h *ChatHandler) ChatTurn(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req service.TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	turn, err := h.chat.Prepare(c.Request.Context(), userID, &req)
	if err != nil {
		switch err {
		case service.ErrCharacterNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Character not found"})
		case service.ErrConversationNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
		case llm.ErrCredentialMissing:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "No API key configured for this provider"})
		case llm.ErrUpstreamFailed:
			c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream provider call failed"})
		default:
			h.logger.Error("Error preparing chat turn", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start chat turn"})
		}
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	if debug, err := json.Marshal(turn.DebugInfo); err == nil {
		c.Header("X-Prompt-Debug", string(debug))
	}
	c.Status(http.StatusOK)

	sink := relay.NewHTTPSink(c.Writer)
	if _, err := h.chat.Stream(c.Request.Context(), turn, sink); err != nil {
		// Headers are gone; nothing to do but log.
		h.logger.Warn("Chat stream ended early", "error", err.Error())
	}
}
