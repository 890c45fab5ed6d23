package api

import (
	"net/http"

	"lighttavern/backend/internal/models"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ConversationHandler handles conversation and message endpoints
type ConversationHandler struct {
	conversations *service.ConversationService
	messages      *service.MessageService
	characters    *service.CharacterService
	settings      *service.SettingsService
	logger        *logger.Logger
}

func NewConversationHandler(
	conversations *service.ConversationService,
	messages *service.MessageService,
	characters *service.CharacterService,
	settings *service.SettingsService,
	logger *logger.Logger,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		characters:    characters,
		settings:      settings,
		logger:        logger,
	}
}

// CreateConversation starts a new conversation with a character
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req models.CreateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	conversation, err := h.conversations.CreateConversation(userID, &req)
	if err != nil {
		switch err {
		case service.ErrCharacterNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Character not found"})
		case service.ErrConversationLimit:
			c.JSON(http.StatusConflict, gin.H{"error": "Conversation limit reached for this character"})
		default:
			h.logger.Error("Error creating conversation", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create conversation"})
		}
		return
	}

	c.JSON(http.StatusCreated, conversation)
}

// ListConversations lists the user's conversations with one character
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	characterID, ok := pathID(c, "characterId")
	if !ok {
		return
	}

	conversations, err := h.conversations.ListConversations(userID, characterID)
	if err != nil {
		h.logger.Error("Error listing conversations", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": conversations,
		"count":         len(conversations),
	})
}

// DeleteConversation soft-deletes one of the user's conversations
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.conversations.DeleteConversation(userID, id); err != nil {
		if err == service.ErrConversationNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("Error deleting conversation", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete conversation"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// GetMessages returns a conversation's messages, oldest first
func (h *ConversationHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	messages, err := h.messages.ListByConversation(userID, conversationID)
	if err != nil {
		if err == service.ErrConversationNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("Error listing messages", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// CreateMessage appends a message to a conversation
func (h *ConversationHandler) CreateMessage(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	message, err := h.messages.CreateMessage(userID, conversationID, &req)
	if err != nil {
		if err == service.ErrConversationNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("Error creating message", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create message"})
		return
	}

	c.JSON(http.StatusCreated, message)
}

// ClearMessages deletes all messages in a conversation
func (h *ConversationHandler) ClearMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	conversationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.messages.ClearMessages(userID, conversationID); err != nil {
		if err == service.ErrConversationNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
			return
		}
		h.logger.Error("Error clearing messages", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// ChatInit aggregates everything the chat screen needs for one character:
// the card, the conversation list, the active conversation's messages, and
// the user's settings.
func (h *ConversationHandler) ChatInit(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	characterID, ok := pathID(c, "characterId")
	if !ok {
		return
	}

	result, err := h.conversations.ChatInit(userID, characterID, h.messages, h.settings)
	if err != nil {
		if err == service.ErrCharacterNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Character not found"})
			return
		}
		h.logger.Error("Error initializing chat", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to initialize chat"})
		return
	}

	// Repair a conversation that lost its greeting, so returning users
	// never see an empty opening.
	if len(result.Conversations) > 0 {
		seeded, err := h.messages.RepairGreeting(userID, result.Conversations[0].ID, result.Character)
		if err != nil {
			h.logger.Warn("Greeting repair failed", "error", err.Error())
		} else if seeded != nil {
			result.Messages = append([]models.Message{*seeded}, result.Messages...)
		}
	}

	c.JSON(http.StatusOK, result)
}
