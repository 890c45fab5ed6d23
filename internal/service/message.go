package service

import (
	"time"

	"lighttavern/backend/internal/models"
	"lighttavern/backend/internal/prompt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageService handles message persistence within conversations.
type MessageService struct {
	db            *gorm.DB
	conversations *ConversationService
}

func NewMessageService(db *gorm.DB, conversations *ConversationService) *MessageService {
	return &MessageService{db: db, conversations: conversations}
}

// ListByConversation returns the conversation's messages oldest first,
// after verifying ownership.
func (s *MessageService) ListByConversation(userID, conversationID uint) ([]models.Message, error) {
	if _, err := s.conversations.GetConversation(userID, conversationID); err != nil {
		return nil, err
	}

	var messages []models.Message
	result := s.db.Where("conversation_id = ?", conversationID).
		Order("timestamp ASC, id ASC").
		Find(&messages)
	if result.Error != nil {
		return nil, result.Error
	}
	return messages, nil
}

// CreateMessage appends one message to a conversation the user owns.
func (s *MessageService) CreateMessage(userID, conversationID uint, req *models.CreateMessageRequest) (*models.Message, error) {
	if _, err := s.conversations.GetConversation(userID, conversationID); err != nil {
		return nil, err
	}

	message := &models.Message{
		ExternalID:     uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           req.Role,
		Content:        req.Content,
		Timestamp:      time.Now(),
	}
	if err := s.db.Create(message).Error; err != nil {
		return nil, err
	}

	if err := s.conversations.TouchUpdatedAt(conversationID); err != nil {
		return nil, err
	}
	return message, nil
}

// AppendTurn persists a completed chat turn: the user's input and the
// assistant's full reply with its token counts, then bumps the
// conversation's activity timestamp. One transaction, so a half-written
// turn never survives.
func (s *MessageService) AppendTurn(conversationID, userID uint, userInput, assistantText string, promptTokens, completionTokens, totalTokens *int) error {
	now := time.Now()
	userMessage := &models.Message{
		ExternalID:     uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.RoleUser,
		Content:        userInput,
		Timestamp:      now,
	}
	assistantMessage := &models.Message{
		ExternalID:       uuid.New().String(),
		ConversationID:   conversationID,
		UserID:           userID,
		Role:             models.RoleAssistant,
		Content:          assistantText,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
		Timestamp:        now.Add(time.Millisecond),
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(userMessage).Error; err != nil {
			return err
		}
		if err := tx.Create(assistantMessage).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("updated_at", now).Error
	})
}

// ClearMessages removes every message in a conversation the user owns.
func (s *MessageService) ClearMessages(userID, conversationID uint) error {
	if _, err := s.conversations.GetConversation(userID, conversationID); err != nil {
		return err
	}
	return s.db.Where("conversation_id = ?", conversationID).Delete(&models.Message{}).Error
}

// RepairGreeting re-seeds the character's greeting when a conversation has
// lost its opening assistant message. Returns the seeded message, or nil
// when no repair was needed.
func (s *MessageService) RepairGreeting(userID, conversationID uint, character *models.Character) (*models.Message, error) {
	if character.Greeting == "" {
		return nil, nil
	}

	messages, err := s.ListByConversation(userID, conversationID)
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 && messages[0].Role == models.RoleAssistant {
		return nil, nil
	}

	greeting := &models.Message{
		ExternalID:     uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           models.RoleAssistant,
		Content:        character.Greeting,
		Timestamp:      time.Now(),
	}
	if len(messages) > 0 {
		// Slot the greeting ahead of the existing first message.
		greeting.Timestamp = messages[0].Timestamp.Add(-time.Second)
	}

	if err := s.db.Create(greeting).Error; err != nil {
		return nil, err
	}
	return greeting, nil
}

// ToHistory converts stored messages to the prompt builder's history shape.
func ToHistory(messages []models.Message) []prompt.HistoryMessage {
	history := make([]prompt.HistoryMessage, 0, len(messages))
	for _, message := range messages {
		history = append(history, prompt.HistoryMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	return history
}
