package service

import (
	"errors"
	"time"

	"lighttavern/backend/internal/models"

	"gorm.io/gorm"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrConversationLimit    = errors.New("conversation limit reached")
)

// ConversationService handles conversation lifecycle: creation with greeting
// seeding, listing, touch-on-activity, and soft deletion.
type ConversationService struct {
	db         *gorm.DB
	characters *CharacterService
	maxPerChar int
}

func NewConversationService(db *gorm.DB, characters *CharacterService, maxPerChar int) *ConversationService {
	return &ConversationService{
		db:         db,
		characters: characters,
		maxPerChar: maxPerChar,
	}
}

// CreateConversation starts a new conversation with a character the user
// owns. When the character defines a greeting, it is seeded as the first
// assistant message so the conversation never opens empty.
func (s *ConversationService) CreateConversation(userID uint, req *models.CreateConversationRequest) (*models.Conversation, error) {
	character, err := s.characters.GetCharacter(userID, req.CharacterID)
	if err != nil {
		return nil, err
	}

	if s.maxPerChar > 0 {
		var count int64
		err := s.db.Model(&models.Conversation{}).
			Where("user_id = ? AND character_id = ?", userID, req.CharacterID).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count >= int64(s.maxPerChar) {
			return nil, ErrConversationLimit
		}
	}

	title := req.Title
	if title == "" {
		title = "Chat with " + character.Name
	}

	conversation := &models.Conversation{
		UserID:      userID,
		CharacterID: req.CharacterID,
		Title:       title,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conversation).Error; err != nil {
			return err
		}
		if character.Greeting != "" {
			greeting := &models.Message{
				ConversationID: conversation.ID,
				UserID:         userID,
				Role:           models.RoleAssistant,
				Content:        character.Greeting,
				Timestamp:      time.Now(),
			}
			return tx.Create(greeting).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conversation, nil
}

// GetConversation returns the conversation only when the user owns it.
func (s *ConversationService) GetConversation(userID, id uint) (*models.Conversation, error) {
	var conversation models.Conversation
	result := s.db.Where("user_id = ?", userID).First(&conversation, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, result.Error
	}
	return &conversation, nil
}

// ListConversations lists the user's conversations with one character,
// most recently active first.
func (s *ConversationService) ListConversations(userID, characterID uint) ([]models.Conversation, error) {
	var conversations []models.Conversation
	result := s.db.Where("user_id = ? AND character_id = ?", userID, characterID).
		Order("updated_at DESC").
		Find(&conversations)
	if result.Error != nil {
		return nil, result.Error
	}
	return conversations, nil
}

// TouchUpdatedAt bumps the conversation's activity timestamp so listings
// sort by recency.
func (s *ConversationService) TouchUpdatedAt(id uint) error {
	return s.db.Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

func (s *ConversationService) DeleteConversation(userID, id uint) error {
	conversation, err := s.GetConversation(userID, id)
	if err != nil {
		return err
	}
	return s.db.Delete(conversation).Error
}

// ChatInitResult aggregates everything the chat screen needs in one call.
// Timings report per-stage load times in milliseconds.
type ChatInitResult struct {
	Character     *models.Character     `json:"character"`
	Conversations []models.Conversation `json:"conversations"`
	Messages      []models.Message      `json:"messages"`
	Settings      *models.UserSetting   `json:"settings,omitempty"`
	Timings       map[string]int64      `json:"timings"`
}

// ChatInit loads the character, its conversations, and the messages of the
// most recent conversation. A first visit creates the initial conversation
// so the client always has somewhere to type.
func (s *ConversationService) ChatInit(userID, characterID uint, messages *MessageService, settings *SettingsService) (*ChatInitResult, error) {
	timings := make(map[string]int64)
	stage := func(name string, started time.Time) {
		timings[name] = time.Since(started).Milliseconds()
	}

	start := time.Now()
	character, err := s.characters.GetCharacter(userID, characterID)
	if err != nil {
		return nil, err
	}
	stage("character_ms", start)

	start = time.Now()
	conversations, err := s.ListConversations(userID, characterID)
	if err != nil {
		return nil, err
	}

	if len(conversations) == 0 {
		conversation, err := s.CreateConversation(userID, &models.CreateConversationRequest{CharacterID: characterID})
		if err != nil {
			return nil, err
		}
		conversations = []models.Conversation{*conversation}
	}
	stage("conversations_ms", start)

	start = time.Now()
	history, err := messages.ListByConversation(userID, conversations[0].ID)
	if err != nil {
		return nil, err
	}
	stage("messages_ms", start)

	result := &ChatInitResult{
		Character:     character,
		Conversations: conversations,
		Messages:      history,
		Timings:       timings,
	}

	if settings != nil {
		if setting, err := settings.GetSettings(userID); err == nil {
			result.Settings = setting
		}
	}
	return result, nil
}
