package models

import (
	"time"

	"gorm.io/gorm"
)

// Conversation groups the messages a user exchanges with one character.
type Conversation struct {
	ID          uint           `json:"id" gorm:"primarykey"`
	UserID      uint           `json:"user_id" gorm:"index;not null"`
	CharacterID uint           `json:"character_id" gorm:"index;not null"`
	Title       string         `json:"title"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

type CreateConversationRequest struct {
	CharacterID uint   `json:"character_id" binding:"required"`
	Title       string `json:"title"`
}
