package models

import (
	"time"
)

// Message roles. Role alternation is not enforced: a repaired greeting can
// leave two consecutive assistant messages in a conversation.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents one turn in a conversation. Token counts are nullable:
// they are only known for assistant messages whose upstream reported usage.
type Message struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	ExternalID       string    `json:"external_id" gorm:"index"`
	ConversationID   uint      `json:"conversation_id" gorm:"index;not null"`
	UserID           uint      `json:"user_id" gorm:"index"`
	Role             string    `json:"role" gorm:"not null"`
	Content          string    `json:"content"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	TotalTokens      *int      `json:"total_tokens,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	CreatedAt        time.Time `json:"created_at"`
}

type CreateMessageRequest struct {
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}
