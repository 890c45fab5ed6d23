package models

import (
	"time"

	"gorm.io/gorm"
)

// Character is a persona card owned by a user. The column set follows the
// SillyTavern card layout so imported cards round-trip without loss.
type Character struct {
	ID                      uint               `json:"id" gorm:"primarykey"`
	UserID                  uint               `json:"user_id" gorm:"index;not null"`
	Name                    string             `json:"name" gorm:"not null"`
	Description             string             `json:"description"`
	Persona                 string             `json:"persona" gorm:"not null"`
	Greeting                string             `json:"greeting"`
	Scenario                string             `json:"scenario"`
	Style                   string             `json:"style"`
	Rules                   string             `json:"rules"`
	CreatorNotes            string             `json:"creator_notes"`
	SystemPrompt            string             `json:"system_prompt"`
	PostHistoryInstructions string             `json:"post_history_instructions"`
	AlternateGreetings      string             `json:"alternate_greetings,omitempty" gorm:"type:text"` // JSON array
	Tags                    string             `json:"tags,omitempty" gorm:"type:text"`                // JSON array
	Creator                 string             `json:"creator"`
	CharacterVersion        string             `json:"character_version"`
	Extensions              string             `json:"extensions,omitempty" gorm:"type:text"` // JSON object
	CoverImageURL           string             `json:"cover_image_url"`
	Examples                []CharacterExample `json:"examples" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
	DeletedAt               gorm.DeletedAt     `json:"-" gorm:"index"`
}

// CharacterExample is one example exchange shown to the model when
// includeExamples is enabled. Position preserves authoring order.
type CharacterExample struct {
	ID            uint   `json:"-" gorm:"primarykey"`
	CharacterID   uint   `json:"-" gorm:"index;not null"`
	Position      int    `json:"-" gorm:"not null"`
	UserText      string `json:"user"`
	AssistantText string `json:"assistant"`
}

// ExamplePair mirrors CharacterExample on the request/response surface.
type ExamplePair struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

type CreateCharacterRequest struct {
	Name                    string        `json:"name" binding:"required"`
	Description             string        `json:"description"`
	Persona                 string        `json:"persona" binding:"required"`
	Greeting                string        `json:"greeting"`
	Scenario                string        `json:"scenario"`
	Style                   string        `json:"style"`
	Rules                   string        `json:"rules"`
	CreatorNotes            string        `json:"creator_notes"`
	SystemPrompt            string        `json:"system_prompt"`
	PostHistoryInstructions string        `json:"post_history_instructions"`
	AlternateGreetings      []string      `json:"alternate_greetings"`
	Tags                    []string      `json:"tags"`
	Creator                 string        `json:"creator"`
	CharacterVersion        string        `json:"character_version"`
	CoverImageURL           string        `json:"cover_image_url"`
	Examples                []ExamplePair `json:"examples"`
}

type UpdateCharacterRequest struct {
	Name                    *string        `json:"name"`
	Description             *string        `json:"description"`
	Persona                 *string        `json:"persona"`
	Greeting                *string        `json:"greeting"`
	Scenario                *string        `json:"scenario"`
	Style                   *string        `json:"style"`
	Rules                   *string        `json:"rules"`
	CreatorNotes            *string        `json:"creator_notes"`
	SystemPrompt            *string        `json:"system_prompt"`
	PostHistoryInstructions *string        `json:"post_history_instructions"`
	Tags                    *[]string      `json:"tags"`
	CoverImageURL           *string        `json:"cover_image_url"`
	Examples                *[]ExamplePair `json:"examples"`
}
