package service

import (
	"encoding/json"
	"errors"
	"fmt"

	"lighttavern/backend/internal/models"
	"lighttavern/backend/internal/prompt"
	"lighttavern/backend/pkg/cache"

	"gorm.io/gorm"
)

var (
	ErrCharacterNotFound = errors.New("character not found")
	ErrCharacterLimit    = errors.New("character limit reached")
)

// CharacterService handles character card CRUD. Reads are fronted by the
// in-memory cache because the chat turn path fetches the card on every
// request.
type CharacterService struct {
	db         *gorm.DB
	cache      *cache.Cache
	maxPerUser int
}

func NewCharacterService(db *gorm.DB, characterCache *cache.Cache, maxPerUser int) *CharacterService {
	return &CharacterService{
		db:         db,
		cache:      characterCache,
		maxPerUser: maxPerUser,
	}
}

func characterCacheKey(userID, id uint) string {
	return fmt.Sprintf("character:%d:%d", userID, id)
}

func (s *CharacterService) CreateCharacter(userID uint, req *models.CreateCharacterRequest) (*models.Character, error) {
	if s.maxPerUser > 0 {
		var count int64
		if err := s.db.Model(&models.Character{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return nil, err
		}
		if count >= int64(s.maxPerUser) {
			return nil, ErrCharacterLimit
		}
	}

	character := &models.Character{
		UserID:                  userID,
		Name:                    req.Name,
		Description:             req.Description,
		Persona:                 req.Persona,
		Greeting:                req.Greeting,
		Scenario:                req.Scenario,
		Style:                   req.Style,
		Rules:                   req.Rules,
		CreatorNotes:            req.CreatorNotes,
		SystemPrompt:            req.SystemPrompt,
		PostHistoryInstructions: req.PostHistoryInstructions,
		AlternateGreetings:      marshalStringSlice(req.AlternateGreetings),
		Tags:                    marshalStringSlice(req.Tags),
		Creator:                 req.Creator,
		CharacterVersion:        req.CharacterVersion,
		CoverImageURL:           req.CoverImageURL,
		Examples:                toExampleRows(req.Examples),
	}

	if err := s.db.Create(character).Error; err != nil {
		return nil, err
	}
	return character, nil
}

// GetCharacter returns the character only when it belongs to the user.
// Not-owned and not-found are indistinguishable to the caller.
func (s *CharacterService) GetCharacter(userID, id uint) (*models.Character, error) {
	if s.cache != nil {
		if cached, found := s.cache.Get(characterCacheKey(userID, id)); found {
			if character, ok := cached.(*models.Character); ok {
				return character, nil
			}
		}
	}

	var character models.Character
	result := s.db.Preload("Examples", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("user_id = ?", userID).First(&character, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, result.Error
	}

	if s.cache != nil {
		s.cache.Set(characterCacheKey(userID, id), &character)
	}
	return &character, nil
}

func (s *CharacterService) ListCharacters(userID uint) ([]models.Character, error) {
	var characters []models.Character
	result := s.db.Preload("Examples", func(db *gorm.DB) *gorm.DB {
		return db.Order("position ASC")
	}).Where("user_id = ?", userID).Order("updated_at DESC").Find(&characters)
	if result.Error != nil {
		return nil, result.Error
	}
	return characters, nil
}

func (s *CharacterService) UpdateCharacter(userID, id uint, req *models.UpdateCharacterRequest) (*models.Character, error) {
	character, err := s.getForWrite(userID, id)
	if err != nil {
		return nil, err
	}

	applyIfSet := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	applyIfSet(&character.Name, req.Name)
	applyIfSet(&character.Description, req.Description)
	applyIfSet(&character.Persona, req.Persona)
	applyIfSet(&character.Greeting, req.Greeting)
	applyIfSet(&character.Scenario, req.Scenario)
	applyIfSet(&character.Style, req.Style)
	applyIfSet(&character.Rules, req.Rules)
	applyIfSet(&character.CreatorNotes, req.CreatorNotes)
	applyIfSet(&character.SystemPrompt, req.SystemPrompt)
	applyIfSet(&character.PostHistoryInstructions, req.PostHistoryInstructions)
	applyIfSet(&character.CoverImageURL, req.CoverImageURL)
	if req.Tags != nil {
		character.Tags = marshalStringSlice(*req.Tags)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if req.Examples != nil {
			if err := tx.Where("character_id = ?", character.ID).Delete(&models.CharacterExample{}).Error; err != nil {
				return err
			}
			character.Examples = toExampleRows(*req.Examples)
			for i := range character.Examples {
				character.Examples[i].CharacterID = character.ID
			}
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: req.Examples != nil}).Save(character).Error
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Delete(characterCacheKey(userID, id))
	}
	return character, nil
}

// DeleteCharacter soft-deletes the character; its conversations survive but
// become unreachable through the normal listing path.
func (s *CharacterService) DeleteCharacter(userID, id uint) error {
	character, err := s.getForWrite(userID, id)
	if err != nil {
		return err
	}

	if err := s.db.Delete(character).Error; err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Delete(characterCacheKey(userID, id))
	}
	return nil
}

func (s *CharacterService) getForWrite(userID, id uint) (*models.Character, error) {
	var character models.Character
	result := s.db.Where("user_id = ?", userID).First(&character, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, result.Error
	}
	return &character, nil
}

// ToPromptCharacter maps the stored card onto the prompt builder's input.
func ToPromptCharacter(character *models.Character) prompt.Character {
	examples := make([]prompt.ExamplePair, 0, len(character.Examples))
	for _, example := range character.Examples {
		examples = append(examples, prompt.ExamplePair{
			User:      example.UserText,
			Assistant: example.AssistantText,
		})
	}

	return prompt.Character{
		Name:                    character.Name,
		Description:             character.Description,
		Persona:                 character.Persona,
		Scenario:                character.Scenario,
		Style:                   character.Style,
		Rules:                   character.Rules,
		CreatorNotes:            character.CreatorNotes,
		SystemPrompt:            character.SystemPrompt,
		PostHistoryInstructions: character.PostHistoryInstructions,
		Examples:                examples,
	}
}

func toExampleRows(pairs []models.ExamplePair) []models.CharacterExample {
	rows := make([]models.CharacterExample, 0, len(pairs))
	for i, pair := range pairs {
		rows = append(rows, models.CharacterExample{
			Position:      i,
			UserText:      pair.User,
			AssistantText: pair.Assistant,
		})
	}
	return rows
}

func marshalStringSlice(values []string) string {
	if len(values) == 0 {
		return ""
	}
	encoded, err := json.Marshal(values)
	if err != nil {
		return ""
	}
	return string(encoded)
}
