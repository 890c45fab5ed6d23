package service

import (
	"errors"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/internal/models"
	"lighttavern/backend/pkg/config"

	"gorm.io/gorm"
)

// SettingsService stores each user's default model and provider. Absent
// settings resolve to the configured defaults rather than an error.
type SettingsService struct {
	db  *gorm.DB
	cfg *config.Config
}

func NewSettingsService(db *gorm.DB, cfg *config.Config) *SettingsService {
	return &SettingsService{db: db, cfg: cfg}
}

// GetSettings returns the user's settings, falling back to defaults for a
// user who never saved any.
func (s *SettingsService) GetSettings(userID uint) (*models.UserSetting, error) {
	var setting models.UserSetting
	result := s.db.Where("user_id = ?", userID).First(&setting)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return &models.UserSetting{
				UserID:   userID,
				Model:    s.cfg.LLM.DefaultModel,
				Provider: s.cfg.LLM.DefaultProvider,
			}, nil
		}
		return nil, result.Error
	}
	return &setting, nil
}

// UpdateSettings upserts the user's settings row.
func (s *SettingsService) UpdateSettings(userID uint, model, provider string) (*models.UserSetting, error) {
	var setting models.UserSetting
	result := s.db.Where("user_id = ?", userID).First(&setting)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, result.Error
	}

	setting.UserID = userID
	if model != "" {
		setting.Model = model
	}
	if provider != "" {
		// Unknown tags are stored as the default so a stale client
		// cannot persist an undialable provider.
		setting.Provider = normalizeProvider(provider, s.cfg.LLM.DefaultProvider)
	}

	if err := s.db.Save(&setting).Error; err != nil {
		return nil, err
	}
	return &setting, nil
}

// Resolve picks the model and provider for one chat turn: explicit request
// values win, then the user's saved settings, then configured defaults.
func (s *SettingsService) Resolve(userID uint, requestModel, requestProvider string) (model, provider string) {
	model = requestModel
	provider = requestProvider
	if model != "" && provider != "" {
		return model, provider
	}

	setting, err := s.GetSettings(userID)
	if err == nil {
		if model == "" {
			model = setting.Model
		}
		if provider == "" {
			provider = setting.Provider
		}
	}
	if model == "" {
		model = s.cfg.LLM.DefaultModel
	}
	if provider == "" {
		provider = s.cfg.LLM.DefaultProvider
	}
	return model, provider
}

func normalizeProvider(tag, fallback string) string {
	switch tag {
	case llm.TagOpenRouter, llm.TagVolcengine:
		return tag
	}
	return fallback
}
