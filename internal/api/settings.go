package api

import (
	"net/http"

	"lighttavern/backend/internal/llm"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SettingsHandler handles user chat settings and provider key testing
type SettingsHandler struct {
	settings *service.SettingsService
	chat     *service.ChatService
	logger   *logger.Logger
}

func NewSettingsHandler(settings *service.SettingsService, chat *service.ChatService, logger *logger.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, chat: chat, logger: logger}
}

// GetSettings returns the user's default model and provider
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	setting, err := h.settings.GetSettings(userID)
	if err != nil {
		h.logger.Error("Error fetching settings", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}

	c.JSON(http.StatusOK, setting)
}

// UpdateSettings saves the user's default model and provider
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req struct {
		Model    string `json:"model"`
		Provider string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	setting, err := h.settings.UpdateSettings(userID, req.Model, req.Provider)
	if err != nil {
		h.logger.Error("Error updating settings", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update settings"})
		return
	}

	c.JSON(http.StatusOK, setting)
}

// ListModels returns the provider's model catalog for the model picker
func (h *SettingsHandler) ListModels(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req struct {
		Provider string `json:"provider"`
	}
	// An absent or malformed body falls back to the default provider.
	_ = c.ShouldBindJSON(&req)

	models, err := h.chat.ListModels(c.Request.Context(), req.Provider)
	if err != nil {
		switch err {
		case llm.ErrCredentialMissing:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "No API key configured for this provider"})
		case llm.ErrUpstreamFailed:
			c.JSON(http.StatusBadRequest, gin.H{"provider": req.Provider, "error": "Provider rejected the models request"})
		default:
			h.logger.Error("Error fetching model catalog", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch model catalog"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"models": models})
}

// TestKey probes the provider with a minimal completion to verify that the
// server-held credential works
func (h *SettingsHandler) TestKey(c *gin.Context) {
	if _, ok := currentUserID(c); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req struct {
		Provider string `json:"provider"`
		Model    string `json:"model"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	err := h.chat.TestCredential(c.Request.Context(), req.Provider, req.Model)
	if err != nil {
		switch err {
		case llm.ErrCredentialMissing:
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "No API key configured for this provider"})
		case llm.ErrUpstreamFailed:
			c.JSON(http.StatusBadRequest, gin.H{"ok": false, "provider": req.Provider, "error": "Provider rejected the request"})
		default:
			h.logger.Error("Error testing provider key", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to test provider key"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
