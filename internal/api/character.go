package api

import (
	"net/http"
	"strconv"

	"lighttavern/backend/internal/models"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CharacterHandler handles character card CRUD endpoints
type CharacterHandler struct {
	service *service.CharacterService
	logger  *logger.Logger
}

func NewCharacterHandler(service *service.CharacterService, logger *logger.Logger) *CharacterHandler {
	return &CharacterHandler{service: service, logger: logger}
}

// CreateCharacter creates a new character card for the authenticated user
func (h *CharacterHandler) CreateCharacter(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var req models.CreateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	character, err := h.service.CreateCharacter(userID, &req)
	if err != nil {
		switch err {
		case service.ErrCharacterLimit:
			c.JSON(http.StatusConflict, gin.H{"error": "Character limit reached"})
		default:
			h.logger.Error("Error creating character", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create character"})
		}
		return
	}

	c.JSON(http.StatusCreated, character)
}

// GetCharacter returns one of the user's characters
func (h *CharacterHandler) GetCharacter(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	character, err := h.service.GetCharacter(userID, id)
	if err != nil {
		if err == service.ErrCharacterNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Character not found"})
			return
		}
		h.logger.Error("Error fetching character", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch character"})
		return
	}

	c.JSON(http.StatusOK, character)
}

// ListCharacters lists the user's characters
func (h *CharacterHandler) ListCharacters(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	characters, err := h.service.ListCharacters(userID)
	if err != nil {
		h.logger.Error("Error listing characters", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list characters"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"characters": characters,
		"count":      len(characters),
	})
}

// UpdateCharacter applies a partial update to one of the user's characters
func (h *CharacterHandler) UpdateCharacter(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	character, err := h.service.UpdateCharacter(userID, id, &req)
	if err != nil {
		if err == service.ErrCharacterNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Character not found"})
			return
		}
		h.logger.Error("Error updating character", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update character"})
		return
	}

	c.JSON(http.StatusOK, character)
}

// DeleteCharacter soft-deletes one of the user's characters
func (h *CharacterHandler) DeleteCharacter(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteCharacter(userID, id); err != nil {
		if err == service.ErrCharacterNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Character not found"})
			return
		}
		h.logger.Error("Error deleting character", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete character"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// pathID parses a numeric path parameter, writing the 400 itself on failure.
func pathID(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}
