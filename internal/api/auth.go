package api

import (
	"net/http"

	"lighttavern/backend/internal/models"
	"lighttavern/backend/internal/service"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	service *service.UserService
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *service.UserService, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: service,
		logger:  logger,
	}
}

// Signup handles user registration
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for signup", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, token, err := h.service.CreateUser(&req)
	if err != nil {
		switch err {
		case service.ErrUserAlreadyExists:
			c.JSON(http.StatusConflict, gin.H{"error": "A user with this email already exists"})
		default:
			h.logger.Error("Error creating user", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user account"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Error binding JSON for login", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, token, err := h.service.Login(&req)
	if err != nil {
		switch err {
		case service.ErrInvalidCredentials:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		default:
			h.logger.Error("Error during login", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "An error occurred during login"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":  user.ToResponse(),
		"token": token,
	})
}

// Me returns the authenticated user's profile
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	user, err := h.service.GetUserByID(userID)
	if err != nil {
		if err == service.ErrUserNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		h.logger.Error("Error fetching user", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}

// UpdateUserRole changes another user's role (admin only; enforced by the
// RBAC middleware on the route)
func (h *AuthHandler) UpdateUserRole(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	user, err := h.service.UpdateUserRole(id, req.Role)
	if err != nil {
		switch err {
		case service.ErrInvalidRole:
			c.JSON(http.StatusBadRequest, gin.H{"error": "The provided role is invalid"})
		case service.ErrUserNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			h.logger.Error("Error updating user role", "error", err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user role"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user.ToResponse()})
}

// currentUserID extracts the authenticated user's ID set by the JWT
// middleware.
func currentUserID(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}
	userID, ok := value.(uint)
	return userID, ok
}
