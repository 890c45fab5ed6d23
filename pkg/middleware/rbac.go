package middleware

import (
	"strings"

	"lighttavern/backend/pkg/errors"
	"lighttavern/backend/pkg/jwt"
	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// claimsFromContext pulls the JWT claims stored by JWTAuthMiddleware,
// aborting the request when they are absent or malformed.
func claimsFromContext(c *gin.Context) (*jwt.JWTClaims, bool) {
	value, exists := c.Get("claims")
	if !exists {
		c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
		c.Abort()
		return nil, false
	}

	claims, ok := value.(*jwt.JWTClaims)
	if !ok {
		c.Error(errors.NewInternalServerError("INVALID_CLAIMS", "Invalid JWT claims format"))
		c.Abort()
		return nil, false
	}

	return claims, true
}

// RequireRole returns a middleware that requires the user to have a specific role
func RequireRole(role jwt.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromContext(c)
		if !ok {
			return
		}

		if !claims.HasRole(role) {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequirePermission returns a middleware that requires the user to have a specific permission
func RequirePermission(permission jwt.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromContext(c)
		if !ok {
			return
		}

		if !claims.HasPermission(permission) {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_PERMISSION", "You don't have permission to perform this operation"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// JWTAuthMiddleware validates the bearer token and stores the claims and
// user ID on the context for downstream handlers.
func JWTAuthMiddleware(jwtService *jwt.Service, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			logger.Warn("Invalid JWT token", "error", err.Error())
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("userID", claims.UserID)
		c.Set("userRole", claims.Role)

		c.Next()
	}
}
