package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

// RequestIDKey is the key for request ID values in contexts
const RequestIDKey contextKey = "requestID"

// RequestIDMiddleware assigns each request a unique ID, honoring one passed
// by an upstream proxy, and exposes it on the context and response headers.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(c.Request.Context(), RequestIDKey, requestID)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Set("requestID", requestID)

		c.Next()
	}
}
