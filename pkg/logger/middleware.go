package logger

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware returns a Gin middleware that attaches a request-scoped logger
// to the context under "logger" and logs every completed request.
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
			c.Header("X-Request-ID", requestID)
		}

		reqLogger := logger.WithRequestID(requestID)
		if userID, ok := c.Get("userID"); ok {
			if id, ok := userID.(uint); ok {
				reqLogger = reqLogger.WithUserID(strconv.FormatUint(uint64(id), 10))
			}
		}

		c.Set("logger", reqLogger)

		start := time.Now()
		c.Next()

		reqLogger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error_type", err.Type,
			)
		}
	}
}
