package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"lighttavern/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler converts errors attached to the Gin context into a JSON
// error response. Only the first error is reported; handlers that stream
// their response never attach errors here.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		appErr := FromError(c.Errors[0].Err)

		log := c.MustGet("logger").(*logger.Logger)
		log.Error("Request error",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
			"message", appErr.Message,
			"details", appErr.Details,
		)

		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
	}
}

// RecoveryWithLogger recovers from panics, logs the stack trace, and
// responds with a generic 500. Stack details are exposed only in debug mode.
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			stack := string(debug.Stack())

			log := logger.GetGlobal()
			if l, exists := c.Get("logger"); exists {
				log = l.(*logger.Logger)
			}
			log.Error("Panic recovered",
				"error", r,
				"stack", stack,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			var details interface{}
			if gin.Mode() == gin.DebugMode {
				details = fmt.Sprintf("Panic: %v\n%s", r, stack)
			}

			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "SERVER_ERROR",
					"message": "The server encountered an unexpected error",
					"details": details,
				},
			})
		}()

		c.Next()
	}
}
