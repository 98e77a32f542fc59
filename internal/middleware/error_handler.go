package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"employee_directory/pkg/errors"
	"employee_directory/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error.
// Server errors are logged and replaced by a generic message.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()
		statusCode := errors.HTTPStatusFromError(err.Err)
		message := err.Error()
		if statusCode >= http.StatusInternalServerError {
			log.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err.Err)
			message = "internal server error"
		}

		c.JSON(statusCode, gin.H{"error": message})
	}
}
