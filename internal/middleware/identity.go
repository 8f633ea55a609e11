package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/reflect-journal/backend/pkg/response"
)

const (
	// UserIDHeader carries the opaque user identifier on every journal request.
	UserIDHeader = "User-ID"
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextRequestID is the key for the request ID in gin context.
	ContextRequestID = "request_id"
)

// Identity returns a middleware that requires the User-ID header and stores
// its trimmed value in the context. The value is opaque and not verified.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			response.Unauthorized(c, "missing User-ID header")
			c.Abort()
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// UserID returns the identity set by Identity, or "" when absent.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
