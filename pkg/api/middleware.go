package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// accountKey is the gin context key holding the caller's account id.
const accountKey = "account_id"

// requireAccount rejects requests without an X-Account-ID header and stashes
// the value for handlers.
func requireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetHeader("X-Account-ID")
		if accountID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "missing X-Account-ID header",
			})
			return
		}
		c.Set(accountKey, accountID)
		c.Next()
	}
}

// accountID returns the account stashed by requireAccount.
func accountID(c *gin.Context) string {
	return c.GetString(accountKey)
}

// requestLogger logs one line per request.
func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}
