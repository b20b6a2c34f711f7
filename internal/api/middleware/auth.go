// Package middleware holds the gin middleware chain: bearer auth,
// per-client rate limiting, and request logging.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth verifies the Authorization bearer against the configured
// proxy key with a constant-time compare.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	expected := []byte(apiKey)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(c, "Missing API key")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			unauthorized(c, "Invalid API key")
			return
		}
		c.Next()
	}
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": gin.H{
			"message": message,
			"type":    "authentication_error",
			"code":    "invalid_api_key",
		},
	})
}
