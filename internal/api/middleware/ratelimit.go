package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/router-for-me/KiroProxyAPI/internal/ratelimit"
)

// RateLimit rejects requests over the per-client budget with a 429.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": gin.H{
					"message": "Rate limit exceeded, retry later",
					"type":    "rate_limit_error",
					"code":    "rate_limit_exceeded",
				},
			})
			return
		}
		c.Next()
	}
}
