// Package api assembles the gin router and the HTTP server around the
// endpoint handlers.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/router-for-me/KiroProxyAPI/internal/api/handlers"
	"github.com/router-for-me/KiroProxyAPI/internal/api/middleware"
	"github.com/router-for-me/KiroProxyAPI/internal/config"
	"github.com/router-for-me/KiroProxyAPI/internal/ratelimit"
)

// NewRouter builds the route tree. The root and health endpoints are
// open; everything under /v1 requires the proxy API key, and the
// inference routes additionally pass the rate limiter.
func NewRouter(h *handlers.Handler, cfg *config.Config, limiter *ratelimit.Limiter) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogging())

	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	v1 := r.Group("/v1", middleware.APIKeyAuth(cfg.ProxyAPIKey))
	v1.GET("/models", h.Models)
	v1.GET("/accounts/status", h.AccountsStatus)

	inference := v1.Group("", middleware.RateLimit(limiter))
	inference.POST("/chat/completions", h.ChatCompletions)
	inference.POST("/messages", h.Messages)

	return r
}
