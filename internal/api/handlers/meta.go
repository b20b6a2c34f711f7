package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	kiroauth "github.com/router-for-me/KiroProxyAPI/internal/auth/kiro"
	"github.com/router-for-me/KiroProxyAPI/internal/buildinfo"
	"github.com/router-for-me/KiroProxyAPI/internal/config"
	"github.com/router-for-me/KiroProxyAPI/internal/executor"
	"github.com/router-for-me/KiroProxyAPI/internal/registry"
)

// Handler wires the HTTP endpoints to the executor and token source.
type Handler struct {
	Exec   *executor.Executor
	Tokens kiroauth.TokenSource
	Cfg    *config.Config
}

// New builds the endpoint handler set.
func New(exec *executor.Executor, tokens kiroauth.TokenSource, cfg *config.Config) *Handler {
	return &Handler{Exec: exec, Tokens: tokens, Cfg: cfg}
}

// Root serves GET / without auth.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Kiro proxy is running",
		"version": buildinfo.Version,
	})
}

// Health serves GET /health without auth.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   buildinfo.Version,
	})
}

// Models serves GET /v1/models as an OpenAI-shaped list.
func (h *Handler) Models(c *gin.Context) {
	c.JSON(http.StatusOK, registry.List())
}

// AccountsStatus serves GET /v1/accounts/status. Pool mode reports every
// token slot with masked refresh tokens; single mode reports the one
// credential set.
func (h *Handler) AccountsStatus(c *gin.Context) {
	switch tokens := h.Tokens.(type) {
	case *kiroauth.Pool:
		accounts := tokens.Status()
		c.JSON(http.StatusOK, gin.H{
			"mode":         "multi-account",
			"total_tokens": len(accounts),
			"accounts":     accounts,
		})
	case *kiroauth.Manager:
		c.JSON(http.StatusOK, gin.H{
			"mode":    "single-account",
			"account": tokens.Status(),
		})
	default:
		c.JSON(http.StatusOK, gin.H{"mode": "unknown"})
	}
}
