package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"wa-gateway/internal/tenant"
)

// SessionCounter reports how many realtime sessions are active.
type SessionCounter interface {
	SessionCount() int
}

// HealthHandler serves the liveness and status endpoint.
type HealthHandler struct {
	service   string
	env       string
	startedAt time.Time
	directory *tenant.Directory
	sessions  SessionCounter
}

// NewHealthHandler constructs the handler.
func NewHealthHandler(service, env string, directory *tenant.Directory, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{
		service:   service,
		env:       env,
		startedAt: time.Now(),
		directory: directory,
		sessions:  sessions,
	}
}

// Status handles GET /health.
func (h *HealthHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"service":         h.service,
		"environment":     h.env,
		"uptime":          time.Since(h.startedAt).Round(time.Second).String(),
		"active_sessions": h.sessions.SessionCount(),
		"secret_cache":    h.directory.Stats(),
	})
}
