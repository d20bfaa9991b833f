package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/pulse/internal/registry"
)

// StatusHandler reports the shared visitor count.
type StatusHandler struct {
	registry  *registry.Registry
	startedAt time.Time
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(reg *registry.Registry) *StatusHandler {
	return &StatusHandler{
		registry:  reg,
		startedAt: time.Now(),
	}
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Visitors int64  `json:"visitors"`
	Accepted uint64 `json:"accepted"`
	Peak     int64  `json:"peak"`
	Uptime   string `json:"uptime"`
}

// Count handles GET /count - returns "Visitors: <N>" as plain text.
func (h *StatusHandler) Count(c *gin.Context) {
	c.String(http.StatusOK, fmt.Sprintf("Visitors: %d", h.registry.Snapshot()))
}

// Health handles GET /health.
func (h *StatusHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Visitors: h.registry.Snapshot(),
		Accepted: h.registry.Accepted(),
		Peak:     h.registry.Peak(),
		Uptime:   formatDuration(time.Since(h.startedAt)),
	})
}

// RegisterRoutes registers the status routes on a Gin router group.
func (h *StatusHandler) RegisterRoutes(rg gin.IRoutes) {
	rg.GET("/count", h.Count)
	rg.GET("/health", h.Health)
}
