// Package handlers provides HTTP API request handlers.
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/pulse/internal/ws"
)

// WebSocketHandler exposes the websocket upgrade endpoint.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{wsHandler: wsHandler}
}

// Connect handles GET /ws - upgrades the request and starts a session.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader has already written the error response.
		c.Error(err)
		return
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg gin.IRoutes) {
	rg.GET("/ws", h.Connect)
}
