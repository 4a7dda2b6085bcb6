package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/middleware"
	"chat-realtime/internal/rooms"
	"chat-realtime/internal/telemetry"
	"chat-realtime/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, registry *rooms.Registry, hub *ws.Hub, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", middleware.FromContext(c), nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/rooms", func(c *gin.Context) {
		roomCount, indexedUsers := registry.Counts()
		c.JSON(http.StatusOK, gin.H{
			"rooms":              roomCount,
			"indexed_users":      indexedUsers,
			"active_connections": hub.ConnectionCount(),
		})
	})
}
