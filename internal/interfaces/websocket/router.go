package websocket

import (
	"github.com/gin-gonic/gin"

	"go-status-sse/internal/infrastructure/hub"
	"go-status-sse/internal/infrastructure/logger"
)

// InitWebSocketRouter initializes WebSocket routes
func InitWebSocketRouter(logger logger.Logger, hubInstance *hub.Hub, rg *gin.RouterGroup, admin ...gin.HandlerFunc) {
	wsHandler := NewWebSocketHandler(hubInstance, logger)

	wsGroup := rg.Group("/ws")
	wsGroup.GET("/:topic", wsHandler.Connect)

	// Connection info only; broadcasts go through the SSE admin API
	apiGroup := rg.Group("/api/v1/ws", admin...)
	apiGroup.GET("/connections", wsHandler.GetConnections)
}
