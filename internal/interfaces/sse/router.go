package sse

import (
	"github.com/gin-gonic/gin"

	"go-status-sse/internal/infrastructure/hub"
	"go-status-sse/internal/infrastructure/logger"
)

func InitSSERouter(logger logger.Logger, hubInstance *hub.Hub, rg *gin.RouterGroup, admin ...gin.HandlerFunc) {
	sseHandler := NewServerSentEventHandler(hubInstance, logger)

	// SSE stream endpoints
	sseGroup := rg.Group("/sse")
	sseGroup.GET("/:topic", SSEHeadersMiddleware(), sseHandler.Connect)

	// Broadcasting API endpoints
	apiGroup := rg.Group("/api/v1/sse", admin...)
	apiGroup.GET("/connections", sseHandler.GetConnections)
	apiGroup.POST("/broadcast", sseHandler.BroadcastMessage)
	apiGroup.POST("/send/:clientId", sseHandler.SendMessage)
}

// SSEHeadersMiddleware disables caching and proxy buffering for stream routes.
// Content-Type is left to the connection so error replies stay JSON.
func SSEHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.Next()
	}
}
