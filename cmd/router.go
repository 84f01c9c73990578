package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"go-status-sse/internal/infrastructure/hub"
	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/infrastructure/metrics"
	"go-status-sse/internal/interfaces/rest/v1/handler"
	"go-status-sse/internal/interfaces/sse"
	"go-status-sse/internal/interfaces/websocket"
	"go-status-sse/internal/monitor"
)

type routerDeps struct {
	hub     *hub.Hub
	monitor *monitor.Monitor
	metrics *metrics.Registry
	apiKey  string
	logger  logger.Logger
}

func InitRouter(deps routerDeps) http.Handler {
	log := deps.logger

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+handler.APIKeyHeader)

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	rootGroup := router.Group("")

	// Health check endpoint
	rootGroup.GET("/hub/status", func(c *gin.Context) {
		isRunning := deps.hub.IsRunning()
		log.Debugf(
			"Hub status check - Running: %v, Connections: %d",
			isRunning,
			deps.hub.ConnectionCount(),
		)
		c.JSON(http.StatusOK, gin.H{
			"status":      "healthy",
			"hub_running": isRunning,
			"connections": deps.hub.ConnectionCount(),
			"clients":     deps.monitor.Clients.Len(),
			"events":      deps.monitor.Events.Len(),
		})
	})

	rootGroup.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	statusHandler := handler.NewStatusHandler(deps.monitor, deps.metrics, log)
	handler.InitStatusRouter(statusHandler, deps.apiKey, rootGroup)

	admin := handler.APIKeyMiddleware(deps.apiKey)
	sse.InitSSERouter(log, deps.hub, rootGroup, admin)
	websocket.InitWebSocketRouter(log, deps.hub, rootGroup, admin)

	return router
}
