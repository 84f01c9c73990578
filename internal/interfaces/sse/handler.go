package sse

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-status-sse/internal/infrastructure/hub"
	"go-status-sse/internal/infrastructure/logger"
)

type ServerSentEventHandler struct {
	hub    *hub.Hub
	logger logger.Logger
}

func NewServerSentEventHandler(hubInstance *hub.Hub, logger logger.Logger) *ServerSentEventHandler {
	return &ServerSentEventHandler{
		hub:    hubInstance,
		logger: logger.WithField("handler", "sse"),
	}
}

// Connect streams one topic to the client until it disconnects or the hub stops.
func (h *ServerSentEventHandler) Connect(c *gin.Context) {
	topic := c.Param("topic")
	if !hub.IsKnownTopic(topic) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown topic",
			"topic": topic,
		})
		return
	}

	if !h.hub.IsRunning() {
		h.logger.Error("Hub is not running")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Service temporarily unavailable",
		})
		return
	}

	conn := hub.NewSSEConnection(c.Request.Context(), hub.NewConnectionID("sse"), topic, c.Writer, h.logger)
	defer conn.Release()

	greeting := hub.NewMessageBuilder().
		WithType(hub.MessageTypeConnected).
		WithData(gin.H{
			"connection_id": conn.ID(),
			"topic":         topic,
			"timestamp":     time.Now().Format(time.RFC3339),
		}).
		Build()
	if err := conn.Send(c.Request.Context(), greeting); err != nil {
		h.logger.Errorf("Failed to greet connection %s: %v", conn.ID(), err)
		return
	}

	if err := h.hub.RegisterConnection(conn); err != nil {
		h.logger.Errorf("Failed to register connection: %v", err)
		return
	}

	h.logger.Infof("SSE connection %s subscribed to %s", conn.ID(), topic)

	<-conn.Context().Done()
	h.logger.Infof("SSE connection %s disconnected", conn.ID())
}

type messageRequest struct {
	Type  string `json:"type"`
	Topic string `json:"topic"`
	Data  any    `json:"data"`
}

func (r messageRequest) message() *hub.Message {
	return hub.NewMessageBuilder().
		WithType(hub.MessageType(r.Type)).
		WithTopic(r.Topic).
		WithData(r.Data).
		WithHeader("source", "admin").
		Build()
}

// SendMessage sends a message to a specific client (for testing/admin purposes)
func (h *ServerSentEventHandler) SendMessage(c *gin.Context) {
	clientID := c.Param("clientId")

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	message := req.message()
	if err := h.hub.SendToConnection(c.Request.Context(), clientID, message); err != nil {
		h.logger.Errorf("Failed to send message to client %s: %v", clientID, err)
		status := http.StatusInternalServerError
		if _, ok := h.hub.GetConnection(clientID); !ok {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"error": "Failed to send message",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "sent",
		"client_id":  clientID,
		"message_id": message.ID,
	})
}

// BroadcastMessage broadcasts a message to a topic, or to everyone when the
// topic is empty.
func (h *ServerSentEventHandler) BroadcastMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message format",
		})
		return
	}

	message := req.message()
	if err := message.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := h.hub.Broadcast(c.Request.Context(), message); err != nil {
		h.logger.Errorf("Failed to broadcast message: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to broadcast message",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "broadcasted",
		"message_id":  message.ID,
		"connections": len(h.hub.GetConnectionsByTopic(message.Topic)),
	})
}

// GetConnections returns information about connected connections
func (h *ServerSentEventHandler) GetConnections(c *gin.Context) {
	connections := h.hub.GetConnections()
	connectionInfo := make([]gin.H, len(connections))

	for i, conn := range connections {
		connectionInfo[i] = gin.H{
			"id":     conn.ID(),
			"type":   conn.Type(),
			"topic":  conn.Topic(),
			"closed": conn.IsClosed(),
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"total_connections": len(connections),
		"connections":       connectionInfo,
		"hub_running":       h.hub.IsRunning(),
	})
}
