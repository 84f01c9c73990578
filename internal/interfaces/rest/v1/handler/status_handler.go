package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/monitor"
)

// Recorder counts accepted agent reports.
type Recorder interface {
	EventReported()
	HeartbeatReceived()
}

type nopRecorder struct{}

func (nopRecorder) EventReported()     {}
func (nopRecorder) HeartbeatReceived() {}

// StatusHandler accepts file events and heartbeats from agents.
type StatusHandler struct {
	monitor  *monitor.Monitor
	recorder Recorder
	now      func() time.Time
	logger   logger.Logger
}

// HeartbeatRequest carries the agent's timestamp as an opaque string; agents
// send RFC 3339 or naive ISO 8601 and neither affects liveness.
type HeartbeatRequest struct {
	ClientID  string `json:"client_id" binding:"required"`
	Hostname  string `json:"hostname"`
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
}

func NewStatusHandler(m *monitor.Monitor, recorder Recorder, logger logger.Logger) *StatusHandler {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &StatusHandler{
		monitor:  m,
		recorder: recorder,
		now:      time.Now,
		logger:   logger.WithField("handler", "status"),
	}
}

// ReportEvent appends a file event to the recent-events log.
func (h *StatusHandler) ReportEvent(c *gin.Context) {
	var ev monitor.FileEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		h.logger.Errorf("Invalid event format: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid event format",
		})
		return
	}

	stored, err := h.monitor.Events.Append(ev)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.recorder.EventReported()
	h.logger.Infof("Event %s on %s:%s", stored.EventType, stored.Host, stored.Path)

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"server_time": stored.ServerTime,
	})
}

// Heartbeat marks the reporting client as seen.
func (h *StatusHandler) Heartbeat(c *gin.Context) {
	var req HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid heartbeat format",
		})
		return
	}

	if req.IP == "" {
		req.IP = c.ClientIP()
	}

	err := h.monitor.Clients.Heartbeat(monitor.Heartbeat{
		ClientID:   req.ClientID,
		Hostname:   req.Hostname,
		IP:         req.IP,
		ReportedAt: req.Timestamp,
	}, h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	h.recorder.HeartbeatReceived()
	h.logger.Debugf("Heartbeat from %s (%s)", req.ClientID, req.IP)

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
	})
}

// InitStatusRouter mounts the agent endpoints under /api, guarded by the API key.
func InitStatusRouter(h *StatusHandler, apiKey string, rg *gin.RouterGroup) {
	apiGroup := rg.Group("/api", APIKeyMiddleware(apiKey))
	apiGroup.POST("/events", h.ReportEvent)
	apiGroup.POST("/heartbeat", h.Heartbeat)
}
