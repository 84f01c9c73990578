package agent

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"go-status-sse/internal/infrastructure/logger"
)

const DefaultHeartbeatInterval = 30 * time.Second

type heartbeatBody struct {
	ClientID  string    `json:"client_id"`
	Hostname  string    `json:"hostname"`
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatClient posts a heartbeat right away and then on every interval.
type HeartbeatClient struct {
	poster   poster
	clientID string
	hostname string
	ip       string
	interval time.Duration
	now      func() time.Time
	logger   logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type HeartbeatOption func(*HeartbeatClient)

func WithHeartbeatInterval(d time.Duration) HeartbeatOption {
	return func(h *HeartbeatClient) {
		if d > 0 {
			h.interval = d
		}
	}
}

func WithHeartbeatHTTPClient(c *http.Client) HeartbeatOption {
	return func(h *HeartbeatClient) { h.poster.client = c }
}

func WithHeartbeatLogger(l logger.Logger) HeartbeatOption {
	return func(h *HeartbeatClient) { h.logger = l.WithField("component", "heartbeat") }
}

// WithIdentity overrides the reported hostname and IP.
func WithIdentity(hostname, ip string) HeartbeatOption {
	return func(h *HeartbeatClient) {
		h.hostname = hostname
		h.ip = ip
	}
}

func NewHeartbeatClient(serverURL, apiKey, clientID string, opts ...HeartbeatOption) *HeartbeatClient {
	hostname, _ := os.Hostname()
	if clientID == "" {
		clientID = hostname
	}

	h := &HeartbeatClient{
		poster:   newPoster(serverURL, apiKey, nil),
		clientID: clientID,
		hostname: hostname,
		ip:       LocalIP(),
		interval: DefaultHeartbeatInterval,
		now:      time.Now,
		logger:   logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Send posts one heartbeat.
func (h *HeartbeatClient) Send(ctx context.Context) error {
	return h.poster.post(ctx, "/api/heartbeat", heartbeatBody{
		ClientID:  h.clientID,
		Hostname:  h.hostname,
		IP:        h.ip,
		Timestamp: h.now().UTC(),
	})
}

// Start runs the heartbeat loop in the background until Stop or ctx ends.
func (h *HeartbeatClient) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		return fmt.Errorf("heartbeat client is already running")
	}

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})
	go h.run(ctx, h.done)

	h.logger.Infof("Heartbeat started for %s every %s", h.clientID, h.interval)
	return nil
}

// Stop ends the loop and waits for it to exit.
func (h *HeartbeatClient) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	h.logger.Info("Heartbeat stopped")
}

// Done is closed when the running loop exits.
func (h *HeartbeatClient) Done() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.done
}

func (h *HeartbeatClient) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.beat(ctx)
	for {
		select {
		case <-ticker.C:
			h.beat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (h *HeartbeatClient) beat(ctx context.Context) {
	if err := h.Send(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		h.logger.Warnf("Heartbeat failed: %v", err)
		return
	}
	h.logger.Debug("Heartbeat sent")
}
