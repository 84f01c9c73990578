package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-status-sse/internal/infrastructure/logger"
)

// Hub fans messages out to connections by topic and remembers the latest message
// of each topic so late subscribers start with current data.
type Hub struct {
	connections   map[string]Connection
	outboxes      map[string]*outbox
	connectionsMu sync.RWMutex

	running   bool
	runningMu sync.RWMutex

	latest   map[string]*Message
	latestMu sync.RWMutex

	logger   logger.Logger
	observer Observer

	// Channels for internal communication
	register   chan Connection
	unregister chan string
	broadcast  chan *Message

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Hub)

func WithObserver(o Observer) Option {
	return func(h *Hub) { h.observer = o }
}

// New creates a new Hub instance
func New(logger logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		connections: make(map[string]Connection),
		outboxes:    make(map[string]*outbox),
		latest:      make(map[string]*Message),
		logger:      logger.WithField("component", "hub"),
		observer:    nopObserver{},
		register:    make(chan Connection, 100),
		unregister:  make(chan string, 100),
		broadcast:   make(chan *Message, 1000),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start starts the hub and begins processing connection events
func (h *Hub) Start(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if h.running {
		return fmt.Errorf("hub is already running")
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.running = true

	go h.run(h.ctx)

	h.logger.Info("Hub started successfully")
	return nil
}

// Stop gracefully stops the hub and disconnects all connections
func (h *Hub) Stop(ctx context.Context) error {
	h.runningMu.Lock()
	defer h.runningMu.Unlock()

	if !h.running {
		return nil
	}

	h.cancel()

	h.connectionsMu.Lock()
	for id, conn := range h.connections {
		h.outboxes[id].stop()
		if err := conn.Close(); err != nil {
			h.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
		h.observer.ConnectionClosed(conn.Topic(), conn.Type())
	}
	h.connections = make(map[string]Connection)
	h.outboxes = make(map[string]*outbox)
	h.connectionsMu.Unlock()

	h.running = false
	h.logger.Info("Hub stopped successfully")
	return nil
}

func (h *Hub) IsRunning() bool {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.running
}

func (h *Hub) done() <-chan struct{} {
	h.runningMu.RLock()
	defer h.runningMu.RUnlock()
	return h.ctx.Done()
}

// RegisterConnection adds a new connection to the hub
func (h *Hub) RegisterConnection(conn Connection) error {
	if !h.IsRunning() {
		return fmt.Errorf("hub is not running")
	}

	select {
	case h.register <- conn:
		return nil
	case <-h.done():
		return fmt.Errorf("hub is shutting down")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout registering connection")
	}
}

// UnregisterConnection removes a connection from the hub
func (h *Hub) UnregisterConnection(connID string) error {
	if !h.IsRunning() {
		return fmt.Errorf("hub is not running")
	}

	select {
	case h.unregister <- connID:
		return nil
	case <-h.done():
		return fmt.Errorf("hub is shutting down")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout unregistering connection")
	}
}

func (h *Hub) GetConnection(connID string) (Connection, bool) {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	conn, exists := h.connections[connID]
	return conn, exists
}

func (h *Hub) GetConnections() []Connection {
	return h.filterConnections(func(Connection) bool { return true })
}

func (h *Hub) GetConnectionsByType(connType string) []Connection {
	return h.filterConnections(func(c Connection) bool { return c.Type() == connType })
}

// GetConnectionsByTopic returns the receivers of a topic; the empty topic
// matches every connection.
func (h *Hub) GetConnectionsByTopic(topic string) []Connection {
	return h.filterConnections(func(c Connection) bool { return topic == "" || c.Topic() == topic })
}

func (h *Hub) filterConnections(keep func(Connection) bool) []Connection {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()

	connections := make([]Connection, 0, len(h.connections))
	for _, conn := range h.connections {
		if keep(conn) {
			connections = append(connections, conn)
		}
	}
	return connections
}

func (h *Hub) ConnectionCount() int {
	h.connectionsMu.RLock()
	defer h.connectionsMu.RUnlock()
	return len(h.connections)
}

// Latest returns the last message broadcast on topic.
func (h *Hub) Latest(topic string) (*Message, bool) {
	h.latestMu.RLock()
	defer h.latestMu.RUnlock()
	msg, ok := h.latest[topic]
	return msg, ok
}

// Broadcast queues a message for every connection on message.Topic.
func (h *Hub) Broadcast(ctx context.Context, message *Message) error {
	if !h.IsRunning() {
		return fmt.Errorf("hub is not running")
	}

	select {
	case h.broadcast <- message:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context cancelled")
	case <-h.done():
		return fmt.Errorf("hub is shutting down")
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout broadcasting message")
	}
}

// SendToConnection sends a message to a specific connection
func (h *Hub) SendToConnection(ctx context.Context, connID string, message *Message) error {
	conn, exists := h.GetConnection(connID)
	if !exists {
		return fmt.Errorf("connection %s not found", connID)
	}

	if err := conn.Send(ctx, message); err != nil {
		h.logger.Errorf("Failed to send message to connection %s: %v", connID, err)
		h.UnregisterConnection(connID)
		return err
	}

	return nil
}

func (h *Hub) run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case conn := <-h.register:
			h.handleRegister(conn)

		case connID := <-h.unregister:
			h.handleUnregister(connID)

		case message := <-h.broadcast:
			h.handleBroadcast(message)

		case <-ticker.C:
			h.cleanupClosedConnections()

		case <-ctx.Done():
			h.logger.Info("Hub run loop stopped")
			return
		}
	}
}

func (h *Hub) handleRegister(conn Connection) {
	box := newOutbox(conn, h.deliver)

	h.connectionsMu.Lock()
	if prev, ok := h.outboxes[conn.ID()]; ok {
		prev.stop()
	}
	h.connections[conn.ID()] = conn
	h.outboxes[conn.ID()] = box
	h.connectionsMu.Unlock()

	h.observer.ConnectionOpened(conn.Topic(), conn.Type())
	h.logger.Infof("Connection %s registered (type: %s, topic: %s)", conn.ID(), conn.Type(), conn.Topic())

	// Queued ahead of any later broadcast, so the replay never overtakes it.
	if latest, ok := h.Latest(conn.Topic()); ok {
		box.push(latest)
	}

	go func() {
		<-conn.Context().Done()
		h.UnregisterConnection(conn.ID())
	}()
}

func (h *Hub) handleUnregister(connID string) {
	h.connectionsMu.Lock()
	conn, exists := h.connections[connID]
	if exists {
		delete(h.connections, connID)
		h.outboxes[connID].stop()
		delete(h.outboxes, connID)
		conn.Close()
	}
	h.connectionsMu.Unlock()

	if exists {
		h.observer.ConnectionClosed(conn.Topic(), conn.Type())
		h.logger.Infof("Connection %s unregistered", connID)
	}
}

func (h *Hub) handleBroadcast(message *Message) {
	if message.Topic != "" {
		h.latestMu.Lock()
		h.latest[message.Topic] = message
		h.latestMu.Unlock()
	}

	h.connectionsMu.RLock()
	receivers := 0
	for id, conn := range h.connections {
		if message.Topic != "" && conn.Topic() != message.Topic {
			continue
		}
		receivers++
		if dropped := h.outboxes[id].push(message); dropped > 0 {
			h.logger.Warnf("Connection %s is behind, dropped %d queued message(s)", id, dropped)
		}
	}
	h.connectionsMu.RUnlock()

	h.observer.MessageBroadcast(message.Topic)
	h.logger.Debugf("Broadcasted message %s on topic %q to %d connections", message.ID, message.Topic, receivers)
}

func (h *Hub) deliver(conn Connection, message *Message) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Send(ctx, message); err != nil {
		h.logger.Errorf("Failed to send message to connection %s: %v", conn.ID(), err)
		h.UnregisterConnection(conn.ID())
		return err
	}
	return nil
}

// cleanupClosedConnections removes connections that have been closed
func (h *Hub) cleanupClosedConnections() {
	h.connectionsMu.Lock()
	defer h.connectionsMu.Unlock()

	for id, conn := range h.connections {
		if conn.IsClosed() {
			delete(h.connections, id)
			h.outboxes[id].stop()
			delete(h.outboxes, id)
			h.observer.ConnectionClosed(conn.Topic(), conn.Type())
			h.logger.Infof("Cleaned up closed connection %s", id)
		}
	}
}
