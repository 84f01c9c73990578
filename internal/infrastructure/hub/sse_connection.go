package hub

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/sse"

	"go-status-sse/internal/infrastructure/logger"
)

const (
	sseKeepAliveInterval = 30 * time.Second
	sseIdleTimeout       = 5 * time.Minute
	sseWriteTimeout      = 10 * time.Second
)

// SSEConnection implements the Connection interface for Server-Sent Events
type SSEConnection struct {
	id      string
	topic   string
	writer  http.ResponseWriter
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	closed   bool
	closedMu sync.RWMutex

	logger logger.Logger

	lastActivity time.Time
	activityMu   sync.RWMutex
}

var _ Connection = (*SSEConnection)(nil)

// NewSSEConnection writes the stream headers and starts the keep-alive loop.
func NewSSEConnection(
	ctx context.Context,
	id string,
	topic string,
	w http.ResponseWriter,
	logger logger.Logger,
) *SSEConnection {
	rctx, cancel := context.WithCancel(ctx)

	conn := &SSEConnection{
		id:           id,
		topic:        topic,
		writer:       w,
		ctx:          rctx,
		cancel:       cancel,
		logger:       logger.WithFields(map[string]any{"connection_id": id, "topic": topic}),
		lastActivity: time.Now(),
	}

	SetSSEHeaders(w.Header())

	go conn.keepAlive()

	return conn
}

// SetSSEHeaders sets the headers every event stream response needs.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // For nginx
}

func (c *SSEConnection) ID() string    { return c.id }
func (c *SSEConnection) Type() string  { return "sse" }
func (c *SSEConnection) Topic() string { return c.topic }

// Send frames the message as an SSE event and flushes it.
func (c *SSEConnection) Send(ctx context.Context, message *Message) error {
	if c.IsClosed() {
		return fmt.Errorf("client is closed")
	}

	c.updateActivity()

	frame, err := FormatSSEMessage(message)
	if err != nil {
		return fmt.Errorf("failed to format SSE message: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()

		if c.IsClosed() {
			done <- fmt.Errorf("client is closed")
			return
		}
		if _, err := c.writer.Write(frame); err != nil {
			done <- err
			return
		}
		if flusher, ok := c.writer.(http.Flusher); ok {
			flusher.Flush()
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Errorf("Failed to write message: %v", err)
			c.Close()
			return err
		}
		return nil

	case <-ctx.Done():
		c.logger.Warn("Send operation cancelled")
		return ctx.Err()

	case <-time.After(sseWriteTimeout):
		c.logger.Warn("Send operation timed out")
		c.Close()
		return fmt.Errorf("send timeout")
	}
}

func (c *SSEConnection) Close() error {
	c.closedMu.Lock()
	defer c.closedMu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.cancel()

	c.logger.Info("SSE connection closed")
	return nil
}

// Release closes the connection and waits for an in-flight write, after which
// the ResponseWriter is no longer touched.
func (c *SSEConnection) Release() {
	c.Close()
	c.writeMu.Lock()
	c.writeMu.Unlock()
}

func (c *SSEConnection) IsClosed() bool {
	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	return c.closed
}

func (c *SSEConnection) Context() context.Context {
	return c.ctx
}

// FormatSSEMessage encodes a message as one event-stream frame. Messages with
// an empty type produce no "event:" line. Every data line carries a space
// after the colon, so a payload that starts with a space survives the
// reader stripping one. The format cannot carry CR: CRLF and lone CR are
// written as line breaks, the same way a reader would split them.
func FormatSSEMessage(message *Message) ([]byte, error) {
	data, err := EncodeData(message.Data)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = sse.Encode(&buf, sse.Event{
		Id:    message.ID,
		Event: message.Type,
		Data:  " " + strings.Join(splitLines(data), "\n "),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// splitLines splits on LF, CRLF and CR.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.Split(s, "\n")
}

func (c *SSEConnection) keepAlive() {
	ticker := time.NewTicker(sseKeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.IsClosed() {
				return
			}

			c.activityMu.RLock()
			lastActivity := c.lastActivity
			c.activityMu.RUnlock()

			if time.Since(lastActivity) > sseIdleTimeout {
				c.logger.Info("Connection inactive for too long, closing connection")
				c.Close()
				return
			}

			if err := c.Send(c.ctx, KeepAliveMessage(time.Now())); err != nil {
				c.logger.Errorf("Failed to send keep-alive: %v", err)
				c.Close()
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

func (c *SSEConnection) updateActivity() {
	c.activityMu.Lock()
	c.lastActivity = time.Now()
	c.activityMu.Unlock()
}
