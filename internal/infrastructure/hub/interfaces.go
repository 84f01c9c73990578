package hub

import "context"

// Connection represents any type of connection (SSE, WebSocket, etc.)
type Connection interface {
	ID() string
	Type() string
	// Topic selects which broadcasts the connection receives.
	Topic() string
	Send(ctx context.Context, message *Message) error
	Close() error
	IsClosed() bool
	Context() context.Context
}

// Message is a payload routed through the hub.
type Message struct {
	ID      string            `json:"id"`
	Type    string            `json:"type,omitempty"`
	Topic   string            `json:"topic,omitempty"`
	Data    any               `json:"data"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Observer is notified about connection churn and broadcasts.
type Observer interface {
	ConnectionOpened(topic, kind string)
	ConnectionClosed(topic, kind string)
	MessageBroadcast(topic string)
}

type nopObserver struct{}

func (nopObserver) ConnectionOpened(string, string) {}
func (nopObserver) ConnectionClosed(string, string) {}
func (nopObserver) MessageBroadcast(string)         {}
