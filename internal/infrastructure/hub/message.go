package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	// MessageTypeDefault leaves the SSE event name empty so browsers deliver it
	// to onmessage.
	MessageTypeDefault   MessageType = ""
	MessageTypeConnected MessageType = "connected"
	MessageTypeKeepAlive MessageType = "keepalive"
	MessageTypeBroadcast MessageType = "broadcast"
)

// Topics streamed by the status server.
const (
	TopicTime    = "time"
	TopicData    = "data"
	TopicUpdates = "updates"
)

var Topics = []string{TopicTime, TopicData, TopicUpdates}

var ErrUnknownTopic = errors.New("unknown topic")

func IsKnownTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// MessageBuilder helps build messages with fluent interface
type MessageBuilder struct {
	message *Message
}

func NewMessageBuilder() *MessageBuilder {
	return &MessageBuilder{
		message: &Message{
			Headers: make(map[string]string),
		},
	}
}

func (mb *MessageBuilder) WithID(id string) *MessageBuilder {
	mb.message.ID = id
	return mb
}

func (mb *MessageBuilder) WithType(msgType MessageType) *MessageBuilder {
	mb.message.Type = string(msgType)
	return mb
}

func (mb *MessageBuilder) WithTopic(topic string) *MessageBuilder {
	mb.message.Topic = topic
	return mb
}

func (mb *MessageBuilder) WithData(data any) *MessageBuilder {
	mb.message.Data = data
	return mb
}

func (mb *MessageBuilder) WithHeader(key, value string) *MessageBuilder {
	mb.message.Headers[key] = value
	return mb
}

// Build fills in an ID and a timestamp header when missing.
func (mb *MessageBuilder) Build() *Message {
	if mb.message.ID == "" {
		mb.message.ID = NewMessageID()
	}
	if _, exists := mb.message.Headers["timestamp"]; !exists {
		mb.message.Headers["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	}
	return mb.message
}

// TopicMessage is a default-typed message for one topic.
func TopicMessage(topic string, data any) *Message {
	return NewMessageBuilder().
		WithTopic(topic).
		WithData(data).
		Build()
}

func KeepAliveMessage(now time.Time) *Message {
	return &Message{
		ID:   fmt.Sprintf("keepalive-%d", now.Unix()),
		Type: string(MessageTypeKeepAlive),
		Data: map[string]any{
			"timestamp": now.Unix(),
			"message":   "connection alive",
		},
	}
}

func NewMessageID() string {
	return "msg-" + uuid.NewString()
}

func NewConnectionID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// EncodeData renders a payload as wire text: strings and bytes verbatim,
// everything else as JSON.
func EncodeData(data any) (string, error) {
	switch v := data.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal data: %w", err)
		}
		return string(b), nil
	}
}

// Validate checks a message before it enters the hub.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}
	if m.Topic != "" && !IsKnownTopic(m.Topic) {
		return fmt.Errorf("%w %q", ErrUnknownTopic, m.Topic)
	}
	if _, err := EncodeData(m.Data); err != nil {
		return fmt.Errorf("message data must be JSON serializable: %w", err)
	}
	return nil
}
