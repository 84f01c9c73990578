package streamclient

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Mode selects how payloads are decoded.
type Mode int

const (
	ModeRaw Mode = iota
	ModeJSON
)

func (m Mode) String() string {
	switch m {
	case ModeRaw:
		return "raw"
	case ModeJSON:
		return "json"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func (m Mode) valid() bool {
	return m == ModeRaw || m == ModeJSON
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "raw", "text":
		return ModeRaw, nil
	case "json":
		return ModeJSON, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Frame is one message as read off the wire.
type Frame struct {
	ID    string
	Event string
	Data  string
}

// Event is a decoded message handed to the subscription handler.
type Event struct {
	Endpoint string
	ID       string
	Raw      string
	// Value is Raw itself in ModeRaw and the parsed JSON value in ModeJSON.
	Value any
}

// Decode unmarshals the raw payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal([]byte(e.Raw), v)
}

func decode(mode Mode, endpoint string, f Frame) (Event, error) {
	ev := Event{Endpoint: endpoint, ID: f.ID, Raw: f.Data}

	switch mode {
	case ModeJSON:
		var v any
		if err := json.Unmarshal([]byte(f.Data), &v); err != nil {
			return Event{}, &DecodeError{Endpoint: endpoint, Payload: f.Data, Err: err}
		}
		ev.Value = v
	default:
		ev.Value = f.Data
	}

	return ev, nil
}
