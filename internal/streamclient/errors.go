package streamclient

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyEndpoint = errors.New("streamclient: endpoint must not be empty")
	ErrInvalidMode   = errors.New("streamclient: invalid decoding mode")
	ErrNilHandler    = errors.New("streamclient: event handler must not be nil")
	ErrIdleTimeout   = errors.New("streamclient: stream idle timeout")
)

// TransportError means the connection failed to open or dropped. It is always
// followed by a reconnect.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("stream %s: transport: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means a payload did not match the subscription's decoding mode.
type DecodeError struct {
	Endpoint string
	Payload  string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("stream %s: decode: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// StatusError is returned by HTTP based transports for a non-200 handshake.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}
