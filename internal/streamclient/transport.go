package streamclient

import (
	"context"
	"strings"
)

// Transport opens long-lived streams. It never reconnects on its own.
type Transport interface {
	Open(ctx context.Context, endpoint string) (Stream, error)
}

// Stream is one live transport handle.
type Stream interface {
	// Recv blocks until the next frame arrives or the stream fails.
	Recv() (Frame, error)
	// Close must be safe to call more than once.
	Close() error
}

func resolveURL(base, endpoint string) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/")
}
