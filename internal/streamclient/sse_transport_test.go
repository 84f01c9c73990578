package streamclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, attempt int)) *httptest.Server {
	t.Helper()
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		handler(w, r, int(attempts.Add(1)))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSSETransport_ParsesEventStream(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, r *http.Request, _ int) {
		assert.Equal(t, "/sse/time", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		assert.Equal(t, "yes", r.Header.Get("X-Test"))

		fmt.Fprint(w, ": greeting comment\n")
		fmt.Fprint(w, "event: connected\ndata: {\"connection_id\":\"c\"}\n\n")
		fmt.Fprint(w, "data: 2024-01-01 00:00:00\n\n")
		fmt.Fprint(w, "event: keepalive\ndata: {}\n\n")
		fmt.Fprint(w, "id: 7\ndata:first\r\ndata: second\n\n")
		fmt.Fprint(w, "event: message\ndata: named\n\n")
		fmt.Fprint(w, "data: partial")
	})

	transport := NewSSETransport(srv.URL+"/", nil)
	transport.Header.Set("X-Test", "yes")

	stream, err := transport.Open(context.Background(), "/sse/time")
	require.NoError(t, err)
	defer stream.Close()

	f, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 00:00:00", f.Data)

	f, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, Frame{ID: "7", Data: "first\nsecond"}, f)

	f, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "named", f.Data)
	assert.Equal(t, "7", f.ID)

	_, err = stream.Recv()
	assert.ErrorIs(t, err, io.EOF)

	assert.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())
}

func TestSSETransport_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown topic", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewSSETransport(srv.URL, nil).Open(context.Background(), "sse/nope")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestSSETransport_WrongContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	_, err := NewSSETransport(srv.URL, nil).Open(context.Background(), "/sse/data")
	assert.ErrorContains(t, err, "content type")
}

// silentServer sends the given lines and then holds the response open without
// writing until the client goes away.
func silentServer(t *testing.T, write func(w http.ResponseWriter, f http.Flusher)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		f := w.(http.Flusher)
		f.Flush()
		write(w, f)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSSETransport_IdleTimeout(t *testing.T) {
	srv := silentServer(t, func(w http.ResponseWriter, f http.Flusher) {
		fmt.Fprint(w, "data: hello\n\n")
		f.Flush()
	})

	transport := NewSSETransport(srv.URL, nil)
	assert.Equal(t, DefaultSSEIdleTimeout, transport.IdleTimeout)
	transport.IdleTimeout = 100 * time.Millisecond

	stream, err := transport.Open(context.Background(), "/sse/time")
	require.NoError(t, err)
	defer stream.Close()

	f, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", f.Data)

	start := time.Now()
	_, err = stream.Recv()
	assert.ErrorIs(t, err, ErrIdleTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSSETransport_KeepAliveResetsIdleTimer(t *testing.T) {
	srv := silentServer(t, func(w http.ResponseWriter, f http.Flusher) {
		for i := 0; i < 6; i++ {
			fmt.Fprint(w, "event: keepalive\ndata: {}\n\n")
			f.Flush()
			time.Sleep(40 * time.Millisecond)
		}
		fmt.Fprint(w, "data: after keepalives\n\n")
		f.Flush()
	})

	transport := NewSSETransport(srv.URL, nil)
	transport.IdleTimeout = 150 * time.Millisecond

	stream, err := transport.Open(context.Background(), "/sse/time")
	require.NoError(t, err)
	defer stream.Close()

	f, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, "after keepalives", f.Data)
}

func TestSSETransport_IdleStreamReconnects(t *testing.T) {
	var attempts atomic.Int32
	srv := silentServer(t, func(w http.ResponseWriter, f http.Flusher) {
		fmt.Fprintf(w, "data: {\"attempt\":%d}\n\n", attempts.Add(1))
		f.Flush()
	})

	transport := NewSSETransport(srv.URL, nil)
	transport.IdleTimeout = 50 * time.Millisecond

	rec := newRecorder()
	sub, err := New(transport, WithRetryDelay(testDelay)).
		Start(context.Background(), "/sse/data", ModeJSON, rec.onEvent, rec.onError)
	require.NoError(t, err)
	defer sub.Stop()

	assert.Equal(t, map[string]any{"attempt": 1.0}, rec.event(t).Value)
	assert.ErrorIs(t, rec.err(t), ErrIdleTimeout)
	assert.Equal(t, map[string]any{"attempt": 2.0}, rec.event(t).Value)
}

// The server ends every response after one message, so each message after the
// first needs a reconnect.
func TestSSETransport_ReconnectsThroughClient(t *testing.T) {
	srv := sseServer(t, func(w http.ResponseWriter, _ *http.Request, attempt int) {
		fmt.Fprintf(w, "data: {\"attempt\":%d}\n\n", attempt)
	})

	rec := newRecorder()
	sub, err := New(NewSSETransport(srv.URL, nil), WithRetryDelay(testDelay)).
		Start(context.Background(), "/sse/data", ModeJSON, rec.onEvent, rec.onError)
	require.NoError(t, err)
	defer sub.Stop()

	assert.Equal(t, map[string]any{"attempt": 1.0}, rec.event(t).Value)

	var transportErr *TransportError
	require.ErrorAs(t, rec.err(t), &transportErr)
	assert.ErrorIs(t, transportErr, io.EOF)

	assert.Equal(t, map[string]any{"attempt": 2.0}, rec.event(t).Value)
}

func TestResolveURL(t *testing.T) {
	assert.Equal(t, "http://h:1/sse/time", resolveURL("http://h:1/", "/sse/time"))
	assert.Equal(t, "http://h:1/sse/time", resolveURL("http://h:1", "sse/time"))
	assert.Equal(t, "http://other/x", resolveURL("http://h:1", "http://other/x"))
}
