package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_HubCounters(t *testing.T) {
	r := New()

	r.ConnectionOpened("time", "sse")
	r.ConnectionOpened("time", "sse")
	r.ConnectionClosed("time", "sse")
	r.MessageBroadcast("data")
	r.MessageBroadcast("data")

	assert.Equal(t, 1.0, testutil.ToFloat64(r.hubConnections.WithLabelValues("time", "sse")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.hubBroadcasts.WithLabelValues("data")))
}

func TestRegistry_StreamState(t *testing.T) {
	r := New()

	r.StateChanged("/sse/time", "connecting")
	r.StateChanged("/sse/time", "open")

	assert.Equal(t, 1, testutil.CollectAndCount(r.streamState))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.streamState.WithLabelValues("/sse/time", "open")))

	r.Reconnecting("/sse/time")
	r.DecodeFailed("/sse/data")
	r.Delivered("/sse/data")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.streamReconnects.WithLabelValues("/sse/time")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.streamDecodeErrors.WithLabelValues("/sse/data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.streamDelivered.WithLabelValues("/sse/data")))
}

func TestRegistry_Handler(t *testing.T) {
	r := New()
	r.EventReported()
	r.SetClientsOnline(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "status_events_reported_total 1")
	assert.Contains(t, string(body), "status_clients_online 3")
}
