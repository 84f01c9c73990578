package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-status-sse/internal/infrastructure/hub"
	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/monitor"
)

type fakeBroadcaster struct {
	mu   sync.Mutex
	msgs []*hub.Message
	err  error
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, m *hub.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeBroadcaster) messages() []*hub.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*hub.Message(nil), f.msgs...)
}

type gaugeFunc func(int)

func (g gaugeFunc) SetClientsOnline(n int) { g(n) }

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)

func newMonitor(t *testing.T) *monitor.Monitor {
	t.Helper()
	m := monitor.New(monitor.NewClientRegistry(90*time.Second), monitor.NewEventLog(10), "")
	require.NoError(t, m.Clients.Heartbeat(monitor.Heartbeat{ClientID: "c1", Hostname: "alpha", IP: "10.0.0.1"}, fixedNow.Add(-10*time.Second)))
	require.NoError(t, m.Clients.Heartbeat(monitor.Heartbeat{ClientID: "c2"}, fixedNow.Add(-5*time.Minute)))
	return m
}

func TestPublishOnce(t *testing.T) {
	b := &fakeBroadcaster{}
	online := -1
	p := New(b, newMonitor(t), logger.NewNopLogger(),
		WithClock(func() time.Time { return fixedNow }),
		WithGauge(gaugeFunc(func(n int) { online = n })),
	)

	require.NoError(t, p.PublishOnce(context.Background()))

	msgs := b.messages()
	require.Len(t, msgs, 3)

	assert.Equal(t, hub.TopicTime, msgs[0].Topic)
	assert.Equal(t, "2024-01-01 12:00:00", msgs[0].Data)
	assert.Empty(t, msgs[0].Type, "snapshots use the default event type")

	assert.Equal(t, hub.TopicData, msgs[1].Topic)
	data, err := hub.EncodeData(msgs[1].Data)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(data), &decoded))
	assert.Equal(t, "2024-01-01 12:00:00", decoded["timestamp"])
	assert.Len(t, decoded["clients_activeStatus"], 2)

	assert.Equal(t, hub.TopicUpdates, msgs[2].Topic)
	updates, err := hub.EncodeData(msgs[2].Data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"clients":{"c1":{"online":true},"c2":{"online":false}},"recent_events":[]}`, updates)

	assert.Equal(t, 1, online)
}

func TestPublishOnce_JoinsErrors(t *testing.T) {
	boom := errors.New("hub is not running")
	p := New(&fakeBroadcaster{err: boom}, newMonitor(t), logger.NewNopLogger())

	err := p.PublishOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "publish updates")
}

func TestPublisher_StartStop(t *testing.T) {
	b := &fakeBroadcaster{}
	p := New(b, newMonitor(t), logger.NewNopLogger(), WithInterval(20*time.Millisecond))

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return len(b.messages()) >= 6 }, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, p.IsRunning())
	assert.NoError(t, p.Stop(context.Background()))

	n := len(b.messages())
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, n, len(b.messages()), "no rounds after Stop")
}

func TestPublisher_WithIntervalIgnoresNonPositive(t *testing.T) {
	p := New(&fakeBroadcaster{}, newMonitor(t), logger.NewNopLogger(), WithInterval(0))
	assert.Equal(t, DefaultInterval, p.interval)
}
