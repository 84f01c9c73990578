package streamclient

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testDelay = 100 * time.Millisecond

func startRecorded(t *testing.T, ft *fakeTransport, mode Mode, opts ...Option) (*Subscription, *recorder) {
	t.Helper()
	rec := newRecorder()
	opts = append([]Option{WithRetryDelay(testDelay)}, opts...)
	sub, err := New(ft, opts...).Start(context.Background(), "/sse/test", mode, rec.onEvent, rec.onError)
	require.NoError(t, err)
	t.Cleanup(sub.Stop)
	return sub, rec
}

func TestClient_StartValidation(t *testing.T) {
	c := New(newFakeTransport())
	noop := func(Event) {}

	_, err := c.Start(context.Background(), "", ModeRaw, noop, nil)
	assert.ErrorIs(t, err, ErrEmptyEndpoint)

	_, err = c.Start(context.Background(), "/sse/time", Mode(7), noop, nil)
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = c.Start(context.Background(), "/sse/time", ModeRaw, nil, nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestClient_DefaultRetryDelay(t *testing.T) {
	assert.Equal(t, 3*time.Second, New(newFakeTransport()).RetryDelay())
	assert.Equal(t, 3*time.Second, New(newFakeTransport(), WithRetryDelay(0)).RetryDelay())
}

func TestSubscription_RawPayloadVerbatim(t *testing.T) {
	ft := newFakeTransport()
	sub, rec := startRecorded(t, ft, ModeRaw)
	stream := ft.next(t)

	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.String().Draw(rt, "payload")
		stream.send(rt, payload)

		ev := rec.event(rt)
		assert.Equal(rt, payload, ev.Raw)
		assert.Equal(rt, payload, ev.Value)
		assert.Equal(rt, "/sse/test", ev.Endpoint)
	})

	assert.Equal(t, StateOpen, sub.State())
}

func TestSubscription_TimeScenario(t *testing.T) {
	ft := newFakeTransport()
	_, rec := startRecorded(t, ft, ModeRaw)

	ft.next(t).send(t, "2024-01-01 00:00:00")
	assert.Equal(t, "2024-01-01 00:00:00", rec.event(t).Value)
}

func TestDecode_JSONRoundTrip(t *testing.T) {
	value := rapid.OneOf(
		rapid.Map(rapid.IntRange(-1_000_000, 1_000_000), func(i int) any { return i }),
		rapid.Map(rapid.String(), func(s string) any { return s }),
		rapid.Map(rapid.Bool(), func(b bool) any { return b }),
		rapid.Just[any](nil),
	)
	object := rapid.MapOf(rapid.StringMatching(`[a-z_]{1,12}`), value)

	rapid.Check(t, func(rt *rapid.T) {
		payload, err := json.Marshal(object.Draw(rt, "object"))
		require.NoError(rt, err)

		ev, err := decode(ModeJSON, "/sse/data", Frame{Data: string(payload)})
		require.NoError(rt, err)

		again, err := json.Marshal(ev.Value)
		require.NoError(rt, err)
		assert.JSONEq(rt, string(payload), string(again))
	})
}

func TestDecode_MalformedJSON(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payload := rapid.StringMatching(`\{"[a-z]+":`).Draw(rt, "payload")

		_, err := decode(ModeJSON, "/sse/data", Frame{Data: payload})
		var decodeErr *DecodeError
		require.ErrorAs(rt, err, &decodeErr)
		assert.Equal(rt, payload, decodeErr.Payload)
	})
}

func TestSubscription_MalformedJSONKeepsStreaming(t *testing.T) {
	ft := newFakeTransport()
	sub, rec := startRecorded(t, ft, ModeJSON)
	stream := ft.next(t)

	stream.send(t, `{"clients":`)

	var decodeErr *DecodeError
	require.ErrorAs(t, rec.err(t), &decodeErr)
	assert.Equal(t, `{"clients":`, decodeErr.Payload)
	assert.Empty(t, rec.events)

	stream.send(t, `{"clients":{"a":{"online":true}}}`)
	ev := rec.event(t)
	assert.Equal(t, map[string]any{
		"clients": map[string]any{"a": map[string]any{"online": true}},
	}, ev.Value)

	assert.Equal(t, StateOpen, sub.State())
	assert.Len(t, ft.openTimes(), 1)
}

func TestSubscription_DecodeIntoStruct(t *testing.T) {
	ft := newFakeTransport()
	_, rec := startRecorded(t, ft, ModeJSON)

	ft.next(t).send(t, `{"timestamp":"T","clients_activeStatus":{}}`)

	var payload struct {
		Timestamp string `json:"timestamp"`
	}
	require.NoError(t, rec.event(t).Decode(&payload))
	assert.Equal(t, "T", payload.Timestamp)
}

func TestSubscription_ReconnectAfterTransportError(t *testing.T) {
	ft := newFakeTransport()
	sub, rec := startRecorded(t, ft, ModeRaw)

	first := ft.next(t)
	first.send(t, "before")
	assert.Equal(t, "before", rec.event(t).Raw)

	droppedAt := time.Now()
	first.drop(errDropped)

	var transportErr *TransportError
	require.ErrorAs(t, rec.err(t), &transportErr)
	assert.ErrorIs(t, transportErr, errDropped)
	assert.Equal(t, StateError, sub.State())
	assert.True(t, first.isClosed(), "failed handle must be closed before reconnecting")

	second := ft.next(t)
	opens := ft.openTimes()
	require.Len(t, opens, 2)
	assert.GreaterOrEqual(t, opens[1].Sub(droppedAt), testDelay)

	second.send(t, "after")
	assert.Equal(t, "after", rec.event(t).Raw)
	assert.Equal(t, StateOpen, sub.State())
	assert.EqualValues(t, 1, ft.maxLive.Load())
}

func TestSubscription_ConsecutiveOpenFailures(t *testing.T) {
	ft := newFakeTransport()
	ft.openErr = func(attempt int) error {
		if attempt <= 2 {
			return errDropped
		}
		return nil
	}
	states := &stateLog{}
	_, rec := startRecorded(t, ft, ModeRaw, WithObserver(states))

	ft.next(t).send(t, "finally")
	assert.Equal(t, "finally", rec.event(t).Raw)

	opens := ft.openTimes()
	require.Len(t, opens, 3)
	for i := 1; i < len(opens); i++ {
		assert.GreaterOrEqual(t, opens[i].Sub(opens[i-1]), testDelay, "attempt %d", i+1)
	}
	assert.EqualValues(t, 1, ft.maxLive.Load())

	assert.Equal(t, []string{
		"connecting", "error",
		"connecting", "error",
		"connecting", "open",
	}, states.snapshot())
}

func TestSubscription_StopCancelsPendingReconnect(t *testing.T) {
	ft := newFakeTransport()
	ft.openErr = func(int) error { return errDropped }
	sub, rec := startRecorded(t, ft, ModeRaw)

	require.Error(t, rec.err(t))
	sub.Stop()
	waitDone(t, sub)

	time.Sleep(3 * testDelay)
	assert.Len(t, ft.openTimes(), 1)
	assert.Equal(t, StateClosed, sub.State())
	assert.Empty(t, rec.events)
}

func TestSubscription_StopIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	states := &stateLog{}
	sub, _ := startRecorded(t, ft, ModeRaw, WithObserver(states))
	stream := ft.next(t)

	sub.Stop()
	sub.Stop()
	waitDone(t, sub)

	assert.True(t, stream.isClosed())
	assert.EqualValues(t, 0, ft.live.Load())
	assert.Equal(t, StateClosed, sub.State())

	closed := 0
	for _, s := range states.snapshot() {
		if s == "closed" {
			closed++
		}
	}
	assert.Equal(t, 1, closed)
}

// slowConnecting lingers in StateChanged for "connecting", widening the gap
// between a state change and its notification.
type slowConnecting struct {
	stateLog
}

func (o *slowConnecting) StateChanged(endpoint, state string) {
	if state == "connecting" {
		time.Sleep(10 * time.Millisecond)
	}
	o.stateLog.StateChanged(endpoint, state)
}

func TestSubscription_ClosedIsLastStateNotified(t *testing.T) {
	for i := 0; i < 5; i++ {
		ft := newFakeTransport()
		ft.openErr = func(int) error { return errDropped }
		states := &slowConnecting{}

		sub, err := New(ft, WithRetryDelay(time.Millisecond), WithObserver(states)).
			Start(context.Background(), "/sse/test", ModeRaw, func(Event) {}, nil)
		require.NoError(t, err)

		time.Sleep(time.Duration(15+7*i) * time.Millisecond)
		sub.Stop()
		waitDone(t, sub)

		got := states.snapshot()
		require.NotEmpty(t, got)
		assert.Equal(t, "closed", got[len(got)-1], "run %d: %v", i, got)
	}
}

func TestSubscription_NoDeliveryAfterStop(t *testing.T) {
	ft := newFakeTransport()
	sub, rec := startRecorded(t, ft, ModeRaw)
	ft.next(t)

	sub.Stop()
	waitDone(t, sub)

	sub.dispatch(Frame{Data: "late"})
	assert.Empty(t, rec.events)
}

func TestSubscription_StopFromHandler(t *testing.T) {
	ft := newFakeTransport()
	var sub *Subscription
	delivered := make(chan string, 4)

	sub, err := New(ft, WithRetryDelay(testDelay)).Start(context.Background(), "/sse/time", ModeRaw,
		func(ev Event) {
			delivered <- ev.Raw
			sub.Stop()
		}, nil)
	require.NoError(t, err)

	ft.next(t).send(t, "one")
	waitDone(t, sub)

	assert.Equal(t, "one", <-delivered)
	assert.Empty(t, delivered)
	assert.Len(t, ft.openTimes(), 1)
}

func TestSubscription_ParentContextCancel(t *testing.T) {
	ft := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := New(ft).Start(ctx, "/sse/time", ModeRaw, func(Event) {}, nil)
	require.NoError(t, err)
	stream := ft.next(t)

	cancel()
	waitDone(t, sub)

	assert.Equal(t, StateClosed, sub.State())
	assert.True(t, stream.isClosed())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("JSON")
	require.NoError(t, err)
	assert.Equal(t, ModeJSON, m)

	m, err = ParseMode("raw")
	require.NoError(t, err)
	assert.Equal(t, ModeRaw, m)

	_, err = ParseMode("xml")
	assert.ErrorIs(t, err, ErrInvalidMode)
}
