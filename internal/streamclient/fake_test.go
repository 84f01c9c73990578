package streamclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const waitTimeout = 2 * time.Second

type fakeStream struct {
	transport *fakeTransport
	frames    chan Frame
	fail      chan error
	closed    chan struct{}
	once      sync.Once
}

func (s *fakeStream) Recv() (Frame, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case err := <-s.fail:
		return Frame{}, err
	case <-s.closed:
		return Frame{}, io.ErrClosedPipe
	}
}

func (s *fakeStream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.transport.live.Add(-1)
	})
	return nil
}

// fataler is satisfied by *testing.T and *rapid.T.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func (s *fakeStream) send(t fataler, data string) {
	t.Helper()
	select {
	case s.frames <- Frame{Data: data}:
	case <-time.After(waitTimeout):
		t.Fatalf("frame %q was not consumed", data)
	}
}

func (s *fakeStream) drop(err error) {
	s.fail <- err
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeTransport records each Open and hands the streams to the test.
type fakeTransport struct {
	mu      sync.Mutex
	opens   []time.Time
	openErr func(attempt int) error

	streams chan *fakeStream
	live    atomic.Int32
	maxLive atomic.Int32
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{streams: make(chan *fakeStream, 16)}
}

func (t *fakeTransport) Open(ctx context.Context, endpoint string) (Stream, error) {
	t.mu.Lock()
	t.opens = append(t.opens, time.Now())
	attempt := len(t.opens)
	t.mu.Unlock()

	if t.openErr != nil {
		if err := t.openErr(attempt); err != nil {
			return nil, err
		}
	}

	s := &fakeStream{
		transport: t,
		frames:    make(chan Frame),
		fail:      make(chan error, 1),
		closed:    make(chan struct{}),
	}
	n := t.live.Add(1)
	for {
		max := t.maxLive.Load()
		if n <= max || t.maxLive.CompareAndSwap(max, n) {
			break
		}
	}
	t.streams <- s
	return s, nil
}

func (t *fakeTransport) openTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]time.Time(nil), t.opens...)
}

func (t *fakeTransport) next(tb fataler) *fakeStream {
	tb.Helper()
	select {
	case s := <-t.streams:
		return s
	case <-time.After(waitTimeout):
		tb.Fatalf("transport was not opened")
		return nil
	}
}

var errDropped = errors.New("connection reset")

// recorder collects handler calls.
type recorder struct {
	events chan Event
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{
		events: make(chan Event, 64),
		errs:   make(chan error, 64),
	}
}

func (r *recorder) onEvent(ev Event) { r.events <- ev }
func (r *recorder) onError(err error) { r.errs <- err }

func (r *recorder) event(tb fataler) Event {
	tb.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(waitTimeout):
		tb.Fatalf("no event delivered")
		return Event{}
	}
}

func (r *recorder) err(tb fataler) error {
	tb.Helper()
	select {
	case err := <-r.errs:
		return err
	case <-time.After(waitTimeout):
		tb.Fatalf("no error reported")
		return nil
	}
}

// stateLog is an Observer that keeps the state sequence.
type stateLog struct {
	mu     sync.Mutex
	states []string
}

func (l *stateLog) StateChanged(_, state string) {
	l.mu.Lock()
	l.states = append(l.states, state)
	l.mu.Unlock()
}
func (l *stateLog) Reconnecting(string) {}
func (l *stateLog) Delivered(string)    {}
func (l *stateLog) DecodeFailed(string) {}

func (l *stateLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.states...)
}

func waitDone(tb fataler, sub *Subscription) {
	tb.Helper()
	select {
	case <-sub.Done():
	case <-time.After(waitTimeout):
		tb.Fatalf("subscription did not finish")
	}
}
