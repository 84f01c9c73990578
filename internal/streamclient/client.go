package streamclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go-status-sse/internal/infrastructure/logger"
)

// DefaultRetryDelay is the fixed pause between a transport error and the next
// connection attempt.
const DefaultRetryDelay = 3 * time.Second

type (
	Handler      func(Event)
	ErrorHandler func(error)
)

// Observer receives lifecycle notifications, typically for metrics.
// StateChanged runs under the subscription's state lock, so it sees states in
// order and must not call back into the Subscription.
type Observer interface {
	StateChanged(endpoint, state string)
	Reconnecting(endpoint string)
	Delivered(endpoint string)
	DecodeFailed(endpoint string)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, string) {}
func (nopObserver) Reconnecting(string)         {}
func (nopObserver) Delivered(string)            {}
func (nopObserver) DecodeFailed(string)         {}

// Client starts subscriptions that share a transport and settings.
type Client struct {
	transport  Transport
	retryDelay time.Duration
	logger     logger.Logger
	observer   Observer
}

type Option func(*Client)

func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

func New(transport Transport, opts ...Option) *Client {
	c := &Client{
		transport:  transport,
		retryDelay: DefaultRetryDelay,
		logger:     logger.NewNopLogger(),
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "streamclient")
	return c
}

func (c *Client) RetryDelay() time.Duration { return c.retryDelay }

// Start subscribes to endpoint and returns immediately. onEvent is called once
// per decoded message, never concurrently for the same subscription. onError may
// be nil. Cancelling ctx has the same effect as Stop.
func (c *Client) Start(
	ctx context.Context,
	endpoint string,
	mode Mode,
	onEvent Handler,
	onError ErrorHandler,
) (*Subscription, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if !mode.valid() {
		return nil, ErrInvalidMode
	}
	if onEvent == nil {
		return nil, ErrNilHandler
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		client:   c,
		endpoint: endpoint,
		mode:     mode,
		onEvent:  onEvent,
		onError:  onError,
		logger:   c.logger.WithFields(logger.Fields{"endpoint": endpoint, "mode": mode.String()}),
		ctx:      sctx,
		cancel:   cancel,
		state:    StateIdle,
		done:     make(chan struct{}),
	}

	s.transition(StateConnecting)
	go s.run()

	return s, nil
}

// Subscription is one logical stream. It is created by Client.Start and ends
// with Stop.
type Subscription struct {
	client   *Client
	endpoint string
	mode     Mode
	onEvent  Handler
	onError  ErrorHandler
	logger   logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	conn  Stream

	// callbackMu is held while a callback is checked and run; inCallback is
	// set while user code runs.
	callbackMu sync.Mutex
	inCallback atomic.Bool

	done chan struct{}
}

func (s *Subscription) Endpoint() string { return s.endpoint }

func (s *Subscription) Mode() Mode { return s.mode }

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Stop closes the subscription. Safe to call repeatedly, and from inside the
// event handler. No callback starts after Stop returns.
func (s *Subscription) Stop() {
	s.shutdown()
	if s.inCallback.Load() {
		return
	}
	s.callbackMu.Lock()
	s.callbackMu.Unlock()
}

func (s *Subscription) shutdown() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.client.observer.StateChanged(s.endpoint, StateClosed.String())
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		_ = conn.Close()
	}

	s.logger.Info("subscription closed")
}

// transition moves to the given state unless the subscription is closed.
func (s *Subscription) transition(to State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return false
	}
	s.state = to
	s.client.observer.StateChanged(s.endpoint, to.String())
	return true
}

func (s *Subscription) active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != StateClosed
}

func (s *Subscription) run() {
	defer close(s.done)
	defer s.shutdown()

	for {
		err := s.connect()
		if s.ctx.Err() != nil {
			return
		}
		if !s.transition(StateError) {
			return
		}

		delay := s.client.retryDelay
		s.logger.Warnf("stream error, reconnecting in %s: %v", delay, err)
		s.client.observer.Reconnecting(s.endpoint)
		s.report(&TransportError{Endpoint: s.endpoint, Err: err})

		timer := time.NewTimer(delay)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !s.transition(StateConnecting) {
			return
		}
	}
}

// connect opens one transport handle and reads it until it fails.
func (s *Subscription) connect() error {
	stream, err := s.client.transport.Open(s.ctx, s.endpoint)
	if err != nil {
		return err
	}

	if !s.attach(stream) {
		_ = stream.Close()
		return context.Canceled
	}
	defer s.detach(stream)

	s.logger.Debug("stream open")

	for {
		frame, err := stream.Recv()
		if err != nil {
			return err
		}
		s.dispatch(frame)
	}
}

func (s *Subscription) attach(stream Stream) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	if s.conn != nil {
		// Unreachable while connect runs sequentially, kept for the one-handle rule.
		_ = s.conn.Close()
	}
	s.conn = stream
	s.state = StateOpen
	s.client.observer.StateChanged(s.endpoint, StateOpen.String())
	s.mu.Unlock()

	return true
}

func (s *Subscription) detach(stream Stream) {
	s.mu.Lock()
	if s.conn == stream {
		s.conn = nil
	}
	s.mu.Unlock()

	_ = stream.Close()
}

func (s *Subscription) dispatch(frame Frame) {
	ev, err := decode(s.mode, s.endpoint, frame)
	if err != nil {
		s.logger.Errorf("failed to decode payload: %v", err)
		s.client.observer.DecodeFailed(s.endpoint)
		s.report(err)
		return
	}

	if s.callback(func() { s.onEvent(ev) }) {
		s.client.observer.Delivered(s.endpoint)
	}
}

func (s *Subscription) report(err error) {
	if s.onError == nil {
		return
	}
	s.callback(func() { s.onError(err) })
}

// callback runs fn unless the subscription is closed.
func (s *Subscription) callback(fn func()) bool {
	s.callbackMu.Lock()
	defer s.callbackMu.Unlock()

	if !s.active() {
		return false
	}
	s.inCallback.Store(true)
	defer s.inCallback.Store(false)
	fn()
	return true
}
