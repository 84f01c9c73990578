// Package publisher pushes the monitor snapshots to the hub on a fixed interval.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go-status-sse/internal/infrastructure/hub"
	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/monitor"
)

const DefaultInterval = time.Second

// Broadcaster is the part of the hub the publisher needs.
type Broadcaster interface {
	Broadcast(ctx context.Context, message *hub.Message) error
}

// Gauge receives the number of online clients after each round.
type Gauge interface {
	SetClientsOnline(n int)
}

type Publisher struct {
	broadcaster Broadcaster
	monitor     *monitor.Monitor
	interval    time.Duration
	now         func() time.Time
	gauge       Gauge
	logger      logger.Logger

	running   bool
	runningMu sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

type Option func(*Publisher)

func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func WithGauge(g Gauge) Option {
	return func(p *Publisher) { p.gauge = g }
}

func New(b Broadcaster, m *monitor.Monitor, logger logger.Logger, opts ...Option) *Publisher {
	p := &Publisher{
		broadcaster: b,
		monitor:     m,
		interval:    DefaultInterval,
		now:         time.Now,
		logger:      logger.WithField("component", "publisher"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start runs the publish loop until Stop or ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return fmt.Errorf("publisher is already running")
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.running = true

	go p.run(ctx, p.done)

	p.logger.Infof("Publisher started (interval %s)", p.interval)
	return nil
}

// Stop cancels the loop and waits for the current round to finish.
func (p *Publisher) Stop(ctx context.Context) error {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if !p.running {
		return nil
	}

	p.cancel()
	p.running = false

	select {
	case <-p.done:
		p.logger.Info("Publisher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) IsRunning() bool {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()
	return p.running
}

// PublishOnce broadcasts one snapshot to every topic.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	now := p.now()

	messages := []*hub.Message{
		hub.TopicMessage(hub.TopicTime, p.monitor.TimePayload(now)),
		hub.TopicMessage(hub.TopicData, p.monitor.DataPayload(now)),
		hub.TopicMessage(hub.TopicUpdates, p.monitor.UpdatesPayload(now)),
	}

	var errs []error
	for _, msg := range messages {
		if err := p.broadcaster.Broadcast(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", msg.Topic, err))
		}
	}

	if p.gauge != nil {
		p.gauge.SetClientsOnline(p.monitor.Clients.OnlineCount(now))
	}

	return errors.Join(errs...)
}

func (p *Publisher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publish(ctx)
	for {
		select {
		case <-ticker.C:
			p.publish(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) publish(ctx context.Context) {
	if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warnf("Failed to publish snapshot: %v", err)
	}
}
