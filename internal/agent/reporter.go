package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"go-status-sse/internal/infrastructure/logger"
	"go-status-sse/internal/monitor"
)

const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = time.Second
)

// Reporter posts file events, retrying transient failures with exponential
// back-off.
type Reporter struct {
	poster          poster
	maxRetries      int
	initialInterval time.Duration
	logger          logger.Logger
}

type ReporterOption func(*Reporter)

func WithMaxRetries(n int) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.maxRetries = n
		}
	}
}

func WithInitialInterval(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		if d > 0 {
			r.initialInterval = d
		}
	}
}

func WithReporterHTTPClient(c *http.Client) ReporterOption {
	return func(r *Reporter) { r.poster.client = c }
}

func WithReporterLogger(l logger.Logger) ReporterOption {
	return func(r *Reporter) { r.logger = l.WithField("component", "reporter") }
}

func NewReporter(serverURL, apiKey string, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		poster:          newPoster(serverURL, apiKey, nil),
		maxRetries:      DefaultMaxRetries,
		initialInterval: DefaultInitialInterval,
		logger:          logger.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report sends ev, making at most maxRetries attempts. Client errors (4xx) are
// not retried.
func (r *Reporter) Report(ctx context.Context, ev monitor.FileEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := r.poster.post(ctx, "/api/events", ev)
		if err == nil {
			return struct{}{}, nil
		}

		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.maxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warnf("Report attempt %d failed, retrying in %s: %v", attempt, next, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("report %s %s after %d attempt(s): %w", ev.EventType, ev.Path, attempt, err)
	}

	r.logger.Infof("Reported %s %s", ev.EventType, ev.Path)
	return nil
}

// SafeReport is Report with the final error logged instead of returned.
func (r *Reporter) SafeReport(ctx context.Context, ev monitor.FileEvent) bool {
	if err := r.Report(ctx, ev); err != nil {
		r.logger.Errorf("Giving up on event: %v", err)
		return false
	}
	return true
}
