package streamclient

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultSSEIdleTimeout is three server keep-alive periods.
const DefaultSSEIdleTimeout = 90 * time.Second

// SSETransport reads text/event-stream responses over HTTP. Only unnamed events
// and events named "message" are returned, matching EventSource onmessage.
type SSETransport struct {
	baseURL string
	client  *http.Client

	// Header is added to every request.
	Header http.Header

	// IdleTimeout drops a stream that delivers no line for this long, so a
	// half-open connection ends in a reconnect. Zero disables it.
	IdleTimeout time.Duration
}

var _ Transport = (*SSETransport)(nil)

// NewSSETransport resolves endpoints against baseURL. A nil client gets one
// without a timeout, since streams are long-lived.
func NewSSETransport(baseURL string, client *http.Client) *SSETransport {
	if client == nil {
		client = &http.Client{}
	}
	return &SSETransport{
		baseURL: baseURL,
		client:      client,
		Header:      make(http.Header),
		IdleTimeout: DefaultSSEIdleTimeout,
	}
}

func (t *SSETransport) Open(ctx context.Context, endpoint string) (Stream, error) {
	url := resolveURL(t.baseURL, endpoint)

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range t.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("GET %s: unexpected content type %q", url, resp.Header.Get("Content-Type"))
	}

	return newSSEStream(resp.Body, t.IdleTimeout, cancel), nil
}

type sseStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	lastID string

	idle     time.Duration
	timer    *time.Timer
	timedOut atomic.Bool
	cancel   context.CancelFunc

	closeOnce sync.Once
}

// newSSEStream reads body; cancel, if set, aborts the underlying request.
func newSSEStream(body io.ReadCloser, idle time.Duration, cancel context.CancelFunc) *sseStream {
	s := &sseStream{
		body:   body,
		reader: bufio.NewReader(body),
		idle:   idle,
		cancel: cancel,
	}
	if idle > 0 {
		s.timer = time.AfterFunc(idle, func() {
			s.timedOut.Store(true)
			s.Close()
		})
	}
	return s
}

// Recv parses lines until a blank line dispatches an event with data. A partial
// event at end of stream is discarded.
func (s *sseStream) Recv() (Frame, error) {
	var (
		data      strings.Builder
		hasData   bool
		eventType string
	)

	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			if s.timedOut.Load() {
				return Frame{}, fmt.Errorf("%w: nothing received for %s", ErrIdleTimeout, s.idle)
			}
			return Frame{}, err
		}
		if s.timer != nil {
			s.timer.Reset(s.idle)
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if hasData && (eventType == "" || eventType == "message") {
				return Frame{ID: s.lastID, Event: eventType, Data: data.String()}, nil
			}
			data.Reset()
			hasData = false
			eventType = ""
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")

		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			eventType = value
		case "id":
			if !strings.ContainsRune(value, 0) {
				s.lastID = value
			}
		}
	}
}

func (s *sseStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.timer != nil {
			s.timer.Stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		err = s.body.Close()
	})
	return err
}
