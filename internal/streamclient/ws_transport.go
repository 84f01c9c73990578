package streamclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait = 10 * time.Second
	// Longer than the server ping period.
	wsReadWait = 90 * time.Second
)

// WebSocketTransport treats every text or binary message as one frame.
type WebSocketTransport struct {
	baseURL string
	dialer  *websocket.Dialer

	Header http.Header
}

var _ Transport = (*WebSocketTransport)(nil)

// NewWebSocketTransport accepts http(s) or ws(s) base URLs.
func NewWebSocketTransport(baseURL string, dialer *websocket.Dialer) *WebSocketTransport {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	return &WebSocketTransport{
		baseURL: toWebSocketScheme(baseURL),
		dialer:  dialer,
		Header:  make(http.Header),
	}
}

func toWebSocketScheme(url string) string {
	switch {
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	return url
}

func (t *WebSocketTransport) Open(ctx context.Context, endpoint string) (Stream, error) {
	url := resolveURL(t.baseURL, endpoint)

	conn, resp, err := t.dialer.DialContext(ctx, url, t.Header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
		}
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn      *websocket.Conn
	closeOnce sync.Once
}

func (s *wsStream) Recv() (Frame, error) {
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		s.conn.SetReadDeadline(time.Now().Add(wsReadWait))

		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			return Frame{Data: string(data)}, nil
		}
	}
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(wsWriteWait),
		)
		err = s.conn.Close()
	})
	return err
}
