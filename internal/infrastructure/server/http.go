package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"go-status-sse/internal/infrastructure/config"
	"go-status-sse/internal/infrastructure/logger"
)

type HTTPServer struct {
	handler http.Handler
	cfg     config.ServerConfig
	logger  logger.Logger

	mu  sync.Mutex
	srv *http.Server
	// ready is closed once the listener is bound.
	ready chan struct{}
	addr  net.Addr
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, cfg config.ServerConfig, logger logger.Logger) *HTTPServer {
	return &HTTPServer{
		handler: handler,
		cfg:     cfg,
		logger:  logger.WithField("component", "http"),
		ready:   make(chan struct{}),
	}
}

// Start listens on the configured address and serves until Stop.
func (h *HTTPServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.cfg.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      h.handler,
		ReadTimeout:  h.cfg.ReadTimeout,
		WriteTimeout: h.cfg.WriteTimeout,
		IdleTimeout:  h.cfg.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	h.mu.Lock()
	h.srv = srv
	h.addr = ln.Addr()
	h.mu.Unlock()
	close(h.ready)

	h.logger.Infof("HTTP server listening on %s", ln.Addr())

	err = srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.mu.Lock()
	srv := h.srv
	h.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Ready is closed when the server accepts connections.
func (h *HTTPServer) Ready() <-chan struct{} {
	return h.ready
}

// Addr is the bound listener address, valid after Ready.
func (h *HTTPServer) Addr() net.Addr {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.addr
}
