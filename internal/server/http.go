package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/config"
)

// HTTPService serves the request layer. Stopping it drains HTTP requests and
// then closes every room topic, which ends the relays running on hijacked
// connections that Shutdown does not track.
type HTTPService struct {
	server   *http.Server
	addr     string
	registry *chat.Registry
	logger   *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewHTTPService creates a service serving handler on cfg.Addr().
//
// Precondition: handler and logger must be non-nil; registry may be nil.
func NewHTTPService(cfg config.ServerConfig, handler http.Handler, registry *chat.Registry, logger *zap.Logger) *HTTPService {
	return &HTTPService{
		server: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			ErrorLog:          zap.NewStdLog(logger.Named("http")),
		},
		addr:     cfg.Addr(),
		registry: registry,
		logger:   logger,
		ready:    make(chan struct{}),
	}
}

// Start listens and serves until Stop.
func (s *HTTPService) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.server.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Ready is closed once the listener is bound.
func (s *HTTPService) Ready() <-chan struct{} { return s.ready }

// Addr returns the bound address, or "" before Start has listened.
func (s *HTTPService) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down gracefully, then closes the registry.
func (s *HTTPService) Stop(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	if s.registry != nil {
		s.registry.Close()
	}
	if err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}
