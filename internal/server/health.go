package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/chatrelay/internal/config"
)

// ServiceName is the health-check service name reported for the relay.
const ServiceName = "chatrelay"

// HealthService exposes the standard gRPC health protocol.
type HealthService struct {
	addr   string
	server *grpc.Server
	health *health.Server
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// NewHealthService creates a gRPC health server for cfg.Addr().
func NewHealthService(cfg config.GRPCConfig, logger *zap.Logger) *HealthService {
	hs := health.NewServer()
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &HealthService{
		addr:   cfg.Addr(),
		server: srv,
		health: hs,
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// SetServing records the status of a named dependency.
func (h *HealthService) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(service, status)
}

// Start reports SERVING and serves health checks until Stop.
func (h *HealthService) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}
	h.mu.Lock()
	h.listener = ln
	h.mu.Unlock()
	close(h.ready)

	h.SetServing("", true)
	h.SetServing(ServiceName, true)
	h.logger.Info("grpc health server listening", zap.String("addr", ln.Addr().String()))
	return h.server.Serve(ln)
}

// Ready is closed once the listener is bound.
func (h *HealthService) Ready() <-chan struct{} { return h.ready }

// Addr returns the bound address, or "" before Start has listened.
func (h *HealthService) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Stop flips every status to NOT_SERVING and stops the server, forcing it
// if ctx ends before in-flight calls finish.
func (h *HealthService) Stop(ctx context.Context) error {
	h.health.Shutdown()
	done := make(chan struct{})
	go func() {
		h.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		h.server.Stop()
		return ctx.Err()
	}
}
