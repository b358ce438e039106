package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger is satisfied by postgres.Pool.
type Pinger interface {
	Health(ctx context.Context, timeout time.Duration) error
}

// StatusSink receives dependency status changes.
type StatusSink interface {
	SetServing(service string, serving bool)
}

// DBHealthService pings the database periodically and reports the result
// to a StatusSink under a fixed service name.
type DBHealthService struct {
	name     string
	db       Pinger
	sink     StatusSink
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

// NewDBHealthService creates the health loop.
//
// Precondition: db, sink, and logger must be non-nil; interval must be > 0.
func NewDBHealthService(name string, db Pinger, sink StatusSink, interval, timeout time.Duration, logger *zap.Logger) *DBHealthService {
	return &DBHealthService{
		name:     name,
		db:       db,
		sink:     sink,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start checks immediately and then every interval until Stop or ctx ends.
func (d *DBHealthService) Start(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	healthy := d.check(ctx, true)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.stop:
			return nil
		case <-ticker.C:
			healthy = d.check(ctx, healthy)
		}
	}
}

// Stop ends the loop. Idempotent.
func (d *DBHealthService) Stop(_ context.Context) error {
	d.stopOnce.Do(func() { close(d.stop) })
	return nil
}

// check pings once, reports the status, and logs transitions.
func (d *DBHealthService) check(ctx context.Context, wasHealthy bool) bool {
	err := d.db.Health(ctx, d.timeout)
	healthy := err == nil
	d.sink.SetServing(d.name, healthy)
	switch {
	case !healthy && wasHealthy:
		d.logger.Warn("database unhealthy", zap.String("service", d.name), zap.Error(err))
	case healthy && !wasHealthy:
		d.logger.Info("database healthy", zap.String("service", d.name))
	}
	return healthy
}
