// Package relay bridges one client connection to a room's broadcast topic.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/observability"
)

// State is the lifecycle phase of a Relay.
type State int32

const (
	StateHandshaking State = iota
	StateRelaying
	StateTerminating
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateRelaying:
		return "relaying"
	case StateTerminating:
		return "terminating"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Option configures a Relay.
type Option func(*Relay)

// WithLogger sets the relay's logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Relay) { r.logger = l }
}

// WithMetrics sets the metrics sink. A nil value disables metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// WithClock replaces the source of message timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// Relay runs the duplex exchange between one participant and one room.
//
// The inbound half publishes what the client sends; the outbound half
// forwards what the room broadcasts. When either half ends, the other is
// cancelled and Run returns once both have exited.
type Relay struct {
	room        *chat.Room
	displayName string
	transport   Transport

	logger  *zap.Logger
	metrics *observability.Metrics
	now     func() time.Time

	state atomic.Int32
}

// New creates a relay for displayName in room over t.
//
// Precondition: room and t must be non-nil; displayName must be non-empty.
func New(room *chat.Room, displayName string, t Transport, opts ...Option) *Relay {
	r := &Relay{
		room:        room,
		displayName: displayName,
		transport:   t,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(
		zap.String("room_id", room.ID().String()),
		zap.String("user_name", displayName),
		zap.String("remote_addr", t.RemoteAddr()),
	)
	return r
}

// State returns the relay's current phase.
func (r *Relay) State() State {
	return State(r.state.Load())
}

// Run relays messages until the client disconnects, the room's topic closes,
// a transport operation fails, or ctx is cancelled.
//
// Postcondition: Both halves have exited, the topic subscription is released,
// and State() == StateTerminated. Returns nil for a clean end, or an error
// wrapping ErrTransport.
func (r *Relay) Run(ctx context.Context) error {
	if !r.state.CompareAndSwap(int32(StateHandshaking), int32(StateRelaying)) {
		return ErrAlreadyStarted
	}

	recv := r.room.Topic().Subscribe()
	started := time.Now()
	r.metrics.RelayStarted()
	r.logger.Info("relay started")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return r.inbound(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return r.outbound(gctx, recv)
	})
	// Close the transport once either half is done so a blocked Receive returns.
	g.Go(func() error {
		<-gctx.Done()
		r.state.Store(int32(StateTerminating))
		if err := r.transport.Close(); err != nil {
			r.logger.Debug("closing transport", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	recv.Close()
	r.state.Store(int32(StateTerminated))

	elapsed := time.Since(started)
	r.metrics.RelayFinished(elapsed)
	if err != nil {
		r.logger.Warn("relay terminated", zap.Duration("duration", elapsed), zap.Error(err))
		return err
	}
	r.logger.Info("relay terminated", zap.Duration("duration", elapsed))
	return nil
}

func (r *Relay) inbound(ctx context.Context) error {
	topic := r.room.Topic()
	for {
		text, err := r.transport.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: receive: %w", ErrTransport, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		n := topic.Publish(chat.NewMessage(r.displayName, text, r.now()))
		r.metrics.MessagePublished()
		r.logger.Debug("message published", zap.Int("receivers", n))
	}
}

func (r *Relay) outbound(ctx context.Context, recv *chat.Receiver[chat.Message]) error {
	for {
		msg, err := recv.Recv(ctx)
		if err != nil {
			var lagged *chat.LaggedError
			switch {
			case errors.As(err, &lagged):
				r.metrics.MessagesLagged(lagged.Skipped)
				r.logger.Debug("receiver lagged", zap.Uint64("skipped", lagged.Skipped))
				continue
			case errors.Is(err, chat.ErrTopicClosed), ctx.Err() != nil:
				return nil
			default:
				return err
			}
		}
		if err := r.transport.Send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: send: %w", ErrTransport, err)
		}
	}
}
