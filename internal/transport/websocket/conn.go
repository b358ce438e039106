// Package websocket adapts gorilla/websocket connections to relay.Transport.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/chatrelay/internal/chat"
	"github.com/cory-johannsen/chatrelay/internal/config"
)

// Options holds per-connection limits and keepalive timing.
type Options struct {
	MaxMessageSize int64
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
}

// OptionsFromConfig converts relay configuration to connection options.
func OptionsFromConfig(cfg config.RelayConfig) Options {
	return Options{
		MaxMessageSize: cfg.MaxMessageSize,
		WriteTimeout:   cfg.WriteTimeout,
		PongWait:       cfg.PongWait,
		PingPeriod:     cfg.PingPeriod,
	}
}

// Upgrader upgrades HTTP requests to relay connections.
type Upgrader struct {
	upgrader gws.Upgrader
	opts     Options
	logger   *zap.Logger
}

// NewUpgrader creates an upgrader enforcing policy on the request origin.
func NewUpgrader(opts Options, policy OriginPolicy, logger *zap.Logger) *Upgrader {
	u := &Upgrader{opts: opts, logger: logger}
	u.upgrader = gws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if policy.Allow(r) {
				return true
			}
			logger.Warn("blocked websocket origin", zap.String("origin", r.Header.Get("Origin")))
			return false
		},
	}
	return u
}

// Upgrade completes the WebSocket handshake. On failure the upgrader has
// already written an HTTP error response.
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*Conn, error) {
	ws, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("upgrading connection: %w", err)
	}
	return NewConn(ws, u.opts, u.logger), nil
}

// Conn is a relay.Transport over a single WebSocket.
type Conn struct {
	ws     *gws.Conn
	opts   Options
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewConn wraps ws, applies the read limit and deadlines, and starts the
// keepalive ping loop.
//
// Precondition: opts.PingPeriod < opts.PongWait.
func NewConn(ws *gws.Conn, opts Options, logger *zap.Logger) *Conn {
	c := &Conn{
		ws:     ws,
		opts:   opts,
		logger: logger.With(zap.String("remote_addr", ws.RemoteAddr().String())),
		done:   make(chan struct{}),
	}
	ws.SetReadLimit(opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})
	go c.pingLoop()
	return c
}

// Receive returns the next text frame. Binary frames are ignored. A close
// frame or a locally closed socket yields io.EOF.
//
// ctx is not consulted while blocked in a read; Close unblocks it.
func (c *Conn) Receive(_ context.Context) (string, error) {
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return "", c.readError(err)
		}
		if mt != gws.TextMessage {
			c.logger.Debug("ignoring non-text frame", zap.Int("type", mt))
			continue
		}
		return string(data), nil
	}
}

// Send writes msg as a JSON text frame under the write deadline.
func (c *Conn) Send(ctx context.Context, msg chat.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(gws.TextMessage, data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}

// Close sends a normal close frame and closes the socket. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		frame := gws.FormatCloseMessage(gws.CloseNormalClosure, "")
		_ = c.ws.WriteControl(gws.CloseMessage, frame, time.Now().Add(time.Second))
		if cerr := c.ws.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// pingLoop keeps the peer's read deadline fresh. WriteControl may be called
// concurrently with WriteMessage.
func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			err := c.ws.WriteControl(gws.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout))
			if err != nil {
				if !isExpectedCloseError(err) {
					c.logger.Debug("ping failed", zap.Error(err))
				}
				return
			}
		}
	}
}

func (c *Conn) readError(err error) error {
	if gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway, gws.CloseNoStatusReceived, gws.CloseAbnormalClosure) {
		return io.EOF
	}
	select {
	case <-c.done:
		return io.EOF
	default:
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || isExpectedCloseError(err) {
		return io.EOF
	}
	return fmt.Errorf("reading message: %w", err)
}

// isExpectedCloseError reports errors produced by a socket that is already
// going away.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, gws.ErrCloseSent) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "broken pipe")
}
