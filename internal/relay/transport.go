package relay

import (
	"context"

	"github.com/cory-johannsen/chatrelay/internal/chat"
)

// Transport is one client connection as seen by a Relay.
//
// Receive and Send may be called concurrently with each other, but each is
// called from a single goroutine.
type Transport interface {
	// Receive returns the next text payload from the client. It returns
	// io.EOF when the client closed the connection cleanly.
	Receive(ctx context.Context) (string, error)
	// Send writes one message to the client in the transport's encoding.
	Send(ctx context.Context, msg chat.Message) error
	// Close releases the connection and unblocks a pending Receive. Idempotent.
	Close() error
	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}
