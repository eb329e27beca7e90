package wire

import (
	"context"
	"errors"
)

// ErrTransportClosed is returned for operations on a closed transport.
var ErrTransportClosed = errors.New("transport closed")

// Transport is an opaque duplex byte channel carrying one JSON frame per
// message. Implementations must make Send safe for concurrent use and must
// close Messages when the channel dies.
type Transport interface {
	// Connect establishes the channel. It must be called before Send.
	Connect(ctx context.Context) error

	// Send writes one frame.
	Send(ctx context.Context, frame []byte) error

	// Messages yields inbound frames in arrival order. The channel is
	// closed when the transport fails or is closed.
	Messages() <-chan []byte

	// Close tears the channel down. Safe to call more than once.
	Close() error
}
