package wire

import (
	"context"
	"sync"
)

// PipeTransport is an in-memory transport. NewPipe returns two connected
// ends; frames sent on one side arrive on the other. Used by tests and by
// in-process backends.
type PipeTransport struct {
	out chan<- []byte
	in  <-chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewPipe creates a connected transport pair.
func NewPipe() (client, server *PipeTransport) {
	a := make(chan []byte, 256)
	b := make(chan []byte, 256)
	client = &PipeTransport{out: a, in: b, done: make(chan struct{})}
	server = &PipeTransport{out: b, in: a, done: make(chan struct{})}
	return client, server
}

// Connect is a no-op; the pipe is connected at construction.
func (t *PipeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTransportClosed
	}
	return nil
}

// Send delivers one frame to the peer. A Send racing Close loses and
// reports the transport as closed.
func (t *PipeTransport) Send(ctx context.Context, frame []byte) (err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.mu.Unlock()

	msg := make([]byte, len(frame))
	copy(msg, frame)

	defer func() {
		if recover() != nil {
			err = ErrTransportClosed
		}
	}()

	select {
	case t.out <- msg:
		return nil
	case <-t.done:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Messages yields frames sent by the peer.
func (t *PipeTransport) Messages() <-chan []byte { return t.in }

// Close closes this end. The peer observes its Messages channel closing.
func (t *PipeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	close(t.out)
	return nil
}
