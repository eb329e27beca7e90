package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-copilot/pkg/types"
)

// DefaultCallTimeout bounds a single command round-trip.
const DefaultCallTimeout = 60 * time.Second

// Conn multiplexes request/response commands and inbound session events
// over one Transport. Responses are correlated by command id; events are
// decoded and surfaced on Events in arrival order.
type Conn struct {
	transport Transport
	logger    zerolog.Logger

	mu      sync.Mutex
	pending map[string]chan *Frame
	closed  bool

	events chan types.Event
}

// NewConn wraps a connected transport.
func NewConn(transport Transport, logger zerolog.Logger) *Conn {
	c := &Conn{
		transport: transport,
		logger:    logger,
		pending:   make(map[string]chan *Frame),
		events:    make(chan types.Event, 256),
	}
	go c.readLoop()
	return c
}

// Events yields decoded session events in backend emission order. The
// channel closes when the transport dies.
func (c *Conn) Events() <-chan types.Event { return c.events }

func (c *Conn) readLoop() {
	for raw := range c.transport.Messages() {
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.logger.Warn().Err(err).Msg("discarding malformed frame")
			continue
		}

		if frame.ID != "" {
			c.resolve(&frame)
			continue
		}

		if len(frame.Event) > 0 {
			evt, err := types.UnmarshalEvent(frame.Event)
			if err != nil {
				c.logger.Warn().Err(err).Msg("discarding unknown event")
				continue
			}
			c.events <- evt
		}
	}
	c.fail()
}

func (c *Conn) resolve(frame *Frame) {
	c.mu.Lock()
	ch, ok := c.pending[frame.ID]
	if ok {
		delete(c.pending, frame.ID)
	}
	c.mu.Unlock()
	if ok {
		ch <- frame
	}
}

// fail closes all pending calls and the event channel after the transport
// is gone.
func (c *Conn) fail() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan *Frame)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	close(c.events)
}

// Call sends a command and blocks for its response. A non-nil out is
// populated from the response result. Context cancellation abandons the
// call; the correlation slot is reclaimed.
func (c *Conn) Call(ctx context.Context, method, sessionID string, params, out any) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}

	cmd := Command{
		ID:        ulid.Make().String(),
		Method:    method,
		SessionID: sessionID,
		Params:    rawParams,
	}

	ch := make(chan *Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrTransportClosed
	}
	c.pending[cmd.ID] = ch
	c.mu.Unlock()

	frame, err := json.Marshal(cmd)
	if err != nil {
		c.abandon(cmd.ID)
		return fmt.Errorf("marshal command: %w", err)
	}
	if err := c.transport.Send(ctx, frame); err != nil {
		c.abandon(cmd.ID)
		return err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return ErrTransportClosed
		}
		if resp.Error != nil {
			return resp.Error
		}
		if out != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, out); err != nil {
				return fmt.Errorf("unmarshal result: %w", err)
			}
		}
		return nil
	case <-ctx.Done():
		c.abandon(cmd.ID)
		return ctx.Err()
	}
}

// Notify sends a command without waiting for a response.
func (c *Conn) Notify(ctx context.Context, method, sessionID string, params any) error {
	var rawParams json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		rawParams = data
	}

	cmd := Command{
		ID:        ulid.Make().String(),
		Method:    method,
		SessionID: sessionID,
		Params:    rawParams,
	}
	frame, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return c.transport.Send(ctx, frame)
}

func (c *Conn) abandon(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// Close tears down the underlying transport; readLoop then fails all
// pending calls.
func (c *Conn) Close() error {
	return c.transport.Close()
}
