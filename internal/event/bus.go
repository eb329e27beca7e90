// Package event fans parsed protocol events out to per-session
// subscribers, preserving arrival order, on top of watermill's gochannel.
package event

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/telnet2/go-copilot/pkg/types"
)

// Subscriber receives events for one session.
type Subscriber func(evt types.Event)

// Bus delivers session events to subscribers. Each subscriber has its own
// watermill subscription, so every subscriber observes every event of its
// session independently and in publish order; a blocking or panicking
// subscriber never stalls delivery to the others.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger zerolog.Logger

	mu        sync.Mutex
	cancels   map[uint64]context.CancelFunc
	nextID    uint64
	closed    bool
	closedCtx context.Context
	cancel    context.CancelFunc
}

// NewBus creates a bus. Close releases all subscriptions.
func NewBus(logger zerolog.Logger) *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NopLogger{},
		),
		logger:    logger,
		cancels:   make(map[uint64]context.CancelFunc),
		closedCtx: ctx,
		cancel:    cancel,
	}
}

func sessionTopic(sessionID string) string { return "session." + sessionID }

// Publish delivers an event to every subscriber of its session. Publish is
// non-blocking with respect to subscriber behavior.
func (b *Bus) Publish(evt types.Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	payload, err := types.MarshalEvent(evt)
	if err != nil {
		b.logger.Error().Err(err).Str("event", string(evt.EventType())).Msg("dropping unmarshalable event")
		return
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(sessionTopic(evt.EventSessionID()), msg); err != nil {
		b.logger.Error().Err(err).Msg("event publish failed")
	}
}

// Subscribe registers fn for all events of one session. It returns an
// unsubscribe function; unsubscribing is idempotent.
func (b *Bus) Subscribe(sessionID string, fn Subscriber) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := atomic.AddUint64(&b.nextID, 1)
	ctx, cancel := context.WithCancel(b.closedCtx)
	b.cancels[id] = cancel
	b.mu.Unlock()

	msgs, err := b.pubsub.Subscribe(ctx, sessionTopic(sessionID))
	if err != nil {
		cancel()
		b.logger.Error().Err(err).Str("session", sessionID).Msg("subscribe failed")
		return func() {}
	}

	go b.pump(sessionID, msgs, fn)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			b.mu.Lock()
			delete(b.cancels, id)
			b.mu.Unlock()
		})
	}
}

// pump drains the watermill channel into an unbounded queue and invokes
// the subscriber from a separate goroutine. The queue keeps a slow or
// blocked subscriber from ever back-pressuring Publish, while preserving
// per-subscriber FIFO order.
func (b *Bus) pump(sessionID string, msgs <-chan *message.Message, fn Subscriber) {
	q := NewQueue()

	go func() {
		defer q.Close()
		for msg := range msgs {
			evt, err := types.UnmarshalEvent(msg.Payload)
			msg.Ack()
			if err != nil {
				b.logger.Warn().Err(err).Str("session", sessionID).Msg("skipping undecodable event")
				continue
			}
			q.Push(evt)
		}
	}()

	for {
		evt, ok := q.Pop()
		if !ok {
			return
		}
		b.deliver(sessionID, evt, fn)
	}
}

func (b *Bus) deliver(sessionID string, evt types.Event, fn Subscriber) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("session", sessionID).
				Str("event", string(evt.EventType())).
				Any("panic", r).
				Msg("subscriber panicked; event skipped for this subscriber")
		}
	}()
	fn(evt)
}

// Close shuts the bus down and cancels every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.cancels = make(map[uint64]context.CancelFunc)
	b.mu.Unlock()

	b.cancel()
	return b.pubsub.Close()
}
