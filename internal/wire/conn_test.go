package wire

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/go-copilot/pkg/types"
)

// fakePeer answers commands on the server end of a pipe.
type fakePeer struct {
	transport *PipeTransport
}

func newConnPair(t *testing.T, handle func(cmd Command, peer *fakePeer)) (*Conn, *fakePeer) {
	t.Helper()
	clientEnd, serverEnd := NewPipe()
	peer := &fakePeer{transport: serverEnd}
	go func() {
		for raw := range serverEnd.Messages() {
			var cmd Command
			if err := json.Unmarshal(raw, &cmd); err != nil {
				continue
			}
			handle(cmd, peer)
		}
	}()
	conn := NewConn(clientEnd, zerolog.Nop())
	t.Cleanup(func() {
		conn.Close()
		serverEnd.Close()
	})
	return conn, peer
}

func (p *fakePeer) respond(id string, result any) {
	payload, _ := json.Marshal(result)
	frame, _ := json.Marshal(Frame{ID: id, Result: payload})
	p.transport.Send(context.Background(), frame)
}

func (p *fakePeer) respondError(id string, werr *Error) {
	frame, _ := json.Marshal(Frame{ID: id, Error: werr})
	p.transport.Send(context.Background(), frame)
}

func (p *fakePeer) emit(evt types.Event) {
	payload, _ := types.MarshalEvent(evt)
	frame, _ := json.Marshal(Frame{Event: payload})
	p.transport.Send(context.Background(), frame)
}

func TestConnCallRoundTrip(t *testing.T) {
	conn, _ := newConnPair(t, func(cmd Command, peer *fakePeer) {
		assert.Equal(t, MethodPing, cmd.Method)
		peer.respond(cmd.ID, map[string]string{"message": "pong"})
	})

	var out struct {
		Message string `json:"message"`
	}
	err := conn.Call(context.Background(), MethodPing, "", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "pong", out.Message)
}

func TestConnCallBackendError(t *testing.T) {
	conn, _ := newConnPair(t, func(cmd Command, peer *fakePeer) {
		peer.respondError(cmd.ID, &Error{Code: CodeSessionNotFound, Message: "nope"})
	})

	err := conn.Call(context.Background(), MethodSessionResume, "ghost", nil, nil)
	require.Error(t, err)

	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, CodeSessionNotFound, werr.Code)
}

func TestConnCallContextCancelled(t *testing.T) {
	conn, _ := newConnPair(t, func(cmd Command, peer *fakePeer) {
		// Never respond.
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := conn.Call(ctx, MethodPing, "", nil, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConnEventsDelivered(t *testing.T) {
	conn, peer := newConnPair(t, func(cmd Command, p *fakePeer) {})

	peer.emit(&types.SessionIdleEvent{SessionID: "s1"})
	peer.emit(&types.UserMessageEvent{SessionID: "s1", Data: types.MessageData{Content: "hi"}})

	evt := <-conn.Events()
	assert.Equal(t, types.EventSessionIdle, evt.EventType())
	evt = <-conn.Events()
	assert.Equal(t, types.EventUserMessage, evt.EventType())
	assert.Equal(t, "s1", evt.EventSessionID())
}

func TestConnMalformedFramesSkipped(t *testing.T) {
	conn, peer := newConnPair(t, func(cmd Command, p *fakePeer) {})

	peer.transport.Send(context.Background(), []byte("{not json"))
	peer.transport.Send(context.Background(), []byte(`{"event":{"type":"wat"}}`))
	peer.emit(&types.SessionIdleEvent{SessionID: "s1"})

	evt := <-conn.Events()
	assert.Equal(t, types.EventSessionIdle, evt.EventType())
}

func TestConnTransportDeathFailsPending(t *testing.T) {
	clientEnd, serverEnd := NewPipe()
	conn := NewConn(clientEnd, zerolog.Nop())

	errCh := make(chan error, 1)
	go func() {
		errCh <- conn.Call(context.Background(), MethodPing, "", nil, nil)
	}()

	// Give the call a moment to register, then kill the peer.
	time.Sleep(20 * time.Millisecond)
	serverEnd.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call not failed on transport death")
	}

	// Events channel closes too.
	_, open := <-conn.Events()
	assert.False(t, open)

	err := conn.Call(context.Background(), MethodPing, "", nil, nil)
	assert.ErrorIs(t, err, ErrTransportClosed)
}
