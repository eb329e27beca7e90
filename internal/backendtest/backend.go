// Package backendtest is an in-process scripted agent backend used by the
// test suite. It speaks the full command/event protocol over an in-memory
// pipe, so client and session behavior can be exercised end to end without
// a real backend process.
package backendtest

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/telnet2/go-copilot/internal/wire"
	"github.com/telnet2/go-copilot/pkg/types"
)

// replyTimeout bounds how long a scripted turn waits for a client reply
// (tool result, permission decision, user input).
const replyTimeout = 5 * time.Second

// Backend is the scripted fake. Configure it, take its Transport for the
// client under test, and script per-turn behavior with ScriptTurn. Turns
// without a script get the default behavior: one "ok" assistant message
// followed by idle.
type Backend struct {
	Version string

	transport       *wire.PipeTransport
	clientTransport *wire.PipeTransport

	mu            sync.Mutex
	authenticated bool
	models        []types.Model
	compactResult types.CompactionResult
	sessions      map[string]*sessionState
	scripts       []Turn
	skillUpdates  []json.RawMessage
	received      []wire.Command
}

type sessionState struct {
	id       string
	disposed bool
	history  []json.RawMessage

	toolResults chan types.ToolCallResult
	permissions chan permissionReply
	userInputs  chan UserInputReply
}

type permissionReply struct {
	ToolCallID string `json:"toolCallId,omitempty"`
	Kind       string `json:"kind"`
}

// UserInputReply is the client's answer to a user-input request.
type UserInputReply struct {
	RequestID   string `json:"requestId"`
	Answer      string `json:"answer"`
	WasFreeform bool   `json:"wasFreeform"`
}

// Turn scripts one conversation turn. It runs on its own goroutine once
// the backend has acknowledged the triggering send.
type Turn func(t *TurnContext)

// New starts a scripted backend and returns it. The backend serves until
// its transport closes.
func New() *Backend {
	clientEnd, serverEnd := wire.NewPipe()
	b := &Backend{
		Version:       "backendtest",
		transport:     serverEnd,
		authenticated: true,
		compactResult: types.CompactionResult{Success: true, TokensRemoved: 500, Summary: "summary of earlier conversation"},
		models: []types.Model{
			{ID: "default-model", Name: "Default Model", ContextWindow: 1000},
		},
		sessions: make(map[string]*sessionState),
	}
	b.clientTransport = clientEnd
	go b.serve()
	return b
}

// Transport returns the client end of the pipe.
func (b *Backend) Transport() wire.Transport { return b.clientTransport }

// SetAuthenticated flips the authentication state checked by models.list.
func (b *Backend) SetAuthenticated(v bool) {
	b.mu.Lock()
	b.authenticated = v
	b.mu.Unlock()
}

// SetModels replaces the advertised model list.
func (b *Backend) SetModels(models []types.Model) {
	b.mu.Lock()
	b.models = models
	b.mu.Unlock()
}

// SetCompactResult controls what session.compact returns.
func (b *Backend) SetCompactResult(r types.CompactionResult) {
	b.mu.Lock()
	b.compactResult = r
	b.mu.Unlock()
}

// ScriptTurn queues a script for the next unscripted send, in order.
func (b *Backend) ScriptTurn(turn Turn) {
	b.mu.Lock()
	b.scripts = append(b.scripts, turn)
	b.mu.Unlock()
}

// Received returns every command the backend has seen, in arrival order.
func (b *Backend) Received() []wire.Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wire.Command, len(b.received))
	copy(out, b.received)
	return out
}

// SkillUpdates returns the payloads of session.skills_update commands.
func (b *Backend) SkillUpdates() []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]json.RawMessage, len(b.skillUpdates))
	copy(out, b.skillUpdates)
	return out
}

// SessionDisposed reports whether the backend saw a dispose for the id.
func (b *Backend) SessionDisposed(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	return ok && s.disposed
}

// SeedSession installs a pre-existing session with replayable history, as
// if an earlier client had run it. Events are marshaled into the history
// returned by session.resume.
func (b *Backend) SeedSession(id string, history ...types.Event) {
	s := newSessionState(id)
	for _, evt := range history {
		data, err := types.MarshalEvent(evt)
		if err != nil {
			continue
		}
		s.history = append(s.history, data)
	}
	b.mu.Lock()
	b.sessions[id] = s
	b.mu.Unlock()
}

func newSessionState(id string) *sessionState {
	return &sessionState{
		id:          id,
		toolResults: make(chan types.ToolCallResult, 16),
		permissions: make(chan permissionReply, 16),
		userInputs:  make(chan UserInputReply, 16),
	}
}

func (b *Backend) serve() {
	// Closing our end lets the client observe transport death when it
	// hangs up first.
	defer b.transport.Close()
	for raw := range b.transport.Messages() {
		var cmd wire.Command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		b.mu.Lock()
		b.received = append(b.received, cmd)
		b.mu.Unlock()
		b.handle(cmd)
	}
}

func (b *Backend) respond(id string, result any) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	frame, err := json.Marshal(wire.Frame{ID: id, Result: payload})
	if err != nil {
		return
	}
	b.transport.Send(context.Background(), frame)
}

func (b *Backend) respondError(id, code, message string) {
	frame, _ := json.Marshal(wire.Frame{ID: id, Error: &wire.Error{Code: code, Message: message}})
	b.transport.Send(context.Background(), frame)
}

// Emit pushes one event frame to the client.
func (b *Backend) Emit(evt types.Event) {
	payload, err := types.MarshalEvent(evt)
	if err != nil {
		return
	}
	frame, err := json.Marshal(wire.Frame{Event: payload})
	if err != nil {
		return
	}
	b.transport.Send(context.Background(), frame)
}

func (b *Backend) handle(cmd wire.Command) {
	switch cmd.Method {
	case wire.MethodInitialize:
		b.respond(cmd.ID, types.Status{Version: b.Version, ProtocolVersion: wire.ProtocolVersion})

	case wire.MethodPing:
		var params struct {
			Message string `json:"message"`
		}
		json.Unmarshal(cmd.Params, &params)
		b.respond(cmd.ID, types.PingResult{Message: params.Message, Timestamp: time.Now().UnixMilli()})

	case wire.MethodStatus:
		b.respond(cmd.ID, types.Status{Version: b.Version, ProtocolVersion: wire.ProtocolVersion})

	case wire.MethodAuthStatus:
		b.mu.Lock()
		authed := b.authenticated
		b.mu.Unlock()
		b.respond(cmd.ID, types.AuthStatus{IsAuthenticated: authed, AuthType: "token"})

	case wire.MethodListModels:
		b.mu.Lock()
		authed := b.authenticated
		models := b.models
		b.mu.Unlock()
		if !authed {
			b.respondError(cmd.ID, wire.CodeAuthRequired, "not authenticated")
			return
		}
		b.respond(cmd.ID, struct {
			Models []types.Model `json:"models"`
		}{Models: models})

	case wire.MethodSessionCreate:
		b.handleCreate(cmd)

	case wire.MethodSessionResume:
		b.handleResume(cmd)

	case wire.MethodSessionSend:
		b.handleSend(cmd)

	case wire.MethodSessionAbort:
		b.respond(cmd.ID, struct{}{})
		b.Emit(&types.SessionIdleEvent{SessionID: cmd.SessionID})

	case wire.MethodSessionCompact:
		b.mu.Lock()
		result := b.compactResult
		b.mu.Unlock()
		b.respond(cmd.ID, result)

	case wire.MethodSessionDispose:
		b.mu.Lock()
		if s, ok := b.sessions[cmd.SessionID]; ok {
			s.disposed = true
		}
		b.mu.Unlock()
		b.respond(cmd.ID, struct{}{})

	case wire.MethodSkillsUpdate:
		b.mu.Lock()
		b.skillUpdates = append(b.skillUpdates, cmd.Params)
		b.mu.Unlock()

	case wire.MethodToolResult:
		var result types.ToolCallResult
		if err := json.Unmarshal(cmd.Params, &result); err != nil {
			return
		}
		if s := b.session(cmd.SessionID); s != nil {
			s.toolResults <- result
		}

	case wire.MethodPermissionReply:
		var reply permissionReply
		if err := json.Unmarshal(cmd.Params, &reply); err != nil {
			return
		}
		if s := b.session(cmd.SessionID); s != nil {
			s.permissions <- reply
		}

	case wire.MethodUserInputReply:
		var reply UserInputReply
		if err := json.Unmarshal(cmd.Params, &reply); err != nil {
			return
		}
		if s := b.session(cmd.SessionID); s != nil {
			s.userInputs <- reply
		}

	default:
		b.respondError(cmd.ID, wire.CodeInvalidRequest, "unknown method "+cmd.Method)
	}
}

func (b *Backend) session(id string) *sessionState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[id]
}

type sessionParams struct {
	Model string `json:"model,omitempty"`
}

func (b *Backend) handleCreate(cmd wire.Command) {
	var params sessionParams
	json.Unmarshal(cmd.Params, &params)

	s := newSessionState(ulid.Make().String())
	b.mu.Lock()
	b.sessions[s.id] = s
	model := b.pickModel(params.Model)
	b.mu.Unlock()

	b.respond(cmd.ID, struct {
		SessionID string      `json:"sessionId"`
		Model     types.Model `json:"model"`
	}{SessionID: s.id, Model: model})
}

func (b *Backend) handleResume(cmd wire.Command) {
	var params sessionParams
	json.Unmarshal(cmd.Params, &params)

	b.mu.Lock()
	s, ok := b.sessions[cmd.SessionID]
	model := b.pickModel(params.Model)
	b.mu.Unlock()
	if !ok {
		b.respondError(cmd.ID, wire.CodeSessionNotFound, "unknown session "+cmd.SessionID)
		return
	}

	b.respond(cmd.ID, struct {
		SessionID string            `json:"sessionId"`
		Model     types.Model       `json:"model"`
		History   []json.RawMessage `json:"history,omitempty"`
	}{SessionID: s.id, Model: model, History: s.history})
}

// pickModel resolves a requested model id, falling back to the first
// advertised model. Caller holds b.mu.
func (b *Backend) pickModel(id string) types.Model {
	for _, m := range b.models {
		if m.ID == id {
			return m
		}
	}
	if len(b.models) > 0 {
		return b.models[0]
	}
	return types.Model{ID: "default-model", ContextWindow: 1000}
}

func (b *Backend) handleSend(cmd wire.Command) {
	var opts types.MessageOptions
	json.Unmarshal(cmd.Params, &opts)

	s := b.session(cmd.SessionID)
	if s == nil {
		b.respondError(cmd.ID, wire.CodeSessionNotFound, "unknown session "+cmd.SessionID)
		return
	}

	userEvt, _ := types.MarshalEvent(&types.UserMessageEvent{
		SessionID: s.id,
		Data:      types.MessageData{Content: opts.Prompt},
	})
	b.mu.Lock()
	s.history = append(s.history, userEvt)
	var script Turn
	if len(b.scripts) > 0 {
		script = b.scripts[0]
		b.scripts = b.scripts[1:]
	}
	b.mu.Unlock()

	b.respond(cmd.ID, struct{}{})

	tc := &TurnContext{backend: b, state: s, SessionID: s.id, Prompt: opts.Prompt}
	if script == nil {
		script = func(t *TurnContext) {
			t.Reply("ok", nil)
			t.Idle()
		}
	}
	go script(tc)
}
