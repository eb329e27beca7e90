package copilot

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-copilot/internal/compaction"
	"github.com/telnet2/go-copilot/internal/event"
	"github.com/telnet2/go-copilot/internal/hook"
	"github.com/telnet2/go-copilot/internal/skills"
	"github.com/telnet2/go-copilot/internal/tool"
	"github.com/telnet2/go-copilot/internal/wire"
	"github.com/telnet2/go-copilot/pkg/types"
)

// SessionState is the lifecycle phase of a Session.
type SessionState int

const (
	SessionActive SessionState = iota
	SessionBusy
	SessionIdle
	SessionDisposed
)

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionBusy:
		return "busy"
	case SessionIdle:
		return "idle"
	case SessionDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

const (
	// DefaultSendAndWaitTimeout bounds SendAndWait when the caller's
	// context carries no deadline.
	DefaultSendAndWaitTimeout = 5 * time.Minute

	// DefaultAbortTimeout bounds how long Abort waits for the backend to
	// acknowledge; an unresponsive backend does not wedge the session.
	DefaultAbortTimeout = 10 * time.Second

	compactTimeout  = 2 * time.Minute
	teardownTimeout = 5 * time.Second
)

type turnResult struct {
	msg *types.AssistantMessageEvent
	err error
}

// Session is one conversation with the backend. At most one turn is in
// flight at a time; its events are processed sequentially, so hook,
// permission and tool ordering within a session is deterministic. Other
// sessions on the same client are unaffected by a blocked handler here.
type Session struct {
	id        string
	client    *Client
	conn      *wire.Conn
	bus       *event.Bus
	cfg       types.SessionConfig
	model     types.Model
	pipeline  *hook.Pipeline
	compactor *compaction.Manager
	watcher   *skills.Watcher
	logger    zerolog.Logger

	// ctx is cancelled at dispose so suspended caller handlers can
	// observe that the session is gone.
	ctx    context.Context
	cancel context.CancelFunc

	inbound  *event.Queue
	procDone chan struct{}

	mu            sync.Mutex
	state         SessionState
	history       []types.Event
	waiters       []chan turnResult
	lastAssistant *types.AssistantMessageEvent
	subs          []func()
}

type sessionParams struct {
	id       string
	client   *Client
	conn     *wire.Conn
	bus      *event.Bus
	cfg      *types.SessionConfig
	model    types.Model
	registry *tool.Registry
	loader   *skills.Loader
	logger   zerolog.Logger
}

func newSession(p sessionParams) (*Session, error) {
	logger := p.logger.With().Str("sessionId", p.id).Logger()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        p.id,
		client:    p.client,
		conn:      p.conn,
		bus:       p.bus,
		cfg:       *p.cfg,
		model:     p.model,
		pipeline:  hook.NewPipeline(tool.NewInvoker(p.registry, logger), p.cfg.Hooks, logger),
		compactor: compaction.NewManager(p.cfg.InfiniteSessions, p.model.ContextWindow, logger),
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		inbound:   event.NewQueue(),
		procDone:  make(chan struct{}),
		state:     SessionActive,
	}

	if p.loader != nil {
		watcher, err := skills.NewWatcher(p.loader, s.pushSkills, logger)
		if err != nil {
			return nil, err
		}
		s.watcher = watcher
		watcher.Start()
	}

	go s.process()
	return s, nil
}

// ID returns the backend-assigned session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// enqueue hands an inbound event to the session's processing loop. It
// never blocks the client dispatcher.
func (s *Session) enqueue(evt types.Event) {
	s.inbound.Push(evt)
}

func (s *Session) process() {
	for {
		evt, ok := s.inbound.Pop()
		if !ok {
			break
		}
		s.handle(evt)
	}
	close(s.procDone)
}

// handle applies one event: publish to subscribers first, then run its
// side effects. Handlers invoked here may block; that keeps the session
// Busy without stalling any other session.
func (s *Session) handle(evt types.Event) {
	s.bus.Publish(evt)

	switch e := evt.(type) {
	case *types.AssistantMessageEvent:
		s.mu.Lock()
		s.history = append(s.history, e)
		s.lastAssistant = e
		s.mu.Unlock()
		switch s.compactor.Observe(e.Data.Tokens) {
		case compaction.ActionBackground:
			go s.compact(false)
		case compaction.ActionBlocking:
			s.compact(true)
		}
	case *types.UserMessageEvent:
		s.mu.Lock()
		s.history = append(s.history, e)
		s.mu.Unlock()
	case *types.SessionIdleEvent:
		s.finishTurn(s.idleResult())
	case *types.SessionErrorEvent:
		serr := &SessionError{SessionID: s.id}
		if e.Data != nil {
			serr.Code = e.Data.Code
			serr.Message = e.Data.Message
		}
		s.logger.Error().Str("code", serr.Code).Str("message", serr.Message).Msg("session error from backend")
		s.finishTurn(turnResult{err: serr})
	case *types.ToolCallEvent:
		s.handleToolCall(e)
	case *types.PermissionRequestEvent:
		s.handlePermission(e)
	case *types.UserInputRequestEvent:
		s.handleUserInput(e)
	}
}

func (s *Session) idleResult() turnResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return turnResult{msg: s.lastAssistant}
}

// finishTurn resolves the in-flight turn and moves the session to Idle
// (or leaves it Disposed).
func (s *Session) finishTurn(result turnResult) {
	s.mu.Lock()
	if s.state == SessionBusy {
		s.state = SessionIdle
	}
	waiters := s.waiters
	s.waiters = nil
	s.lastAssistant = nil
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- result
	}
}

func (s *Session) handleToolCall(e *types.ToolCallEvent) {
	result := s.pipeline.Run(s.ctx, e)
	if err := s.conn.Notify(s.ctx, wire.MethodToolResult, s.id, result); err != nil {
		s.logger.Error().Err(err).Str("toolCallId", e.ToolCallID).Msg("failed to send tool result")
	}
}

type permissionReply struct {
	ToolCallID string `json:"toolCallId,omitempty"`
	Kind       string `json:"kind"`
}

// handlePermission runs the permission gate. No registered handler means
// approve; a failing or panicking handler means deny.
func (s *Session) handlePermission(e *types.PermissionRequestEvent) {
	inv := types.ToolInvocation{SessionID: s.id, ToolCallID: e.Request.ToolCallID}
	result := types.PermissionResult{Kind: "approved"}

	if s.cfg.OnPermissionRequest != nil {
		res, err := hook.Call(s.logger, "permission", func() (types.PermissionResult, error) {
			return s.cfg.OnPermissionRequest(s.ctx, e.Request, inv)
		})
		if err != nil {
			result = types.PermissionResult{Kind: "denied"}
		} else {
			result = res
		}
	}

	reply := permissionReply{ToolCallID: e.Request.ToolCallID, Kind: result.Kind}
	if err := s.conn.Notify(s.ctx, wire.MethodPermissionReply, s.id, reply); err != nil {
		s.logger.Error().Err(err).Msg("failed to send permission reply")
	}
}

type userInputReply struct {
	RequestID   string `json:"requestId"`
	Answer      string `json:"answer"`
	WasFreeform bool   `json:"wasFreeform"`
}

// handleUserInput runs the user-input gate. With no handler the request
// stays unanswered; that is a caller configuration error, so it is logged
// loudly.
func (s *Session) handleUserInput(e *types.UserInputRequestEvent) {
	if s.cfg.OnUserInputRequest == nil {
		s.logger.Error().
			Str("requestId", e.Request.RequestID).
			Msg("backend requested user input but no handler is registered; request goes unanswered")
		return
	}

	inv := types.ToolInvocation{SessionID: s.id}
	resp, err := hook.Call(s.logger, "userInput", func() (types.UserInputResponse, error) {
		return s.cfg.OnUserInputRequest(s.ctx, e.Request, inv)
	})
	if err != nil {
		return
	}

	reply := userInputReply{RequestID: e.Request.RequestID, Answer: resp.Answer, WasFreeform: resp.WasFreeform}
	if err := s.conn.Notify(s.ctx, wire.MethodUserInputReply, s.id, reply); err != nil {
		s.logger.Error().Err(err).Msg("failed to send user input reply")
	}
}

// compact runs one summarization pass. Blocking passes run on the
// processing loop, so queued events for this session wait until the pass
// finishes.
func (s *Session) compact(blocking bool) {
	start := &types.SessionCompactionStartEvent{SessionID: s.id}
	start.Data.Blocking = blocking
	s.bus.Publish(start)

	ctx, cancel := context.WithTimeout(s.ctx, compactTimeout)
	defer cancel()

	var result types.CompactionResult
	if err := s.conn.Call(ctx, wire.MethodSessionCompact, s.id, nil, &result); err != nil {
		s.logger.Error().Err(err).Msg("compaction failed")
		result = types.CompactionResult{Success: false}
	}

	if result.Success {
		s.replaceHistoryWithSummary(result.Summary)
		s.logger.Info().
			Int("tokensRemoved", result.TokensRemoved).
			Bool("blocking", blocking).
			Msg("history compacted")
	}
	s.compactor.Complete(result)

	s.bus.Publish(&types.SessionCompactionCompleteEvent{SessionID: s.id, Data: result})
}

// replaceHistoryWithSummary swaps the accumulated history for a single
// summary turn, keeping the conversation semantically continuous.
func (s *Session) replaceHistoryWithSummary(summary string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = []types.Event{
		&types.AssistantMessageEvent{
			SessionID: s.id,
			Data:      types.MessageData{Content: summary},
		},
	}
}

// replayHistory installs replayed events from a resume ack and closes the
// replay with exactly one session.resume marker.
func (s *Session) replayHistory(history []jsonEvent) {
	for _, raw := range history {
		evt, err := types.UnmarshalEvent(raw)
		if err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable replayed event")
			continue
		}
		s.mu.Lock()
		switch evt.(type) {
		case *types.AssistantMessageEvent, *types.UserMessageEvent:
			s.history = append(s.history, evt)
		}
		s.mu.Unlock()
		s.bus.Publish(evt)
	}

	marker := &types.SessionResumeEvent{SessionID: s.id, ResumedAt: time.Now().UnixMilli()}
	s.mu.Lock()
	s.history = append(s.history, marker)
	s.mu.Unlock()
	s.bus.Publish(marker)
}

// pushSkills forwards a reloaded skill set to the backend.
func (s *Session) pushSkills(reloaded []skills.Skill) {
	params := struct {
		Skills []skillPayload `json:"skills"`
	}{Skills: skillPayloads(reloaded)}
	if err := s.conn.Notify(s.ctx, wire.MethodSkillsUpdate, s.id, params); err != nil {
		s.logger.Error().Err(err).Msg("failed to push reloaded skills")
	}
}

// Send submits one user turn and returns once the backend acknowledges
// receipt, before the turn completes. A busy session rejects the send.
func (s *Session) Send(ctx context.Context, opts types.MessageOptions) error {
	if err := s.beginTurn(); err != nil {
		return err
	}
	return s.submitTurn(ctx, opts)
}

// submitTurn runs the send body for an already-claimed turn, releasing
// the claim on failure.
func (s *Session) submitTurn(ctx context.Context, opts types.MessageOptions) error {
	// Record the user turn before the wire call so it always precedes the
	// backend's events for this turn, in history and on the bus.
	userEvt := &types.UserMessageEvent{
		SessionID: s.id,
		Data:      types.MessageData{Content: opts.Prompt},
	}
	s.mu.Lock()
	s.history = append(s.history, userEvt)
	s.mu.Unlock()
	s.bus.Publish(userEvt)

	if err := s.conn.Call(ctx, wire.MethodSessionSend, s.id, opts, nil); err != nil {
		s.mu.Lock()
		if n := len(s.history); n > 0 && s.history[n-1] == types.Event(userEvt) {
			s.history = s.history[:n-1]
		}
		s.mu.Unlock()
		s.abandonTurn()
		return s.client.wrapCallError("send", err)
	}
	return nil
}

func (s *Session) beginTurn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case SessionDisposed:
		return ErrSessionDisposed
	case SessionBusy:
		return ErrSessionBusy
	}
	s.state = SessionBusy
	return nil
}

func (s *Session) abandonTurn() {
	s.mu.Lock()
	if s.state == SessionBusy {
		s.state = SessionIdle
	}
	s.mu.Unlock()
}

// SendAndWait submits one user turn and blocks until the backend goes
// idle, returning the last assistant message of the turn. A backend error
// mid-turn is rethrown as *SessionError. Without a caller deadline the
// wait is bounded by DefaultSendAndWaitTimeout.
func (s *Session) SendAndWait(ctx context.Context, opts types.MessageOptions) (*types.AssistantMessageEvent, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultSendAndWaitTimeout)
		defer cancel()
	}

	// Claim the turn before registering the waiter so a terminal event
	// from an earlier fire-and-forget turn cannot resolve it.
	if err := s.beginTurn(); err != nil {
		return nil, err
	}

	ch := make(chan turnResult, 1)
	s.mu.Lock()
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()

	if err := s.submitTurn(ctx, opts); err != nil {
		s.removeWaiter(ch)
		return nil, err
	}

	select {
	case result := <-ch:
		return result.msg, result.err
	case <-ctx.Done():
		s.removeWaiter(ch)
		return nil, ctx.Err()
	}
}

func (s *Session) removeWaiter(ch chan turnResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.waiters {
		if w == ch {
			s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
			return
		}
	}
}

// Messages returns an ordered snapshot of the session history.
func (s *Session) Messages() ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SessionDisposed {
		return nil, ErrSessionDisposed
	}
	snapshot := make([]types.Event, len(s.history))
	copy(snapshot, s.history)
	return snapshot, nil
}

// On registers a subscriber for this session's events. Every subscriber
// sees every event independently, in arrival order; a slow subscriber
// never delays the others. The returned function cancels the
// subscription.
func (s *Session) On(fn func(types.Event)) (func(), error) {
	s.mu.Lock()
	if s.state == SessionDisposed {
		s.mu.Unlock()
		return nil, ErrSessionDisposed
	}
	s.mu.Unlock()

	cancel := s.bus.Subscribe(s.id, fn)

	s.mu.Lock()
	if s.state == SessionDisposed {
		s.mu.Unlock()
		cancel()
		return nil, ErrSessionDisposed
	}
	s.subs = append(s.subs, cancel)
	s.mu.Unlock()
	return cancel, nil
}

// Abort cooperatively cancels the in-flight turn. The wait for the
// backend acknowledgement is bounded; an unresponsive backend leaves the
// session usable. A session with no turn in flight is a no-op.
func (s *Session) Abort(ctx context.Context) error {
	s.mu.Lock()
	if s.state == SessionDisposed {
		s.mu.Unlock()
		return ErrSessionDisposed
	}
	if s.state != SessionBusy {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	abortCtx, cancel := context.WithTimeout(ctx, DefaultAbortTimeout)
	defer cancel()
	if err := s.conn.Call(abortCtx, wire.MethodSessionAbort, s.id, nil, nil); err != nil {
		s.logger.Warn().Err(err).Msg("abort not acknowledged, ending turn locally")
	}

	s.finishTurn(turnResult{err: ErrTurnAborted})
	return nil
}

// Dispose tears the session down: the backend is told, the in-flight turn
// is abandoned and all subscribers are cancelled. Dispose is idempotent;
// every later operation returns ErrSessionDisposed.
func (s *Session) Dispose(ctx context.Context) error {
	if !s.markDisposed() {
		return nil
	}

	teardownCtx, cancel := context.WithTimeout(ctx, teardownTimeout)
	defer cancel()
	if err := s.conn.Call(teardownCtx, wire.MethodSessionDispose, s.id, nil, nil); err != nil {
		s.logger.Warn().Err(err).Msg("backend dispose failed")
	}

	s.teardown(true)
	return nil
}

// disposeLocal tears down without notifying the backend; used when the
// transport is already gone. It never waits on the processing loop.
func (s *Session) disposeLocal() {
	if !s.markDisposed() {
		return
	}
	s.teardown(false)
}

func (s *Session) markDisposed() bool {
	s.mu.Lock()
	if s.state == SessionDisposed {
		s.mu.Unlock()
		return false
	}
	s.state = SessionDisposed
	waiters := s.waiters
	s.waiters = nil
	s.mu.Unlock()

	s.cancel()
	for _, ch := range waiters {
		ch <- turnResult{err: ErrSessionDisposed}
	}
	return true
}

// teardown runs after markDisposed. The processing loop may be parked
// inside a caller handler that ignores cancellation, so the wait on it
// is bounded and skipped entirely on the forced path.
func (s *Session) teardown(wait bool) {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("skill watcher stop failed")
		}
	}

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()
	for _, cancel := range subs {
		cancel()
	}

	s.inbound.Close()
	if wait {
		select {
		case <-s.procDone:
		case <-time.After(teardownTimeout):
			s.logger.Warn().Msg("event loop still inside a caller handler, detaching")
		}
	}

	s.client.forget(s.id)
	s.logger.Info().Msg("session disposed")
}
