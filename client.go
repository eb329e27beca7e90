// Package copilot is a client runtime for long-lived agent sessions over
// a duplex event/command channel. A Client owns the transport and the
// lifecycle of its Sessions; each Session runs conversation turns, routes
// tool calls through the caller's hooks and gates, and keeps an ordered
// event history.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-copilot/internal/event"
	"github.com/telnet2/go-copilot/internal/skills"
	"github.com/telnet2/go-copilot/internal/tool"
	"github.com/telnet2/go-copilot/internal/wire"
	"github.com/telnet2/go-copilot/pkg/types"
)

// ClientState is the lifecycle phase of a Client.
type ClientState int

const (
	ClientCreated ClientState = iota
	ClientStarting
	ClientRunning
	ClientStopping
	ClientStopped
	ClientFaulted
)

func (s ClientState) String() string {
	switch s {
	case ClientCreated:
		return "created"
	case ClientStarting:
		return "starting"
	case ClientRunning:
		return "running"
	case ClientStopping:
		return "stopping"
	case ClientStopped:
		return "stopped"
	case ClientFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// ClientConfig configures a Client. Either Command (a backend process to
// spawn, argv style) or Transport (a pre-built channel, used by tests)
// must be set.
type ClientConfig struct {
	Command   []string
	Transport wire.Transport
	Logger    *zerolog.Logger
}

// Client owns the backend connection and all sessions created over it.
type Client struct {
	logger zerolog.Logger

	mu       sync.Mutex
	state    ClientState
	conn     *wire.Conn
	bus      *event.Bus
	sessions map[string]*Session
	status   types.Status

	transport    wire.Transport
	command      []string
	dispatchDone chan struct{}
}

// NewClient builds a Client in the Created state. Nothing connects until
// Start.
func NewClient(cfg ClientConfig) *Client {
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Client{
		logger:    logger.With().Str("component", "client").Logger(),
		state:     ClientCreated,
		sessions:  make(map[string]*Session),
		transport: cfg.Transport,
		command:   cfg.Command,
	}
}

// State returns the current lifecycle phase.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// Start connects the transport and performs the initialize handshake.
// On success the client is Running; on failure it is Faulted and the
// returned error is a *TransportError.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case ClientCreated, ClientStopped:
		c.state = ClientStarting
	case ClientRunning, ClientStarting:
		c.mu.Unlock()
		return nil
	default:
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot start client in state %s", state)
	}
	transport := c.transport
	c.mu.Unlock()

	if transport == nil {
		if len(c.command) == 0 {
			c.fault()
			return &TransportError{Op: "start", Err: errors.New("no command or transport configured")}
		}
		transport = wire.NewStdioTransport(c.command, c.logger)
	}

	if err := transport.Connect(ctx); err != nil {
		c.fault()
		return &TransportError{Op: "connect", Err: err}
	}

	conn := wire.NewConn(transport, c.logger)
	var status types.Status
	if err := conn.Call(ctx, wire.MethodInitialize, "", initializeParams{ProtocolVersion: wire.ProtocolVersion}, &status); err != nil {
		conn.Close()
		c.fault()
		return &TransportError{Op: "initialize", Err: err}
	}

	c.mu.Lock()
	c.conn = conn
	c.bus = event.NewBus(c.logger)
	c.status = status
	c.dispatchDone = make(chan struct{})
	c.state = ClientRunning
	c.mu.Unlock()

	go c.dispatch()

	c.logger.Info().
		Str("backendVersion", status.Version).
		Str("protocolVersion", status.ProtocolVersion).
		Msg("client started")
	return nil
}

func (c *Client) fault() {
	c.mu.Lock()
	c.state = ClientFaulted
	c.mu.Unlock()
}

// dispatch routes inbound events to their owning session. Each session
// processes its own events sequentially; events for unknown sessions are
// dropped with a log line.
func (c *Client) dispatch() {
	c.mu.Lock()
	conn := c.conn
	done := c.dispatchDone
	c.mu.Unlock()

	for evt := range conn.Events() {
		c.mu.Lock()
		s := c.sessions[evt.EventSessionID()]
		c.mu.Unlock()
		if s == nil {
			c.logger.Debug().
				Str("sessionId", evt.EventSessionID()).
				Str("type", string(evt.EventType())).
				Msg("dropping event for unknown session")
			continue
		}
		s.enqueue(evt)
	}
	close(done)
}

// Stop disposes every session, closes the transport and transitions to
// Stopped. It is idempotent and a no-op when the client never ran.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != ClientRunning {
		c.mu.Unlock()
		return nil
	}
	c.state = ClientStopping
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	conn := c.conn
	bus := c.bus
	done := c.dispatchDone
	c.mu.Unlock()

	for _, s := range sessions {
		if err := s.Dispose(ctx); err != nil {
			c.logger.Warn().Err(err).Str("sessionId", s.ID()).Msg("session dispose failed during stop")
		}
	}

	conn.Close()
	<-done
	bus.Close()

	c.mu.Lock()
	c.state = ClientStopped
	c.mu.Unlock()
	c.logger.Info().Msg("client stopped")
	return nil
}

// ForceStop closes the transport immediately without per-session
// teardown. Sessions are marked disposed locally.
func (c *Client) ForceStop() {
	c.mu.Lock()
	if c.state != ClientRunning {
		c.mu.Unlock()
		return
	}
	c.state = ClientStopping
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	conn := c.conn
	bus := c.bus
	done := c.dispatchDone
	c.mu.Unlock()

	// Close the transport first. Sessions may be parked inside caller
	// handlers; disposeLocal never waits on them.
	conn.Close()
	for _, s := range sessions {
		s.disposeLocal()
	}
	<-done
	bus.Close()

	c.mu.Lock()
	c.state = ClientStopped
	c.mu.Unlock()
	c.logger.Info().Msg("client force-stopped")
}

// running returns the live connection or ErrClientNotRunning.
func (c *Client) running() (*wire.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ClientRunning {
		return nil, ErrClientNotRunning
	}
	return c.conn, nil
}

type pingParams struct {
	Message string `json:"message"`
}

// Ping round-trips a message through the backend and returns its echo
// with the server timestamp.
func (c *Client) Ping(ctx context.Context, message string) (*types.PingResult, error) {
	conn, err := c.running()
	if err != nil {
		return nil, err
	}
	var result types.PingResult
	if err := conn.Call(ctx, wire.MethodPing, "", pingParams{Message: message}, &result); err != nil {
		return nil, c.wrapCallError("ping", err)
	}
	return &result, nil
}

// Status reports backend version information.
func (c *Client) Status(ctx context.Context) (*types.Status, error) {
	conn, err := c.running()
	if err != nil {
		return nil, err
	}
	var result types.Status
	if err := conn.Call(ctx, wire.MethodStatus, "", nil, &result); err != nil {
		return nil, c.wrapCallError("status", err)
	}
	return &result, nil
}

// AuthStatus reports the backend's authentication state.
func (c *Client) AuthStatus(ctx context.Context) (*types.AuthStatus, error) {
	conn, err := c.running()
	if err != nil {
		return nil, err
	}
	var result types.AuthStatus
	if err := conn.Call(ctx, wire.MethodAuthStatus, "", nil, &result); err != nil {
		return nil, c.wrapCallError("auth status", err)
	}
	return &result, nil
}

type listModelsResult struct {
	Models []types.Model `json:"models"`
}

// ListModels returns the models available to the authenticated account.
// An unauthenticated backend yields ErrAuthenticationRequired.
func (c *Client) ListModels(ctx context.Context) ([]types.Model, error) {
	conn, err := c.running()
	if err != nil {
		return nil, err
	}
	var result listModelsResult
	if err := conn.Call(ctx, wire.MethodListModels, "", nil, &result); err != nil {
		return nil, c.wrapCallError("list models", err)
	}
	return result.Models, nil
}

// wrapCallError maps wire-level failures to the public error taxonomy.
func (c *Client) wrapCallError(op string, err error) error {
	var werr *wire.Error
	if errors.As(err, &werr) {
		switch werr.Code {
		case wire.CodeAuthRequired:
			return ErrAuthenticationRequired
		case wire.CodeSessionNotFound:
			return ErrSessionNotFound
		}
		return err
	}
	return &TransportError{Op: op, Err: err}
}

type skillPayload struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Body        string `json:"body"`
}

type sessionCreateParams struct {
	types.SessionConfig
	ToolDescriptors []types.ToolDescriptor `json:"tools,omitempty"`
	Skills          []skillPayload         `json:"skills,omitempty"`
}

type sessionCreateResult struct {
	SessionID string      `json:"sessionId"`
	Model     types.Model `json:"model"`
}

// CreateSession registers a new session with the backend and blocks until
// it acknowledges with the session id.
func (c *Client) CreateSession(ctx context.Context, cfg *types.SessionConfig) (*Session, error) {
	return c.openSession(ctx, wire.MethodSessionCreate, "", cfg)
}

// ResumeSession reattaches to an existing backend session, replays its
// history into the local event order and marks the boundary with a single
// session.resume event. An unknown id yields ErrSessionNotFound.
func (c *Client) ResumeSession(ctx context.Context, sessionID string, cfg *types.SessionConfig) (*Session, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}
	return c.openSession(ctx, wire.MethodSessionResume, sessionID, cfg)
}

type sessionResumeResult struct {
	sessionCreateResult
	History []jsonEvent `json:"history,omitempty"`
}

type jsonEvent []byte

func (j *jsonEvent) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}

func (c *Client) openSession(ctx context.Context, method, sessionID string, cfg *types.SessionConfig) (*Session, error) {
	conn, err := c.running()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &types.SessionConfig{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry, err := tool.NewRegistry(cfg.Tools)
	if err != nil {
		return nil, err
	}

	var loadedSkills []skills.Skill
	var loader *skills.Loader
	if len(cfg.SkillDirectories) > 0 {
		loader = skills.NewLoader(cfg.SkillDirectories, cfg.DisabledSkills, c.logger)
		loadedSkills, err = loader.Load()
		if err != nil {
			return nil, err
		}
	}

	params := sessionCreateParams{
		SessionConfig:   *cfg,
		ToolDescriptors: registry.Descriptors(),
		Skills:          skillPayloads(loadedSkills),
	}

	var result sessionResumeResult
	if err := conn.Call(ctx, method, sessionID, params, &result); err != nil {
		return nil, c.wrapCallError("open session", err)
	}
	if result.SessionID == "" {
		result.SessionID = sessionID
	}

	s, err := newSession(sessionParams{
		id:       result.SessionID,
		client:   c,
		conn:     conn,
		bus:      c.bus,
		cfg:      cfg,
		model:    result.Model,
		registry: registry,
		loader:   loader,
		logger:   c.logger,
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.state != ClientRunning {
		c.mu.Unlock()
		s.disposeLocal()
		return nil, ErrClientNotRunning
	}
	c.sessions[s.ID()] = s
	c.mu.Unlock()

	if method == wire.MethodSessionResume {
		s.replayHistory(result.History)
	}

	c.logger.Info().Str("sessionId", s.ID()).Str("method", method).Msg("session open")
	return s, nil
}

func skillPayloads(loaded []skills.Skill) []skillPayload {
	if len(loaded) == 0 {
		return nil
	}
	payloads := make([]skillPayload, len(loaded))
	for i, s := range loaded {
		payloads[i] = skillPayload{
			Name:        s.Metadata.Name,
			Description: s.Metadata.Description,
			Body:        s.Body,
		}
	}
	return payloads
}

// forget removes a disposed session from the routing table.
func (c *Client) forget(sessionID string) {
	c.mu.Lock()
	delete(c.sessions, sessionID)
	c.mu.Unlock()
}
