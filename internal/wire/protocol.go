// Package wire implements the duplex JSON message channel between the
// client runtime and the agent backend. Frames are newline-delimited JSON;
// the runtime treats everything below this package as opaque transport.
package wire

import "encoding/json"

// Protocol methods understood by the backend.
const (
	MethodInitialize      = "initialize"
	MethodPing            = "ping"
	MethodStatus          = "status"
	MethodAuthStatus      = "auth.status"
	MethodListModels      = "models.list"
	MethodSessionCreate   = "session.create"
	MethodSessionResume   = "session.resume"
	MethodSessionSend     = "session.send"
	MethodSessionAbort    = "session.abort"
	MethodSessionCompact  = "session.compact"
	MethodSessionDispose  = "session.dispose"
	MethodSkillsUpdate    = "session.skills_update"
	MethodToolResult      = "tool.result"
	MethodPermissionReply = "permission.result"
	MethodUserInputReply  = "user_input.result"
)

// ProtocolVersion is sent during the initialize handshake.
const ProtocolVersion = "1"

// Command is an outbound request frame.
type Command struct {
	ID        string          `json:"id"`
	Method    string          `json:"method"`
	SessionID string          `json:"sessionId,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Error is a backend-reported command failure.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Backend error codes surfaced to the runtime.
const (
	CodeSessionNotFound = "session_not_found"
	CodeAuthRequired    = "auth_required"
	CodeInvalidRequest  = "invalid_request"
)

// Frame is any inbound message. A frame with an ID is a response to a
// pending command; a frame with an Event payload is a session event.
type Frame struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
	Event  json.RawMessage `json:"event,omitempty"`
}
