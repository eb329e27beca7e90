package types

import (
	"context"
	"encoding/json"
)

// ToolHandler executes one tool call. Input is the raw JSON arguments; the
// returned value is serialized as the tool result. Errors and panics are
// contained by the invoker and reported upstream as an opaque failure.
type ToolHandler func(ctx context.Context, inv ToolInvocation, input json.RawMessage) (any, error)

// Tool binds a case-sensitive name to a callable and a JSON-schema
// description of its parameters.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Handler     ToolHandler     `json:"-"`
}

// ToolDescriptor is the handler-free form of a Tool sent to the backend
// when a session is created or resumed.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Descriptor strips the handler for transmission.
func (t Tool) Descriptor() ToolDescriptor {
	return ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// ToolResultStatus distinguishes successful tool results from refusals and
// failures.
type ToolResultStatus string

const (
	ToolResultOK     ToolResultStatus = "ok"
	ToolResultDenied ToolResultStatus = "denied"
	ToolResultFailed ToolResultStatus = "failed"
)

// ToolCallResult is sent back to the backend for every tool.call event.
// Failed results never carry internal error detail; Message holds only an
// opaque indicator or a structured refusal reason.
type ToolCallResult struct {
	ToolCallID string           `json:"toolCallId"`
	Status     ToolResultStatus `json:"status"`
	Output     json.RawMessage  `json:"output,omitempty"`
	Message    string           `json:"message,omitempty"`
}
