package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-copilot/pkg/types"
)

// genericFailure is the only failure text the model ever sees. Real error
// detail stays in local logs.
const genericFailure = "tool execution failed"

// Invoker executes tool calls against a registry. Handler errors and
// panics are captured and reported upstream as an opaque failure.
type Invoker struct {
	registry *Registry
	logger   zerolog.Logger
}

// NewInvoker creates an invoker over the given registry.
func NewInvoker(registry *Registry, logger zerolog.Logger) *Invoker {
	return &Invoker{registry: registry, logger: logger}
}

// Invoke resolves and runs the requested tool, returning a protocol-safe
// result. It never returns an error: every failure mode is folded into the
// result's status.
func (i *Invoker) Invoke(ctx context.Context, call *types.ToolCallEvent) types.ToolCallResult {
	inv := types.ToolInvocation{SessionID: call.SessionID, ToolCallID: call.ToolCallID}

	t, ok := i.registry.Get(call.ToolName)
	if !ok {
		i.logger.Warn().Str("tool", call.ToolName).Str("callId", call.ToolCallID).Msg("unknown tool requested")
		return types.ToolCallResult{
			ToolCallID: call.ToolCallID,
			Status:     types.ToolResultFailed,
			Message:    genericFailure,
		}
	}

	output, err := i.run(ctx, t, inv, call.Input)
	if err != nil {
		i.logger.Error().Err(err).
			Str("tool", call.ToolName).
			Str("session", call.SessionID).
			Str("callId", call.ToolCallID).
			Msg("tool execution failed")
		return types.ToolCallResult{
			ToolCallID: call.ToolCallID,
			Status:     types.ToolResultFailed,
			Message:    genericFailure,
		}
	}

	return types.ToolCallResult{
		ToolCallID: call.ToolCallID,
		Status:     types.ToolResultOK,
		Output:     output,
	}
}

// run executes the handler with panic containment and serializes its
// return value.
func (i *Invoker) run(ctx context.Context, t types.Tool, inv types.ToolInvocation, input json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool handler panicked: %v", r)
		}
	}()

	if t.Handler == nil {
		return nil, fmt.Errorf("tool %q has no handler", t.Name)
	}

	result, err := t.Handler(ctx, inv, input)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return data, nil
}
