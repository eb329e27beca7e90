package hook

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-copilot/internal/tool"
	"github.com/telnet2/go-copilot/pkg/types"
)

// refusalMessage is sent upstream when a pre-hook denies a call.
const refusalMessage = "tool call denied by client policy"

// Pipeline wraps the tool invoker with the session's pre/post tool-use
// hooks. With no hooks configured it is a pass-through.
type Pipeline struct {
	invoker *tool.Invoker
	hooks   types.SessionHooks
	logger  zerolog.Logger
}

// NewPipeline builds the pipeline for one session. hooks may be nil.
func NewPipeline(invoker *tool.Invoker, hooks *types.SessionHooks, logger zerolog.Logger) *Pipeline {
	p := &Pipeline{invoker: invoker, logger: logger}
	if hooks != nil {
		p.hooks = *hooks
	}
	return p
}

// Run executes one tool call: pre-hook, tool, post-hook, strictly in that
// order. A denying or failing pre-hook short-circuits: the tool is never
// invoked and a structured refusal is returned. The post-hook runs only
// after an allowed, executed call; its failure is a logged no-op.
func (p *Pipeline) Run(ctx context.Context, call *types.ToolCallEvent) types.ToolCallResult {
	inv := types.ToolInvocation{SessionID: call.SessionID, ToolCallID: call.ToolCallID}

	if p.hooks.OnPreToolUse != nil {
		out, err := Call(p.logger, "preToolUse", func() (*types.PreToolUseOutput, error) {
			return p.hooks.OnPreToolUse(ctx, types.PreToolUseInput{
				ToolName: call.ToolName,
				Input:    call.Input,
			}, inv)
		})
		// Fail closed: a broken pre-hook denies the call.
		if err != nil || (out != nil && out.Decision == types.HookDeny) {
			reason := refusalMessage
			if err == nil && out.Reason != "" {
				reason = out.Reason
			}
			return types.ToolCallResult{
				ToolCallID: call.ToolCallID,
				Status:     types.ToolResultDenied,
				Message:    reason,
			}
		}
	}

	result := p.invoker.Invoke(ctx, call)

	if p.hooks.OnPostToolUse != nil {
		Call(p.logger, "postToolUse", func() (struct{}, error) {
			return struct{}{}, p.hooks.OnPostToolUse(ctx, types.PostToolUseInput{
				ToolName:   call.ToolName,
				ToolResult: result.Output,
			}, inv)
		})
	}

	return result
}
