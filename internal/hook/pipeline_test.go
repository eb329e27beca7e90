package hook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/go-copilot/internal/tool"
	"github.com/telnet2/go-copilot/pkg/types"
)

func pipelineWith(t *testing.T, hooks *types.SessionHooks, tools ...types.Tool) *Pipeline {
	t.Helper()
	registry, err := tool.NewRegistry(tools)
	require.NoError(t, err)
	return NewPipeline(tool.NewInvoker(registry, zerolog.Nop()), hooks, zerolog.Nop())
}

func countingTool(name string, calls *int) types.Tool {
	return types.Tool{
		Name: name,
		Handler: func(ctx context.Context, inv types.ToolInvocation, input json.RawMessage) (any, error) {
			*calls++
			return "ran", nil
		},
	}
}

func toolCall(name string) *types.ToolCallEvent {
	return &types.ToolCallEvent{
		SessionID:  "s1",
		ToolCallID: "c1",
		ToolName:   name,
		Input:      json.RawMessage(`{}`),
	}
}

func TestPipelineNoHooksPassThrough(t *testing.T) {
	calls := 0
	p := pipelineWith(t, nil, countingTool("echo", &calls))

	result := p.Run(context.Background(), toolCall("echo"))
	assert.Equal(t, types.ToolResultOK, result.Status)
	assert.Equal(t, 1, calls)
}

func TestPipelineNilHookOutputAllows(t *testing.T) {
	calls := 0
	hooks := &types.SessionHooks{
		OnPreToolUse: func(ctx context.Context, input types.PreToolUseInput, inv types.ToolInvocation) (*types.PreToolUseOutput, error) {
			return nil, nil
		},
	}
	p := pipelineWith(t, hooks, countingTool("echo", &calls))

	result := p.Run(context.Background(), toolCall("echo"))
	assert.Equal(t, types.ToolResultOK, result.Status)
	assert.Equal(t, 1, calls)
}

func TestPipelineDenyShortCircuits(t *testing.T) {
	calls := 0
	postCalls := 0
	hooks := &types.SessionHooks{
		OnPreToolUse: func(ctx context.Context, input types.PreToolUseInput, inv types.ToolInvocation) (*types.PreToolUseOutput, error) {
			assert.Equal(t, "echo", input.ToolName)
			return &types.PreToolUseOutput{Decision: types.HookDeny, Reason: "policy"}, nil
		},
		OnPostToolUse: func(ctx context.Context, input types.PostToolUseInput, inv types.ToolInvocation) error {
			postCalls++
			return nil
		},
	}
	p := pipelineWith(t, hooks, countingTool("echo", &calls))

	result := p.Run(context.Background(), toolCall("echo"))
	assert.Equal(t, types.ToolResultDenied, result.Status)
	assert.Equal(t, "policy", result.Message)
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, postCalls)
}

func TestPipelinePreHookErrorDenies(t *testing.T) {
	calls := 0
	hooks := &types.SessionHooks{
		OnPreToolUse: func(ctx context.Context, input types.PreToolUseInput, inv types.ToolInvocation) (*types.PreToolUseOutput, error) {
			return nil, errors.New("hook infrastructure down")
		},
	}
	p := pipelineWith(t, hooks, countingTool("echo", &calls))

	result := p.Run(context.Background(), toolCall("echo"))
	assert.Equal(t, types.ToolResultDenied, result.Status)
	assert.Equal(t, "tool call denied by client policy", result.Message)
	assert.Equal(t, 0, calls)
}

func TestPipelinePostHookSeesResult(t *testing.T) {
	var seen types.PostToolUseInput
	hooks := &types.SessionHooks{
		OnPostToolUse: func(ctx context.Context, input types.PostToolUseInput, inv types.ToolInvocation) error {
			seen = input
			return nil
		},
	}
	calls := 0
	p := pipelineWith(t, hooks, countingTool("echo", &calls))

	result := p.Run(context.Background(), toolCall("echo"))
	assert.Equal(t, types.ToolResultOK, result.Status)
	assert.Equal(t, "echo", seen.ToolName)
	assert.JSONEq(t, `"ran"`, string(seen.ToolResult))
}

func TestPipelinePostHookFailureIgnored(t *testing.T) {
	hooks := &types.SessionHooks{
		OnPostToolUse: func(ctx context.Context, input types.PostToolUseInput, inv types.ToolInvocation) error {
			panic("post hook bug")
		},
	}
	calls := 0
	p := pipelineWith(t, hooks, countingTool("echo", &calls))

	result := p.Run(context.Background(), toolCall("echo"))
	assert.Equal(t, types.ToolResultOK, result.Status)
	assert.Equal(t, 1, calls)
}
