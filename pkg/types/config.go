// Package types defines the wire and configuration types shared by the
// go-copilot client runtime.
package types

import (
	"context"
	"encoding/json"
	"errors"
)

// SystemMessageMode controls how SystemMessageConfig.Content combines with
// the backend's default system prompt.
type SystemMessageMode string

const (
	SystemMessageAppend  SystemMessageMode = "append"
	SystemMessageReplace SystemMessageMode = "replace"
)

// SystemMessageConfig augments or replaces the default system prompt.
type SystemMessageConfig struct {
	Mode    SystemMessageMode `json:"mode"`
	Content string            `json:"content"`
}

// InfiniteSessionConfig is the compaction policy for one session. Both
// thresholds are fractions of the model context window in (0, 1].
type InfiniteSessionConfig struct {
	Enabled bool `json:"enabled"`

	// BackgroundCompactionThreshold triggers summarization that does not
	// block the in-flight turn.
	BackgroundCompactionThreshold float64 `json:"backgroundCompactionThreshold,omitempty"`

	// BufferExhaustionThreshold triggers a blocking compaction that must
	// complete before the next turn proceeds.
	BufferExhaustionThreshold float64 `json:"bufferExhaustionThreshold,omitempty"`
}

// McpServerConfig describes an external tool server merged into the
// session's tool set. The runtime only forwards this configuration; it
// never launches or speaks to the server itself.
type McpServerConfig struct {
	Type    string            `json:"type"` // "local" | "http"
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	URL     string            `json:"url,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	Tools   []string          `json:"tools,omitempty"` // "*" for all
}

// CustomAgentConfig defines a named sub-persona with its own prompt, tool
// scope and MCP servers. Infer lets the model auto-select the agent.
type CustomAgentConfig struct {
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Prompt      string                     `json:"prompt,omitempty"`
	Tools       []string                   `json:"tools,omitempty"`
	McpServers  map[string]McpServerConfig `json:"mcpServers,omitempty"`
	Infer       bool                       `json:"infer,omitempty"`
}

// SessionHooks holds the optional pre/post tool-use interception handlers.
type SessionHooks struct {
	OnPreToolUse  PreToolUseHook
	OnPostToolUse PostToolUseHook
}

// SessionConfig is the per-session configuration snapshot. The zero value
// is a valid default configuration.
type SessionConfig struct {
	// Model selects the backend model identifier.
	Model string `json:"model,omitempty"`

	// Streaming enables assistant.message.delta events.
	Streaming bool `json:"streaming,omitempty"`

	// Tools registers caller-supplied callables, each bound to a name and
	// a JSON-schema parameter description.
	Tools []Tool `json:"-"`

	// AvailableTools is an allow-list over built-in tool names.
	// ExcludedTools is a deny-list. Setting both is a configuration error.
	AvailableTools []string `json:"availableTools,omitempty"`
	ExcludedTools  []string `json:"excludedTools,omitempty"`

	Hooks               *SessionHooks     `json:"-"`
	OnPermissionRequest PermissionHandler `json:"-"`
	OnUserInputRequest  UserInputHandler  `json:"-"`

	SystemMessage    *SystemMessageConfig   `json:"systemMessage,omitempty"`
	InfiniteSessions *InfiniteSessionConfig `json:"infiniteSessions,omitempty"`

	// SkillDirectories are scanned for SKILL.md definitions; skills named
	// in DisabledSkills are suppressed.
	SkillDirectories []string `json:"skillDirectories,omitempty"`
	DisabledSkills   []string `json:"disabledSkills,omitempty"`

	McpServers   map[string]McpServerConfig `json:"mcpServers,omitempty"`
	CustomAgents []CustomAgentConfig        `json:"customAgents,omitempty"`
}

// ErrConflictingToolFilters is returned when AvailableTools and
// ExcludedTools are both set; an exclusion list only makes sense without an
// explicit allow-list.
var ErrConflictingToolFilters = errors.New("availableTools and excludedTools cannot both be set")

// Validate checks the configuration for contradictions.
func (c *SessionConfig) Validate() error {
	if c == nil {
		return nil
	}
	if len(c.AvailableTools) > 0 && len(c.ExcludedTools) > 0 {
		return ErrConflictingToolFilters
	}
	for _, t := range c.Tools {
		if t.Name == "" {
			return errors.New("tool with empty name")
		}
	}
	return nil
}

// MessageOptions describes one user turn.
type MessageOptions struct {
	Prompt string `json:"prompt"`

	// Agent addresses a named custom agent explicitly instead of letting
	// the backend infer one.
	Agent string `json:"agent,omitempty"`
}

// ToolInvocation correlates a tool call, permission request or user-input
// request to its owning session. It is read-only for handler code.
type ToolInvocation struct {
	SessionID  string `json:"sessionId"`
	ToolCallID string `json:"toolCallId,omitempty"`
}

// PreToolUseInput is passed to the pre tool-use hook.
type PreToolUseInput struct {
	ToolName string          `json:"toolName"`
	Input    json.RawMessage `json:"input,omitempty"`
}

// HookDecision is the outcome of a pre tool-use hook.
type HookDecision string

const (
	HookAllow HookDecision = "allow"
	HookDeny  HookDecision = "deny"
)

// PreToolUseOutput is returned by the pre tool-use hook. A nil output is
// treated as allow.
type PreToolUseOutput struct {
	Decision HookDecision `json:"decision"`
	Reason   string       `json:"reason,omitempty"`
}

// PostToolUseInput is passed to the post tool-use hook after an allowed,
// executed tool call.
type PostToolUseInput struct {
	ToolName   string          `json:"toolName"`
	ToolResult json.RawMessage `json:"toolResult,omitempty"`
}

// PreToolUseHook intercepts a tool call before execution.
type PreToolUseHook func(ctx context.Context, input PreToolUseInput, inv ToolInvocation) (*PreToolUseOutput, error)

// PostToolUseHook observes a tool result after execution. Its return value
// is advisory and does not alter the result already sent upstream.
type PostToolUseHook func(ctx context.Context, input PostToolUseInput, inv ToolInvocation) error

// PermissionRequest asks for approval of a sensitive operation such as a
// file write or command execution, independent of which tool triggered it.
type PermissionRequest struct {
	Kind       string `json:"kind"`
	ToolCallID string `json:"toolCallId,omitempty"`
}

// PermissionResult is the decision for a permission request.
type PermissionResult struct {
	Kind string `json:"kind"` // "approved" | "denied"
}

// Approved reports whether the result grants the request.
func (r PermissionResult) Approved() bool { return r.Kind == "approved" }

// PermissionHandler decides a permission request. No registered handler
// means every request is approved; the gate exists to let callers restrict.
type PermissionHandler func(ctx context.Context, req PermissionRequest, inv ToolInvocation) (PermissionResult, error)

// UserInputRequest is a mid-turn question from the backend.
type UserInputRequest struct {
	RequestID string   `json:"requestId"`
	Question  string   `json:"question"`
	Choices   []string `json:"choices,omitempty"`
}

// UserInputResponse answers a UserInputRequest. WasFreeform marks whether
// the answer was free text rather than one of the offered choices.
type UserInputResponse struct {
	Answer      string `json:"answer"`
	WasFreeform bool   `json:"wasFreeform"`
}

// UserInputHandler collects ad-hoc input from the end user. The handler may
// block (e.g. reading interactive input); the turn stays Busy meanwhile.
type UserInputHandler func(ctx context.Context, req UserInputRequest, inv ToolInvocation) (UserInputResponse, error)
