package backendtest

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/telnet2/go-copilot/pkg/types"
)

// TurnContext drives one scripted turn. Its methods emit events to the
// client and, where the protocol demands it, block for the client's reply.
type TurnContext struct {
	backend *Backend
	state   *sessionState

	SessionID string
	Prompt    string
}

// Emit sends an arbitrary event for this session.
func (t *TurnContext) Emit(evt types.Event) {
	t.backend.Emit(evt)
}

// Delta streams one chunk of assistant content.
func (t *TurnContext) Delta(content string) {
	evt := &types.AssistantMessageDeltaEvent{SessionID: t.SessionID, MessageID: t.messageID()}
	evt.Data.DeltaContent = content
	t.backend.Emit(evt)
}

// Reply emits a terminal assistant message and records it in the session
// history for later resume.
func (t *TurnContext) Reply(content string, tokens *types.TokenUsage) {
	evt := &types.AssistantMessageEvent{
		SessionID: t.SessionID,
		MessageID: t.messageID(),
		Data:      types.MessageData{Content: content, Tokens: tokens},
	}
	if raw, err := types.MarshalEvent(evt); err == nil {
		t.backend.mu.Lock()
		t.state.history = append(t.state.history, raw)
		t.backend.mu.Unlock()
	}
	t.backend.Emit(evt)
}

// Idle ends the turn.
func (t *TurnContext) Idle() {
	t.backend.Emit(&types.SessionIdleEvent{SessionID: t.SessionID})
}

// Fail ends the turn with a session error.
func (t *TurnContext) Fail(code, message string) {
	evt := &types.SessionErrorEvent{SessionID: t.SessionID}
	evt.Data = &struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	}{Code: code, Message: message}
	t.backend.Emit(evt)
}

// ToolCall asks the client to run a tool and blocks for the result. A
// zero result is returned if the client never answers.
func (t *TurnContext) ToolCall(name string, input any) types.ToolCallResult {
	var raw json.RawMessage
	if input != nil {
		raw, _ = json.Marshal(input)
	}
	callID := ulid.Make().String()
	t.backend.Emit(&types.ToolCallEvent{
		SessionID:  t.SessionID,
		ToolCallID: callID,
		ToolName:   name,
		Input:      raw,
	})

	select {
	case result := <-t.state.toolResults:
		return result
	case <-time.After(replyTimeout):
		return types.ToolCallResult{ToolCallID: callID, Status: types.ToolResultFailed, Message: "no reply"}
	}
}

// RequestPermission asks the client for approval and blocks for the
// decision. No reply within the timeout counts as denied.
func (t *TurnContext) RequestPermission(kind, toolCallID string) bool {
	t.backend.Emit(&types.PermissionRequestEvent{
		SessionID: t.SessionID,
		Request:   types.PermissionRequest{Kind: kind, ToolCallID: toolCallID},
	})

	select {
	case reply := <-t.state.permissions:
		return reply.Kind == "approved"
	case <-time.After(replyTimeout):
		return false
	}
}

// AskUser poses a question and blocks for the answer. ok is false when
// the client leaves the request unanswered within the timeout.
func (t *TurnContext) AskUser(question string, choices ...string) (reply UserInputReply, ok bool) {
	t.backend.Emit(&types.UserInputRequestEvent{
		SessionID: t.SessionID,
		Request: types.UserInputRequest{
			RequestID: ulid.Make().String(),
			Question:  question,
			Choices:   choices,
		},
	})

	select {
	case reply = <-t.state.userInputs:
		return reply, true
	case <-time.After(replyTimeout):
		return UserInputReply{}, false
	}
}

func (t *TurnContext) messageID() string {
	return ulid.Make().String()
}
