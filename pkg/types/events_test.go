package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalEventDispatch(t *testing.T) {
	data := []byte(`{
		"type": "assistant.message",
		"sessionId": "s1",
		"messageId": "m1",
		"data": {"content": "hi", "tokens": {"input": 10, "output": 3}}
	}`)

	evt, err := UnmarshalEvent(data)
	require.NoError(t, err)

	msg, ok := evt.(*AssistantMessageEvent)
	require.True(t, ok)
	assert.Equal(t, "s1", msg.EventSessionID())
	assert.Equal(t, "hi", msg.Data.Content)
	require.NotNil(t, msg.Data.Tokens)
	assert.Equal(t, 10, msg.Data.Tokens.Input)
}

func TestUnmarshalEventUnknownType(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"type": "mystery.event", "sessionId": "s1"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestMarshalEventSetsDiscriminator(t *testing.T) {
	data, err := MarshalEvent(&SessionIdleEvent{SessionID: "s1"})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, string(EventSessionIdle), raw["type"])

	// Round-trips through the dispatcher.
	evt, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, EventSessionIdle, evt.EventType())
}

func TestToolCallEventCarriesRawInput(t *testing.T) {
	data := []byte(`{
		"type": "tool.call",
		"sessionId": "s1",
		"toolCallId": "c1",
		"toolName": "search",
		"input": {"query": "weather"}
	}`)

	evt, err := UnmarshalEvent(data)
	require.NoError(t, err)

	call, ok := evt.(*ToolCallEvent)
	require.True(t, ok)
	assert.Equal(t, "search", call.ToolName)
	assert.JSONEq(t, `{"query": "weather"}`, string(call.Input))
}

func TestSessionConfigValidate(t *testing.T) {
	cfg := &SessionConfig{}
	require.NoError(t, cfg.Validate())

	cfg = &SessionConfig{AvailableTools: []string{"a"}}
	require.NoError(t, cfg.Validate())

	cfg = &SessionConfig{ExcludedTools: []string{"b"}}
	require.NoError(t, cfg.Validate())

	cfg = &SessionConfig{AvailableTools: []string{"a"}, ExcludedTools: []string{"b"}}
	assert.ErrorIs(t, cfg.Validate(), ErrConflictingToolFilters)

	cfg = &SessionConfig{Tools: []Tool{{Name: ""}}}
	assert.Error(t, cfg.Validate())
}
