package types

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of a session event.
type EventType string

const (
	EventAssistantMessage      EventType = "assistant.message"
	EventAssistantMessageDelta EventType = "assistant.message.delta"
	EventUserMessage           EventType = "user.message"
	EventSessionIdle           EventType = "session.idle"
	EventSessionError          EventType = "session.error"
	EventSessionResume         EventType = "session.resume"
	EventCompactionStart       EventType = "session.compaction_start"
	EventCompactionComplete    EventType = "session.compaction_complete"
	EventToolCall              EventType = "tool.call"
	EventPermissionRequest     EventType = "permission.request"
	EventUserInputRequest      EventType = "user_input.request"
)

// Event is a session event delivered to subscribers. Events form a closed
// set of variants discriminated by EventType; they are immutable once
// delivered.
type Event interface {
	EventType() EventType
	EventSessionID() string
}

// MessageData carries the content of an assistant or user message.
type MessageData struct {
	Content string      `json:"content"`
	Tokens  *TokenUsage `json:"tokens,omitempty"`
}

// TokenUsage reports token consumption for one message.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// AssistantMessageEvent is a terminal (non-delta) assistant message.
type AssistantMessageEvent struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"sessionId"`
	MessageID string      `json:"messageId,omitempty"`
	Data      MessageData `json:"data"`
}

func (e *AssistantMessageEvent) EventType() EventType   { return EventAssistantMessage }
func (e *AssistantMessageEvent) EventSessionID() string { return e.SessionID }

// AssistantMessageDeltaEvent is one streamed chunk of assistant content.
// Deltas are only emitted when the session was created with Streaming=true.
type AssistantMessageDeltaEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	MessageID string    `json:"messageId,omitempty"`
	Data      struct {
		DeltaContent string `json:"deltaContent"`
	} `json:"data"`
}

func (e *AssistantMessageDeltaEvent) EventType() EventType   { return EventAssistantMessageDelta }
func (e *AssistantMessageDeltaEvent) EventSessionID() string { return e.SessionID }

// UserMessageEvent records a user turn in the session history.
type UserMessageEvent struct {
	Type      EventType   `json:"type"`
	SessionID string      `json:"sessionId"`
	Data      MessageData `json:"data"`
}

func (e *UserMessageEvent) EventType() EventType   { return EventUserMessage }
func (e *UserMessageEvent) EventSessionID() string { return e.SessionID }

// SessionIdleEvent terminates a turn: the backend has no further output.
type SessionIdleEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

func (e *SessionIdleEvent) EventType() EventType   { return EventSessionIdle }
func (e *SessionIdleEvent) EventSessionID() string { return e.SessionID }

// SessionErrorEvent reports a backend failure mid-turn. It is terminal for
// the turn in which it occurs.
type SessionErrorEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"data,omitempty"`
}

func (e *SessionErrorEvent) EventType() EventType   { return EventSessionError }
func (e *SessionErrorEvent) EventSessionID() string { return e.SessionID }

// SessionResumeEvent marks the boundary between replayed history and new
// turns in a resumed session.
type SessionResumeEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	ResumedAt int64     `json:"resumedAt,omitempty"`
}

func (e *SessionResumeEvent) EventType() EventType   { return EventSessionResume }
func (e *SessionResumeEvent) EventSessionID() string { return e.SessionID }

// SessionCompactionStartEvent signals that history summarization began.
type SessionCompactionStartEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Data      struct {
		Blocking bool `json:"blocking"`
	} `json:"data"`
}

func (e *SessionCompactionStartEvent) EventType() EventType   { return EventCompactionStart }
func (e *SessionCompactionStartEvent) EventSessionID() string { return e.SessionID }

// CompactionResult reports the outcome of one compaction pass.
type CompactionResult struct {
	Success       bool   `json:"success"`
	TokensRemoved int    `json:"tokensRemoved"`
	Summary       string `json:"summary,omitempty"`
}

// SessionCompactionCompleteEvent signals that summarization finished.
type SessionCompactionCompleteEvent struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"sessionId"`
	Data      CompactionResult `json:"data"`
}

func (e *SessionCompactionCompleteEvent) EventType() EventType   { return EventCompactionComplete }
func (e *SessionCompactionCompleteEvent) EventSessionID() string { return e.SessionID }

// ToolCallEvent asks the client to execute a registered tool.
type ToolCallEvent struct {
	Type       EventType       `json:"type"`
	SessionID  string          `json:"sessionId"`
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Input      json.RawMessage `json:"input,omitempty"`
}

func (e *ToolCallEvent) EventType() EventType   { return EventToolCall }
func (e *ToolCallEvent) EventSessionID() string { return e.SessionID }

// PermissionRequestEvent asks the client to approve a sensitive operation.
type PermissionRequestEvent struct {
	Type      EventType         `json:"type"`
	SessionID string            `json:"sessionId"`
	Request   PermissionRequest `json:"request"`
}

func (e *PermissionRequestEvent) EventType() EventType   { return EventPermissionRequest }
func (e *PermissionRequestEvent) EventSessionID() string { return e.SessionID }

// UserInputRequestEvent asks the client to collect input from the end user.
type UserInputRequestEvent struct {
	Type      EventType        `json:"type"`
	SessionID string           `json:"sessionId"`
	Request   UserInputRequest `json:"request"`
}

func (e *UserInputRequestEvent) EventType() EventType   { return EventUserInputRequest }
func (e *UserInputRequestEvent) EventSessionID() string { return e.SessionID }

// rawEvent is used to sniff the discriminator before full decoding.
type rawEvent struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

// UnmarshalEvent decodes a JSON event into its concrete variant.
func UnmarshalEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var evt Event
	switch raw.Type {
	case EventAssistantMessage:
		evt = &AssistantMessageEvent{}
	case EventAssistantMessageDelta:
		evt = &AssistantMessageDeltaEvent{}
	case EventUserMessage:
		evt = &UserMessageEvent{}
	case EventSessionIdle:
		evt = &SessionIdleEvent{}
	case EventSessionError:
		evt = &SessionErrorEvent{}
	case EventSessionResume:
		evt = &SessionResumeEvent{}
	case EventCompactionStart:
		evt = &SessionCompactionStartEvent{}
	case EventCompactionComplete:
		evt = &SessionCompactionCompleteEvent{}
	case EventToolCall:
		evt = &ToolCallEvent{}
	case EventPermissionRequest:
		evt = &PermissionRequestEvent{}
	case EventUserInputRequest:
		evt = &UserInputRequestEvent{}
	default:
		return nil, fmt.Errorf("unknown event type %q", raw.Type)
	}

	if err := json.Unmarshal(data, evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// MarshalEvent encodes an event with its discriminator populated.
func MarshalEvent(evt Event) ([]byte, error) {
	switch e := evt.(type) {
	case *AssistantMessageEvent:
		e.Type = EventAssistantMessage
	case *AssistantMessageDeltaEvent:
		e.Type = EventAssistantMessageDelta
	case *UserMessageEvent:
		e.Type = EventUserMessage
	case *SessionIdleEvent:
		e.Type = EventSessionIdle
	case *SessionErrorEvent:
		e.Type = EventSessionError
	case *SessionResumeEvent:
		e.Type = EventSessionResume
	case *SessionCompactionStartEvent:
		e.Type = EventCompactionStart
	case *SessionCompactionCompleteEvent:
		e.Type = EventCompactionComplete
	case *ToolCallEvent:
		e.Type = EventToolCall
	case *PermissionRequestEvent:
		e.Type = EventPermissionRequest
	case *UserInputRequestEvent:
		e.Type = EventUserInputRequest
	}
	return json.Marshal(evt)
}
