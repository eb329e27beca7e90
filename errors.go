package copilot

import (
	"errors"
	"fmt"
)

var (
	// ErrClientNotRunning is returned by client operations that require an
	// established connection.
	ErrClientNotRunning = errors.New("client is not running")

	// ErrAuthenticationRequired is returned when the backend refuses an
	// operation for lack of credentials.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrSessionNotFound is returned when resuming a session id the backend
	// does not know.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionDisposed is returned by every operation on a disposed
	// session.
	ErrSessionDisposed = errors.New("session is disposed")

	// ErrSessionBusy is returned when a send is attempted while a turn is
	// already in flight. Sends are never queued.
	ErrSessionBusy = errors.New("session is busy")

	// ErrTurnAborted resolves waiters of a turn that was cancelled via
	// Abort.
	ErrTurnAborted = errors.New("turn aborted")
)

// TransportError wraps a failure of the underlying byte channel: process
// spawn, handshake, or a broken pipe mid-call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// SessionError is a backend-reported mid-turn failure. SendAndWait rethrows
// it; subscribers observe the corresponding session.error event.
type SessionError struct {
	SessionID string
	Code      string
	Message   string
}

func (e *SessionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("session %s: %s: %s", e.SessionID, e.Code, e.Message)
	}
	return fmt.Sprintf("session %s: %s", e.SessionID, e.Message)
}
