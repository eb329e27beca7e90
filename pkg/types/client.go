package types

// Model describes one backend model.
type Model struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Capabilities string `json:"capabilities,omitempty"`

	// ContextWindow is the model's context size in tokens. Zero means the
	// backend did not report one.
	ContextWindow int `json:"contextWindow,omitempty"`
}

// PingResult is the echoed payload of a liveness round-trip.
type PingResult struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Status reports backend version information from the handshake.
type Status struct {
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
}

// AuthStatus reports the backend's authentication state.
type AuthStatus struct {
	IsAuthenticated bool   `json:"isAuthenticated"`
	AuthType        string `json:"authType,omitempty"`
	StatusMessage   string `json:"statusMessage,omitempty"`
}
