package compaction

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/telnet2/go-copilot/pkg/types"
)

// Action is the compaction decision after observing a token update.
type Action int

const (
	// ActionNone means usage is below every threshold.
	ActionNone Action = iota
	// ActionBackground means usage crossed the background threshold;
	// compaction should run without pausing the conversation.
	ActionBackground
	// ActionBlocking means the context window is nearly exhausted and the
	// session must pause until compaction completes.
	ActionBlocking
)

func (a Action) String() string {
	switch a {
	case ActionBackground:
		return "background"
	case ActionBlocking:
		return "blocking"
	default:
		return "none"
	}
}

const (
	defaultBackgroundThreshold = 0.80
	defaultBlockingThreshold   = 0.95
)

// Manager tracks cumulative token usage for one session against its model
// context window and decides when compaction should run. It is safe for
// concurrent use.
type Manager struct {
	mu            sync.Mutex
	enabled       bool
	contextWindow int
	background    float64
	blocking      float64
	used          int
	inProgress    bool
	logger        zerolog.Logger
}

// NewManager builds a manager from the session's infinite-session settings.
// A nil config or a zero context window disables compaction entirely.
func NewManager(cfg *types.InfiniteSessionConfig, contextWindow int, logger zerolog.Logger) *Manager {
	m := &Manager{
		contextWindow: contextWindow,
		background:    defaultBackgroundThreshold,
		blocking:      defaultBlockingThreshold,
		logger:        logger,
	}
	if cfg == nil || !cfg.Enabled || contextWindow <= 0 {
		return m
	}
	m.enabled = true
	if cfg.BackgroundCompactionThreshold > 0 {
		m.background = cfg.BackgroundCompactionThreshold
	}
	if cfg.BufferExhaustionThreshold > 0 {
		m.blocking = cfg.BufferExhaustionThreshold
	}
	return m
}

// Enabled reports whether this session compacts at all.
func (m *Manager) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// Observe records token usage from a completed turn and returns the action
// the session should take. While a compaction is already running only the
// blocking threshold is re-evaluated, so a second background run is never
// started on top of the first.
func (m *Manager) Observe(usage *types.TokenUsage) Action {
	if usage == nil {
		return ActionNone
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used += usage.Input + usage.Output
	if !m.enabled {
		return ActionNone
	}

	ratio := float64(m.used) / float64(m.contextWindow)
	switch {
	case ratio >= m.blocking:
		m.logger.Warn().
			Int("used", m.used).
			Int("contextWindow", m.contextWindow).
			Float64("ratio", ratio).
			Msg("context buffer nearly exhausted, blocking compaction required")
		m.inProgress = true
		return ActionBlocking
	case ratio >= m.background && !m.inProgress:
		m.logger.Debug().
			Int("used", m.used).
			Float64("ratio", ratio).
			Msg("background compaction threshold crossed")
		m.inProgress = true
		return ActionBackground
	default:
		return ActionNone
	}
}

// Complete records the outcome of a compaction run. On success the removed
// tokens are subtracted from the running total; a failed run leaves the
// total untouched so the next Observe re-triggers.
func (m *Manager) Complete(result types.CompactionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inProgress = false
	if !result.Success {
		return
	}
	m.used -= result.TokensRemoved
	if m.used < 0 {
		m.used = 0
	}
}

// Used returns the current cumulative token count.
func (m *Manager) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}
