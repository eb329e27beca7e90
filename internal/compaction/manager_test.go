package compaction

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/telnet2/go-copilot/pkg/types"
)

func newTestManager(cfg *types.InfiniteSessionConfig, window int) *Manager {
	return NewManager(cfg, window, zerolog.Nop())
}

func TestManagerDisabled(t *testing.T) {
	m := newTestManager(nil, 1000)
	assert.False(t, m.Enabled())
	assert.Equal(t, ActionNone, m.Observe(&types.TokenUsage{Input: 900, Output: 200}))
}

func TestManagerDisabledExplicitly(t *testing.T) {
	m := newTestManager(&types.InfiniteSessionConfig{Enabled: false}, 1000)
	assert.Equal(t, ActionNone, m.Observe(&types.TokenUsage{Input: 5000}))
}

func TestManagerBackgroundThreshold(t *testing.T) {
	m := newTestManager(&types.InfiniteSessionConfig{Enabled: true}, 1000)

	assert.Equal(t, ActionNone, m.Observe(&types.TokenUsage{Input: 500, Output: 100}))
	assert.Equal(t, ActionBackground, m.Observe(&types.TokenUsage{Input: 200}))

	// Already compacting: staying between thresholds triggers nothing new.
	assert.Equal(t, ActionNone, m.Observe(&types.TokenUsage{Input: 50}))
}

func TestManagerBlockingThreshold(t *testing.T) {
	m := newTestManager(&types.InfiniteSessionConfig{Enabled: true}, 1000)

	assert.Equal(t, ActionBackground, m.Observe(&types.TokenUsage{Input: 850}))
	// Blocking overrides an in-progress background run.
	assert.Equal(t, ActionBlocking, m.Observe(&types.TokenUsage{Input: 100}))
}

func TestManagerCustomThresholds(t *testing.T) {
	cfg := &types.InfiniteSessionConfig{
		Enabled:                       true,
		BackgroundCompactionThreshold: 0.5,
		BufferExhaustionThreshold:     0.6,
	}
	m := newTestManager(cfg, 100)

	assert.Equal(t, ActionBackground, m.Observe(&types.TokenUsage{Input: 50}))
	assert.Equal(t, ActionBlocking, m.Observe(&types.TokenUsage{Input: 10}))
}

func TestManagerCompleteSubtractsTokens(t *testing.T) {
	m := newTestManager(&types.InfiniteSessionConfig{Enabled: true}, 1000)

	m.Observe(&types.TokenUsage{Input: 850})
	m.Complete(types.CompactionResult{Success: true, TokensRemoved: 600})
	assert.Equal(t, 250, m.Used())

	// Back under threshold, next turn is quiet again.
	assert.Equal(t, ActionNone, m.Observe(&types.TokenUsage{Input: 100}))
}

func TestManagerFailedCompactionRetriggers(t *testing.T) {
	m := newTestManager(&types.InfiniteSessionConfig{Enabled: true}, 1000)

	assert.Equal(t, ActionBackground, m.Observe(&types.TokenUsage{Input: 850}))
	m.Complete(types.CompactionResult{Success: false})
	assert.Equal(t, ActionBackground, m.Observe(&types.TokenUsage{Input: 1}))
}

func TestManagerNilUsage(t *testing.T) {
	m := newTestManager(&types.InfiniteSessionConfig{Enabled: true}, 1000)
	assert.Equal(t, ActionNone, m.Observe(nil))
	assert.Equal(t, 0, m.Used())
}
