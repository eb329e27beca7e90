package skills

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadsOnChange(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "code-review", codeReviewSkill)

	loader := NewLoader([]string{root}, nil, zerolog.Nop())

	var mu sync.Mutex
	var last []Skill
	reloads := 0
	w, err := NewWatcher(loader, func(skills []Skill) {
		mu.Lock()
		last = skills
		reloads++
		mu.Unlock()
	}, zerolog.Nop())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	writeSkill(t, root, "commit-style", commitSkill)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return reloads >= 1 && len(last) == 2
	}, 5*time.Second, 20*time.Millisecond, "watcher should reload after a new skill appears")
}

func TestWatcherKeepsLastGoodSetOnParseError(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "code-review", codeReviewSkill)

	loader := NewLoader([]string{root}, nil, zerolog.Nop())

	var mu sync.Mutex
	reloads := 0
	w, err := NewWatcher(loader, func([]Skill) {
		mu.Lock()
		reloads++
		mu.Unlock()
	}, zerolog.Nop())
	require.NoError(t, err)
	w.Start()
	defer w.Stop()

	// A broken manifest must not reach the callback.
	bad := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(bad, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bad, FileName), []byte("no frontmatter"), 0o644))

	time.Sleep(600 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, reloads)
}

func TestWatcherStopIdempotentStart(t *testing.T) {
	root := t.TempDir()
	loader := NewLoader([]string{root}, nil, zerolog.Nop())

	w, err := NewWatcher(loader, func([]Skill) {}, zerolog.Nop())
	require.NoError(t, err)
	w.Start()
	w.Start()
	require.NoError(t, w.Stop())
}
