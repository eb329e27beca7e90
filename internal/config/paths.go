package config

import (
	"os"
	"path/filepath"
)

// Paths holds the on-disk locations the runtime actually writes to:
// Config for copilot.json and State for the last-session marker.
type Paths struct {
	Config string
	State  string
}

// GetPaths resolves the two directories, honoring the XDG overrides and
// falling back to the conventional locations under HOME.
func GetPaths() *Paths {
	return &Paths{
		Config: filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "copilot"),
		State:  filepath.Join(xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state")), "copilot"),
	}
}

func xdgDir(envKey, fallback string) string {
	if dir := os.Getenv(envKey); dir != "" {
		return dir
	}
	return filepath.Join(os.Getenv("HOME"), fallback)
}

// EnsurePaths creates both directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Config, p.State} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// SessionStatePath is where the chat command records the last session id
// for later resume.
func (p *Paths) SessionStatePath() string {
	return filepath.Join(p.State, "last-session")
}
