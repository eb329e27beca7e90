package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathsHonorXDGOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", filepath.Join("/alt", "cfg"))
	t.Setenv("XDG_STATE_HOME", filepath.Join("/alt", "state"))

	p := GetPaths()
	assert.Equal(t, filepath.Join("/alt", "cfg", "copilot"), p.Config)
	assert.Equal(t, filepath.Join("/alt", "state", "copilot"), p.State)
	assert.Equal(t, filepath.Join("/alt", "state", "copilot", "last-session"), p.SessionStatePath())
}

func TestPathsHomeFallback(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", filepath.Join("/home", "u"))

	p := GetPaths()
	assert.Equal(t, filepath.Join("/home", "u", ".config", "copilot"), p.Config)
	assert.Equal(t, filepath.Join("/home", "u", ".local", "state", "copilot"), p.State)
}
