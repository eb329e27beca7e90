package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// isolate keeps a developer's real global config out of the merge.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}

func TestLoadProjectConfig(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeConfig(t, dir, "copilot.json", `{
		"backend": ["copilot-agent", "--stdio"],
		"model": "smart",
		"streaming": true
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"copilot-agent", "--stdio"}, cfg.Backend)
	assert.Equal(t, "smart", cfg.Model)
	require.NotNil(t, cfg.Streaming)
	assert.True(t, *cfg.Streaming)
}

func TestLoadJsoncComments(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeConfig(t, dir, "copilot.jsonc", `{
		// which model to use
		"model": "fast",
	}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "fast", cfg.Model)
}

func TestLoadEnvInterpolation(t *testing.T) {
	isolate(t)
	t.Setenv("TEST_COPILOT_MODEL", "interpolated")

	dir := t.TempDir()
	writeConfig(t, dir, "copilot.json", `{"model": "{env:TEST_COPILOT_MODEL}"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "interpolated", cfg.Model)
}

func TestLoadDotDirOverridesProjectRoot(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeConfig(t, dir, "copilot.json", `{"model": "root", "logLevel": "INFO"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".copilot"), 0o755))
	writeConfig(t, filepath.Join(dir, ".copilot"), "copilot.json", `{"model": "dotdir"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "dotdir", cfg.Model)
	// Fields absent from the later file keep the earlier value.
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestLoadInlineContent(t *testing.T) {
	isolate(t)
	t.Setenv("COPILOT_CONFIG_CONTENT", `{"model": "inline"}`)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "inline", cfg.Model)
}

func TestEnvOverridesWin(t *testing.T) {
	isolate(t)
	t.Setenv("COPILOT_BACKEND", "other-agent --flag")
	t.Setenv("COPILOT_MODEL", "from-env")

	dir := t.TempDir()
	writeConfig(t, dir, "copilot.json", `{"backend": ["file-agent"], "model": "from-file"}`)

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"other-agent", "--flag"}, cfg.Backend)
	assert.Equal(t, "from-env", cfg.Model)
}

func TestSessionConfig(t *testing.T) {
	isolate(t)
	streaming := true
	cfg := &Config{
		Model:            "m",
		Streaming:        &streaming,
		SkillDirectories: []string{"/skills"},
		DisabledSkills:   []string{"off"},
	}

	sc := cfg.SessionConfig()
	assert.Equal(t, "m", sc.Model)
	assert.True(t, sc.Streaming)
	assert.Equal(t, []string{"/skills"}, sc.SkillDirectories)
	assert.Equal(t, []string{"off"}, sc.DisabledSkills)
	require.NoError(t, sc.Validate())
}
