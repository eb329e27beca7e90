// Package config loads the CLI configuration: which backend process to
// spawn and the default session settings. Files are JSONC with {env:VAR}
// interpolation.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/telnet2/go-copilot/pkg/types"
)

// Config is the merged CLI configuration.
type Config struct {
	// Backend is the argv of the agent backend process.
	Backend []string `json:"backend,omitempty"`

	Model     string `json:"model,omitempty"`
	Streaming *bool  `json:"streaming,omitempty"`
	LogLevel  string `json:"logLevel,omitempty"`

	SkillDirectories []string `json:"skillDirectories,omitempty"`
	DisabledSkills   []string `json:"disabledSkills,omitempty"`

	McpServers   map[string]types.McpServerConfig `json:"mcpServers,omitempty"`
	CustomAgents []types.CustomAgentConfig        `json:"customAgents,omitempty"`
}

// Load merges configuration from, in priority order:
//  1. Global config (~/.config/copilot/copilot.json[c])
//  2. Project config (.copilot/copilot.json[c] and ./copilot.json[c])
//  3. COPILOT_CONFIG file
//  4. COPILOT_CONFIG_CONTENT inline JSON
//  5. Environment variables
func Load(directory string) (*Config, error) {
	config := &Config{}
	loaded := make(map[string]bool)

	loadOnce := func(path string) {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			return
		}
		if loadFile(path, config) == nil {
			loaded[absPath] = true
		}
	}

	globalDir := GetPaths().Config
	loadOnce(filepath.Join(globalDir, "copilot.json"))
	loadOnce(filepath.Join(globalDir, "copilot.jsonc"))

	if directory != "" {
		loadOnce(filepath.Join(directory, "copilot.json"))
		loadOnce(filepath.Join(directory, "copilot.jsonc"))
		loadOnce(filepath.Join(directory, ".copilot", "copilot.json"))
		loadOnce(filepath.Join(directory, ".copilot", "copilot.jsonc"))
	}

	if path := os.Getenv("COPILOT_CONFIG"); path != "" {
		loadOnce(path)
	}

	if content := os.Getenv("COPILOT_CONFIG_CONTENT"); content != "" {
		var inline Config
		if err := json.Unmarshal(interpolate([]byte(content)), &inline); err == nil {
			merge(config, &inline)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	merge(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// merge overlays src onto dst; later sources win field by field.
func merge(dst, src *Config) {
	if len(src.Backend) > 0 {
		dst.Backend = src.Backend
	}
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.Streaming != nil {
		dst.Streaming = src.Streaming
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if len(src.SkillDirectories) > 0 {
		dst.SkillDirectories = src.SkillDirectories
	}
	if len(src.DisabledSkills) > 0 {
		dst.DisabledSkills = src.DisabledSkills
	}
	if len(src.McpServers) > 0 {
		if dst.McpServers == nil {
			dst.McpServers = make(map[string]types.McpServerConfig, len(src.McpServers))
		}
		for name, server := range src.McpServers {
			dst.McpServers[name] = server
		}
	}
	if len(src.CustomAgents) > 0 {
		dst.CustomAgents = src.CustomAgents
	}
}

func applyEnvOverrides(config *Config) {
	if backend := os.Getenv("COPILOT_BACKEND"); backend != "" {
		config.Backend = strings.Fields(backend)
	}
	if model := os.Getenv("COPILOT_MODEL"); model != "" {
		config.Model = model
	}
	if level := os.Getenv("COPILOT_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
}

// SessionConfig translates the file configuration into per-session
// settings.
func (c *Config) SessionConfig() *types.SessionConfig {
	cfg := &types.SessionConfig{
		Model:            c.Model,
		SkillDirectories: c.SkillDirectories,
		DisabledSkills:   c.DisabledSkills,
		McpServers:       c.McpServers,
		CustomAgents:     c.CustomAgents,
	}
	if c.Streaming != nil {
		cfg.Streaming = *c.Streaming
	}
	return cfg
}
