// Package skills discovers SKILL.md skill definitions on disk and keeps
// them fresh while the host process runs.
package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// FileName is the manifest file looked for in each skill directory.
const FileName = "SKILL.md"

// Metadata mirrors the YAML frontmatter at the top of a SKILL.md file.
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	License     string `yaml:"license,omitempty"`
}

// Skill is one loaded skill: its frontmatter plus the markdown body that
// gets injected into the session prompt.
type Skill struct {
	Metadata Metadata
	Body     string
	Path     string
}

// Loader scans configured directories for skills.
type Loader struct {
	dirs     []string
	disabled map[string]struct{}
	logger   zerolog.Logger
}

// NewLoader builds a loader over the given directories. Names listed in
// disabled are dropped after parsing.
func NewLoader(dirs []string, disabled []string, logger zerolog.Logger) *Loader {
	d := make(map[string]struct{}, len(disabled))
	for _, name := range disabled {
		d[name] = struct{}{}
	}
	return &Loader{dirs: dirs, disabled: d, logger: logger}
}

// Load scans every directory and returns the enabled skills sorted by
// name. Two skills sharing a name is an error: silently shadowing one
// with the other would make prompt content depend on scan order.
func (l *Loader) Load() ([]Skill, error) {
	byName := make(map[string]Skill)

	for _, dir := range l.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Debug().Str("dir", dir).Msg("skill directory does not exist, skipping")
				continue
			}
			return nil, fmt.Errorf("skills: read dir %s: %w", dir, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name(), FileName)
			skill, err := loadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, err
			}
			if _, dup := byName[skill.Metadata.Name]; dup {
				return nil, fmt.Errorf("skills: duplicate skill name %q at %s", skill.Metadata.Name, path)
			}
			byName[skill.Metadata.Name] = skill
		}
	}

	skills := make([]Skill, 0, len(byName))
	for name, skill := range byName {
		if _, off := l.disabled[name]; off {
			l.logger.Debug().Str("skill", name).Msg("skill disabled by config")
			continue
		}
		skills = append(skills, skill)
	}
	sort.Slice(skills, func(i, j int) bool {
		return skills[i].Metadata.Name < skills[j].Metadata.Name
	})
	l.logger.Debug().Int("count", len(skills)).Msg("skills loaded")
	return skills, nil
}

func loadFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	meta, body, err := parseFrontmatter(string(data))
	if err != nil {
		return Skill{}, fmt.Errorf("skills: parse %s: %w", path, err)
	}
	if meta.Name == "" {
		return Skill{}, fmt.Errorf("skills: %s: frontmatter missing name", path)
	}
	return Skill{Metadata: meta, Body: body, Path: path}, nil
}

func parseFrontmatter(content string) (Metadata, string, error) {
	trimmed := strings.TrimPrefix(content, "\uFEFF")
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return Metadata{}, "", errors.New("missing YAML frontmatter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return Metadata{}, "", errors.New("missing closing frontmatter separator")
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &meta); err != nil {
		return Metadata{}, "", fmt.Errorf("decode YAML: %w", err)
	}
	body := strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
	return meta, body, nil
}
