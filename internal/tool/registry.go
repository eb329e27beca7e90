// Package tool resolves requested tool names to caller-registered
// callables and executes them with protocol-safe failure containment.
package tool

import (
	"fmt"
	"sync"

	"github.com/telnet2/go-copilot/pkg/types"
)

// Registry holds the tools registered for one session. Lookup is
// case-sensitive.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]types.Tool
}

// NewRegistry creates a registry from the session's tool list.
func NewRegistry(tools []types.Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]types.Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		r.tools[t.Name] = t
	}
	return r, nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (types.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Descriptors returns the handler-free tool descriptions sent to the
// backend on session create/resume.
func (r *Registry) Descriptors() []types.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]types.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		descs = append(descs, t.Descriptor())
	}
	return descs
}
