package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/go-copilot/pkg/types"
)

func namedTool(name string) types.Tool {
	return types.Tool{
		Name: name,
		Handler: func(ctx context.Context, inv types.ToolInvocation, input json.RawMessage) (any, error) {
			return nil, nil
		},
	}
}

func TestRegistryLookup(t *testing.T) {
	r, err := NewRegistry([]types.Tool{namedTool("read_file"), namedTool("write_file")})
	require.NoError(t, err)

	_, ok := r.Get("read_file")
	assert.True(t, ok)

	// Lookup is case-sensitive.
	_, ok = r.Get("Read_File")
	assert.False(t, ok)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"read_file", "write_file"}, r.Names())
}

func TestRegistryEmpty(t *testing.T) {
	r, err := NewRegistry(nil)
	require.NoError(t, err)
	assert.Empty(t, r.Names())
	assert.Empty(t, r.Descriptors())
}

func TestRegistryDuplicateName(t *testing.T) {
	_, err := NewRegistry([]types.Tool{namedTool("x"), namedTool("x")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tool name")
}

func TestRegistryEmptyName(t *testing.T) {
	_, err := NewRegistry([]types.Tool{namedTool("")})
	require.Error(t, err)
}

func TestRegistryDescriptors(t *testing.T) {
	schema := json.RawMessage(`{"type":"object"}`)
	r, err := NewRegistry([]types.Tool{{
		Name:        "search",
		Description: "searches things",
		Parameters:  schema,
		Handler: func(ctx context.Context, inv types.ToolInvocation, input json.RawMessage) (any, error) {
			return nil, nil
		},
	}})
	require.NoError(t, err)

	descs := r.Descriptors()
	require.Len(t, descs, 1)
	assert.Equal(t, "search", descs[0].Name)
	assert.Equal(t, "searches things", descs[0].Description)
	assert.JSONEq(t, string(schema), string(descs[0].Parameters))
}
