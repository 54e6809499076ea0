package tool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/controlplane/pkg/tool/builtin"
)

func TestRegistryExecuteEcho(t *testing.T) {
	r := NewRegistry()

	result, err := r.Execute("echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, builtin.StatusOK, result.Status)
	assert.Equal(t, "hello", result.Output["text"])
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	_, err := r.Execute("launch_missiles", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestRegistryFilter(t *testing.T) {
	r := NewRegistry()

	filtered := r.Filter([]string{"echo"})
	_, ok := filtered.Get("echo")
	assert.True(t, ok)
	_, ok = filtered.Get("clock")
	assert.False(t, ok)

	empty := r.Filter(nil)
	assert.Empty(t, empty.List(), "empty allow list grants nothing")
}

func TestRegistryDefinitions(t *testing.T) {
	r := NewEmptyRegistry()
	r.Register(&builtin.EchoTool{})

	defs := r.Definitions()
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0]["type"])

	fn, ok := defs[0]["function"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "echo", fn["name"])
}

func TestClockToolDeterministic(t *testing.T) {
	frozen := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	clock := &builtin.ClockTool{Now: func() time.Time { return frozen }}

	result, err := clock.Execute(nil)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14T09:26:53Z", result.Output["now"])
}

func TestContextLookupTool(t *testing.T) {
	lookup := &builtin.ContextLookupTool{
		Source: func() map[string]any { return map[string]any{"ticket": "CP-100"} },
	}

	result, err := lookup.Execute(map[string]any{"key": "ticket"})
	require.NoError(t, err)
	assert.Equal(t, true, result.Output["found"])
	assert.Equal(t, "CP-100", result.Output["value"])

	result, err = lookup.Execute(map[string]any{"key": "absent"})
	require.NoError(t, err)
	assert.Equal(t, false, result.Output["found"])

	_, err = lookup.Execute(map[string]any{})
	assert.Error(t, err)
}
