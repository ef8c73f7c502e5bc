package mcp

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborio/agentcore/internal/tool"
)

// TestTextkitEndToEnd spawns the bundled textkit MCP server over stdio and
// exercises the full lifecycle: connect, list, register, call, disconnect.
// Build cmd/textkit-mcp and point MCP_TEXTKIT_BIN at it to run.
func TestTextkitEndToEnd(t *testing.T) {
	bin := os.Getenv("MCP_TEXTKIT_BIN")
	if bin == "" {
		t.Skip("MCP_TEXTKIT_BIN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m := NewManager()
	require.NoError(t, m.Connect(ctx, "textkit", &Config{
		Enabled: true,
		Type:    TransportLocal,
		Command: []string{bin},
	}))
	defer m.Close()

	assert.Equal(t, 1, m.ConnectedCount())

	tools := m.Tools()
	names := make([]string, len(tools))
	for i, def := range tools {
		names[i] = def.Name
	}
	assert.Contains(t, names, "textkit_upper")
	assert.Contains(t, names, "textkit_reverse")
	assert.Contains(t, names, "textkit_word_count")

	out, err := m.CallTool(ctx, "textkit_upper", json.RawMessage(`{"text":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", out)

	out, err = m.CallTool(ctx, "textkit_word_count", json.RawMessage(`{"text":"one two three"}`))
	require.NoError(t, err)
	assert.Equal(t, "3", out)

	// registry bridge: tools register under their prefixed names and drop
	// on disconnect
	reg := tool.NewRegistry()
	RegisterTools(m, reg)
	wrapped, ok := reg.Get("textkit_reverse")
	require.True(t, ok)

	result, err := wrapped.Execute(ctx, json.RawMessage(`{"text":"abc"}`), &tool.Invocation{})
	require.NoError(t, err)
	assert.Equal(t, "cba", result.Output)

	m.Disconnect("textkit")
	DeregisterServer("textkit", reg)
	_, ok = reg.Get("textkit_reverse")
	assert.False(t, ok)
}
