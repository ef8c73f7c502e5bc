package mcp

import (
	"context"
	"encoding/json"

	"github.com/arborio/agentcore/internal/tool"
)

// remoteTool adapts one MCP tool definition to the registry's tool.Tool
// interface, dispatching execution back through the manager.
type remoteTool struct {
	def     ToolDef
	manager *Manager
}

func (t *remoteTool) Name() string            { return t.def.Name }
func (t *remoteTool) Description() string     { return t.def.Description }
func (t *remoteTool) Schema() json.RawMessage { return t.def.InputSchema }

func (t *remoteTool) Execute(ctx context.Context, args json.RawMessage, inv *tool.Invocation) (*tool.Result, error) {
	output, err := t.manager.CallTool(ctx, t.def.Name, args)
	if err != nil {
		return nil, err
	}
	return &tool.Result{
		Title:    t.def.Name,
		Output:   output,
		Metadata: map[string]any{"source": "mcp"},
	}, nil
}

// RegisterTools registers every connected server's tools into registry
// under their "<server>_<tool>" names.
func RegisterTools(m *Manager, registry *tool.Registry) {
	if m == nil || registry == nil {
		return
	}
	for _, def := range m.Tools() {
		registry.Register(&remoteTool{def: def, manager: m})
	}
}

// DeregisterServer drops every tool of the named server from registry.
func DeregisterServer(name string, registry *tool.Registry) int {
	if registry == nil {
		return 0
	}
	return registry.DeregisterPrefix(ToolPrefix(name))
}
