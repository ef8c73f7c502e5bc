// Package tool defines the tool surface the agent loop and the control
// plane dispatch to: the Tool interface, the registry, and a small set of
// reference tools. Real capability tools arrive from MCP servers; the
// built-ins here exist to exercise the control plane and the event bus.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is a named callable with a JSON-schema-described parameter set.
type Tool interface {
	// Name returns the tool identifier, unique within a registry.
	Name() string

	// Description returns the description shown to the model.
	Description() string

	// Schema returns the JSON Schema for the tool's arguments.
	Schema() json.RawMessage

	// Execute runs the tool. args is the raw JSON argument object; inv
	// carries the session/message identity of the triggering call.
	Execute(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error)
}

// Invocation identifies the agent-loop call a tool execution belongs to.
type Invocation struct {
	SessionID string
	MessageID string
	CallID    string
	Agent     string

	// OnProgress, when set, streams intermediate title/metadata updates
	// back to the loop while the tool runs.
	OnProgress func(title string, meta map[string]any)

	Extra map[string]any
}

// Progress reports an intermediate update for the running call.
func (inv *Invocation) Progress(title string, meta map[string]any) {
	if inv != nil && inv.OnProgress != nil {
		inv.OnProgress(title, meta)
	}
}

// Result is the outcome of a tool execution.
type Result struct {
	Title    string         `json:"title"`
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunFunc is the execution body of a function-backed tool.
type RunFunc func(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error)

// Func is a Tool built from a function.
type Func struct {
	name        string
	description string
	schema      json.RawMessage
	run         RunFunc
}

// New creates a function-backed tool.
func New(name, description string, schema json.RawMessage, run RunFunc) *Func {
	return &Func{name: name, description: description, schema: schema, run: run}
}

func (f *Func) Name() string            { return f.name }
func (f *Func) Description() string     { return f.description }
func (f *Func) Schema() json.RawMessage { return f.schema }

func (f *Func) Execute(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error) {
	return f.run(ctx, args, inv)
}
