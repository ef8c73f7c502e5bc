package tool

import (
	"context"
	"encoding/json"
	"fmt"
)

// TaskExecutor re-enters the agent loop on a child session. The concrete
// implementation lives outside this package; tools only see this narrow
// interface so the orchestrator cycle stays broken.
type TaskExecutor interface {
	ExecuteSubtask(ctx context.Context, sessionID, agentName, prompt string, opts TaskOptions) (*TaskResult, error)
}

// TaskOptions carries optional knobs for a subtask run.
type TaskOptions struct {
	Model       string
	Description string
}

// TaskResult is the outcome of a subtask run.
type TaskResult struct {
	Output    string         `json:"output"`
	SessionID string         `json:"sessionID"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TaskTool spawns a sub-agent on a child session and returns its final
// output. Validation of the agent name happens in the executor, which owns
// the agent registry.
type TaskTool struct {
	executor TaskExecutor
}

// NewTaskTool creates the task tool. The executor may be set later via
// SetExecutor once the loop host exists.
func NewTaskTool() *TaskTool {
	return &TaskTool{}
}

// SetExecutor wires the loop re-entry implementation.
func (t *TaskTool) SetExecutor(executor TaskExecutor) {
	t.executor = executor
}

func (t *TaskTool) Name() string { return "task" }

func (t *TaskTool) Description() string {
	return "Run a sub-agent on a child session to handle a self-contained subtask, and return its result."
}

func (t *TaskTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"description": {"type": "string", "description": "A short description of the subtask"},
			"prompt": {"type": "string", "description": "The full instruction for the sub-agent"},
			"agent": {"type": "string", "description": "Which sub-agent to run"}
		},
		"required": ["description", "prompt", "agent"]
	}`)
}

func (t *TaskTool) Execute(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error) {
	var in struct {
		Description string `json:"description"`
		Prompt      string `json:"prompt"`
		Agent       string `json:"agent"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("task: invalid arguments: %w", err)
	}
	if in.Prompt == "" || in.Agent == "" {
		return nil, fmt.Errorf("task: prompt and agent are required")
	}
	if t.executor == nil {
		return nil, fmt.Errorf("task: no executor configured")
	}

	inv.Progress(in.Description, map[string]any{"agent": in.Agent, "status": "running"})

	result, err := t.executor.ExecuteSubtask(ctx, inv.SessionID, in.Agent, in.Prompt, TaskOptions{
		Description: in.Description,
	})
	if err != nil {
		return nil, fmt.Errorf("task: %w", err)
	}

	meta := map[string]any{"agent": in.Agent, "childSessionID": result.SessionID}
	for k, v := range result.Metadata {
		meta[k] = v
	}
	if result.Error != "" {
		meta["error"] = result.Error
	}

	return &Result{
		Title:    in.Description,
		Output:   result.Output,
		Metadata: meta,
	}, nil
}
