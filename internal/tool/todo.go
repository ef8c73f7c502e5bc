package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/pkg/types"
)

// The todo pair maintains the per-session task list the model uses to plan
// multi-step work. The list lives in storage under the session id and every
// write fans out a session.todo_updated event.

const todoKey = "todo"

// NewTodoWriteTool returns the tool that replaces a session's todo list.
func NewTodoWriteTool(store *storage.Storage) *Func {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"todos": {
				"type": "array",
				"description": "The full replacement todo list",
				"items": {
					"type": "object",
					"properties": {
						"content": {"type": "string", "description": "The task description"},
						"status": {"type": "string", "description": "pending, in_progress, or completed"},
						"priority": {"type": "string", "description": "high, medium, or low"},
						"id": {"type": "string", "description": "Stable task identifier"}
					},
					"required": ["content", "status", "id"]
				}
			}
		},
		"required": ["todos"]
	}`)
	return New("todowrite", "Replace the session's todo list.", schema,
		func(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error) {
			var in struct {
				Todos []types.TodoInfo `json:"todos"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("todowrite: invalid arguments: %w", err)
			}

			if err := store.Put(ctx, []string{todoKey, inv.SessionID}, in.Todos); err != nil {
				return nil, fmt.Errorf("todowrite: %w", err)
			}

			event.Publish(event.Event{
				Type:      event.TodoUpdated,
				SessionID: inv.SessionID,
				Data: map[string]any{
					"sessionID": inv.SessionID,
					"todos":     in.Todos,
				},
			})

			remaining := 0
			for _, t := range in.Todos {
				if t.Status != "completed" {
					remaining++
				}
			}
			return &Result{
				Title:    fmt.Sprintf("%d todos (%d open)", len(in.Todos), remaining),
				Output:   fmt.Sprintf("Updated todo list: %d items, %d still open.", len(in.Todos), remaining),
				Metadata: map[string]any{"count": len(in.Todos), "open": remaining},
			}, nil
		})
}

// NewTodoReadTool returns the tool that reads a session's todo list.
func NewTodoReadTool(store *storage.Storage) *Func {
	schema := json.RawMessage(`{"type": "object", "properties": {}}`)
	return New("todoread", "Read the session's current todo list.", schema,
		func(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error) {
			var todos []types.TodoInfo
			err := store.Get(ctx, []string{todoKey, inv.SessionID}, &todos)
			if err != nil && err != storage.ErrNotFound {
				return nil, fmt.Errorf("todoread: %w", err)
			}

			if len(todos) == 0 {
				return &Result{Title: "no todos", Output: "The todo list is empty."}, nil
			}

			out, err := json.MarshalIndent(todos, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("todoread: %w", err)
			}
			return &Result{
				Title:    fmt.Sprintf("%d todos", len(todos)),
				Output:   string(out),
				Metadata: map[string]any{"count": len(todos)},
			}, nil
		})
}
