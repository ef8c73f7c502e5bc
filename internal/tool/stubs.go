package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Reference tools. They carry no real capability; they exist so the control
// plane's retry, timeout, and concurrency policies have something concrete
// to run against, in tests and in freshly provisioned environments.

// NewEchoTool returns a tool that echoes its text argument.
func NewEchoTool() *Func {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"text": {"type": "string", "description": "Text to echo back"}
		},
		"required": ["text"]
	}`)
	return New("echo", "Echo the given text back unchanged.", schema,
		func(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error) {
			var in struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("echo: invalid arguments: %w", err)
			}
			return &Result{Title: "echo", Output: in.Text}, nil
		})
}

// FailNTool fails a configurable number of times before succeeding. The
// failure counter is keyed by call id so concurrent sessions don't share
// attempts; an empty call id shares one counter.
type FailNTool struct {
	mu       sync.Mutex
	attempts map[string]int
}

// NewFailNTool creates the fail_n reference tool.
func NewFailNTool() *FailNTool {
	return &FailNTool{attempts: make(map[string]int)}
}

func (t *FailNTool) Name() string { return "fail_n" }

func (t *FailNTool) Description() string {
	return "Fail with a configurable error the first N times, then succeed. For exercising retry policies."
}

func (t *FailNTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"failures": {"type": "integer", "description": "How many attempts fail before one succeeds"},
			"error": {"type": "string", "description": "Error message for the failing attempts"}
		},
		"required": ["failures"]
	}`)
}

func (t *FailNTool) Execute(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error) {
	var in struct {
		Failures int    `json:"failures"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return nil, fmt.Errorf("fail_n: invalid arguments: %w", err)
	}
	if in.Error == "" {
		in.Error = "ETIMEDOUT"
	}

	key := ""
	if inv != nil {
		key = inv.CallID
	}

	t.mu.Lock()
	t.attempts[key]++
	n := t.attempts[key]
	if n > in.Failures {
		delete(t.attempts, key)
	}
	t.mu.Unlock()

	if n <= in.Failures {
		return nil, fmt.Errorf("%s (attempt %d)", in.Error, n)
	}
	return &Result{
		Title:    "fail_n",
		Output:   fmt.Sprintf("succeeded after %d attempts", n),
		Metadata: map[string]any{"attempts": n},
	}, nil
}

// NewSlowTool returns a tool that sleeps for the requested duration, honoring
// cancellation. For exercising timeout and concurrency policies.
func NewSlowTool() *Func {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"durationMs": {"type": "integer", "description": "How long to sleep, in milliseconds"}
		},
		"required": ["durationMs"]
	}`)
	return New("slow", "Sleep for the given number of milliseconds, then return.", schema,
		func(ctx context.Context, args json.RawMessage, inv *Invocation) (*Result, error) {
			var in struct {
				DurationMs int `json:"durationMs"`
			}
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, fmt.Errorf("slow: invalid arguments: %w", err)
			}

			select {
			case <-time.After(time.Duration(in.DurationMs) * time.Millisecond):
				return &Result{Title: "slow", Output: fmt.Sprintf("slept %dms", in.DurationMs)}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
}
