package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/tool"
	"github.com/arborio/agentcore/pkg/types"
)

// executeToolCalls runs every pending tool call accumulated by the stream.
func (p *Processor) executeToolCalls(
	ctx context.Context,
	state *sessionState,
	agent *Agent,
	callback ProcessCallback,
) error {
	for _, part := range state.parts {
		toolPart, ok := part.(*types.ToolPart)
		if !ok || toolPart.State.Status != "running" {
			continue
		}
		// Failures stay recorded on the part; the loop continues so the
		// model sees the error and can adjust.
		p.executeSingleTool(ctx, state, agent, toolPart, callback)
	}
	return nil
}

// executeSingleTool dispatches one call through the control plane
// (doom-loop guard -> recovery -> retry -> concurrency slot -> timeout ->
// execute).
func (p *Processor) executeSingleTool(
	ctx context.Context,
	state *sessionState,
	agent *Agent,
	toolPart *types.ToolPart,
	callback ProcessCallback,
) error {
	if _, ok := p.toolRegistry.Get(toolPart.Tool); !ok {
		return p.failTool(ctx, state, toolPart, callback,
			fmt.Sprintf("tool not found: %s", toolPart.Tool))
	}

	argsJSON, err := json.Marshal(toolPart.State.Input)
	if err != nil {
		return p.failTool(ctx, state, toolPart, callback,
			fmt.Sprintf("invalid tool arguments: %v", err))
	}

	inv := &tool.Invocation{
		SessionID: state.message.SessionID,
		MessageID: state.message.ID,
		CallID:    toolPart.CallID,
		Agent:     agent.Name,
		OnProgress: func(title string, meta map[string]any) {
			toolPart.State.Title = title
			if toolPart.State.Metadata == nil {
				toolPart.State.Metadata = make(map[string]any)
			}
			for k, v := range meta {
				toolPart.State.Metadata[k] = v
			}
			event.PublishSync(event.Event{
				Type:      event.MessagePartUpdated,
				SessionID: state.message.SessionID,
				Data:      event.MessagePartUpdatedData{Part: toolPart},
			})
			callback(state.message, state.parts)
		},
	}

	canonicalArgs := canonicalizeToolArgs(toolPart.State.Input)
	raw, err := p.toolPlane.Execute(ctx, toolPart.Tool, canonicalArgs, func(dispatchCtx context.Context, toolName string) (any, error) {
		t, ok := p.toolRegistry.Get(toolName)
		if !ok {
			return nil, fmt.Errorf("tool not found: %s", toolName)
		}
		return t.Execute(dispatchCtx, argsJSON, inv)
	})
	if err != nil {
		return p.failTool(ctx, state, toolPart, callback, err.Error())
	}
	result, ok := raw.(*tool.Result)
	if !ok || result == nil {
		return p.failTool(ctx, state, toolPart, callback,
			fmt.Sprintf("tool %s returned an unexpected result type", toolPart.Tool))
	}

	now := time.Now().UnixMilli()
	toolPart.State.Status = "completed"
	toolPart.State.Output = result.Output
	toolPart.State.Title = result.Title
	toolPart.State.Time.End = &now
	if result.Metadata != nil {
		if toolPart.State.Metadata == nil {
			toolPart.State.Metadata = make(map[string]any)
		}
		for k, v := range result.Metadata {
			toolPart.State.Metadata[k] = v
		}
	}

	p.recordDiff(state, toolPart)
	p.savePart(ctx, state.message.ID, toolPart)

	event.PublishSync(event.Event{
		Type:      event.MessagePartUpdated,
		SessionID: state.message.SessionID,
		Data:      event.MessagePartUpdatedData{Part: toolPart},
	})
	p.publishStream(event.StreamToolResult, state, map[string]any{
		"toolName":   toolPart.Tool,
		"toolCallId": toolPart.CallID,
		"result":     result.Output,
		"success":    true,
	})
	callback(state.message, state.parts)
	return nil
}

// canonicalizeToolArgs produces a stable JSON encoding of a tool call's
// input, used by the control plane's doom-loop guard and metrics history to
// compare calls for identical arguments regardless of map key ordering.
func canonicalizeToolArgs(input map[string]any) string {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make(map[string]any, len(input))
	for _, k := range keys {
		ordered[k] = input[k]
	}

	b, err := json.Marshal(ordered)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(b)
}

// failTool marks a call failed, persists the part, and fans the update out.
func (p *Processor) failTool(
	ctx context.Context,
	state *sessionState,
	toolPart *types.ToolPart,
	callback ProcessCallback,
	errMsg string,
) error {
	now := time.Now().UnixMilli()
	toolPart.State.Status = "error"
	toolPart.State.Error = errMsg
	toolPart.State.Time.End = &now

	p.savePart(ctx, state.message.ID, toolPart)

	event.PublishSync(event.Event{
		Type:      event.MessagePartUpdated,
		SessionID: state.message.SessionID,
		Data:      event.MessagePartUpdatedData{Part: toolPart},
	})
	p.publishStream(event.StreamToolResult, state, map[string]any{
		"toolName":   toolPart.Tool,
		"toolCallId": toolPart.CallID,
		"result":     errMsg,
		"success":    false,
	})
	callback(state.message, state.parts)
	return errors.New(errMsg)
}

// recordDiff folds a completed tool call's before/after metadata into the
// session's accumulated diff summary and publishes session.diff. Tools
// advertise an edit by setting "file", "before", and "after" metadata.
func (p *Processor) recordDiff(state *sessionState, toolPart *types.ToolPart) {
	if toolPart.State.Metadata == nil {
		return
	}
	path, ok := toolPart.State.Metadata["file"].(string)
	if !ok || path == "" {
		return
	}
	before, okBefore := toolPart.State.Metadata["before"].(string)
	after, okAfter := toolPart.State.Metadata["after"].(string)
	if !okBefore || !okAfter {
		return
	}

	diffText, additions, deletions := computeDiff(before, after, path)

	session, err := p.loadSession(state.message.SessionID)
	if err != nil {
		return
	}

	var kept []types.FileDiff
	for _, d := range session.Summary.Diffs {
		if d.Path != path {
			kept = append(kept, d)
		}
	}
	session.Summary.Diffs = append(kept, types.FileDiff{
		Path:      path,
		Additions: additions,
		Deletions: deletions,
		Before:    before,
		After:     after,
	})

	adds, dels := 0, 0
	for _, d := range session.Summary.Diffs {
		adds += d.Additions
		dels += d.Deletions
	}
	session.Summary.Additions = adds
	session.Summary.Deletions = dels
	session.Summary.Files = len(session.Summary.Diffs)
	session.Time.Updated = time.Now().UnixMilli()

	if err := p.saveSession(session); err != nil {
		return
	}

	event.PublishSync(event.Event{
		Type:      event.SessionDiff,
		SessionID: session.ID,
		Data:      event.SessionDiffData{SessionID: session.ID, Diff: session.Summary.Diffs},
	})

	toolPart.State.Metadata["diff"] = diffText
}

// computeDiff returns a unified diff of before vs after plus line-level
// addition/deletion counts, via diffmatchpatch's line-mode diff.
func computeDiff(before, after, path string) (string, int, int) {
	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lineArray)

	additions, deletions := 0, 0
	changed := false
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
			changed = true
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
			changed = true
		}
	}
	if !changed {
		return "", 0, 0
	}

	return renderUnifiedDiff(diffs, path), additions, deletions
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

// renderUnifiedDiff formats line-mode diffs as one unified-diff hunk
// spanning the whole file.
func renderUnifiedDiff(diffs []diffmatchpatch.Diff, path string) string {
	oldCount, newCount := 0, 0
	var body strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			body.WriteString(prefix)
			body.WriteString(line)
			body.WriteString("\n")
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldCount++
				newCount++
			case diffmatchpatch.DiffDelete:
				oldCount++
			case diffmatchpatch.DiffInsert:
				newCount++
			}
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", path, path)
	fmt.Fprintf(&out, "@@ -1,%d +1,%d @@\n", oldCount, newCount)
	out.WriteString(body.String())
	return out.String()
}

func splitLines(text string) []string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func (p *Processor) loadSession(sessionID string) (*types.Session, error) {
	var session types.Session
	if err := p.storage.Get(context.Background(), []string{"session", sessionID}, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (p *Processor) saveSession(session *types.Session) error {
	return p.storage.Put(context.Background(), []string{"session", session.ID}, session)
}
