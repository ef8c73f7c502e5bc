// Package executor re-enters the agent loop on child sessions: the task
// tool and the bus's agent-prompt rule handlers both dispatch through it.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arborio/agentcore/internal/agent"
	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/internal/session"
	"github.com/arborio/agentcore/internal/storage"
	"github.com/arborio/agentcore/internal/tool"
	"github.com/arborio/agentcore/pkg/types"
)

// SubagentExecutor implements tool.TaskExecutor: it creates a child
// session, runs the named sub-agent's loop on it, and publishes the
// background_task outcome event.
type SubagentExecutor struct {
	storage          *storage.Storage
	providerRegistry *provider.Registry
	toolRegistry     *tool.Registry
	agentRegistry    *agent.Registry

	defaultProviderID string
	defaultModelID    string
}

// SubagentExecutorConfig bundles the executor's dependencies.
type SubagentExecutorConfig struct {
	Storage           *storage.Storage
	ProviderRegistry  *provider.Registry
	ToolRegistry      *tool.Registry
	AgentRegistry     *agent.Registry
	DefaultProviderID string
	DefaultModelID    string
}

// NewSubagentExecutor creates an executor.
func NewSubagentExecutor(cfg SubagentExecutorConfig) *SubagentExecutor {
	return &SubagentExecutor{
		storage:           cfg.Storage,
		providerRegistry:  cfg.ProviderRegistry,
		toolRegistry:      cfg.ToolRegistry,
		agentRegistry:     cfg.AgentRegistry,
		defaultProviderID: cfg.DefaultProviderID,
		defaultModelID:    cfg.DefaultModelID,
	}
}

// ExecuteSubtask implements tool.TaskExecutor.
func (e *SubagentExecutor) ExecuteSubtask(
	ctx context.Context,
	parentSessionID string,
	agentName string,
	prompt string,
	opts tool.TaskOptions,
) (*tool.TaskResult, error) {
	agentDef, err := e.agentRegistry.Get(agentName)
	if err != nil {
		return nil, err
	}
	if !agentDef.IsSubagent() {
		return nil, fmt.Errorf("agent %q cannot run as a sub-agent (mode %s)", agentName, agentDef.Mode)
	}

	child, err := e.createChildSession(ctx, parentSessionID, agentName)
	if err != nil {
		return nil, fmt.Errorf("create child session: %w", err)
	}

	providerID, modelID := e.resolveModel(agentDef, opts.Model)
	if _, err := e.createUserMessage(ctx, child, prompt, providerID, modelID); err != nil {
		return nil, fmt.Errorf("seed child session: %w", err)
	}

	processor := session.NewProcessor(e.providerRegistry, e.toolRegistry, e.storage, providerID, modelID)

	var finalParts []types.Part
	runErr := processor.Process(ctx, child.ID, loopAgent(agentDef), func(msg *types.Message, parts []types.Part) {
		finalParts = parts
	})

	result := &tool.TaskResult{
		SessionID: child.ID,
		Metadata:  map[string]any{"parentSessionID": parentSessionID, "agent": agentName},
	}
	outcome := event.BackgroundDone
	if runErr != nil {
		result.Error = runErr.Error()
		result.Output = "subtask failed: " + runErr.Error()
		outcome = event.BackgroundFailed
	} else {
		result.Output = extractText(finalParts)
	}

	event.Publish(event.Event{
		Type:      outcome,
		SessionID: parentSessionID,
		Data: event.BackgroundTaskData{
			SessionID:      parentSessionID,
			ChildSessionID: child.ID,
			Output:         result.Output,
			Error:          result.Error,
		},
	})

	return result, nil
}

// createChildSession stores a fresh session parented to the caller.
func (e *SubagentExecutor) createChildSession(ctx context.Context, parentSessionID, agentName string) (*types.Session, error) {
	now := time.Now().UnixMilli()
	child := &types.Session{
		ID:       ulid.Make().String(),
		ParentID: &parentSessionID,
		Title:    "Subtask: " + agentName,
		Time:     types.SessionTime{Created: now, Updated: now},
	}

	if err := e.storage.Put(ctx, []string{"session", child.ID}, child); err != nil {
		return nil, err
	}
	event.PublishSync(event.Event{
		Type:      event.SessionCreated,
		SessionID: child.ID,
		Data:      event.SessionCreatedData{Info: child},
	})
	return child, nil
}

// createUserMessage seeds the child session with the subtask prompt.
func (e *SubagentExecutor) createUserMessage(
	ctx context.Context,
	child *types.Session,
	prompt, providerID, modelID string,
) (*types.Message, error) {
	msg := &types.Message{
		ID:        ulid.Make().String(),
		SessionID: child.ID,
		Role:      "user",
		Model:     &types.ModelRef{ProviderID: providerID, ModelID: modelID},
		Time:      types.MessageTime{Created: time.Now().UnixMilli()},
	}
	if err := e.storage.Put(ctx, []string{"message", child.ID, msg.ID}, msg); err != nil {
		return nil, err
	}

	part := &types.TextPart{
		ID:        ulid.Make().String(),
		SessionID: child.ID,
		MessageID: msg.ID,
		Type:      "text",
		Text:      prompt,
	}
	if err := e.storage.Put(ctx, []string{"part", msg.ID, part.ID}, part); err != nil {
		return nil, err
	}

	event.PublishSync(event.Event{
		Type:      event.MessageCreated,
		SessionID: child.ID,
		Data:      event.MessageCreatedData{Info: msg},
	})
	return msg, nil
}

// resolveModel picks the child loop's model: the agent's own override, then
// the caller's, then the executor defaults.
func (e *SubagentExecutor) resolveModel(agentDef *agent.Agent, override string) (string, string) {
	ref := agentDef.Model
	if override != "" {
		ref = override
	}
	if ref != "" {
		providerID, modelID := provider.ParseModelString(ref)
		if providerID != "" {
			return providerID, modelID
		}
		return e.defaultProviderID, modelID
	}
	return e.defaultProviderID, e.defaultModelID
}

// loopAgent maps an agent definition onto the loop's configuration.
func loopAgent(def *agent.Agent) *session.Agent {
	out := &session.Agent{
		Name:          def.Name,
		Prompt:        def.Prompt,
		MaxSteps:      def.MaxSteps,
		Tools:         def.Tools,
		DisabledTools: def.DisabledTools,
	}
	if def.Temperature != nil {
		out.Temperature = *def.Temperature
	} else {
		out.Temperature = 0.5
	}
	if def.TopP != nil {
		out.TopP = *def.TopP
	} else {
		out.TopP = 1.0
	}
	if out.MaxSteps <= 0 {
		out.MaxSteps = 10
	}
	return out
}

// extractText joins the text parts of the child's final message.
func extractText(parts []types.Part) string {
	var texts []string
	for _, part := range parts {
		if tp, ok := part.(*types.TextPart); ok && tp.Text != "" {
			texts = append(texts, tp.Text)
		}
	}
	return strings.Join(texts, "\n")
}
