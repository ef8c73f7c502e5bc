package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/pkg/errkind"
	"github.com/arborio/agentcore/pkg/types"
)

const (
	// MaxSteps is the default iteration budget of one turn.
	MaxSteps = 25
	// MaxRetries bounds LLM-call retries within one turn.
	MaxRetries = 3
	// RetryInitialInterval is the initial backoff interval.
	RetryInitialInterval = time.Second
	// RetryMaxInterval caps the backoff interval.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime caps total retry time.
	RetryMaxElapsedTime = 2 * time.Minute
	// MaxContextTokens triggers compaction when exceeded.
	MaxContextTokens = 150000
)

// newRetryBackoff builds the jittered exponential backoff used for
// LLM-call-level retries, independent of per-tool retries.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// runLoop is the reason-act loop of one turn: call the model, execute any
// tool calls, extend history, repeat until a terminal condition.
func (p *Processor) runLoop(
	ctx context.Context,
	sessionID string,
	state *sessionState,
	agent *Agent,
	callback ProcessCallback,
) error {
	session, err := p.loadSession(sessionID)
	if err != nil {
		return fmt.Errorf("session not found: %w", err)
	}

	messages, err := p.loadMessages(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return fmt.Errorf("no messages in session")
	}
	lastMsg := messages[len(messages)-1]
	if lastMsg.Role != "user" {
		return fmt.Errorf("expected user message, got %s", lastMsg.Role)
	}

	providerID := p.defaultProviderID
	modelID := p.defaultModelID
	if lastMsg.Model != nil {
		providerID = lastMsg.Model.ProviderID
		modelID = lastMsg.Model.ModelID
	}

	prov, err := p.providerRegistry.Get(providerID)
	if err != nil {
		return fmt.Errorf("provider not found: %w", err)
	}
	model, err := p.providerRegistry.GetModel(providerID, modelID)
	if err != nil {
		return fmt.Errorf("model not found: %w", err)
	}

	assistantMsg := &types.Message{
		ID:         generatePartID(),
		SessionID:  sessionID,
		Role:       "assistant",
		ProviderID: providerID,
		ModelID:    modelID,
		Time:       types.MessageTime{Created: time.Now().UnixMilli()},
	}
	state.message = assistantMsg

	if err := p.storage.Put(ctx, []string{"message", sessionID, assistantMsg.ID}, assistantMsg); err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	callback(assistantMsg, nil)

	event.Publish(event.Event{
		Type:      event.MessageCreated,
		SessionID: sessionID,
		Data:      event.MessageCreatedData{Info: assistantMsg},
	})
	event.Publish(event.Event{
		Type:      event.StreamStart,
		SessionID: sessionID,
		Data: map[string]any{
			"sessionId": sessionID,
			"messageId": assistantMsg.ID,
			"model":     modelID,
		},
	})

	if agent == nil {
		agent = DefaultAgent()
	}
	maxSteps := agent.MaxSteps
	if maxSteps <= 0 {
		maxSteps = MaxSteps
	}

	p.ensureTitle(ctx, session, lastMsg)

	step := 0
	retryBackoff := newRetryBackoff(ctx)

	for {
		select {
		case <-ctx.Done():
			// Interrupt: keep the partial message, close the stream with a
			// partial-flagged completion, never an error (spec §7).
			return p.finishInterrupted(ctx, sessionID, assistantMsg)
		default:
		}

		// Iteration budget exhaustion is a truncation, not an error.
		if step >= maxSteps {
			return p.finishTruncated(ctx, sessionID, assistantMsg)
		}

		if p.shouldCompact(messages) {
			if err := p.compactMessages(ctx, sessionID, messages); err != nil {
				logging.Logger.Warn().Err(err).Str("sessionID", sessionID).Msg("compaction failed")
			}
			messages, _ = p.loadMessages(ctx, sessionID)
		}

		req, err := p.buildCompletionRequest(ctx, session, messages, assistantMsg, agent, model)
		if err != nil {
			return p.finishError(ctx, sessionID, assistantMsg, errkind.Internal, err)
		}

		stream, err := prov.CreateCompletion(ctx, req)
		if err != nil {
			if next := retryBackoff.NextBackOff(); next != backoff.Stop {
				time.Sleep(next)
				continue
			}
			return p.finishError(ctx, sessionID, assistantMsg, errkind.Transport, err)
		}

		finishReason, err := p.processStream(ctx, stream, state, callback)
		stream.Close()
		if err != nil {
			if ctx.Err() != nil {
				return p.finishInterrupted(ctx, sessionID, assistantMsg)
			}
			if next := retryBackoff.NextBackOff(); next != backoff.Stop {
				time.Sleep(next)
				continue
			}
			return p.finishError(ctx, sessionID, assistantMsg, errkind.Transport, err)
		}
		retryBackoff.Reset()

		switch finishReason {
		case "tool_calls":
			p.executeToolCalls(ctx, state, agent, callback)
			messages, _ = p.loadMessages(ctx, sessionID)
			step++
			continue

		case "max_tokens", "length":
			finish := "max_tokens"
			assistantMsg.Finish = &finish
			assistantMsg.Error = types.NewError(errkind.Input, "output length limit reached")
			p.saveMessage(ctx, sessionID, assistantMsg)
			p.publishCompleted(sessionID, assistantMsg, false)
			return nil

		default: // "stop", "end_turn", and anything else terminal
			finish := "stop"
			assistantMsg.Finish = &finish
			p.saveMessage(ctx, sessionID, assistantMsg)
			p.publishCompleted(sessionID, assistantMsg, false)
			return nil
		}
	}
}

// finishTruncated closes a turn whose iteration budget ran out: completed
// with a truncation flag, not an error.
func (p *Processor) finishTruncated(ctx context.Context, sessionID string, msg *types.Message) error {
	finish := "truncated"
	msg.Finish = &finish
	msg.Truncated = true
	p.saveMessage(ctx, sessionID, msg)
	p.publishCompleted(sessionID, msg, true)
	return nil
}

// finishInterrupted closes an interrupted turn: the partial content stays,
// and the terminal event is a partial-flagged completion.
func (p *Processor) finishInterrupted(ctx context.Context, sessionID string, msg *types.Message) error {
	finish := "interrupted"
	msg.Finish = &finish
	p.saveMessage(ctx, sessionID, msg)
	event.Publish(event.Event{
		Type:      event.StreamCompleted,
		SessionID: sessionID,
		Data: map[string]any{
			"sessionId": sessionID,
			"messageId": msg.ID,
			"partial":   true,
		},
	})
	return context.Canceled
}

// finishError closes a turn on an unrecovered error, preserving partial
// state and emitting stream.error with the §7 kind tag.
func (p *Processor) finishError(ctx context.Context, sessionID string, msg *types.Message, kind errkind.Kind, cause error) error {
	msg.Error = types.NewError(kind, cause.Error())
	p.saveMessage(ctx, sessionID, msg)
	event.Publish(event.Event{
		Type:      event.StreamError,
		SessionID: sessionID,
		Data: map[string]any{
			"sessionId": sessionID,
			"messageId": msg.ID,
			"error":     cause.Error(),
			"code":      string(kind),
		},
	})
	return cause
}

func (p *Processor) publishCompleted(sessionID string, msg *types.Message, partial bool) {
	data := map[string]any{
		"sessionId": sessionID,
		"messageId": msg.ID,
	}
	if msg.Tokens != nil {
		data["usage"] = msg.Tokens
	}
	if partial || msg.Truncated {
		data["truncated"] = msg.Truncated
		data["partial"] = partial
	}
	event.Publish(event.Event{
		Type:      event.StreamCompleted,
		SessionID: sessionID,
		Data:      data,
	})
}

// loadMessages loads all messages of a session in id order.
func (p *Processor) loadMessages(ctx context.Context, sessionID string) ([]*types.Message, error) {
	var messages []*types.Message
	err := p.storage.Scan(ctx, []string{"message", sessionID}, func(key string, data json.RawMessage) error {
		var msg types.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return err
		}
		messages = append(messages, &msg)
		return nil
	})
	return messages, err
}

// saveMessage persists an assistant message and fans out the update.
func (p *Processor) saveMessage(ctx context.Context, sessionID string, msg *types.Message) error {
	now := time.Now().UnixMilli()
	msg.Time.Updated = &now

	if err := p.storage.Put(ctx, []string{"message", sessionID, msg.ID}, msg); err != nil {
		return err
	}
	event.Publish(event.Event{
		Type:      event.MessageUpdated,
		SessionID: sessionID,
		Data:      event.MessageUpdatedData{Info: msg},
	})
	return nil
}

// savePart persists one part of a message.
func (p *Processor) savePart(ctx context.Context, messageID string, part types.Part) error {
	return p.storage.Put(ctx, []string{"part", messageID, part.PartID()}, part)
}

// shouldCompact reports whether accumulated usage crossed the compaction
// threshold.
func (p *Processor) shouldCompact(messages []*types.Message) bool {
	total := 0
	for _, msg := range messages {
		if msg.Tokens != nil {
			total += msg.Tokens.Input + msg.Tokens.Output
		}
	}
	return total > MaxContextTokens
}

// buildCompletionRequest assembles the provider request for the next LLM
// call: system prompt, history, tools, and normalized options.
func (p *Processor) buildCompletionRequest(
	ctx context.Context,
	session *types.Session,
	messages []*types.Message,
	currentMsg *types.Message,
	agent *Agent,
	model *types.Model,
) (*provider.CompletionRequest, error) {
	systemPrompt := NewSystemPrompt(session, agent, currentMsg.ProviderID, currentMsg.ModelID)

	einoMessages := []*schema.Message{{
		Role:    schema.System,
		Content: systemPrompt.Build(),
	}}

	for _, msg := range messages {
		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil || len(parts) == 0 {
			continue
		}
		einoMessages = append(einoMessages, p.convertMessage(msg, parts)...)
	}

	tools, err := p.resolveTools(agent, model)
	if err != nil {
		return nil, err
	}

	// Normalize messages to the provider's quirks (tool-call id character
	// sets, empty-message dropping, cache hints, reasoning lifting).
	einoMessages = provider.TransformMessages(einoMessages, currentMsg.ProviderID, model)

	maxTokens := model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	opts := provider.GenerateOptions(model, currentMsg.ProviderID, provider.OptionsRequest{
		Temperature: &agent.Temperature,
		MaxTokens:   maxTokens,
		Variant:     agent.ReasoningVariant,
	})

	req := &provider.CompletionRequest{
		Model:     model.ID,
		Messages:  einoMessages,
		Tools:     tools,
		MaxTokens: opts.MaxTokens,
		TopP:      agent.TopP,
	}
	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	}
	req.Thinking = opts.Thinking
	req.ReasoningEffort = opts.ReasoningEffort

	return req, nil
}

// loadParts loads all parts of a message in emission order.
func (p *Processor) loadParts(ctx context.Context, messageID string) ([]types.Part, error) {
	var parts []types.Part
	err := p.storage.Scan(ctx, []string{"part", messageID}, func(key string, data json.RawMessage) error {
		part, err := types.UnmarshalPart(data)
		if err != nil {
			return err
		}
		parts = append(parts, part)
		return nil
	})
	return parts, err
}

// convertMessage maps one stored message onto provider messages. An
// assistant message with tool calls yields the assistant message followed
// by one tool message per result.
func (p *Processor) convertMessage(msg *types.Message, parts []types.Part) []*schema.Message {
	role := schema.Assistant
	switch msg.Role {
	case "user":
		role = schema.User
	case "system":
		role = schema.System
	case "tool":
		role = schema.Tool
	}

	var content string
	var reasoning string
	var toolCalls []schema.ToolCall
	var toolResults []*schema.Message

	for _, part := range parts {
		switch pt := part.(type) {
		case *types.TextPart:
			content += pt.Text
		case *types.ReasoningPart:
			reasoning += pt.Text
		case *types.CompactionPart:
			content += pt.Summary
		case *types.ToolPart:
			inputJSON, _ := json.Marshal(pt.State.Input)
			toolCalls = append(toolCalls, schema.ToolCall{
				ID: pt.CallID,
				Function: schema.FunctionCall{
					Name:      pt.Tool,
					Arguments: string(inputJSON),
				},
			})
			resultContent := pt.State.Output
			if pt.State.Error != "" {
				resultContent = "Error: " + pt.State.Error
			}
			toolResults = append(toolResults, &schema.Message{
				Role:       schema.Tool,
				ToolCallID: pt.CallID,
				Content:    resultContent,
			})
		}
	}

	out := []*schema.Message{{
		Role:             role,
		Content:          content,
		ReasoningContent: reasoning,
		ToolCalls:        toolCalls,
	}}
	return append(out, toolResults...)
}

// resolveTools returns the tool schema handed to the model this turn.
func (p *Processor) resolveTools(agent *Agent, model *types.Model) ([]*schema.ToolInfo, error) {
	if !model.SupportsTools {
		return nil, nil
	}

	var result []*schema.ToolInfo
	for _, t := range p.toolRegistry.List() {
		if !agent.ToolEnabled(t.Name()) {
			continue
		}
		result = append(result, &schema.ToolInfo{
			Name:        t.Name(),
			Desc:        t.Description(),
			ParamsOneOf: schema.NewParamsOneOfByParams(parseJSONSchemaToParams(t.Schema())),
		})
	}
	return result, nil
}

// parseJSONSchemaToParams converts a JSON Schema object to eino parameter
// info.
func parseJSONSchemaToParams(schemaJSON json.RawMessage) map[string]*schema.ParameterInfo {
	var jsonSchema struct {
		Properties map[string]struct {
			Type        string `json:"type"`
			Description string `json:"description"`
		} `json:"properties"`
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(schemaJSON, &jsonSchema); err != nil {
		return nil
	}

	required := make(map[string]bool)
	for _, r := range jsonSchema.Required {
		required[r] = true
	}

	params := make(map[string]*schema.ParameterInfo)
	for name, prop := range jsonSchema.Properties {
		paramType := schema.String
		switch prop.Type {
		case "integer":
			paramType = schema.Integer
		case "number":
			paramType = schema.Number
		case "boolean":
			paramType = schema.Boolean
		case "array":
			paramType = schema.Array
		case "object":
			paramType = schema.Object
		}
		params[name] = &schema.ParameterInfo{
			Type:     paramType,
			Desc:     prop.Description,
			Required: required[name],
		}
	}
	return params
}

// generatePartID generates a ULID for messages and parts.
func generatePartID() string {
	return ulid.Make().String()
}
