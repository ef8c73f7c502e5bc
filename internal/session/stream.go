package session

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/arborio/agentcore/internal/event"
	"github.com/arborio/agentcore/internal/logging"
	"github.com/arborio/agentcore/internal/provider"
	"github.com/arborio/agentcore/pkg/types"
)

// processStream drains one LLM stream into the in-flight message: text and
// reasoning deltas update their parts as they arrive, tool-call chunks
// accumulate until name and arguments are complete. Returns the stream's
// finish reason.
func (p *Processor) processStream(
	ctx context.Context,
	stream *provider.CompletionStream,
	state *sessionState,
	callback ProcessCallback,
) (string, error) {
	var textPart *types.TextPart
	var reasoningPart *types.ReasoningPart
	toolParts := make(map[string]*types.ToolPart)
	toolArgs := make(map[string]string)
	var content string
	var finishReason string

	for {
		select {
		case <-ctx.Done():
			return "error", ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "error", err
		}

		finishReason = p.applyChunk(ctx, msg, state, callback,
			&textPart, &reasoningPart, toolParts, toolArgs, &content)
		if finishReason != "" {
			break
		}
	}

	now := time.Now().UnixMilli()
	if textPart != nil {
		textPart.Time.End = &now
		p.savePart(ctx, state.message.ID, textPart)
	}
	if reasoningPart != nil {
		reasoningPart.Time.End = &now
		p.savePart(ctx, state.message.ID, reasoningPart)
	}

	// Tool calls are complete once the stream ends; parse any argument JSON
	// that never produced a clean prefix and mark them runnable.
	for key, toolPart := range toolParts {
		if raw, ok := toolArgs[key]; ok && toolPart.State.Input == nil {
			var input map[string]any
			if err := json.Unmarshal([]byte(raw), &input); err == nil {
				toolPart.State.Input = input
			}
		}
		toolPart.State.Status = "running"
		p.savePart(ctx, state.message.ID, toolPart)

		p.publishStream(event.StreamToolCall, state, map[string]any{
			"toolName":   toolPart.Tool,
			"toolArgs":   toolPart.State.Input,
			"toolCallId": toolPart.CallID,
		})
	}

	if finishReason == "" {
		if len(toolParts) > 0 {
			finishReason = "tool_calls"
		} else {
			finishReason = "stop"
		}
	}
	if finishReason == "tool_use" {
		finishReason = "tool_calls"
	}

	logging.Logger.Debug().
		Str("finishReason", finishReason).
		Int("parts", len(state.parts)).
		Msg("stream drained")
	return finishReason, nil
}

// applyChunk folds one stream chunk into the in-flight message.
func (p *Processor) applyChunk(
	ctx context.Context,
	msg *schema.Message,
	state *sessionState,
	callback ProcessCallback,
	textPart **types.TextPart,
	reasoningPart **types.ReasoningPart,
	toolParts map[string]*types.ToolPart,
	toolArgs map[string]string,
	content *string,
) string {
	if msg.Content != "" {
		delta := msg.Content
		if *textPart == nil {
			now := time.Now().UnixMilli()
			*textPart = &types.TextPart{
				ID:        generatePartID(),
				SessionID: state.message.SessionID,
				MessageID: state.message.ID,
				Type:      "text",
				Text:      msg.Content,
				Time:      types.PartTime{Start: &now},
			}
			state.parts = append(state.parts, *textPart)
			*content = msg.Content
		} else if len(msg.Content) > len(*content) && msg.Content[:len(*content)] == *content {
			// cumulative chunk: provider resent everything so far
			delta = msg.Content[len(*content):]
			*content = msg.Content
			(*textPart).Text = msg.Content
		} else {
			*content += msg.Content
			(*textPart).Text = *content
		}

		event.Publish(event.Event{
			Type:      event.MessagePartUpdated,
			SessionID: state.message.SessionID,
			Data:      event.MessagePartUpdatedData{Part: *textPart, Delta: delta},
		})
		p.publishStream(event.StreamText, state, map[string]any{
			"content": *content,
			"delta":   delta,
		})
		callback(state.message, state.parts)
	}

	if msg.ReasoningContent != "" {
		if *reasoningPart == nil {
			now := time.Now().UnixMilli()
			*reasoningPart = &types.ReasoningPart{
				ID:        generatePartID(),
				SessionID: state.message.SessionID,
				MessageID: state.message.ID,
				Type:      "reasoning",
				Text:      msg.ReasoningContent,
				Time:      types.PartTime{Start: &now},
			}
			state.parts = append(state.parts, *reasoningPart)
		} else {
			(*reasoningPart).Text = msg.ReasoningContent
		}
		p.publishStream(event.StreamReasoning, state, map[string]any{
			"content": (*reasoningPart).Text,
		})
		callback(state.message, state.parts)
	}

	// Tool-call chunks carry an Index; the start chunk has ID+Name, delta
	// chunks only append argument fragments.
	for _, tc := range msg.ToolCalls {
		var key string
		switch {
		case tc.Index != nil:
			key = fmt.Sprintf("idx:%d", *tc.Index)
		case tc.ID != "":
			key = tc.ID
		default:
			continue
		}

		toolPart, exists := toolParts[key]
		if !exists && tc.ID != "" && tc.Function.Name != "" {
			toolPart = &types.ToolPart{
				ID:        generatePartID(),
				SessionID: state.message.SessionID,
				MessageID: state.message.ID,
				Type:      "tool",
				CallID:    tc.ID,
				Tool:      tc.Function.Name,
				State: types.ToolState{
					Status: "pending",
					Time:   types.ToolTime{Start: time.Now().UnixMilli()},
				},
			}
			toolParts[key] = toolPart
			toolArgs[key] = ""
			state.parts = append(state.parts, toolPart)
			callback(state.message, state.parts)
		}

		if tc.Function.Arguments != "" && toolPart != nil {
			toolArgs[key] += tc.Function.Arguments
			toolPart.State.Raw = toolArgs[key]
			var input map[string]any
			if err := json.Unmarshal([]byte(toolArgs[key]), &input); err == nil {
				toolPart.State.Input = input
			}
			event.Publish(event.Event{
				Type:      event.MessagePartUpdated,
				SessionID: state.message.SessionID,
				Data:      event.MessagePartUpdatedData{Part: toolPart},
			})
			callback(state.message, state.parts)
		}
	}

	if msg.ResponseMeta != nil {
		if msg.ResponseMeta.Usage != nil {
			if state.message.Tokens == nil {
				state.message.Tokens = &types.TokenUsage{}
			}
			state.message.Tokens.Input = msg.ResponseMeta.Usage.PromptTokens
			state.message.Tokens.Output = msg.ResponseMeta.Usage.CompletionTokens
		}
		if msg.ResponseMeta.FinishReason != "" {
			return msg.ResponseMeta.FinishReason
		}
	}
	return ""
}

// publishStream emits one spec-shaped stream.* event for the in-flight
// message.
func (p *Processor) publishStream(eventType event.EventType, state *sessionState, fields map[string]any) {
	data := map[string]any{
		"sessionId": state.message.SessionID,
		"messageId": state.message.ID,
	}
	for k, v := range fields {
		data[k] = v
	}
	event.Publish(event.Event{
		Type:      eventType,
		SessionID: state.message.SessionID,
		Data:      data,
	})
}
