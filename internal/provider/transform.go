package provider

import (
	"regexp"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/arborio/agentcore/pkg/types"
)

// Provider quirks applied to outgoing messages, in order: Anthropic or
// Mistral normalization first, then interleaved-reasoning lifting when the
// model declares a reasoning field. Input messages are never mutated; every
// transform works on shallow copies so session history stays untouched.

// TransformMessages normalizes messages for the target provider/model and
// returns the transformed slice.
func TransformMessages(messages []*schema.Message, providerID string, model *types.Model) []*schema.Message {
	out := cloneMessages(messages)

	switch {
	case isAnthropicProvider(providerID):
		out = transformAnthropic(out, model)
	case isMistralModel(model):
		out = transformMistral(out)
	}

	if model != nil && model.Options.ReasoningField != "" {
		out = liftInterleavedReasoning(out, model.Options.ReasoningField)
	}

	return out
}

func cloneMessages(messages []*schema.Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		cp := *msg
		if len(msg.ToolCalls) > 0 {
			cp.ToolCalls = append([]schema.ToolCall(nil), msg.ToolCalls...)
		}
		if len(msg.Extra) > 0 {
			cp.Extra = make(map[string]any, len(msg.Extra))
			for k, v := range msg.Extra {
				cp.Extra[k] = v
			}
		}
		out = append(out, &cp)
	}
	return out
}

func isAnthropicProvider(providerID string) bool {
	id := strings.ToLower(providerID)
	return id == "anthropic" || id == "claude" || strings.Contains(id, "anthropic")
}

func isMistralModel(model *types.Model) bool {
	if model == nil {
		return false
	}
	return strings.Contains(strings.ToLower(model.ID), "mistral") ||
		strings.Contains(strings.ToLower(model.Name), "mistral")
}

// anthropicIDPattern matches every character Anthropic rejects in a
// tool_use id. Offenders become underscores.
var anthropicIDPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeAnthropicToolCallID(id string) string {
	return anthropicIDPattern.ReplaceAllString(id, "_")
}

// transformAnthropic drops messages with empty content, rewrites tool call
// ids to Anthropic's accepted character set, and marks cache breakpoints on
// up to the first two system messages and the last two non-system messages.
func transformAnthropic(messages []*schema.Message, model *types.Model) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Content == "" && len(msg.MultiContent) == 0 && len(msg.ToolCalls) == 0 {
			continue
		}

		for i := range msg.ToolCalls {
			msg.ToolCalls[i].ID = sanitizeAnthropicToolCallID(msg.ToolCalls[i].ID)
		}
		if msg.ToolCallID != "" {
			msg.ToolCallID = sanitizeAnthropicToolCallID(msg.ToolCallID)
		}

		out = append(out, msg)
	}

	if model == nil || model.Options.PromptCaching {
		applyCacheHints(out)
	}

	return out
}

// applyCacheHints sets an ephemeral cache-control marker on up to the first
// two system messages and the last two non-system messages.
func applyCacheHints(messages []*schema.Message) {
	systemMarked := 0
	for _, msg := range messages {
		if msg.Role != schema.System {
			continue
		}
		if systemMarked >= 2 {
			break
		}
		setCacheControl(msg)
		systemMarked++
	}

	marked := 0
	for i := len(messages) - 1; i >= 0 && marked < 2; i-- {
		if messages[i].Role == schema.System {
			continue
		}
		setCacheControl(messages[i])
		marked++
	}
}

func setCacheControl(msg *schema.Message) {
	if msg.Extra == nil {
		msg.Extra = make(map[string]any)
	}
	msg.Extra["cache_control"] = map[string]any{"type": "ephemeral"}
}

const mistralToolCallIDLen = 9

// normalizeMistralToolCallID strips non-alphanumerics, truncates to nine
// characters, and right-pads with '0' — Mistral requires exactly nine
// alphanumeric characters.
func normalizeMistralToolCallID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == mistralToolCallIDLen {
				break
			}
		}
	}
	s := b.String()
	for len(s) < mistralToolCallIDLen {
		s += "0"
	}
	return s
}

// transformMistral normalizes tool call ids and splices a terse assistant
// acknowledgement between a tool message and a directly following user
// message; Mistral rejects tool->user adjacency.
func transformMistral(messages []*schema.Message) []*schema.Message {
	for _, msg := range messages {
		for i := range msg.ToolCalls {
			msg.ToolCalls[i].ID = normalizeMistralToolCallID(msg.ToolCalls[i].ID)
		}
		if msg.ToolCallID != "" {
			msg.ToolCallID = normalizeMistralToolCallID(msg.ToolCallID)
		}
	}

	out := make([]*schema.Message, 0, len(messages)+2)
	for i, msg := range messages {
		out = append(out, msg)
		if msg.Role == schema.Tool && i+1 < len(messages) && messages[i+1].Role == schema.User {
			out = append(out, &schema.Message{
				Role:    schema.Assistant,
				Content: "Done.",
			})
		}
	}
	return out
}

var thinkBlockPattern = regexp.MustCompile(`(?s)<think>(.*?)</think>`)

// liftInterleavedReasoning moves reasoning content out of outgoing assistant
// messages and into the provider-options field the model expects. Both the
// dedicated reasoning field and <think>-wrapped text segments are lifted;
// the remaining visible text keeps its original order.
func liftInterleavedReasoning(messages []*schema.Message, field string) []*schema.Message {
	for _, msg := range messages {
		if msg.Role != schema.Assistant {
			continue
		}

		var lifted []string
		if msg.ReasoningContent != "" {
			lifted = append(lifted, msg.ReasoningContent)
			msg.ReasoningContent = ""
		}

		for _, m := range thinkBlockPattern.FindAllStringSubmatch(msg.Content, -1) {
			lifted = append(lifted, m[1])
		}
		msg.Content = strings.TrimSpace(thinkBlockPattern.ReplaceAllString(msg.Content, ""))

		if len(lifted) == 0 {
			continue
		}

		if msg.Extra == nil {
			msg.Extra = make(map[string]any)
		}
		opts, _ := msg.Extra["provider_options"].(map[string]any)
		if opts == nil {
			opts = make(map[string]any)
			msg.Extra["provider_options"] = opts
		}
		compat, _ := opts["openai_compatible"].(map[string]any)
		if compat == nil {
			compat = make(map[string]any)
			opts["openai_compatible"] = compat
		}
		compat[field] = strings.Join(lifted, "\n")
	}
	return messages
}
