package provider

import (
	"strings"

	"github.com/arborio/agentcore/pkg/types"
)

// Reasoning variants accepted by GenerateOptions.
const (
	VariantHigh = "high"
	VariantMax  = "max"
)

// OptionsRequest carries the caller's generation preferences before
// model/provider constraints are applied.
type OptionsRequest struct {
	Temperature *float64
	MaxTokens   int
	Variant     string // reasoning effort: "", "low", "medium", "high", "max"
}

// ThinkingOptions is the Anthropic extended-thinking block attached when a
// reasoning variant is requested.
type ThinkingOptions struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

// GeneratedOptions is the normalized parameter set handed to the provider
// adapter. Temperature is nil when the model rejects the parameter.
type GeneratedOptions struct {
	Temperature     *float64
	MaxTokens       int
	Thinking        *ThinkingOptions
	ReasoningEffort string
}

// GenerateOptions resolves the final request parameters for model under
// providerID's rules: temperature suppression and forcing, output-token
// capping, and reasoning budgets per provider family.
func GenerateOptions(model *types.Model, providerID string, req OptionsRequest) GeneratedOptions {
	var out GeneratedOptions

	switch {
	case model != nil && model.Options.NoTemperature:
		// omitted
	case isFixedTemperatureModel(model):
		one := 1.0
		out.Temperature = &one
	case req.Temperature != nil:
		t := *req.Temperature
		out.Temperature = &t
	}

	out.MaxTokens = req.MaxTokens
	if model != nil && model.MaxOutputTokens > 0 && (out.MaxTokens <= 0 || out.MaxTokens > model.MaxOutputTokens) {
		out.MaxTokens = model.MaxOutputTokens
	}

	if req.Variant == "" {
		return out
	}

	if isAnthropicProvider(providerID) {
		if budget := anthropicThinkingBudget(req.Variant, out.MaxTokens); budget > 0 {
			out.Thinking = &ThinkingOptions{Type: "enabled", BudgetTokens: budget}
		}
		return out
	}

	if model != nil && model.SupportsReasoning {
		out.ReasoningEffort = req.Variant
	}

	return out
}

// anthropicThinkingBudget returns the thinking token budget for the given
// variant, or 0 when no thinking block should be attached. "high" budgets
// half the output window capped at 16000; "max" budgets the whole window
// capped at 31999. Both stay strictly below max_tokens as the API requires.
func anthropicThinkingBudget(variant string, maxTokens int) int {
	if maxTokens <= 1 {
		return 0
	}
	switch variant {
	case VariantHigh:
		return min(16000, maxTokens/2-1)
	case VariantMax:
		return min(31999, maxTokens-1)
	default:
		return 0
	}
}

// fixedTemperatureFamilies lists model families that only accept
// temperature 1 regardless of what the caller asked for.
var fixedTemperatureFamilies = []string{"glm", "kimi-k2.5"}

func isFixedTemperatureModel(model *types.Model) bool {
	if model == nil {
		return false
	}
	id := strings.ToLower(model.ID)
	name := strings.ToLower(model.Name)
	for _, family := range fixedTemperatureFamilies {
		if strings.Contains(id, family) || strings.Contains(name, family) {
			return true
		}
	}
	return false
}
