package session

// Agent is the per-turn loop configuration: which system prompt, sampling
// parameters, iteration budget, and tool set the loop runs with.
type Agent struct {
	// Name is the agent identifier.
	Name string `json:"name"`

	// Prompt is the base system prompt for this agent.
	Prompt string `json:"prompt"`

	// Temperature for LLM sampling.
	Temperature float64 `json:"temperature,omitempty"`

	// TopP for nucleus sampling.
	TopP float64 `json:"topP,omitempty"`

	// MaxSteps caps the reason-act iterations of one turn.
	MaxSteps int `json:"maxSteps,omitempty"`

	// ReasoningVariant selects the reasoning effort for models that support
	// it ("low"/"medium"/"high"/"max"); empty disables extended reasoning.
	ReasoningVariant string `json:"reasoningVariant,omitempty"`

	// Tools whitelists tool names; empty enables everything not disabled.
	Tools []string `json:"tools,omitempty"`

	// DisabledTools blacklists tool names.
	DisabledTools []string `json:"disabledTools,omitempty"`
}

// ToolEnabled reports whether this agent may call the named tool.
func (a *Agent) ToolEnabled(name string) bool {
	for _, disabled := range a.DisabledTools {
		if disabled == name {
			return false
		}
	}
	if len(a.Tools) == 0 {
		return true
	}
	for _, enabled := range a.Tools {
		if enabled == name {
			return true
		}
	}
	return false
}

// DefaultAgent is the configuration user_query turns run with.
func DefaultAgent() *Agent {
	return &Agent{
		Name:        "default",
		Temperature: 0.7,
		TopP:        1.0,
		MaxSteps:    25,
	}
}

// SubAgent is the configuration for loop re-entries: rule-triggered turns
// and task-tool children. Tighter budget, no recursive task spawning.
func SubAgent() *Agent {
	return &Agent{
		Name:          "subagent",
		Temperature:   0.5,
		TopP:          1.0,
		MaxSteps:      10,
		DisabledTools: []string{"task"},
	}
}
