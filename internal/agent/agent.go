// Package agent defines the named agent configurations the loop can run
// as: the primary default agent and the sub-agents that rule handlers and
// the task tool re-enter the loop with.
package agent

// Mode controls where an agent may run.
type Mode string

const (
	// ModePrimary agents serve user_query turns.
	ModePrimary Mode = "primary"
	// ModeSubagent agents serve loop re-entries on child sessions.
	ModeSubagent Mode = "subagent"
	// ModeAll agents serve both.
	ModeAll Mode = "all"
)

// Agent is one named loop configuration.
type Agent struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Mode        Mode     `json:"mode"`
	Prompt      string   `json:"prompt,omitempty"`
	Model       string   `json:"model,omitempty"` // "provider/model" override
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`
	MaxSteps    int      `json:"maxSteps,omitempty"`

	// Tools whitelists tool names; empty enables everything not disabled.
	Tools []string `json:"tools,omitempty"`

	// DisabledTools blacklists tool names.
	DisabledTools []string `json:"disabledTools,omitempty"`
}

// IsPrimary reports whether the agent may serve user_query turns.
func (a *Agent) IsPrimary() bool {
	return a.Mode == ModePrimary || a.Mode == ModeAll || a.Mode == ""
}

// IsSubagent reports whether the agent may serve loop re-entries.
func (a *Agent) IsSubagent() bool {
	return a.Mode == ModeSubagent || a.Mode == ModeAll
}

// ToolEnabled reports whether the agent may call the named tool.
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

// Clone returns a deep copy.
func (a *Agent) Clone() *Agent {
	cp := *a
	cp.Tools = append([]string(nil), a.Tools...)
	cp.DisabledTools = append([]string(nil), a.DisabledTools...)
	if a.Temperature != nil {
		t := *a.Temperature
		cp.Temperature = &t
	}
	if a.TopP != nil {
		t := *a.TopP
		cp.TopP = &t
	}
	return &cp
}

// BuiltIn returns the agents every environment starts with.
func BuiltIn() []*Agent {
	return []*Agent{
		{
			Name:        "default",
			Description: "Primary agent serving user prompts.",
			Mode:        ModePrimary,
			MaxSteps:    25,
		},
		{
			Name:          "general",
			Description:   "General-purpose sub-agent for rule re-entries and subtasks.",
			Mode:          ModeAll,
			MaxSteps:      10,
			DisabledTools: []string{"task"},
		},
		{
			Name:        "diagnose",
			Description: "Sub-agent that analyzes failures and background-task results.",
			Mode:        ModeSubagent,
			MaxSteps:    8,
			Prompt: "You analyze the outcome of a background task or failure report. " +
				"State what happened, why, and what to do next. Be brief and concrete.",
			DisabledTools: []string{"task"},
		},
	}
}
