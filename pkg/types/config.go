package types

// Config is the per-environment configuration read from the environment
// directory's JSONC files plus environment-variable overrides.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	// Model is the default "provider/model" selection.
	Model string `json:"model,omitempty"`

	// SmallModel handles cheap internal turns (titles, summaries).
	SmallModel string `json:"small_model,omitempty"`

	// Tools toggles individual tools on or off globally.
	Tools map[string]bool `json:"tools,omitempty"`

	// Instructions lists extra instruction files appended to the system
	// prompt.
	Instructions []string `json:"instructions,omitempty"`

	// Provider holds per-provider connection settings.
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Agent holds per-agent loop settings.
	Agent map[string]AgentConfig `json:"agent,omitempty"`

	// MCP holds explicit MCP server entries, merged over discovery.
	MCP map[string]MCPConfig `json:"mcp,omitempty"`
}

// ProviderConfig is one provider's connection settings. APIKey supports
// environment-variable substitution at load time.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// SDKType selects the adapter: "anthropic", "openai",
	// "openai-compatible", or "ark". Inferred from the provider name when
	// empty.
	SDKType string `json:"sdkType,omitempty"`

	// Model pins an endpoint-style model id for providers that require one.
	Model string `json:"model,omitempty"`

	// Whitelist/Blacklist filter the provider's advertised models.
	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// AgentConfig tunes one agent's loop parameters.
type AgentConfig struct {
	Model       string          `json:"model,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Prompt      string          `json:"prompt,omitempty"`
	MaxSteps    int             `json:"maxSteps,omitempty"`
	Tools       map[string]bool `json:"tools,omitempty"`
	Description string          `json:"description,omitempty"`
	Mode        string          `json:"mode,omitempty"` // "subagent" | "primary" | "all"
	Disable     bool            `json:"disable,omitempty"`
}

// MCPConfig is one explicitly configured MCP server.
type MCPConfig struct {
	Type        string            `json:"type,omitempty"` // "local" | "remote"
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Timeout     int               `json:"timeout,omitempty"`
}

// Model describes one LLM a provider advertises.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	InputPrice        float64      `json:"inputPrice,omitempty"`  // per 1M tokens
	OutputPrice       float64      `json:"outputPrice,omitempty"` // per 1M tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions contains model-specific options.
type ModelOptions struct {
	Temperature    *float64 `json:"temperature,omitempty"`
	TopP           *float64 `json:"topP,omitempty"`
	PromptCaching  bool     `json:"promptCaching,omitempty"`
	ExtendedOutput bool     `json:"extendedOutput,omitempty"`

	// NoTemperature marks models that reject the temperature parameter.
	NoTemperature bool `json:"noTemperature,omitempty"`

	// ReasoningField names the provider-options field interleaved reasoning
	// must be lifted into for OpenAI-compatible reasoning models
	// (e.g. "reasoning_content"). Empty disables lifting.
	ReasoningField string `json:"reasoningField,omitempty"`
}
