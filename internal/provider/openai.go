package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/arborio/agentcore/pkg/types"
)

// OpenAIProvider serves OpenAI and OpenAI-compatible endpoints; a custom
// BaseURL plus an arbitrary ID makes it the adapter for any compatible
// third-party or local server.
type OpenAIProvider struct {
	chatModel model.ToolCallingChatModel
	config    *OpenAIConfig
}

// OpenAIConfig holds the connection settings.
type OpenAIConfig struct {
	ID        string // registry id; "openai" when empty
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int

	// Azure deployment settings
	UseAzure   bool
	APIVersion string
}

// NewOpenAIProvider connects the OpenAI adapter.
func NewOpenAIProvider(ctx context.Context, config *OpenAIConfig) (*OpenAIProvider, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		if config.UseAzure {
			apiKey = os.Getenv("AZURE_OPENAI_API_KEY")
		} else {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: no api key (set OPENAI_API_KEY)")
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	modelID := firstNonEmpty(config.Model, os.Getenv("OPENAI_MODEL_ID"), "gpt-4o")

	cfg := &openai.ChatModelConfig{
		APIKey: apiKey,
		Model:  modelID,
		// max_completion_tokens: required by reasoning-model endpoints that
		// reject the legacy max_tokens parameter
		MaxCompletionTokens: &maxTokens,
	}
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}
	if config.UseAzure {
		cfg.ByAzure = true
		cfg.APIVersion = firstNonEmpty(config.APIVersion, "2024-02-15-preview")
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	return &OpenAIProvider{chatModel: chatModel, config: config}, nil
}

func (p *OpenAIProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "openai"
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

// Models returns the advertised OpenAI model catalog.
func (p *OpenAIProvider) Models() []types.Model {
	return openAIModels()
}

// ChatModel returns the underlying eino model.
func (p *OpenAIProvider) ChatModel() model.ToolCallingChatModel {
	return p.chatModel
}

// CreateCompletion opens a streaming completion.
func (p *OpenAIProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	return streamCompletion(ctx, p.chatModel, req)
}

func openAIModels() []types.Model {
	reasoning := func(m types.Model) types.Model {
		m.SupportsReasoning = true
		return m
	}
	base := func(id, name string, ctxLen, maxOut int, inPrice, outPrice float64) types.Model {
		return types.Model{
			ID:              id,
			Name:            name,
			ProviderID:      "openai",
			ContextLength:   ctxLen,
			MaxOutputTokens: maxOut,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      inPrice,
			OutputPrice:     outPrice,
		}
	}

	return []types.Model{
		reasoning(base("gpt-5", "GPT-5", 272000, 128000, 1.25, 10.0)),
		reasoning(base("gpt-5-mini", "GPT-5 Mini", 272000, 128000, 0.25, 2.0)),
		base("gpt-5-nano", "GPT-5 Nano", 272000, 128000, 0.05, 0.4),
		base("gpt-4o", "GPT-4o", 128000, 16384, 2.5, 10.0),
		base("gpt-4o-mini", "GPT-4o Mini", 128000, 16384, 0.15, 0.6),
		reasoning(base("o1", "O1", 200000, 100000, 15.0, 60.0)),
		reasoning(base("o1-mini", "O1 Mini", 128000, 65536, 1.1, 4.4)),
	}
}
