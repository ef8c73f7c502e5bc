package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"

	"github.com/arborio/agentcore/pkg/types"
)

// ArkProvider serves Volcengine Ark endpoints. Ark addresses models by
// endpoint id rather than a public model name, so the provider advertises
// exactly one model: the configured endpoint.
type ArkProvider struct {
	chatModel  model.ToolCallingChatModel
	endpointID string
}

// ArkConfig holds the Ark connection settings. Unset fields fall back to
// ARK_API_KEY / ARK_MODEL_ID / ARK_BASE_URL.
type ArkConfig struct {
	APIKey    string
	BaseURL   string
	Model     string // endpoint id
	MaxTokens int
}

// NewArkProvider connects the Ark adapter.
func NewArkProvider(ctx context.Context, config *ArkConfig) (*ArkProvider, error) {
	apiKey := firstNonEmpty(config.APIKey, os.Getenv("ARK_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("ark: no api key (set ARK_API_KEY)")
	}
	endpointID := firstNonEmpty(config.Model, os.Getenv("ARK_MODEL_ID"))
	if endpointID == "" {
		return nil, fmt.Errorf("ark: no endpoint id (set ARK_MODEL_ID)")
	}

	maxTokens := config.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	cfg := &ark.ChatModelConfig{
		APIKey:    apiKey,
		Model:     endpointID,
		MaxTokens: &maxTokens,
	}
	if baseURL := firstNonEmpty(config.BaseURL, os.Getenv("ARK_BASE_URL")); baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ark: %w", err)
	}

	return &ArkProvider{chatModel: chatModel, endpointID: endpointID}, nil
}

func (p *ArkProvider) ID() string   { return "ark" }
func (p *ArkProvider) Name() string { return "Ark" }

// Models returns the single configured endpoint. Pricing varies per
// endpoint and isn't advertised.
func (p *ArkProvider) Models() []types.Model {
	return []types.Model{{
		ID:              p.endpointID,
		Name:            "Ark endpoint " + p.endpointID,
		ProviderID:      "ark",
		ContextLength:   128000,
		MaxOutputTokens: 4096,
		SupportsTools:   true,
		SupportsVision:  true,
	}}
}

// ChatModel returns the underlying eino model.
func (p *ArkProvider) ChatModel() model.ToolCallingChatModel {
	return p.chatModel
}

// CreateCompletion opens a streaming completion against the endpoint.
func (p *ArkProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	return streamCompletion(ctx, p.chatModel, req)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
