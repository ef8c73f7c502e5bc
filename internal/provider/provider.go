// Package provider provides LLM provider abstraction using Eino framework.
package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/arborio/agentcore/pkg/types"
)

// Provider represents an LLM provider with Eino ChatModel.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// Models returns the list of available models.
	Models() []types.Model

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.ToolCallingChatModel

	// CreateCompletion creates a streaming completion.
	CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error)
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Model       string             `json:"model"`
	Messages    []*schema.Message  `json:"messages"`
	Tools       []*schema.ToolInfo `json:"tools,omitempty"`
	MaxTokens   int                `json:"maxTokens,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	TopP        float64            `json:"topP,omitempty"`
	StopWords   []string           `json:"stopWords,omitempty"`

	// Thinking is the Anthropic extended-thinking block produced by
	// GenerateOptions for high/max reasoning variants.
	Thinking *ThinkingOptions `json:"thinking,omitempty"`

	// ReasoningEffort is the OpenAI reasoning effort level ("high", ...).
	ReasoningEffort string `json:"reasoningEffort,omitempty"`
}

// CompletionStream wraps an Eino stream reader.
type CompletionStream struct {
	reader *schema.StreamReader[*schema.Message]
}

// NewCompletionStream creates a new completion stream.
func NewCompletionStream(reader *schema.StreamReader[*schema.Message]) *CompletionStream {
	return &CompletionStream{reader: reader}
}

// Recv receives the next message chunk from the stream.
func (s *CompletionStream) Recv() (*schema.Message, error) {
	return s.reader.Recv()
}

// Close closes the stream.
func (s *CompletionStream) Close() {
	s.reader.Close()
}

// streamCompletion binds req's tools onto chatModel and opens the stream.
// Shared by every adapter; provider-specific request shaping happens before
// this call.
func streamCompletion(ctx context.Context, chatModel model.ToolCallingChatModel, req *CompletionRequest) (*CompletionStream, error) {
	if len(req.Tools) > 0 {
		bound, err := chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		chatModel = bound
	}

	opts := []model.Option{model.WithMaxTokens(req.MaxTokens)}
	if req.Temperature > 0 {
		opts = append(opts, model.WithTemperature(float32(req.Temperature)))
	}

	stream, err := chatModel.Stream(ctx, req.Messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return NewCompletionStream(stream), nil
}
