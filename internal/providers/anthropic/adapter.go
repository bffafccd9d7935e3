package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Config holds Anthropic client configuration.
type Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// Adapter invokes the Anthropic Messages API.
type Adapter struct {
	client *anthropic.Client
	logger *logrus.Logger
}

// NewAdapter creates an Anthropic adapter.
func NewAdapter(config *Config, logger *logrus.Logger) *Adapter {
	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(opts...)
	return &Adapter{
		client: &client,
		logger: logger,
	}
}

// Invoke sends the request text as a single user message using the
// provider's invocation parameters.
func (a *Adapter) Invoke(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error) {
	maxTokens := int64(provider.Invocation.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024 // Anthropic requires max_tokens
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(provider.Invocation.Model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	}
	if provider.Invocation.Temperature > 0 {
		req.Temperature = anthropic.Float(provider.Invocation.Temperature)
	}

	resp, err := a.client.Messages.New(ctx, req)
	if err != nil {
		a.logger.WithError(err).WithField("model", provider.Invocation.Model).Error("Anthropic API call failed")
		return "", fmt.Errorf("anthropic api call failed: %w", err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	if content.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return content.String(), nil
}
