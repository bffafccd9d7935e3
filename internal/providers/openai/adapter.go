package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Config holds OpenAI client configuration.
type Config struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	OrgID   string `yaml:"org_id"`
}

// Adapter invokes OpenAI-compatible chat completion endpoints. BaseURL
// overrides make it usable for any OpenAI-wire-compatible backend.
type Adapter struct {
	client *openai.Client
	logger *logrus.Logger
}

// NewAdapter creates an OpenAI adapter.
func NewAdapter(config *Config, logger *logrus.Logger) *Adapter {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	return &Adapter{
		client: openai.NewClientWithConfig(clientConfig),
		logger: logger,
	}
}

// Invoke sends the request text as a single user message using the
// provider's invocation parameters.
func (a *Adapter) Invoke(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       provider.Invocation.Model,
		Temperature: float32(provider.Invocation.Temperature),
		MaxTokens:   provider.Invocation.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}

	if provider.Capabilities.SupportsJSONStrict && wantsJSON(reqContext) {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		a.logger.WithError(err).WithField("model", provider.Invocation.Model).Error("OpenAI API call failed")
		return "", fmt.Errorf("openai api call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// wantsJSON reports whether the request's module carries a structural
// content contract.
func wantsJSON(reqContext map[string]interface{}) bool {
	if reqContext == nil {
		return false
	}
	module, _ := reqContext["module"].(string)
	switch module {
	case "aula_interativa", "enem", "ti":
		return true
	}
	return false
}
