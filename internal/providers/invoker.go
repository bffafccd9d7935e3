package providers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Invoker is the pluggable provider-invocation strategy: given a provider
// description and request text, return generated content within the bounds
// of the caller's context. Implementations must be safe for concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error)
}

// Dispatcher routes an invocation to the adapter registered for the
// provider's type, enforcing the provider's rate limits first. Provider
// types without a registered adapter use the fallback invoker.
type Dispatcher struct {
	invokers map[string]Invoker
	fallback Invoker
	limiter  *Limiter
	logger   *logrus.Logger
}

// NewDispatcher creates a dispatcher with the given fallback invoker.
func NewDispatcher(fallback Invoker, limiter *Limiter, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		invokers: make(map[string]Invoker),
		fallback: fallback,
		limiter:  limiter,
		logger:   logger,
	}
}

// Register binds an invoker to a provider type ("openai", "anthropic", ...).
func (d *Dispatcher) Register(providerType string, invoker Invoker) {
	d.invokers[providerType] = invoker
	d.logger.WithField("type", providerType).Info("Invoker registered")
}

// Dispatch invokes the provider through its adapter. A rate-limit rejection
// is a dispatch failure like any other; callers record it against the
// provider's error counters.
func (d *Dispatcher) Dispatch(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error) {
	estimatedTokens := len(text)/4 + provider.Invocation.MaxTokens

	if err := d.limiter.Acquire(provider, estimatedTokens); err != nil {
		return "", fmt.Errorf("provider %s: %w", provider.ID, err)
	}
	defer d.limiter.Release(provider.ID)

	invoker, ok := d.invokers[provider.Type]
	if !ok {
		invoker = d.fallback
	}

	content, err := invoker.Invoke(ctx, provider, text, reqContext)
	if err != nil {
		return "", fmt.Errorf("provider %s invocation failed: %w", provider.ID, err)
	}
	return content, nil
}
