package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/types"
)

var (
	// ErrProviderNotFound is returned when a provider id is not registered.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrProviderAlreadyRegistered is returned on duplicate registration.
	ErrProviderAlreadyRegistered = errors.New("provider already registered")
)

// Registry holds every known provider together with its running metrics.
// Providers are mutated only through Enable/Disable and UpdateMetrics;
// metrics entries carry their own lock so concurrent updates for different
// providers never contend.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*types.Provider
	metrics   map[string]*metricsEntry
	logger    *logrus.Logger
}

type metricsEntry struct {
	mu sync.Mutex
	m  types.ProviderMetrics
}

// New creates an empty registry.
func New(logger *logrus.Logger) *Registry {
	return &Registry{
		providers: make(map[string]*types.Provider),
		metrics:   make(map[string]*metricsEntry),
		logger:    logger,
	}
}

// Register stores a provider and initializes its metrics to zero. Enabled
// providers must carry complete capability data; the scorer relies on it.
func (r *Registry) Register(p types.Provider) error {
	if p.ID == "" {
		return errors.New("provider id cannot be empty")
	}
	if err := validateCapabilities(&p); err != nil {
		return fmt.Errorf("provider %s: %w", p.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.ID]; exists {
		return ErrProviderAlreadyRegistered
	}

	stored := p
	r.providers[p.ID] = &stored
	r.metrics[p.ID] = &metricsEntry{}

	r.logger.WithFields(logrus.Fields{
		"provider": p.ID,
		"type":     p.Type,
		"enabled":  p.Enabled,
	}).Info("Provider registered")

	return nil
}

// validateCapabilities enforces the registry invariant that no provider with
// undefined capability data ever reaches the scorer.
func validateCapabilities(p *types.Provider) error {
	caps := p.Capabilities
	if caps.MaxContextTokens <= 0 {
		return errors.New("capabilities missing max_context_tokens")
	}
	if caps.AvgLatencyMs <= 0 {
		return errors.New("capabilities missing avg_latency_ms")
	}
	if caps.SuccessRate <= 0 || caps.SuccessRate > 1 {
		return errors.New("capabilities success_rate must be in (0,1]")
	}
	if caps.LanguagePreference == "" {
		return errors.New("capabilities missing language_preference")
	}
	if caps.CostPer1KTokens.InputPer1K < 0 || caps.CostPer1KTokens.OutputPer1K < 0 {
		return errors.New("capabilities cost must not be negative")
	}
	return nil
}

// Get returns a copy of the provider with the given id.
func (r *Registry) Get(id string) (types.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[id]
	if !exists {
		return types.Provider{}, ErrProviderNotFound
	}
	return *p, nil
}

// EnabledProviders returns copies of all providers with Enabled=true.
func (r *Registry) EnabledProviders() []types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	enabled := make([]types.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Enabled {
			enabled = append(enabled, *p)
		}
	}
	return enabled
}

// ProvidersByCapability filters enabled providers whose capability field
// named by key equals value. Unknown keys match nothing.
func (r *Registry) ProvidersByCapability(key string, value interface{}) []types.Provider {
	var matched []types.Provider
	for _, p := range r.EnabledProviders() {
		if capabilityMatches(&p.Capabilities, key, value) {
			matched = append(matched, p)
		}
	}
	return matched
}

func capabilityMatches(caps *types.Capabilities, key string, value interface{}) bool {
	switch key {
	case "supports_json_strict":
		v, ok := value.(bool)
		return ok && caps.SupportsJSONStrict == v
	case "supports_tool_use":
		v, ok := value.(bool)
		return ok && caps.SupportsToolUse == v
	case "supports_streaming":
		v, ok := value.(bool)
		return ok && caps.SupportsStreaming == v
	case "language_preference":
		v, ok := value.(string)
		return ok && caps.LanguagePreference == v
	case "response_style":
		v, ok := value.(string)
		return ok && caps.ResponseStyle == v
	default:
		return false
	}
}

// Enable flips the enabled flag on without touching history.
func (r *Registry) Enable(id string) error {
	return r.setEnabled(id, true)
}

// Disable flips the enabled flag off. Metrics and capability data survive.
func (r *Registry) Disable(id string) error {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.providers[id]
	if !exists {
		return ErrProviderNotFound
	}
	p.Enabled = enabled

	r.logger.WithFields(logrus.Fields{
		"provider": id,
		"enabled":  enabled,
	}).Info("Provider state changed")
	return nil
}

// UpdateMetrics merges a partial update into the provider's aggregate.
// Counters are additive; LastUsed is replaced when set. A success resets the
// consecutive-error streak, a failure extends it.
func (r *Registry) UpdateMetrics(id string, delta types.MetricsDelta) error {
	r.mu.RLock()
	entry, exists := r.metrics[id]
	r.mu.RUnlock()
	if !exists {
		return ErrProviderNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	entry.m.TotalRequests += delta.Requests
	entry.m.TotalLatency += delta.Latency
	entry.m.TotalCost += delta.Cost
	if !delta.LastUsed.IsZero() {
		entry.m.LastUsed = delta.LastUsed
	}
	if delta.Success {
		entry.m.SuccessfulRequests += delta.Requests
		entry.m.ConsecutiveErrors = 0
	} else if delta.Requests > 0 {
		entry.m.ErrorCount += delta.Requests
		entry.m.ConsecutiveErrors += delta.Requests
	}
	return nil
}

// Metrics returns a snapshot of the provider's aggregate metrics.
func (r *Registry) Metrics(id string) (types.ProviderMetrics, error) {
	r.mu.RLock()
	entry, exists := r.metrics[id]
	r.mu.RUnlock()
	if !exists {
		return types.ProviderMetrics{}, ErrProviderNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.m, nil
}

// Health derives the tri-state verdict for a provider: healthy at success
// rate >= 0.95 with a clean error streak, degraded at >= 0.85 with fewer
// than 3 consecutive errors, unhealthy otherwise. Providers without traffic
// are judged on their declared baseline success rate.
func (r *Registry) Health(id string) (types.HealthState, error) {
	p, err := r.Get(id)
	if err != nil {
		return "", err
	}
	m, err := r.Metrics(id)
	if err != nil {
		return "", err
	}

	successRate := m.SuccessRate()
	if successRate < 0 {
		successRate = p.Capabilities.SuccessRate
	}

	switch {
	case successRate >= 0.95 && m.ConsecutiveErrors == 0:
		return types.HealthHealthy, nil
	case successRate >= 0.85 && m.ConsecutiveErrors < 3:
		return types.HealthDegraded, nil
	default:
		return types.HealthUnhealthy, nil
	}
}

// HealthAll returns the health verdict for every registered provider.
func (r *Registry) HealthAll() map[string]types.HealthState {
	r.mu.RLock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	health := make(map[string]types.HealthState, len(ids))
	for _, id := range ids {
		state, err := r.Health(id)
		if err != nil {
			continue
		}
		health[id] = state
	}
	return health
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}
