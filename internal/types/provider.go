package types

import "time"

// Provider describes a registered backend capable of generating content.
// Providers are registered once and never deleted; disabling is the only
// removal semantic.
type Provider struct {
	ID               string           `json:"id" yaml:"id"`
	Name             string           `json:"name" yaml:"name"`
	Type             string           `json:"type" yaml:"type"` // "openai", "anthropic", "grok", "google", "mistral", "groq"
	Enabled          bool             `json:"enabled" yaml:"enabled"`
	Capabilities     Capabilities     `json:"capabilities" yaml:"capabilities"`
	Invocation       InvocationConfig `json:"invocation" yaml:"invocation"`
	Limits           RateLimits       `json:"limits" yaml:"limits"`
	FallbackPriority int              `json:"fallback_priority" yaml:"fallback_priority"`
}

// Capabilities holds the static capability description of a provider.
type Capabilities struct {
	SupportsJSONStrict bool              `json:"supports_json_strict" yaml:"supports_json_strict"`
	SupportsToolUse    bool              `json:"supports_tool_use" yaml:"supports_tool_use"`
	SupportsStreaming  bool              `json:"supports_streaming" yaml:"supports_streaming"`
	MaxContextTokens   int               `json:"max_context_tokens" yaml:"max_context_tokens"`
	LanguagePreference string            `json:"language_preference" yaml:"language_preference"` // "pt", "en", "multilingual"
	DomainExpertise    []DomainExpertise `json:"domain_expertise" yaml:"domain_expertise"`
	ResponseStyle      string            `json:"response_style" yaml:"response_style"`
	AvgLatencyMs       float64           `json:"avg_latency_ms" yaml:"avg_latency_ms"`
	SuccessRate        float64           `json:"success_rate" yaml:"success_rate"`
	CostPer1KTokens    CostStructure     `json:"cost_per_1k_tokens" yaml:"cost_per_1k_tokens"`
	DataResidency      []string          `json:"data_residency" yaml:"data_residency"`
	Compliance         []Compliance      `json:"compliance" yaml:"compliance"`
	SafetyFilterLevel  string            `json:"safety_filter_level" yaml:"safety_filter_level"`
}

// DomainExpertise declares provider expertise in a domain with a confidence score.
type DomainExpertise struct {
	Domain     Domain  `json:"domain" yaml:"domain"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Compliance names a certification the provider holds.
type Compliance struct {
	Standard string `json:"standard" yaml:"standard"` // "GDPR", "LGPD", "SOC2"
	Region   string `json:"region,omitempty" yaml:"region,omitempty"`
}

// CostStructure holds per-1000-token pricing.
type CostStructure struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
	Currency    string  `json:"currency" yaml:"currency"`
}

// InvocationConfig holds the parameters used when dispatching to the provider.
type InvocationConfig struct {
	Model       string  `json:"model" yaml:"model"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// RateLimits holds per-provider dispatch limits.
type RateLimits struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	TokensPerMinute   int `json:"tokens_per_minute" yaml:"tokens_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" yaml:"max_concurrent"`
}

// ProviderMetrics is the running aggregate for a provider. Counters are
// monotonic; ConsecutiveErrors resets to zero on any success.
type ProviderMetrics struct {
	TotalRequests      int64         `json:"total_requests"`
	SuccessfulRequests int64         `json:"successful_requests"`
	TotalLatency       time.Duration `json:"total_latency"`
	TotalCost          float64       `json:"total_cost"`
	LastUsed           time.Time     `json:"last_used"`
	ErrorCount         int64         `json:"error_count"`
	ConsecutiveErrors  int64         `json:"consecutive_errors"`
}

// SuccessRate returns the observed success rate, or -1 when no requests
// have been recorded yet.
func (m *ProviderMetrics) SuccessRate() float64 {
	if m.TotalRequests == 0 {
		return -1
	}
	return float64(m.SuccessfulRequests) / float64(m.TotalRequests)
}

// MetricsDelta is a partial metrics update. Counter fields are added to the
// stored aggregate; LastUsed replaces the stored timestamp when non-zero.
// A true Success resets ConsecutiveErrors regardless of the delta value.
type MetricsDelta struct {
	Requests int64
	Success  bool
	Latency  time.Duration
	Cost     float64
	LastUsed time.Time
}

// HealthState is the tri-state provider health verdict.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)
