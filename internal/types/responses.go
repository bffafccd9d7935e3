package types

import "time"

// Severity classifies a safety issue.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SafetyIssue is a single finding from pre- or post-dispatch validation.
type SafetyIssue struct {
	Type        string   `json:"type"` // "pii", "content", "compliance", "schema", "timeout", "cost"
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Suggestion  string   `json:"suggestion,omitempty"`
}

// SafetyValidation is the outcome of a validation pass. Passed is false only
// when a critical-severity issue is present.
type SafetyValidation struct {
	Passed          bool          `json:"passed"`
	Issues          []SafetyIssue `json:"issues"`
	Recommendations []string      `json:"recommendations"`
}

// ProviderScore is one provider's ranked score within a routing decision.
type ProviderScore struct {
	ProviderID string           `json:"provider_id"`
	Score      float64          `json:"score"`
	Reasoning  string           `json:"reasoning"`
	Estimated  EstimatedMetrics `json:"estimated_metrics"`
}

// EstimatedMetrics are the scorer's estimates for a provider.
type EstimatedMetrics struct {
	LatencyMs float64 `json:"latency_ms"`
	Cost      float64 `json:"cost"`
	Quality   float64 `json:"quality"`
}

// ActualMetrics are the observed outcome of a dispatched request.
type ActualMetrics struct {
	LatencyMs        int64    `json:"latency_ms"`
	Cost             float64  `json:"cost"`
	Success          bool     `json:"success"`
	SchemaValid      bool     `json:"schema_valid"`
	UserSatisfaction *float64 `json:"user_satisfaction,omitempty"`
}

// ShadowComparison records what the scorer would have picked versus what was
// actually dispatched while running in shadow mode.
type ShadowComparison struct {
	RecommendedProvider string  `json:"recommended_provider"`
	ActualProvider      string  `json:"actual_provider"`
	PerformanceGap      float64 `json:"performance_gap"`
}

// RouterMetrics is the per-request audit record. Entries are appended to an
// ordered in-memory trail and never mutated afterwards.
type RouterMetrics struct {
	Timestamp        time.Time         `json:"timestamp"`
	RequestID        string            `json:"request_id"`
	Module           string            `json:"module"`
	SelectedProvider string            `json:"selected_provider"`
	Alternatives     []ProviderScore   `json:"alternatives"`
	Actual           ActualMetrics     `json:"actual_metrics"`
	ShadowComparison *ShadowComparison `json:"shadow_comparison,omitempty"`
}

// LearningMetrics aggregates outcomes for a (provider, domain, complexity)
// key. Only the counters are stored; the rates are derived on read.
type LearningMetrics struct {
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	TotalSatisfaction  float64 `json:"total_satisfaction"`
	AvgSatisfaction    float64 `json:"avg_satisfaction"`
	SuccessRate        float64 `json:"success_rate"`
}

// TokenUsage is the approximate token accounting for one request.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// ResponseMetrics are the caller-visible metrics of a routed request.
type ResponseMetrics struct {
	LatencyMs int64      `json:"latency_ms"`
	Cost      float64    `json:"cost"`
	Tokens    TokenUsage `json:"tokens"`
}

// RouterResponse is the orchestrator's reply. It is always structurally
// valid: degraded operation is expressed through Safety.Recommendations and
// the Provider field, never through an error.
type RouterResponse struct {
	Success  bool             `json:"success"`
	Content  string           `json:"content"`
	Provider string           `json:"provider"`
	Metrics  ResponseMetrics  `json:"metrics"`
	Safety   SafetyValidation `json:"safety"`
	Trace    RouterMetrics    `json:"trace"`
}

// RolloutMode controls how scorer output translates into actual dispatch.
type RolloutMode string

const (
	ModeShadow RolloutMode = "shadow"
	ModeCanary RolloutMode = "canary"
	ModeAuto   RolloutMode = "auto"
)
