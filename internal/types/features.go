package types

// Complexity is the request complexity tier.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Domain is the detected request domain.
type Domain string

const (
	DomainEducational    Domain = "educational"
	DomainTechnical      Domain = "technical"
	DomainConversational Domain = "conversational"
)

// CostSensitivity expresses how much the user cares about request cost.
type CostSensitivity string

const (
	CostSensitivityLow    CostSensitivity = "low"
	CostSensitivityMedium CostSensitivity = "medium"
	CostSensitivityHigh   CostSensitivity = "high"
)

// ContextualFeatures is an immutable per-request snapshot produced by the
// feature extractor and consumed by the scoring engine and the learning
// update. It is never shared across requests.
type ContextualFeatures struct {
	Language           string          `json:"language"` // "pt", "en", "mixed"
	Complexity         Complexity      `json:"complexity"`
	Domain             Domain          `json:"domain"`
	RequiresJSONStrict bool            `json:"requires_json_strict"`
	RequiresToolUse    bool            `json:"requires_tool_use"`
	RequiresStreaming  bool            `json:"requires_streaming"`
	ContextLength      int             `json:"context_length"`
	UserType           string          `json:"user_type"`
	SessionHistory     SessionHistory  `json:"session_history"`
	Preferences        UserPreferences `json:"preferences"`
	TimeOfDay          string          `json:"time_of_day"` // "peak", "off_peak"
	DayType            string          `json:"day_type"`    // "weekday", "weekend"
	SystemLoad         string          `json:"system_load"` // "low", "medium", "high"
}

// SessionHistory summarizes the user's prior interactions in this session.
type SessionHistory struct {
	Module            string  `json:"module"`
	InteractionCount  int     `json:"interaction_count"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	Satisfaction      float64 `json:"satisfaction"`
}

// UserPreferences carries routing-relevant user preferences.
type UserPreferences struct {
	ResponseStyle   string          `json:"response_style"`
	MaxLatencyMs    float64         `json:"max_latency_ms"`
	CostSensitivity CostSensitivity `json:"cost_sensitivity"`
}
