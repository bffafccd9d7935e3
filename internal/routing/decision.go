package routing

import (
	"github.com/edustack-ai/llm-router/internal/types"
)

// RoutingDecision is the scorer's output for one request. It is produced
// once, never mutated, and consumed by the orchestrator for dispatch and
// audit recording.
type RoutingDecision struct {
	// Provider the scorer ranked highest
	SelectedProvider string `json:"selected_provider"`

	// Final score of the winner
	Confidence float64 `json:"confidence"`

	// Human-readable reasoning for the winner
	Reasoning []string `json:"reasoning"`

	// Up to three runner-up scores
	Alternatives []types.ProviderScore `json:"alternatives"`

	// Every enabled provider id, ordered by descending score
	FallbackChain []string `json:"fallback_chain"`

	// Scorer estimates for the winner
	Estimated types.EstimatedMetrics `json:"estimated_metrics"`
}

// DispatchDecision is the result of applying the rollout policy to a
// routing decision: the provider that will actually receive the request.
type DispatchDecision struct {
	// Provider to dispatch to
	Provider string `json:"provider"`

	// Why the dispatch target differs from the scorer's pick, if it does
	Reasoning string `json:"reasoning"`

	// True when the baseline was substituted for the scorer's pick
	Substituted bool `json:"substituted"`
}
