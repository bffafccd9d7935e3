package routing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/features"
	"github.com/edustack-ai/llm-router/internal/registry"
	"github.com/edustack-ai/llm-router/internal/types"
)

// ErrNoProvidersEnabled is returned when selection runs against an empty
// enabled set. There is no safe default, so callers must surface this as a
// hard routing failure rather than retry.
var ErrNoProvidersEnabled = errors.New("no providers enabled")

// Weights are the relative importance of the four sub-scores. They should
// sum to roughly 1.0 but the engine does not normalize them.
type Weights struct {
	Quality     float64 `yaml:"quality"`
	Speed       float64 `yaml:"speed"`
	Cost        float64 `yaml:"cost"`
	Reliability float64 `yaml:"reliability"`
}

// Penalties subtracted from the weighted sum.
type Penalties struct {
	MissingJSONStrict   float64 `yaml:"missing_json_strict"`
	MissingToolUse      float64 `yaml:"missing_tool_use"`
	InsufficientContext float64 `yaml:"insufficient_context"`
	PerConsecutiveError float64 `yaml:"per_consecutive_error"`
	HighCost            float64 `yaml:"high_cost"`
}

// Bonuses added to the weighted sum.
type Bonuses struct {
	StrongExpertise float64 `yaml:"strong_expertise"`
	PeakFast        float64 `yaml:"peak_fast"`
	ComplianceMinor float64 `yaml:"compliance_minor"`
}

// ScoringConfig carries all tunable scoring constants. The defaults are
// hand-tuned starting points, not measured optima; operators are expected
// to adjust them from observed outcomes.
type ScoringConfig struct {
	Weights   Weights   `yaml:"weights"`
	Penalties Penalties `yaml:"penalties"`
	Bonuses   Bonuses   `yaml:"bonuses"`
}

// DefaultScoringConfig returns the default scoring constants.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: Weights{
			Quality:     0.4,
			Speed:       0.3,
			Cost:        0.2,
			Reliability: 0.1,
		},
		Penalties: Penalties{
			MissingJSONStrict:   0.5,
			MissingToolUse:      0.3,
			InsufficientContext: 0.4,
			PerConsecutiveError: 0.2,
			HighCost:            0.2,
		},
		Bonuses: Bonuses{
			StrongExpertise: 0.2,
			PeakFast:        0.1,
			ComplianceMinor: 0.1,
		},
	}
}

// Latency and cost normalization references, plus the token approximations
// used for cost estimation.
const (
	latencyCeilingMs     = 5000.0
	costCeiling          = 0.10
	referenceInputPer1K  = 0.00015
	simpleOutputTokens   = 500
	complexOutputTokens  = 1000
	strongExpertiseFloor = 0.9
	peakLatencyCeilingMs = 1000.0
)

// Roles whose requests may carry data about minors, for the compliance bonus.
var minorBearingRoles = map[string]bool{
	"student": true,
	"aluno":   true,
	"minor":   true,
}

// Engine is the scoring engine. Apart from the learning store it is
// stateless: scoring a fixed provider set with fixed features and metrics
// always yields the same ranking.
type Engine struct {
	registry  *registry.Registry
	extractor *features.Extractor
	scoring   ScoringConfig
	learning  *LearningStore
	logger    *logrus.Logger
}

// NewEngine creates a scoring engine with a fresh learning store.
func NewEngine(reg *registry.Registry, extractor *features.Extractor, scoring ScoringConfig, logger *logrus.Logger) *Engine {
	return &Engine{
		registry:  reg,
		extractor: extractor,
		scoring:   scoring,
		learning:  NewLearningStore(),
		logger:    logger,
	}
}

// SelectProvider extracts features from the raw request and ranks every
// enabled provider.
func (e *Engine) SelectProvider(text string, reqContext map[string]interface{}, userProfile map[string]interface{}) (RoutingDecision, error) {
	feats := e.extractor.Extract(text, reqContext, userProfile)
	return e.Select(feats)
}

// Select ranks every enabled provider against an already-extracted feature
// snapshot. The fallback chain contains every enabled provider exactly once.
func (e *Engine) Select(feats types.ContextualFeatures) (RoutingDecision, error) {
	enabled := e.registry.EnabledProviders()
	if len(enabled) == 0 {
		return RoutingDecision{}, ErrNoProvidersEnabled
	}

	scores := make([]types.ProviderScore, 0, len(enabled))
	for i := range enabled {
		scores = append(scores, e.scoreProvider(&enabled[i], feats))
	}

	// Stable sort with an id tie-break keeps the ranking deterministic.
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ProviderID < scores[j].ProviderID
	})

	winner := scores[0]
	alternatives := scores[1:]
	if len(alternatives) > 3 {
		alternatives = alternatives[:3]
	}

	chain := make([]string, len(scores))
	for i, s := range scores {
		chain[i] = s.ProviderID
	}

	decision := RoutingDecision{
		SelectedProvider: winner.ProviderID,
		Confidence:       winner.Score,
		Reasoning:        []string{winner.Reasoning},
		Alternatives:     append([]types.ProviderScore(nil), alternatives...),
		FallbackChain:    chain,
		Estimated:        winner.Estimated,
	}

	e.logger.WithFields(logrus.Fields{
		"provider":   winner.ProviderID,
		"confidence": winner.Score,
		"candidates": len(scores),
		"domain":     feats.Domain,
		"complexity": feats.Complexity,
	}).Debug("Provider selected")

	return decision, nil
}

// UpdateLearningData records the outcome of a completed request for the
// (provider, domain, complexity) key. Safe to call concurrently.
func (e *Engine) UpdateLearningData(providerID string, feats types.ContextualFeatures, success bool, satisfaction *float64) {
	e.learning.Update(providerID, feats.Domain, feats.Complexity, success, satisfaction)
}

// LearningStats returns a snapshot of the learning aggregates.
func (e *Engine) LearningStats() map[string]types.LearningMetrics {
	return e.learning.Stats()
}

func (e *Engine) scoreProvider(p *types.Provider, feats types.ContextualFeatures) types.ProviderScore {
	metrics, err := e.registry.Metrics(p.ID)
	if err != nil {
		metrics = types.ProviderMetrics{}
	}
	caps := &p.Capabilities
	w := e.scoring.Weights

	quality := qualityScore(caps, feats)
	speed := speedScore(caps, feats)
	estimatedCost := estimateCost(caps, feats)
	cost := costScore(estimatedCost, feats)
	reliability := reliabilityScore(caps, &metrics)

	score := quality*w.Quality + speed*w.Speed + cost*w.Cost + reliability*w.Reliability

	penalty := e.penalties(caps, feats, &metrics)
	bonus := e.bonuses(caps, feats)
	learning := e.learning.Adjustment(p.ID, feats.Domain, feats.Complexity)

	score = score - penalty + bonus + learning
	if score < 0 {
		score = 0
	}

	reasoning := fmt.Sprintf(
		"Quality: %.2f (weight %.2f); Speed: %.2f (weight %.2f); Cost: %.2f (weight %.2f); Reliability: %.2f (weight %.2f); Penalties: -%.2f; Bonuses: +%.2f",
		quality, w.Quality, speed, w.Speed, cost, w.Cost, reliability, w.Reliability, penalty, bonus)
	if learning != 0 {
		reasoning += fmt.Sprintf("; Learning: %+.2f", learning)
	}

	return types.ProviderScore{
		ProviderID: p.ID,
		Score:      score,
		Reasoning:  reasoning,
		Estimated: types.EstimatedMetrics{
			LatencyMs: caps.AvgLatencyMs,
			Cost:      estimatedCost,
			Quality:   quality,
		},
	}
}

// qualityScore starts from a 0.5 base and rewards capability matches,
// capped at 1.0.
func qualityScore(caps *types.Capabilities, feats types.ContextualFeatures) float64 {
	score := 0.5

	if feats.RequiresJSONStrict && caps.SupportsJSONStrict {
		score += 0.3
	}
	if feats.RequiresToolUse && caps.SupportsToolUse {
		score += 0.2
	}
	if confidence, ok := expertiseFor(caps, feats.Domain); ok {
		score += confidence * 0.3
	}
	if caps.LanguagePreference == feats.Language || caps.LanguagePreference == "multilingual" {
		score += 0.1
	}
	if caps.MaxContextTokens >= feats.ContextLength {
		score += 0.1
	}

	return math.Min(1.0, score)
}

// speedScore normalizes average latency against the 5s ceiling, with a
// streaming bonus when streaming is both required and supported.
func speedScore(caps *types.Capabilities, feats types.ContextualFeatures) float64 {
	score := math.Max(0, 1-caps.AvgLatencyMs/latencyCeilingMs)
	if feats.RequiresStreaming && caps.SupportsStreaming {
		score += 0.2
	}
	return math.Min(1.0, score)
}

// costScore normalizes the estimated request cost against the ceiling and
// scales it by the user's cost sensitivity.
func costScore(estimatedCost float64, feats types.ContextualFeatures) float64 {
	score := math.Max(0, 1-estimatedCost/costCeiling)

	multiplier := 1.0
	switch feats.Preferences.CostSensitivity {
	case types.CostSensitivityLow:
		multiplier = 0.5
	case types.CostSensitivityHigh:
		multiplier = 1.5
	}

	return math.Min(1.0, score*multiplier)
}

// reliabilityScore is the observed success rate minus a consecutive-error
// penalty of 0.1 per error capped at 0.5, floored at 0. Providers without
// traffic fall back to their declared baseline rate.
func reliabilityScore(caps *types.Capabilities, metrics *types.ProviderMetrics) float64 {
	successRate := metrics.SuccessRate()
	if successRate < 0 {
		successRate = caps.SuccessRate
	}
	penalty := math.Min(0.5, float64(metrics.ConsecutiveErrors)*0.1)
	return math.Max(0, successRate-penalty)
}

func (e *Engine) penalties(caps *types.Capabilities, feats types.ContextualFeatures, metrics *types.ProviderMetrics) float64 {
	p := e.scoring.Penalties
	var total float64

	if feats.RequiresJSONStrict && !caps.SupportsJSONStrict {
		total += p.MissingJSONStrict
	}
	if feats.RequiresToolUse && !caps.SupportsToolUse {
		total += p.MissingToolUse
	}
	if caps.MaxContextTokens < feats.ContextLength {
		total += p.InsufficientContext
	}
	if metrics.ConsecutiveErrors > 2 {
		total += p.PerConsecutiveError * float64(metrics.ConsecutiveErrors)
	}
	if feats.Preferences.CostSensitivity == types.CostSensitivityHigh {
		if caps.CostPer1KTokens.InputPer1K/referenceInputPer1K > 2 {
			total += p.HighCost
		}
	}

	return total
}

func (e *Engine) bonuses(caps *types.Capabilities, feats types.ContextualFeatures) float64 {
	b := e.scoring.Bonuses
	var total float64

	if confidence, ok := expertiseFor(caps, feats.Domain); ok && confidence > strongExpertiseFloor {
		total += b.StrongExpertise
	}
	if feats.TimeOfDay == "peak" && caps.AvgLatencyMs < peakLatencyCeilingMs {
		total += b.PeakFast
	}
	if minorBearingRoles[feats.UserType] && hasDataProtectionCompliance(caps) {
		total += b.ComplianceMinor
	}

	return total
}

// estimateCost approximates request cost from context length (4 chars per
// token) and a complexity-dependent output size.
func estimateCost(caps *types.Capabilities, feats types.ContextualFeatures) float64 {
	inputTokens := math.Ceil(float64(feats.ContextLength) / 4)
	outputTokens := float64(simpleOutputTokens)
	if feats.Complexity == types.ComplexityComplex {
		outputTokens = complexOutputTokens
	}

	inputCost := (inputTokens / 1000) * caps.CostPer1KTokens.InputPer1K
	outputCost := (outputTokens / 1000) * caps.CostPer1KTokens.OutputPer1K
	return inputCost + outputCost
}

func expertiseFor(caps *types.Capabilities, domain types.Domain) (float64, bool) {
	for _, exp := range caps.DomainExpertise {
		if exp.Domain == domain {
			return exp.Confidence, true
		}
	}
	return 0, false
}

func hasDataProtectionCompliance(caps *types.Capabilities) bool {
	for _, c := range caps.Compliance {
		if c.Standard == "GDPR" || c.Standard == "LGPD" {
			return true
		}
	}
	return false
}
