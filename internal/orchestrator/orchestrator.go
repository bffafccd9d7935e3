package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/audit"
	"github.com/edustack-ai/llm-router/internal/features"
	"github.com/edustack-ai/llm-router/internal/providers"
	"github.com/edustack-ai/llm-router/internal/registry"
	"github.com/edustack-ai/llm-router/internal/routing"
	"github.com/edustack-ai/llm-router/internal/safety"
	"github.com/edustack-ai/llm-router/internal/telemetry"
	"github.com/edustack-ai/llm-router/internal/types"
)

// Settings are the orchestrator's runtime-adjustable knobs.
type Settings struct {
	Mode             types.RolloutMode `json:"mode" yaml:"mode"`
	CanaryPercentage float64           `json:"canary_percentage" yaml:"canary_percentage"`
	BaselineProvider string            `json:"baseline_provider" yaml:"baseline_provider"`
	FallbackProvider string            `json:"fallback_provider" yaml:"fallback_provider"`
	RequestTimeout   time.Duration     `json:"request_timeout" yaml:"request_timeout"`
	Budgets          BudgetConfig      `json:"budgets" yaml:"budgets"`
}

// SettingsPatch is a partial settings update; nil fields keep their value.
type SettingsPatch struct {
	Mode             *types.RolloutMode `json:"mode,omitempty"`
	CanaryPercentage *float64           `json:"canary_percentage,omitempty"`
	FallbackProvider *string            `json:"fallback_provider,omitempty"`
	RequestTimeout   *time.Duration     `json:"request_timeout,omitempty"`
	Budgets          *BudgetConfig      `json:"budgets,omitempty"`
}

// Orchestrator ties the pipeline together: feature extraction,
// pre-validation, provider selection, rollout policy, dispatch,
// post-validation, metrics, audit and learning. Its Route method never
// returns an error; every failure degrades into a structurally valid
// response.
type Orchestrator struct {
	registry   *registry.Registry
	extractor  *features.Extractor
	safety     *safety.Layer
	engine     *routing.Engine
	rollout    *routing.RolloutPolicy
	dispatcher *providers.Dispatcher
	trail      *audit.Trail
	metrics    *telemetry.Metrics
	budgets    *BudgetTracker
	logger     *logrus.Logger

	mu               sync.RWMutex
	enabled          bool
	fallbackProvider string
	requestTimeout   time.Duration
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Registry   *registry.Registry
	Extractor  *features.Extractor
	Safety     *safety.Layer
	Engine     *routing.Engine
	Rollout    *routing.RolloutPolicy
	Dispatcher *providers.Dispatcher
	Trail      *audit.Trail
	Metrics    *telemetry.Metrics
	Logger     *logrus.Logger
}

// New creates an orchestrator. It starts disabled; call Enable to begin
// scoring-based routing.
func New(deps Deps, fallbackProvider string, requestTimeout time.Duration, budgets BudgetConfig) *Orchestrator {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	return &Orchestrator{
		registry:         deps.Registry,
		extractor:        deps.Extractor,
		safety:           deps.Safety,
		engine:           deps.Engine,
		rollout:          deps.Rollout,
		dispatcher:       deps.Dispatcher,
		trail:            deps.Trail,
		metrics:          deps.Metrics,
		budgets:          NewBudgetTracker(budgets),
		logger:           deps.Logger,
		fallbackProvider: fallbackProvider,
		requestTimeout:   requestTimeout,
	}
}

// Route runs the full pipeline for one request. It never panics and never
// returns an error: degraded operation is expressed through the response's
// safety recommendations and provider field.
func (o *Orchestrator) Route(ctx context.Context, text string, reqContext map[string]interface{}, userProfile map[string]interface{}) (response types.RouterResponse) {
	requestID := "req_" + uuid.NewString()
	start := time.Now()
	module := moduleOf(reqContext)

	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(logrus.Fields{
				"request_id": requestID,
				"panic":      r,
			}).Error("Routing pipeline panicked")
			response = o.fallbackResponse(text, reqContext, requestID, start,
				fmt.Sprintf("internal error, fallback mode: %v", r))
		}
	}()

	if !o.IsEnabled() {
		return o.fallbackResponse(text, reqContext, requestID, start, "router disabled, fallback mode")
	}

	feats := o.extractor.Extract(text, reqContext, userProfile)

	preValidation := o.safety.ValidatePre(text, reqContext, userProfile)
	o.metrics.ObserveSafetyIssues(preValidation.Issues)
	if !preValidation.Passed || hasPIIIssue(preValidation.Issues) {
		text = safety.Sanitize(text)
	}

	decision, err := o.engine.Select(feats)
	if err != nil {
		// No enabled providers is a hard routing failure: there is no safe
		// default, so it is surfaced explicitly instead of masked by fallback.
		o.logger.WithField("request_id", requestID).WithError(err).Error("Provider selection failed")
		trace := types.RouterMetrics{
			Timestamp: time.Now(),
			RequestID: requestID,
			Module:    module,
		}
		o.trail.Record(trace)
		return types.RouterResponse{
			Success: false,
			Safety: types.SafetyValidation{
				Passed:          true,
				Recommendations: []string{fmt.Sprintf("routing failed: %v", err)},
			},
			Trace: trace,
		}
	}

	dispatch := o.rollout.Apply(decision)
	if dispatch.Substituted {
		o.metrics.ObserveSubstitution(o.rollout.Mode())
	}

	provider, err := o.registry.Get(dispatch.Provider)
	if err != nil {
		o.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"provider":   dispatch.Provider,
		}).WithError(err).Error("Dispatch target not registered")
		return o.fallbackResponse(text, reqContext, requestID, start,
			fmt.Sprintf("provider %s unavailable, fallback mode", dispatch.Provider))
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, o.timeout())
	content, dispatchErr := o.dispatcher.Dispatch(dispatchCtx, provider, text, reqContext)
	cancel()

	latency := time.Since(start)
	cost := requestCost(&provider.Capabilities, text, content)

	if err := o.registry.UpdateMetrics(provider.ID, types.MetricsDelta{
		Requests: 1,
		Success:  dispatchErr == nil,
		Latency:  latency,
		Cost:     cost,
		LastUsed: time.Now(),
	}); err != nil {
		o.logger.WithError(err).Warn("Failed to update provider metrics")
	}
	o.metrics.ObserveRequest(provider.ID, module, dispatchErr == nil, latency, cost)

	if dispatchErr != nil {
		o.logger.WithFields(logrus.Fields{
			"request_id": requestID,
			"provider":   provider.ID,
		}).WithError(dispatchErr).Warn("Dispatch failed")
		o.engine.UpdateLearningData(provider.ID, feats, false, nil)
		return o.fallbackResponse(text, reqContext, requestID, start,
			fmt.Sprintf("dispatch to %s failed, fallback mode", provider.ID))
	}

	postValidation := o.safety.ValidatePost(content, latency.Milliseconds(), cost, schemaFor(module))
	o.metrics.ObserveSafetyIssues(postValidation.Issues)

	warnings := o.budgets.Charge(module, sessionOf(reqContext), cost)
	postValidation.Recommendations = append(postValidation.Recommendations, warnings...)

	trace := types.RouterMetrics{
		Timestamp:        time.Now(),
		RequestID:        requestID,
		Module:           module,
		SelectedProvider: provider.ID,
		Alternatives:     decision.Alternatives,
		Actual: types.ActualMetrics{
			LatencyMs:   latency.Milliseconds(),
			Cost:        cost,
			Success:     true,
			SchemaValid: !hasSchemaIssue(postValidation.Issues),
		},
	}
	if o.rollout.Mode() == types.ModeShadow || dispatch.Substituted {
		trace.ShadowComparison = &types.ShadowComparison{
			RecommendedProvider: decision.SelectedProvider,
			ActualProvider:      provider.ID,
			PerformanceGap:      performanceGap(decision, provider.ID),
		}
	}
	o.trail.Record(trace)

	o.engine.UpdateLearningData(provider.ID, feats, true, satisfactionOf(reqContext))

	return types.RouterResponse{
		Success:  true,
		Content:  content,
		Provider: provider.ID,
		Metrics: types.ResponseMetrics{
			LatencyMs: latency.Milliseconds(),
			Cost:      cost,
			Tokens:    tokenUsage(text, content),
		},
		Safety: postValidation,
		Trace:  trace,
	}
}

// fallbackResponse is the degraded path: deterministic content from the
// designated fallback provider, marked successful, with a recommendation
// explaining why.
func (o *Orchestrator) fallbackResponse(text string, reqContext map[string]interface{}, requestID string, start time.Time, reason string) types.RouterResponse {
	o.metrics.ObserveFallback()

	content := providers.FallbackContent(text, reqContext)
	latency := time.Since(start)

	o.mu.RLock()
	fallbackID := o.fallbackProvider
	o.mu.RUnlock()

	trace := types.RouterMetrics{
		Timestamp:        time.Now(),
		RequestID:        requestID,
		Module:           moduleOf(reqContext),
		SelectedProvider: fallbackID,
		Actual: types.ActualMetrics{
			LatencyMs: latency.Milliseconds(),
			Cost:      fallbackCost,
			Success:   true,
		},
	}
	o.trail.Record(trace)

	return types.RouterResponse{
		Success:  true,
		Content:  content,
		Provider: fallbackID,
		Metrics: types.ResponseMetrics{
			LatencyMs: latency.Milliseconds(),
			Cost:      fallbackCost,
			Tokens:    tokenUsage(text, content),
		},
		Safety: types.SafetyValidation{
			Passed:          true,
			Recommendations: []string{reason},
		},
		Trace: trace,
	}
}

// Nominal cost attributed to a fallback response.
const fallbackCost = 0.001

// Operational controls

// Enable turns scoring-based routing on.
func (o *Orchestrator) Enable() {
	o.mu.Lock()
	o.enabled = true
	o.mu.Unlock()
	o.logger.Info("Router enabled")
}

// Disable sends every request down the deterministic fallback path.
func (o *Orchestrator) Disable() {
	o.mu.Lock()
	o.enabled = false
	o.mu.Unlock()
	o.logger.Info("Router disabled")
}

// IsEnabled reports whether scoring-based routing is active.
func (o *Orchestrator) IsEnabled() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.enabled
}

// SetMode switches the rollout mode.
func (o *Orchestrator) SetMode(mode types.RolloutMode) {
	o.rollout.SetMode(mode)
	o.logger.WithField("mode", mode).Info("Rollout mode changed")
}

// SetCanaryPercentage adjusts the canary share, clamped to [0,100].
func (o *Orchestrator) SetCanaryPercentage(pct float64) {
	o.rollout.SetCanaryPercentage(pct)
	o.logger.WithField("canary_percentage", o.rollout.CanaryPercentage()).Info("Canary percentage changed")
}

// UpdateConfig applies a partial settings update.
func (o *Orchestrator) UpdateConfig(patch SettingsPatch) {
	if patch.Mode != nil {
		o.SetMode(*patch.Mode)
	}
	if patch.CanaryPercentage != nil {
		o.SetCanaryPercentage(*patch.CanaryPercentage)
	}
	if patch.FallbackProvider != nil {
		o.mu.Lock()
		o.fallbackProvider = *patch.FallbackProvider
		o.mu.Unlock()
	}
	if patch.RequestTimeout != nil && *patch.RequestTimeout > 0 {
		o.mu.Lock()
		o.requestTimeout = *patch.RequestTimeout
		o.mu.Unlock()
	}
	if patch.Budgets != nil {
		o.budgets.SetConfig(*patch.Budgets)
	}
	o.logger.Info("Router config updated")
}

// GetConfig returns a snapshot of the active settings.
func (o *Orchestrator) GetConfig() Settings {
	o.mu.RLock()
	fallbackID := o.fallbackProvider
	timeout := o.requestTimeout
	o.mu.RUnlock()

	return Settings{
		Mode:             o.rollout.Mode(),
		CanaryPercentage: o.rollout.CanaryPercentage(),
		BaselineProvider: o.rollout.Baseline(),
		FallbackProvider: fallbackID,
		RequestTimeout:   timeout,
		Budgets:          o.budgets.Config(),
	}
}

// GetMetrics returns the append-only audit trail.
func (o *Orchestrator) GetMetrics() []types.RouterMetrics {
	return o.trail.Entries()
}

// GetProviderHealth returns the health verdict per registered provider.
func (o *Orchestrator) GetProviderHealth() map[string]types.HealthState {
	return o.registry.HealthAll()
}

// GetLearningStats returns the learning aggregates.
func (o *Orchestrator) GetLearningStats() map[string]types.LearningMetrics {
	return o.engine.LearningStats()
}

// Helpers

func (o *Orchestrator) timeout() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.requestTimeout
}

func moduleOf(reqContext map[string]interface{}) string {
	if reqContext == nil {
		return "unknown"
	}
	if v, ok := reqContext["module"].(string); ok && v != "" {
		return v
	}
	return "unknown"
}

func sessionOf(reqContext map[string]interface{}) string {
	if reqContext == nil {
		return ""
	}
	v, _ := reqContext["session_id"].(string)
	return v
}

func satisfactionOf(reqContext map[string]interface{}) *float64 {
	if reqContext == nil {
		return nil
	}
	if v, ok := reqContext["satisfaction"].(float64); ok {
		return &v
	}
	return nil
}

// schemaFor maps a module tag to its schema name. The safety layer treats
// unregistered names as "no contract expected".
func schemaFor(module string) string {
	if module == "unknown" {
		return ""
	}
	return module
}

func hasPIIIssue(issues []types.SafetyIssue) bool {
	for _, issue := range issues {
		if issue.Type == "pii" {
			return true
		}
	}
	return false
}

func hasSchemaIssue(issues []types.SafetyIssue) bool {
	for _, issue := range issues {
		if issue.Type == "schema" {
			return true
		}
	}
	return false
}

func performanceGap(decision routing.RoutingDecision, actualProvider string) float64 {
	if decision.SelectedProvider == actualProvider {
		return 0
	}
	for _, alt := range decision.Alternatives {
		if alt.ProviderID == actualProvider {
			return decision.Confidence - alt.Score
		}
	}
	return 0
}

func requestCost(caps *types.Capabilities, input, output string) float64 {
	inputTokens := float64((len(input) + 3) / 4)
	outputTokens := float64((len(output) + 3) / 4)
	return (inputTokens/1000)*caps.CostPer1KTokens.InputPer1K +
		(outputTokens/1000)*caps.CostPer1KTokens.OutputPer1K
}

func tokenUsage(input, output string) types.TokenUsage {
	in := (len(input) + 3) / 4
	out := (len(output) + 3) / 4
	return types.TokenUsage{Input: in, Output: out, Total: in + out}
}
