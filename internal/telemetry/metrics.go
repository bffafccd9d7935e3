package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Metrics holds the Prometheus instrumentation for the routing pipeline.
// It uses a private registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	requestCost        *prometheus.CounterVec
	fallbacksTotal     prometheus.Counter
	safetyIssuesTotal  *prometheus.CounterVec
	substitutionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the instrument set.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_router_requests_total",
			Help: "Routed requests by provider, module and outcome.",
		}, []string{"provider", "module", "outcome"}),
		requestLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ai_router_request_latency_seconds",
			Help:    "Dispatch latency by provider.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"provider"}),
		requestCost: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_router_request_cost_total",
			Help: "Accumulated request cost by provider.",
		}, []string{"provider"}),
		fallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ai_router_fallbacks_total",
			Help: "Requests served by the degraded fallback path.",
		}),
		safetyIssuesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_router_safety_issues_total",
			Help: "Safety issues by type and severity.",
		}, []string{"type", "severity"}),
		substitutionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_router_rollout_substitutions_total",
			Help: "Dispatches where the rollout policy substituted the baseline.",
		}, []string{"mode"}),
	}
}

// ObserveRequest records one completed dispatch.
func (m *Metrics) ObserveRequest(provider, module string, success bool, latency time.Duration, cost float64) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	m.requestsTotal.WithLabelValues(provider, module, outcome).Inc()
	m.requestLatency.WithLabelValues(provider).Observe(latency.Seconds())
	m.requestCost.WithLabelValues(provider).Add(cost)
}

// ObserveFallback records one degraded-path response.
func (m *Metrics) ObserveFallback() {
	m.fallbacksTotal.Inc()
}

// ObserveSafetyIssues records validation findings.
func (m *Metrics) ObserveSafetyIssues(issues []types.SafetyIssue) {
	for _, issue := range issues {
		m.safetyIssuesTotal.WithLabelValues(issue.Type, string(issue.Severity)).Inc()
	}
}

// ObserveSubstitution records a baseline substitution by the rollout policy.
func (m *Metrics) ObserveSubstitution(mode types.RolloutMode) {
	m.substitutionsTotal.WithLabelValues(string(mode)).Inc()
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
