package orchestrator

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack-ai/llm-router/internal/audit"
	"github.com/edustack-ai/llm-router/internal/features"
	"github.com/edustack-ai/llm-router/internal/providers"
	"github.com/edustack-ai/llm-router/internal/registry"
	"github.com/edustack-ai/llm-router/internal/routing"
	"github.com/edustack-ai/llm-router/internal/safety"
	"github.com/edustack-ai/llm-router/internal/telemetry"
	"github.com/edustack-ai/llm-router/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testProvider(id, providerType string) types.Provider {
	return types.Provider{
		ID:      id,
		Name:    id,
		Type:    providerType,
		Enabled: true,
		Capabilities: types.Capabilities{
			SupportsJSONStrict: true,
			SupportsToolUse:    true,
			SupportsStreaming:  true,
			MaxContextTokens:   128000,
			LanguagePreference: "multilingual",
			ResponseStyle:      "balanced",
			AvgLatencyMs:       1000,
			SuccessRate:        0.98,
			CostPer1KTokens:    types.CostStructure{InputPer1K: 0.0002, OutputPer1K: 0.0006, Currency: "USD"},
		},
		Invocation: types.InvocationConfig{Model: "test-model", Temperature: 0.7, MaxTokens: 512},
	}
}

type panicInvoker struct{}

func (panicInvoker) Invoke(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error) {
	panic("backend exploded")
}

type errorInvoker struct{}

func (errorInvoker) Invoke(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error) {
	return "", errors.New("backend unavailable")
}

type captureInvoker struct {
	mu       sync.Mutex
	lastText string
}

func (c *captureInvoker) Invoke(ctx context.Context, provider types.Provider, text string, reqContext map[string]interface{}) (string, error) {
	c.mu.Lock()
	c.lastText = text
	c.mu.Unlock()
	return "resposta simulada com conteúdo suficiente", nil
}

func (c *captureInvoker) received() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastText
}

type testHarness struct {
	orch       *Orchestrator
	registry   *registry.Registry
	engine     *routing.Engine
	dispatcher *providers.Dispatcher
	trail      *audit.Trail
}

func newTestHarness(t *testing.T, mode types.RolloutMode, baseline string, fleet ...types.Provider) *testHarness {
	t.Helper()
	logger := testLogger()

	reg := registry.New(logger)
	for _, p := range fleet {
		require.NoError(t, reg.Register(p))
	}

	extractor := features.NewExtractor()
	engine := routing.NewEngine(reg, extractor, routing.DefaultScoringConfig(), logger)
	rollout := routing.NewRolloutPolicy(routing.RolloutConfig{
		Mode:             mode,
		CanaryPercentage: 5,
		BaselineProvider: baseline,
	})
	dispatcher := providers.NewDispatcher(providers.NewSimulated(), providers.NewLimiter(logger), logger)
	trail := audit.NewTrail(100, logger)

	orch := New(Deps{
		Registry:   reg,
		Extractor:  extractor,
		Safety:     safety.NewLayer(safety.NewSchemaCatalog(), logger),
		Engine:     engine,
		Rollout:    rollout,
		Dispatcher: dispatcher,
		Trail:      trail,
		Metrics:    telemetry.NewMetrics(),
		Logger:     logger,
	}, "fallback-provider", 5*time.Second, BudgetConfig{})

	return &testHarness{orch: orch, registry: reg, engine: engine, dispatcher: dispatcher, trail: trail}
}

func TestRouteDisabledUsesFallback(t *testing.T) {
	h := newTestHarness(t, types.ModeAuto, "p1", testProvider("p1", "openai"))

	resp := h.orch.Route(context.Background(), "Explique fotossíntese", nil, nil)

	assert.True(t, resp.Success)
	assert.Equal(t, "fallback-provider", resp.Provider)
	assert.NotEmpty(t, resp.Content)
	require.NotEmpty(t, resp.Safety.Recommendations)
	assert.Contains(t, resp.Safety.Recommendations[0], "disabled")
}

func TestRouteNeverPanics(t *testing.T) {
	h := newTestHarness(t, types.ModeAuto, "p1", testProvider("p1", "volatile"))
	h.dispatcher.Register("volatile", panicInvoker{})
	h.orch.Enable()

	var resp types.RouterResponse
	require.NotPanics(t, func() {
		resp = h.orch.Route(context.Background(), "Explique fotossíntese", nil, nil)
	})

	assert.True(t, resp.Success)
	assert.Equal(t, "fallback-provider", resp.Provider)
	assert.NotEmpty(t, resp.Content)
	assert.NotEmpty(t, resp.Safety.Recommendations)
}

func TestRouteDispatchFailureFallsBack(t *testing.T) {
	h := newTestHarness(t, types.ModeAuto, "p1", testProvider("p1", "flaky"))
	h.dispatcher.Register("flaky", errorInvoker{})
	h.orch.Enable()

	resp := h.orch.Route(context.Background(), "Explique fotossíntese", nil, nil)

	assert.True(t, resp.Success)
	assert.Equal(t, "fallback-provider", resp.Provider)
	require.NotEmpty(t, resp.Safety.Recommendations)
	assert.Contains(t, resp.Safety.Recommendations[0], "p1")

	// The failure is recorded against the provider.
	m, err := h.registry.Metrics("p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.ConsecutiveErrors)
}

func TestRouteNoProvidersEnabled(t *testing.T) {
	h := newTestHarness(t, types.ModeAuto, "p1")
	h.orch.Enable()

	resp := h.orch.Route(context.Background(), "Explique fotossíntese", nil, nil)

	// Selection failure is surfaced, not silently masked by fallback content.
	assert.False(t, resp.Success)
	require.NotEmpty(t, resp.Safety.Recommendations)
	assert.Contains(t, resp.Safety.Recommendations[0], "routing failed")

	// The outage still shows up in the audit trail.
	entries := h.trail.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, resp.Trace.RequestID, entries[0].RequestID)
	assert.False(t, entries[0].Actual.Success)
}

func TestRouteSuccess(t *testing.T) {
	h := newTestHarness(t, types.ModeAuto, "p1",
		testProvider("p1", "openai"), testProvider("p2", "anthropic"))
	h.orch.Enable()

	resp := h.orch.Route(context.Background(),
		"Gere uma questão de física para o simulado",
		map[string]interface{}{"module": "enem", "session_id": "s1"},
		map[string]interface{}{"role": "student"})

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Content)
	assert.Contains(t, []string{"p1", "p2"}, resp.Provider)
	assert.True(t, resp.Safety.Passed)
	assert.Equal(t, "enem", resp.Trace.Module)
	assert.NotEmpty(t, resp.Trace.RequestID)
	assert.Positive(t, resp.Metrics.Tokens.Total)

	// Audit trail records the request.
	entries := h.orch.GetMetrics()
	require.Len(t, entries, 1)
	assert.Equal(t, resp.Trace.RequestID, entries[0].RequestID)

	// Learning picked up the outcome.
	assert.NotEmpty(t, h.orch.GetLearningStats())
}

func TestRouteSanitizesPII(t *testing.T) {
	capture := &captureInvoker{}
	h := newTestHarness(t, types.ModeAuto, "p1", testProvider("p1", "captured"))
	h.dispatcher.Register("captured", capture)
	h.orch.Enable()

	h.orch.Route(context.Background(), "O CPF do aluno é 123.456.789-10", nil, nil)

	received := capture.received()
	assert.NotContains(t, received, "123.456.789-10")
	assert.Contains(t, received, "[CPF]")
}

func TestShadowModeDispatchesBaseline(t *testing.T) {
	// Strong provider should win the scoring; weak is the baseline.
	strong := testProvider("strong", "openai")
	weak := testProvider("weak", "anthropic")
	weak.Capabilities.SupportsJSONStrict = false
	weak.Capabilities.AvgLatencyMs = 4000

	h := newTestHarness(t, types.ModeShadow, "weak", strong, weak)
	h.orch.Enable()

	resp := h.orch.Route(context.Background(),
		"Gere a aula em json estruturado",
		map[string]interface{}{"module": "aula_interativa"}, nil)

	assert.True(t, resp.Success)
	assert.Equal(t, "weak", resp.Provider)

	require.NotNil(t, resp.Trace.ShadowComparison)
	assert.Equal(t, "strong", resp.Trace.ShadowComparison.RecommendedProvider)
	assert.Equal(t, "weak", resp.Trace.ShadowComparison.ActualProvider)
	assert.Positive(t, resp.Trace.ShadowComparison.PerformanceGap)
}

func TestBudgetWarnings(t *testing.T) {
	h := newTestHarness(t, types.ModeAuto, "p1", testProvider("p1", "openai"))
	h.orch.UpdateConfig(SettingsPatch{
		Budgets: &BudgetConfig{
			PerModule: map[string]float64{"enem": 0.0000001},
		},
	})
	h.orch.Enable()

	resp := h.orch.Route(context.Background(),
		"Gere uma questão completa de matemática",
		map[string]interface{}{"module": "enem"}, nil)

	require.True(t, resp.Success)
	found := false
	for _, rec := range resp.Safety.Recommendations {
		if strings.Contains(rec, "budget exceeded") {
			found = true
		}
	}
	assert.True(t, found, "expected a budget warning in recommendations: %v", resp.Safety.Recommendations)
}

func TestOperationalControls(t *testing.T) {
	h := newTestHarness(t, types.ModeShadow, "p1", testProvider("p1", "openai"))

	assert.False(t, h.orch.IsEnabled())
	h.orch.Enable()
	assert.True(t, h.orch.IsEnabled())
	h.orch.Disable()
	assert.False(t, h.orch.IsEnabled())

	h.orch.SetMode(types.ModeCanary)
	h.orch.SetCanaryPercentage(150)

	cfg := h.orch.GetConfig()
	assert.Equal(t, types.ModeCanary, cfg.Mode)
	assert.Equal(t, float64(100), cfg.CanaryPercentage)
	assert.Equal(t, "p1", cfg.BaselineProvider)
	assert.Equal(t, "fallback-provider", cfg.FallbackProvider)

	newFallback := "other-fallback"
	newTimeout := 10 * time.Second
	h.orch.UpdateConfig(SettingsPatch{
		FallbackProvider: &newFallback,
		RequestTimeout:   &newTimeout,
	})
	cfg = h.orch.GetConfig()
	assert.Equal(t, "other-fallback", cfg.FallbackProvider)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestGetProviderHealth(t *testing.T) {
	h := newTestHarness(t, types.ModeAuto, "p1", testProvider("p1", "openai"))

	health := h.orch.GetProviderHealth()
	assert.Equal(t, types.HealthHealthy, health["p1"])
}
