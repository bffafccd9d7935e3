package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack-ai/llm-router/internal/audit"
	"github.com/edustack-ai/llm-router/internal/features"
	"github.com/edustack-ai/llm-router/internal/orchestrator"
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

func testProvider(id string) types.Provider {
	return types.Provider{
		ID:      id,
		Name:    id,
		Type:    "openai",
		Enabled: true,
		Capabilities: types.Capabilities{
			SupportsJSONStrict: true,
			SupportsToolUse:    true,
			MaxContextTokens:   128000,
			LanguagePreference: "multilingual",
			ResponseStyle:      "balanced",
			AvgLatencyMs:       1000,
			SuccessRate:        0.98,
			CostPer1KTokens:    types.CostStructure{InputPer1K: 0.0002, OutputPer1K: 0.0006, Currency: "USD"},
		},
		Invocation: types.InvocationConfig{Model: "test-model", MaxTokens: 512},
	}
}

func newTestServer(t *testing.T, auth AuthConfig) *Server {
	t.Helper()
	logger := testLogger()

	reg := registry.New(logger)
	require.NoError(t, reg.Register(testProvider("p1")))

	extractor := features.NewExtractor()
	engine := routing.NewEngine(reg, extractor, routing.DefaultScoringConfig(), logger)
	metrics := telemetry.NewMetrics()

	orch := orchestrator.New(orchestrator.Deps{
		Registry:   reg,
		Extractor:  extractor,
		Safety:     safety.NewLayer(safety.NewSchemaCatalog(), logger),
		Engine:     engine,
		Rollout:    routing.NewRolloutPolicy(routing.RolloutConfig{Mode: types.ModeAuto, BaselineProvider: "p1"}),
		Dispatcher: providers.NewDispatcher(providers.NewSimulated(), providers.NewLimiter(logger), logger),
		Trail:      audit.NewTrail(100, logger),
		Metrics:    metrics,
		Logger:     logger,
	}, "p1", 5*time.Second, orchestrator.BudgetConfig{})

	return NewServer(orch, engine, metrics, &Config{
		Port: "0",
		Auth: auth,
	}, logger)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	rec := doJSON(t, handler, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestEnableDisable(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	assert.False(t, s.orchestrator.IsEnabled())

	rec := doJSON(t, handler, "POST", "/v1/router/enable", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, s.orchestrator.IsEnabled())

	rec = doJSON(t, handler, "POST", "/v1/router/disable", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, s.orchestrator.IsEnabled())
}

func TestSetMode(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	rec := doJSON(t, handler, "PUT", "/v1/router/mode", `{"mode":"canary"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.ModeCanary, s.orchestrator.GetConfig().Mode)

	rec = doJSON(t, handler, "PUT", "/v1/router/mode", `{"mode":"experimental"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, handler, "PUT", "/v1/router/mode", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetCanary(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	rec := doJSON(t, handler, "PUT", "/v1/router/canary", `{"percentage":25}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(25), s.orchestrator.GetConfig().CanaryPercentage)

	// Out-of-range values are clamped, not rejected.
	rec = doJSON(t, handler, "PUT", "/v1/router/canary", `{"percentage":500}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(100), s.orchestrator.GetConfig().CanaryPercentage)
}

func TestGetAndPatchConfig(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	rec := doJSON(t, handler, "GET", "/v1/router/config", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Enabled bool                  `json:"enabled"`
		Config  orchestrator.Settings `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.ModeAuto, body.Config.Mode)

	rec = doJSON(t, handler, "PATCH", "/v1/router/config", `{"mode":"shadow","canary_percentage":10}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	cfg := s.orchestrator.GetConfig()
	assert.Equal(t, types.ModeShadow, cfg.Mode)
	assert.Equal(t, float64(10), cfg.CanaryPercentage)

	rec = doJSON(t, handler, "PATCH", "/v1/router/config", `{"mode":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecision(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	rec := doJSON(t, handler, "POST", "/v1/router/decision",
		`{"text":"Explique fotossíntese","context":{"module":"aula_interativa"}}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var decision routing.RoutingDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, "p1", decision.SelectedProvider)
	assert.NotEmpty(t, decision.FallbackChain)

	rec = doJSON(t, handler, "POST", "/v1/router/decision", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuditAndHealthEndpoints(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	rec := doJSON(t, handler, "GET", "/v1/router/audit", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, "GET", "/v1/router/providers/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Providers map[string]types.HealthState `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, types.HealthHealthy, body.Providers["p1"])

	rec = doJSON(t, handler, "GET", "/v1/router/learning", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	rec := doJSON(t, handler, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContentTypeEnforced(t *testing.T) {
	s := newTestServer(t, AuthConfig{})
	handler := s.setupRoutes()

	req := httptest.NewRequest("PUT", "/v1/router/mode", strings.NewReader(`{"mode":"auto"}`))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, AuthConfig{APIKeys: []string{"secret-key-123"}})
	handler := s.setupRoutes()

	// No credentials.
	rec := doJSON(t, handler, "GET", "/v1/router/config", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong key.
	req := httptest.NewRequest("GET", "/v1/router/config", nil)
	req.Header.Set("X-API-Key", "wrong")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Valid key via header.
	req = httptest.NewRequest("GET", "/v1/router/config", nil)
	req.Header.Set("X-API-Key", "secret-key-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Valid key via bearer token.
	req = httptest.NewRequest("GET", "/v1/router/config", nil)
	req.Header.Set("Authorization", "Bearer secret-key-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Health and metrics stay open.
	rec = doJSON(t, handler, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, handler, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuth(t *testing.T) {
	auth := NewAuth(&AuthConfig{JWTSecret: "test-secret"}, testLogger())

	token, err := auth.GenerateJWT("ops-user")
	require.NoError(t, err)

	subject, err := auth.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-user", subject)

	_, err = auth.Authenticate("not-a-token")
	assert.Error(t, err)
}
