package features

import (
	"reflect"
	"testing"
	"time"

	"github.com/edustack-ai/llm-router/internal/types"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// Wednesday 10:00 local time, inside business hours.
var peakInstant = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

// Saturday 23:00 local time.
var weekendNight = time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractorWithClock(fixedClock(peakInstant))

	text := "Explique o conceito de derivada com um exemplo em json"
	reqContext := map[string]interface{}{"module": "aula_interativa", "session_id": "s1"}
	userProfile := map[string]interface{}{"role": "student", "cost_sensitivity": "high"}

	first := e.Extract(text, reqContext, userProfile)
	second := e.Extract(text, reqContext, userProfile)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("extraction is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestDetectComplexity(t *testing.T) {
	tests := []struct {
		name string
		text string
		want types.Complexity
	}{
		{
			name: "simple phrasing",
			text: "explique de forma simples o conceito básico",
			want: types.ComplexitySimple,
		},
		{
			name: "plain short question",
			text: "qual a capital do Brasil",
			want: types.ComplexitySimple,
		},
		{
			name: "moderate analysis",
			text: "compare e analise os dois protocolos, discuta as diferenças de cada equação",
			want: types.ComplexityModerate,
		},
		{
			name: "complex proof request",
			text: "demonstre e prove o teorema, derive a solução e implemente o algoritmo",
			want: types.ComplexityComplex,
		},
	}

	e := NewExtractorWithClock(fixedClock(peakInstant))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text, nil, nil)
			if got.Complexity != tt.want {
				t.Errorf("complexity = %s, want %s", got.Complexity, tt.want)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"portuguese", "explique o conceito de fotossíntese para a prova", "pt"},
		{"english", "what is the concept of the derivative in the calculus", "en"},
		{"no reference hits", "xyzzy plugh 42", "mixed"},
	}

	e := NewExtractorWithClock(fixedClock(peakInstant))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text, nil, nil)
			if got.Language != tt.want {
				t.Errorf("language = %q, want %q", got.Language, tt.want)
			}
		})
	}
}

func TestDetectDomainModuleBias(t *testing.T) {
	e := NewExtractorWithClock(fixedClock(peakInstant))

	neutral := "preciso de uma resposta rápida"

	got := e.Extract(neutral, map[string]interface{}{"module": "ti"}, nil)
	if got.Domain != types.DomainTechnical {
		t.Errorf("ti module: domain = %s, want %s", got.Domain, types.DomainTechnical)
	}

	got = e.Extract(neutral, map[string]interface{}{"module": "enem"}, nil)
	if got.Domain != types.DomainEducational {
		t.Errorf("enem module: domain = %s, want %s", got.Domain, types.DomainEducational)
	}

	got = e.Extract(neutral, nil, nil)
	if got.Domain != types.DomainConversational {
		t.Errorf("no module: domain = %s, want %s", got.Domain, types.DomainConversational)
	}
}

func TestStructuralRequirements(t *testing.T) {
	e := NewExtractorWithClock(fixedClock(peakInstant))

	got := e.Extract("gere a aula", map[string]interface{}{"module": "aula_interativa"}, nil)
	if !got.RequiresJSONStrict {
		t.Error("aula_interativa module should require strict JSON output")
	}

	got = e.Extract("responda em json estruturado", nil, nil)
	if !got.RequiresJSONStrict {
		t.Error("json keyword should require strict JSON output")
	}

	got = e.Extract("preciso buscar os dados atualizados", nil, nil)
	if !got.RequiresToolUse {
		t.Error("search keyword should require tool use")
	}

	got = e.Extract("quero acompanhar em tempo real", nil, nil)
	if !got.RequiresStreaming {
		t.Error("real-time keyword should require streaming")
	}
}

func TestTemporalFactors(t *testing.T) {
	peak := NewExtractorWithClock(fixedClock(peakInstant)).Extract("oi", nil, nil)
	if peak.TimeOfDay != "peak" {
		t.Errorf("weekday 10:00: time_of_day = %q, want peak", peak.TimeOfDay)
	}
	if peak.DayType != "weekday" {
		t.Errorf("weekday 10:00: day_type = %q, want weekday", peak.DayType)
	}
	if peak.SystemLoad != "high" {
		t.Errorf("weekday 10:00: system_load = %q, want high", peak.SystemLoad)
	}

	night := NewExtractorWithClock(fixedClock(weekendNight)).Extract("oi", nil, nil)
	if night.TimeOfDay != "off_peak" {
		t.Errorf("saturday 23:00: time_of_day = %q, want off_peak", night.TimeOfDay)
	}
	if night.DayType != "weekend" {
		t.Errorf("saturday 23:00: day_type = %q, want weekend", night.DayType)
	}
	if night.SystemLoad != "low" {
		t.Errorf("saturday 23:00: system_load = %q, want low", night.SystemLoad)
	}
}

func TestContextLengthIncludesHistory(t *testing.T) {
	e := NewExtractorWithClock(fixedClock(peakInstant))

	text := "pergunta"
	bare := e.Extract(text, nil, nil)
	if bare.ContextLength != len(text) {
		t.Errorf("context length = %d, want %d", bare.ContextLength, len(text))
	}

	withHistory := e.Extract(text, map[string]interface{}{
		"history": []string{"primeira pergunta", "primeira resposta"},
	}, nil)
	if withHistory.ContextLength <= bare.ContextLength {
		t.Errorf("history should increase context length: got %d, base %d", withHistory.ContextLength, bare.ContextLength)
	}
}

func TestPreferences(t *testing.T) {
	e := NewExtractorWithClock(fixedClock(peakInstant))

	defaults := e.Extract("oi", nil, nil)
	if defaults.Preferences.CostSensitivity != types.CostSensitivityMedium {
		t.Errorf("default cost sensitivity = %s, want medium", defaults.Preferences.CostSensitivity)
	}
	if defaults.UserType != "anonymous" {
		t.Errorf("default user type = %q, want anonymous", defaults.UserType)
	}

	custom := e.Extract("oi", nil, map[string]interface{}{
		"role":             "teacher",
		"cost_sensitivity": "high",
		"max_latency_ms":   2000.0,
	})
	if custom.Preferences.CostSensitivity != types.CostSensitivityHigh {
		t.Errorf("cost sensitivity = %s, want high", custom.Preferences.CostSensitivity)
	}
	if custom.Preferences.MaxLatencyMs != 2000 {
		t.Errorf("max latency = %v, want 2000", custom.Preferences.MaxLatencyMs)
	}
	if custom.UserType != "teacher" {
		t.Errorf("user type = %q, want teacher", custom.UserType)
	}
}
