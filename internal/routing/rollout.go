package routing

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/edustack-ai/llm-router/internal/types"
)

// RolloutConfig configures the rollout policy.
type RolloutConfig struct {
	Mode             types.RolloutMode `yaml:"mode"`
	CanaryPercentage float64           `yaml:"canary_percentage"`
	BaselineProvider string            `yaml:"baseline_provider"`
}

// RolloutPolicy translates scorer output into the provider that actually
// receives the request. It runs strictly after scoring so the engine stays
// a pure ranking function. In shadow mode every request dispatches to the
// baseline; in canary mode a configurable share follows the scorer; in
// auto mode the scorer's pick is used unmodified.
type RolloutPolicy struct {
	mu       sync.RWMutex
	mode     types.RolloutMode
	canary   float64
	baseline string
	randFn   func() float64
}

// NewRolloutPolicy creates a policy seeded from config.
func NewRolloutPolicy(cfg RolloutConfig) *RolloutPolicy {
	p := &RolloutPolicy{
		mode:     cfg.Mode,
		baseline: cfg.BaselineProvider,
		randFn:   rand.Float64,
	}
	p.SetCanaryPercentage(cfg.CanaryPercentage)
	return p
}

// NewRolloutPolicyWithRand creates a policy with an injected random source
// so canary draws can be made deterministic in tests.
func NewRolloutPolicyWithRand(cfg RolloutConfig, randFn func() float64) *RolloutPolicy {
	p := NewRolloutPolicy(cfg)
	p.randFn = randFn
	return p
}

// Apply transforms a routing decision into a dispatch decision.
func (p *RolloutPolicy) Apply(decision RoutingDecision) DispatchDecision {
	p.mu.RLock()
	mode, canary, baseline := p.mode, p.canary, p.baseline
	randFn := p.randFn
	p.mu.RUnlock()

	switch mode {
	case types.ModeShadow:
		return DispatchDecision{
			Provider:    baseline,
			Reasoning:   fmt.Sprintf("shadow mode: recommended %s, dispatching baseline %s", decision.SelectedProvider, baseline),
			Substituted: decision.SelectedProvider != baseline,
		}
	case types.ModeCanary:
		draw := randFn()
		if draw > canary/100 {
			return DispatchDecision{
				Provider:    baseline,
				Reasoning:   fmt.Sprintf("canary mode: draw %.2f above %.0f%%, dispatching baseline %s", draw, canary, baseline),
				Substituted: decision.SelectedProvider != baseline,
			}
		}
		return DispatchDecision{
			Provider:  decision.SelectedProvider,
			Reasoning: fmt.Sprintf("canary mode: draw %.2f within %.0f%%", draw, canary),
		}
	default:
		return DispatchDecision{Provider: decision.SelectedProvider}
	}
}

// Mode returns the active rollout mode.
func (p *RolloutPolicy) Mode() types.RolloutMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.mode
}

// SetMode switches the rollout mode. Unknown values fall back to shadow,
// the conservative default.
func (p *RolloutPolicy) SetMode(mode types.RolloutMode) {
	switch mode {
	case types.ModeShadow, types.ModeCanary, types.ModeAuto:
	default:
		mode = types.ModeShadow
	}

	p.mu.Lock()
	p.mode = mode
	p.mu.Unlock()
}

// CanaryPercentage returns the active canary share.
func (p *RolloutPolicy) CanaryPercentage() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.canary
}

// SetCanaryPercentage clamps the share to [0,100] and applies it.
func (p *RolloutPolicy) SetCanaryPercentage(pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	p.mu.Lock()
	p.canary = pct
	p.mu.Unlock()
}

// Baseline returns the baseline provider id used for substitution.
func (p *RolloutPolicy) Baseline() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseline
}
