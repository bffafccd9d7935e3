package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeBelowLimitNoWarnings(t *testing.T) {
	tracker := NewBudgetTracker(BudgetConfig{
		PerSession: 1.00,
		PerModule:  map[string]float64{"enem": 0.50},
	})

	warnings := tracker.Charge("enem", "s1", 0.10)
	assert.Empty(t, warnings)
	assert.InDelta(t, 0.10, tracker.ModuleSpend("enem"), 1e-9)
}

func TestChargeModuleBudgetExceeded(t *testing.T) {
	tracker := NewBudgetTracker(BudgetConfig{
		PerModule: map[string]float64{"ti": 0.20},
	})

	assert.Empty(t, tracker.Charge("ti", "", 0.15))

	warnings := tracker.Charge("ti", "", 0.10)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "module ti budget exceeded")
}

func TestChargeSessionBudgetExceeded(t *testing.T) {
	tracker := NewBudgetTracker(BudgetConfig{PerSession: 0.05})

	warnings := tracker.Charge("professor", "s1", 0.10)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "session budget exceeded")

	// Other sessions are unaffected.
	assert.Empty(t, tracker.Charge("professor", "s2", 0.01))
}

func TestChargeUnconfiguredModuleNeverWarns(t *testing.T) {
	tracker := NewBudgetTracker(BudgetConfig{
		PerModule: map[string]float64{"enem": 0.10},
	})

	assert.Empty(t, tracker.Charge("atendimento", "", 100.0))
}

func TestSetConfigKeepsSpend(t *testing.T) {
	tracker := NewBudgetTracker(BudgetConfig{
		PerModule: map[string]float64{"enem": 10.0},
	})
	tracker.Charge("enem", "", 0.50)

	tracker.SetConfig(BudgetConfig{PerModule: map[string]float64{"enem": 0.25}})

	// Accumulated spend survives the config change.
	warnings := tracker.Charge("enem", "", 0.01)
	require.Len(t, warnings, 1)
	assert.InDelta(t, 0.51, tracker.ModuleSpend("enem"), 1e-9)
}

func TestConfigReturnsCopy(t *testing.T) {
	tracker := NewBudgetTracker(BudgetConfig{
		PerModule: map[string]float64{"enem": 1.0},
	})

	cfg := tracker.Config()
	cfg.PerModule["enem"] = 999

	assert.InDelta(t, 1.0, tracker.Config().PerModule["enem"], 1e-9)
}
