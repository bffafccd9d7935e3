package orchestrator

import (
	"fmt"
	"sync"
)

// BudgetConfig holds advisory spend ceilings. Budgets never block a
// request; exceeding one only adds a safety recommendation.
type BudgetConfig struct {
	PerSession float64            `yaml:"per_session"`
	PerModule  map[string]float64 `yaml:"per_module"`
}

type spendEntry struct {
	mu    sync.Mutex
	total float64
}

// BudgetTracker accumulates spend per module and per session. Entries
// carry their own lock so unrelated modules never contend.
type BudgetTracker struct {
	mu       sync.RWMutex
	config   BudgetConfig
	modules  map[string]*spendEntry
	sessions map[string]*spendEntry
}

// NewBudgetTracker creates a tracker for the given ceilings.
func NewBudgetTracker(config BudgetConfig) *BudgetTracker {
	return &BudgetTracker{
		config:   config,
		modules:  make(map[string]*spendEntry),
		sessions: make(map[string]*spendEntry),
	}
}

// Charge records spend against the module and optional session, returning
// advisory warnings for every ceiling now exceeded.
func (b *BudgetTracker) Charge(module, sessionID string, cost float64) []string {
	var warnings []string

	if module != "" {
		total := b.add(b.modules, module, cost)
		b.mu.RLock()
		limit := b.config.PerModule[module]
		b.mu.RUnlock()
		if limit > 0 && total > limit {
			warnings = append(warnings, fmt.Sprintf("module %s budget exceeded: $%.4f of $%.2f", module, total, limit))
		}
	}

	if sessionID != "" {
		total := b.add(b.sessions, sessionID, cost)
		b.mu.RLock()
		limit := b.config.PerSession
		b.mu.RUnlock()
		if limit > 0 && total > limit {
			warnings = append(warnings, fmt.Sprintf("session budget exceeded: $%.4f of $%.2f", total, limit))
		}
	}

	return warnings
}

// ModuleSpend returns the accumulated spend for a module.
func (b *BudgetTracker) ModuleSpend(module string) float64 {
	b.mu.RLock()
	entry, ok := b.modules[module]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.total
}

// SetConfig replaces the ceilings without resetting accumulated spend.
func (b *BudgetTracker) SetConfig(config BudgetConfig) {
	b.mu.Lock()
	b.config = config
	b.mu.Unlock()
}

// Config returns the active ceilings.
func (b *BudgetTracker) Config() BudgetConfig {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cfg := BudgetConfig{PerSession: b.config.PerSession}
	if b.config.PerModule != nil {
		cfg.PerModule = make(map[string]float64, len(b.config.PerModule))
		for k, v := range b.config.PerModule {
			cfg.PerModule[k] = v
		}
	}
	return cfg
}

func (b *BudgetTracker) add(entries map[string]*spendEntry, key string, cost float64) float64 {
	b.mu.RLock()
	entry, ok := entries[key]
	b.mu.RUnlock()

	if !ok {
		b.mu.Lock()
		if entry, ok = entries[key]; !ok {
			entry = &spendEntry{}
			entries[key] = entry
		}
		b.mu.Unlock()
	}

	entry.mu.Lock()
	entry.total += cost
	total := entry.total
	entry.mu.Unlock()
	return total
}
