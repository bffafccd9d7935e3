package routing

import (
	"fmt"
	"sync"

	"github.com/edustack-ai/llm-router/internal/types"
)

type learningKey struct {
	provider   string
	domain     types.Domain
	complexity types.Complexity
}

func (k learningKey) String() string {
	return fmt.Sprintf("%s_%s_%s", k.provider, k.domain, k.complexity)
}

type learningEntry struct {
	mu sync.Mutex
	m  types.LearningMetrics
}

// LearningStore accumulates request outcomes keyed by (provider, domain,
// complexity). Updates are additive counter increments under a per-key
// lock, so concurrent requests for different keys never contend.
type LearningStore struct {
	mu      sync.RWMutex
	entries map[learningKey]*learningEntry
}

// NewLearningStore creates an empty store.
func NewLearningStore() *LearningStore {
	return &LearningStore{entries: make(map[learningKey]*learningEntry)}
}

func (s *LearningStore) entry(key learningKey) *learningEntry {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if ok {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[key]; ok {
		return e
	}
	// Fresh keys start at the neutral midpoint so the first few outcomes
	// only nudge the adjustment instead of swinging it.
	e = &learningEntry{m: types.LearningMetrics{
		AvgSatisfaction: 0.5,
		SuccessRate:     0.5,
	}}
	s.entries[key] = e
	return e
}

// Update records one completed request. Satisfaction is optional; when
// absent the running average keeps its previous value.
func (s *LearningStore) Update(providerID string, domain types.Domain, complexity types.Complexity, success bool, satisfaction *float64) {
	e := s.entry(learningKey{providerID, domain, complexity})

	e.mu.Lock()
	defer e.mu.Unlock()

	e.m.TotalRequests++
	if success {
		e.m.SuccessfulRequests++
	}
	if satisfaction != nil {
		e.m.TotalSatisfaction += *satisfaction
		e.m.AvgSatisfaction = e.m.TotalSatisfaction / float64(e.m.TotalRequests)
	}
	e.m.SuccessRate = float64(e.m.SuccessfulRequests) / float64(e.m.TotalRequests)
}

// Adjustment derives the scoring term for a key: success rate and
// satisfaction each contribute relative to the 0.5 midpoint, clamped to
// plus or minus 0.1. Unknown keys contribute nothing.
func (s *LearningStore) Adjustment(providerID string, domain types.Domain, complexity types.Complexity) float64 {
	s.mu.RLock()
	e, ok := s.entries[learningKey{providerID, domain, complexity}]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	e.mu.Lock()
	successRate := e.m.SuccessRate
	avgSatisfaction := e.m.AvgSatisfaction
	e.mu.Unlock()

	adjustment := (successRate-0.5)*0.2 + (avgSatisfaction-0.5)*0.1
	if adjustment > 0.1 {
		return 0.1
	}
	if adjustment < -0.1 {
		return -0.1
	}
	return adjustment
}

// Stats returns a snapshot of every aggregate keyed by
// "provider_domain_complexity".
func (s *LearningStore) Stats() map[string]types.LearningMetrics {
	s.mu.RLock()
	keys := make([]learningKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	stats := make(map[string]types.LearningMetrics, len(keys))
	for _, k := range keys {
		s.mu.RLock()
		e := s.entries[k]
		s.mu.RUnlock()

		e.mu.Lock()
		stats[k.String()] = e.m
		e.mu.Unlock()
	}
	return stats
}
