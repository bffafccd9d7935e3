package audit

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/types"
)

// Trail is the append-only in-memory log of per-request routing records.
// Entries are immutable once recorded. Appends and snapshots are the only
// operations; nothing is ever removed or rewritten, though the trail caps
// its length to bound memory.
type Trail struct {
	mu      sync.RWMutex
	entries []types.RouterMetrics
	max     int
	logger  *logrus.Logger
}

const defaultMaxEntries = 10000

// NewTrail creates a trail. maxEntries <= 0 uses the default cap; when the
// cap is reached the oldest entries are discarded.
func NewTrail(maxEntries int, logger *logrus.Logger) *Trail {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &Trail{
		entries: make([]types.RouterMetrics, 0, 128),
		max:     maxEntries,
		logger:  logger,
	}
}

// Record appends one routing record and emits it as a structured log entry.
func (t *Trail) Record(m types.RouterMetrics) {
	t.mu.Lock()
	t.entries = append(t.entries, m)
	if len(t.entries) > t.max {
		overflow := len(t.entries) - t.max
		t.entries = append(t.entries[:0:0], t.entries[overflow:]...)
	}
	t.mu.Unlock()

	fields := logrus.Fields{
		"request_id": m.RequestID,
		"module":     m.Module,
		"provider":   m.SelectedProvider,
		"latency_ms": m.Actual.LatencyMs,
		"cost":       m.Actual.Cost,
		"success":    m.Actual.Success,
	}
	if m.ShadowComparison != nil {
		fields["recommended_provider"] = m.ShadowComparison.RecommendedProvider
	}
	t.logger.WithFields(fields).Info("Request routed")
}

// Entries returns a copy of the trail in append order.
func (t *Trail) Entries() []types.RouterMetrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]types.RouterMetrics, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of recorded entries.
func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
