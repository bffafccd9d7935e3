package audit

import (
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack-ai/llm-router/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func entry(id string) types.RouterMetrics {
	return types.RouterMetrics{
		Timestamp:        time.Now(),
		RequestID:        id,
		Module:           "enem",
		SelectedProvider: "p1",
		Actual:           types.ActualMetrics{LatencyMs: 100, Cost: 0.002, Success: true},
	}
}

func TestRecordPreservesOrder(t *testing.T) {
	trail := NewTrail(10, testLogger())

	trail.Record(entry("req_1"))
	trail.Record(entry("req_2"))
	trail.Record(entry("req_3"))

	entries := trail.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "req_1", entries[0].RequestID)
	assert.Equal(t, "req_3", entries[2].RequestID)
}

func TestRecordTrimsOldestAtCapacity(t *testing.T) {
	trail := NewTrail(5, testLogger())

	for i := 0; i < 8; i++ {
		trail.Record(entry(fmt.Sprintf("req_%d", i)))
	}

	entries := trail.Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, "req_3", entries[0].RequestID)
	assert.Equal(t, "req_7", entries[4].RequestID)
	assert.Equal(t, 5, trail.Len())
}

func TestEntriesReturnsCopy(t *testing.T) {
	trail := NewTrail(10, testLogger())
	trail.Record(entry("req_1"))

	entries := trail.Entries()
	entries[0].RequestID = "mutated"

	assert.Equal(t, "req_1", trail.Entries()[0].RequestID)
}

func TestRecordConcurrent(t *testing.T) {
	trail := NewTrail(50, testLogger())

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				trail.Record(entry(fmt.Sprintf("req_%d_%d", w, i)))
				// Readers race the writers; every snapshot stays within cap.
				snapshot := trail.Entries()
				assert.LessOrEqual(t, len(snapshot), 50)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 50, trail.Len())
	assert.Len(t, trail.Entries(), 50)
}
