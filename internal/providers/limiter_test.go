package providers

import (
	"io"
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

func limitedProvider(rpm, tpm, concurrent int) types.Provider {
	return types.Provider{
		ID:     "limited",
		Type:   "openai",
		Limits: types.RateLimits{RequestsPerMinute: rpm, TokensPerMinute: tpm, MaxConcurrent: concurrent},
	}
}

func TestLimiterRequestsPerMinute(t *testing.T) {
	clock := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(func() time.Time { return clock }, testLogger())
	provider := limitedProvider(3, 0, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Acquire(provider, 10))
		limiter.Release(provider.ID)
	}

	err := limiter.Acquire(provider, 10)
	assert.ErrorIs(t, err, ErrRateLimited)

	// Half a minute refills half the budget.
	clock = clock.Add(30 * time.Second)
	require.NoError(t, limiter.Acquire(provider, 10))
	limiter.Release(provider.ID)
}

func TestLimiterTokensPerMinute(t *testing.T) {
	clock := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiterWithClock(func() time.Time { return clock }, testLogger())
	provider := limitedProvider(0, 1000, 0)

	require.NoError(t, limiter.Acquire(provider, 800))
	limiter.Release(provider.ID)

	err := limiter.Acquire(provider, 800)
	assert.ErrorIs(t, err, ErrRateLimited)

	clock = clock.Add(time.Minute)
	require.NoError(t, limiter.Acquire(provider, 800))
	limiter.Release(provider.ID)
}

func TestLimiterMaxConcurrent(t *testing.T) {
	limiter := NewLimiter(testLogger())
	provider := limitedProvider(0, 0, 2)

	require.NoError(t, limiter.Acquire(provider, 10))
	require.NoError(t, limiter.Acquire(provider, 10))
	assert.Equal(t, 2, limiter.InFlight(provider.ID))

	err := limiter.Acquire(provider, 10)
	assert.ErrorIs(t, err, ErrRateLimited)

	limiter.Release(provider.ID)
	require.NoError(t, limiter.Acquire(provider, 10))
}

func TestLimiterZeroMeansUnlimited(t *testing.T) {
	limiter := NewLimiter(testLogger())
	provider := limitedProvider(0, 0, 0)

	for i := 0; i < 100; i++ {
		require.NoError(t, limiter.Acquire(provider, 100000))
	}
}
