package providers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/edustack-ai/llm-router/internal/types"
)

// ErrRateLimited is returned when a provider's configured limits reject a
// dispatch. It counts as a dispatch failure for that provider.
var ErrRateLimited = errors.New("rate limit exceeded")

// Limiter enforces per-provider dispatch limits: requests per minute,
// tokens per minute, and maximum concurrent in-flight requests. Each limit
// is a token bucket refilled continuously from elapsed time. A zero limit
// means unlimited.
type Limiter struct {
	mu     sync.Mutex
	states map[string]*limiterState
	now    func() time.Time
	logger *logrus.Logger
}

type limiterState struct {
	mu            sync.Mutex
	requestTokens float64
	tokenBudget   float64
	lastRefill    time.Time
	inFlight      int
	initialized   bool
}

// NewLimiter creates a limiter using the wall clock.
func NewLimiter(logger *logrus.Logger) *Limiter {
	return &Limiter{
		states: make(map[string]*limiterState),
		now:    time.Now,
		logger: logger,
	}
}

// NewLimiterWithClock creates a limiter with an injected clock.
func NewLimiterWithClock(now func() time.Time, logger *logrus.Logger) *Limiter {
	l := NewLimiter(logger)
	l.now = now
	return l
}

// Acquire consumes capacity for one dispatch. It must be paired with
// Release once the dispatch completes, successful or not.
func (l *Limiter) Acquire(provider types.Provider, estimatedTokens int) error {
	limits := provider.Limits
	state := l.state(provider.ID)
	now := l.now()

	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.initialized {
		state.requestTokens = float64(limits.RequestsPerMinute)
		state.tokenBudget = float64(limits.TokensPerMinute)
		state.lastRefill = now
		state.initialized = true
	}

	elapsed := now.Sub(state.lastRefill).Minutes()
	if elapsed > 0 {
		state.requestTokens = minFloat(
			state.requestTokens+elapsed*float64(limits.RequestsPerMinute),
			float64(limits.RequestsPerMinute))
		state.tokenBudget = minFloat(
			state.tokenBudget+elapsed*float64(limits.TokensPerMinute),
			float64(limits.TokensPerMinute))
		state.lastRefill = now
	}

	if limits.MaxConcurrent > 0 && state.inFlight >= limits.MaxConcurrent {
		l.logDenied(provider.ID, "max_concurrent")
		return fmt.Errorf("%w: %d requests in flight", ErrRateLimited, state.inFlight)
	}
	if limits.RequestsPerMinute > 0 && state.requestTokens < 1 {
		l.logDenied(provider.ID, "requests_per_minute")
		return fmt.Errorf("%w: request budget exhausted", ErrRateLimited)
	}
	if limits.TokensPerMinute > 0 && state.tokenBudget < float64(estimatedTokens) {
		l.logDenied(provider.ID, "tokens_per_minute")
		return fmt.Errorf("%w: token budget exhausted", ErrRateLimited)
	}

	if limits.RequestsPerMinute > 0 {
		state.requestTokens--
	}
	if limits.TokensPerMinute > 0 {
		state.tokenBudget -= float64(estimatedTokens)
	}
	state.inFlight++
	return nil
}

// Release returns the concurrency slot taken by Acquire.
func (l *Limiter) Release(providerID string) {
	state := l.state(providerID)
	state.mu.Lock()
	if state.inFlight > 0 {
		state.inFlight--
	}
	state.mu.Unlock()
}

// InFlight reports the current in-flight count for a provider.
func (l *Limiter) InFlight(providerID string) int {
	state := l.state(providerID)
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.inFlight
}

func (l *Limiter) state(providerID string) *limiterState {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.states[providerID]
	if !ok {
		state = &limiterState{}
		l.states[providerID] = state
	}
	return state
}

func (l *Limiter) logDenied(providerID, limit string) {
	l.logger.WithFields(logrus.Fields{
		"provider": providerID,
		"limit":    limit,
	}).Warn("Dispatch rejected by rate limit")
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
