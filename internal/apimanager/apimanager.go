// Package apimanager makes external LLM use safe and bounded: a daily
// quota with UTC-date reset, per-call token accounting, an in-memory
// last-insight cache, retry with exponential backoff, and a circuit
// breaker that suppresses calls to a failing service.
package apimanager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jasper-companion/jasper/internal/domain"
)

// DefaultDailyLimit is the maximum number of LLM calls per UTC calendar
// day. The reset boundary is always the UTC date, regardless of the
// user's configured timezone.
const DefaultDailyLimit = 200

// insightCache holds the most recent insight text.
type insightCache struct {
	lastInsight string
	cachedAt    time.Time
}

// callStats tracks quota usage and lifetime totals.
type callStats struct {
	callsToday  int
	dailyLimit  int
	lastReset   time.Time
	totalCalls  uint64
	totalTokens uint64
}

// Manager guards all outbound LLM traffic. Each piece of state sits behind
// its own short-critical-section lock; no lock is held across I/O.
type Manager struct {
	cacheMu sync.Mutex
	cache   insightCache

	statsMu sync.Mutex
	stats   callStats

	breaker *CircuitBreaker

	now func() time.Time // injectable clock for testing
}

// New creates a manager with the default daily limit and breaker settings.
func New() *Manager {
	now := time.Now
	return &Manager{
		stats: callStats{
			dailyLimit: DefaultDailyLimit,
			lastReset:  now().UTC(),
		},
		breaker: NewCircuitBreaker(DefaultFailureThreshold, DefaultBreakerTimeout),
		now:     now,
	}
}

// CanMakeAPICall reports whether the daily quota permits another call,
// resetting the counter when the UTC date has rolled over.
func (m *Manager) CanMakeAPICall() bool {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	now := m.now().UTC()
	if now.Format("2006-01-02") != m.stats.lastReset.Format("2006-01-02") {
		log.Info().Str("component", "apimanager").
			Int("calls_yesterday", m.stats.callsToday).
			Msg("daily API call counter reset")
		m.stats.callsToday = 0
		m.stats.lastReset = now
	}

	ok := m.stats.callsToday < m.stats.dailyLimit
	if !ok {
		log.Warn().Str("component", "apimanager").
			Int("calls_today", m.stats.callsToday).
			Int("daily_limit", m.stats.dailyLimit).
			Msg("daily API call limit reached, using cached or fallback responses")
	}
	return ok
}

// RecordAPICall accounts for one successful call and its token usage.
func (m *Manager) RecordAPICall(tokens uint64) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	m.stats.callsToday++
	m.stats.totalCalls++
	m.stats.totalTokens += tokens

	log.Debug().Str("component", "apimanager").
		Int("calls_today", m.stats.callsToday).
		Uint64("total_calls", m.stats.totalCalls).
		Uint64("total_tokens", m.stats.totalTokens).
		Msg("API call recorded")

	if m.stats.callsToday >= m.stats.dailyLimit*4/5 {
		log.Warn().Str("component", "apimanager").
			Int("calls_today", m.stats.callsToday).
			Int("daily_limit", m.stats.dailyLimit).
			Msg("approaching daily API limit")
	}
}

// Stats returns (calls today, daily limit, total calls, total tokens).
func (m *Manager) Stats() (int, int, uint64, uint64) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats.callsToday, m.stats.dailyLimit, m.stats.totalCalls, m.stats.totalTokens
}

// LastInsight returns the cached insight text, or false when empty.
func (m *Manager) LastInsight() (string, bool) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if m.cache.lastInsight == "" {
		return "", false
	}
	return m.cache.lastInsight, true
}

// CacheInsight stores the latest insight text.
func (m *Manager) CacheInsight(text string) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cache.lastInsight = text
	m.cache.cachedAt = m.now()
}

// ClearCache empties the insight cache.
func (m *Manager) ClearCache() {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	m.cache = insightCache{}
}

// Breaker exposes the circuit breaker for status reporting.
func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

// ─── Retry ──────────────────────────────────────────────────────────────────

// Retry policy: exponential backoff starting at the base delay, doubling
// up to the cap, a fixed number of attempts, and no retry for
// non-recoverable failures.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 100 * time.Millisecond
	maxBackoff         = 60 * time.Second
)

// ExecuteWithRetry runs an idempotent operation under the manager's
// guards. Quota exhaustion and an open breaker fail fast with
// ServiceUnavailable; recoverable failures are retried with exponential
// backoff; non-recoverable ones short-circuit. The breaker observes every
// outcome.
func ExecuteWithRetry[T any](ctx context.Context, m *Manager, service string, op func() (T, error)) (T, error) {
	var zero T

	if !m.CanMakeAPICall() {
		return zero, domain.Errf(domain.KindServiceUnavailable, service, "daily API limit reached")
	}
	if m.breaker.Open() {
		log.Warn().Str("component", "apimanager").Str("service", service).
			Msg("circuit breaker open, skipping call")
		return zero, domain.Errf(domain.KindServiceUnavailable, service, "circuit breaker open")
	}

	delay := DefaultBaseDelay
	var lastErr error
	for attempt := 1; attempt <= DefaultMaxAttempts; attempt++ {
		result, err := op()
		if err == nil {
			m.breaker.RecordSuccess()
			if attempt > 1 {
				log.Debug().Str("component", "apimanager").Str("service", service).
					Int("attempts", attempt).Msg("call succeeded after retry")
			}
			return result, nil
		}

		m.breaker.RecordFailure()
		lastErr = err

		if !domain.IsRecoverable(err) {
			log.Error().Str("component", "apimanager").Str("service", service).Err(err).
				Msg("non-recoverable failure")
			return zero, err
		}
		if attempt == DefaultMaxAttempts {
			break
		}

		log.Warn().Str("component", "apimanager").Str("service", service).
			Int("attempt", attempt).Int("max_attempts", DefaultMaxAttempts).
			Dur("retry_in", delay).Err(err).Msg("call failed, retrying")

		select {
		case <-ctx.Done():
			return zero, domain.Wrap(domain.KindTimeout, service, ctx.Err(), "retry cancelled")
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxBackoff {
			delay = maxBackoff
		}
	}

	log.Error().Str("component", "apimanager").Str("service", service).
		Int("attempts", DefaultMaxAttempts).Err(lastErr).Msg("call failed after all attempts")
	return zero, lastErr
}
