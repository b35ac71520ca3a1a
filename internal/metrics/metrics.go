// Package metrics provides Prometheus collectors for the Jasper daemon,
// exposed on the local status endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Analysis ───────────────────────────────────────────────────────────────

// ContextChecks counts daemon analysis ticks.
var ContextChecks = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jasper",
	Name:      "context_checks_total",
	Help:      "Total context collection and analysis iterations.",
})

// SignificantChanges counts analysis ticks that crossed the significance
// threshold.
var SignificantChanges = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jasper",
	Name:      "significant_changes_total",
	Help:      "Total analysis iterations judged significant.",
})

// ─── LLM ────────────────────────────────────────────────────────────────────

// LLMCalls counts outbound LLM requests by outcome.
var LLMCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "jasper",
	Name:      "llm_calls_total",
	Help:      "Total LLM API calls.",
}, []string{"outcome"})

// LLMTokens counts tokens reported by the LLM provider.
var LLMTokens = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jasper",
	Name:      "llm_tokens_total",
	Help:      "Total input plus output tokens consumed.",
})

// ─── Persistence ────────────────────────────────────────────────────────────

// InsightsStored counts persisted insights, including fallbacks.
var InsightsStored = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jasper",
	Name:      "insights_stored_total",
	Help:      "Total insights written to the store.",
})

// SyncRuns counts completed calendar sync passes.
var SyncRuns = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jasper",
	Name:      "calendar_sync_runs_total",
	Help:      "Total completed calendar sync passes.",
})

// ─── Frontends ──────────────────────────────────────────────────────────────

// FrontendRegistrations counts RegisterFrontend calls over the bus.
var FrontendRegistrations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "jasper",
	Name:      "frontend_registrations_total",
	Help:      "Total frontend registration requests.",
})
