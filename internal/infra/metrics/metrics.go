// Package metrics provides Prometheus metrics for PuffQuest.
// Counters, gauges and histograms for entries, nightly recalculation,
// rewards, the day-count cache, the HTTP API and health checks.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Entries ────────────────────────────────────────────────────────────────

// EntriesRecorded tracks entries added, by entry type.
var EntriesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "entries_recorded_total",
	Help:      "Total consumption entries recorded.",
}, []string{"type"})

// UsersOnboarded tracks completed onboardings by method.
var UsersOnboarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "users_onboarded_total",
	Help:      "Total completed onboardings.",
}, []string{"method"})

// ─── Recalculation ──────────────────────────────────────────────────────────

// Recalcs tracks nightly recalculations by outcome
// (within, over, skipped, failed).
var Recalcs = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "recalcs_total",
	Help:      "Total nightly recalculations by outcome.",
}, []string{"outcome"})

// RecalcLatency tracks the duration of one user's recalculation.
var RecalcLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "puffquest",
	Name:      "recalc_latency_seconds",
	Help:      "Duration of one nightly recalculation.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
})

// RolloverLastRun is the unix time of the last finished rollover pass.
var RolloverLastRun = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "puffquest",
	Name:      "rollover_last_run_timestamp_seconds",
	Help:      "Unix time of the last finished rollover pass.",
})

// ─── Rewards ────────────────────────────────────────────────────────────────

// XPAwarded tracks XP granted, by source.
var XPAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "xp_awarded_total",
	Help:      "Total XP granted by source.",
}, []string{"source"})

// CoinsAwarded tracks coins granted, by source.
var CoinsAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "coins_awarded_total",
	Help:      "Total coins granted by source.",
}, []string{"source"})

// AchievementsUnlocked tracks unlocks by achievement code.
var AchievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "achievements_unlocked_total",
	Help:      "Total achievements unlocked.",
}, []string{"code"})

// ─── Cache ──────────────────────────────────────────────────────────────────

// CacheRequests tracks day-count cache lookups by result (hit, miss, error).
var CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "day_count_cache_requests_total",
	Help:      "Day-count cache lookups by result.",
}, []string{"result"})

// ─── API ────────────────────────────────────────────────────────────────────

// HTTPRequests tracks API requests by route pattern and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "http_requests_total",
	Help:      "Total API requests.",
}, []string{"route", "code"})

// HTTPLatency tracks API request duration by route pattern.
var HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "puffquest",
	Name:      "http_request_duration_seconds",
	Help:      "API request duration in seconds.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "puffquest",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "puffquest",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
