// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RecalcTotal counts single-record recalculation outcomes
// (recalculated, skipped, failed).
var RecalcTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "umbral_recalc_total",
		Help: "Total number of single-record risk recalculation attempts by outcome",
	},
	[]string{"outcome"},
)

// GuardSkips counts guard skips by predicate.
var GuardSkips = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "umbral_guard_skips_total",
		Help: "Recalculations skipped by the change guard, by reason",
	},
	[]string{"reason"},
)

// RiskScore records the distribution of computed risk scores.
var RiskScore = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "umbral_risk_score",
		Help:    "Distribution of computed risk scores",
		Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	},
)

// BatchRows counts batch rows by outcome (accepted, warned, rejected, failed).
var BatchRows = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "umbral_batch_rows_total",
		Help: "Total batch rows processed by outcome",
	},
	[]string{"outcome"},
)

// ChunkFailures counts persistence chunks that failed to commit.
var ChunkFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "umbral_batch_chunk_failures_total",
		Help: "Total persistence chunks that failed to commit",
	},
)

// ScreeningErrors counts watchlist lookups that failed and were defaulted.
var ScreeningErrors = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "umbral_screening_errors_total",
		Help: "Watchlist lookups that failed and fell back to no-match",
	},
)

// AlertsCreated counts alerts raised by severity.
var AlertsCreated = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "umbral_alerts_created_total",
		Help: "Alerts created by severity",
	},
	[]string{"severity"},
)

func init() {
	prometheus.MustRegister(RecalcTotal, GuardSkips, RiskScore)
	prometheus.MustRegister(BatchRows, ChunkFailures, ScreeningErrors, AlertsCreated)
}
