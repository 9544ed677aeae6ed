// Package observability wires structured logging and Prometheus metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/cleared-dev/ledger/internal/buildinfo"
)

// Metrics holds all Prometheus metrics for the ledger core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Registry owns these metrics; the scheduler serves it on /metrics.
	Registry *prometheus.Registry

	transactionsCreated *prometheus.CounterVec
	lockTransitions     *prometheus.CounterVec
	balanceRecomputes   prometheus.Counter
	recurringRuns       *prometheus.CounterVec
	fxFallbacks         *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// ledger metrics in it. A private registry lets tests build many instances.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	factory.NewGauge(prometheus.GaugeOpts{
		Name:        "ledger_build_info",
		Help:        "Build metadata; always 1.",
		ConstLabels: buildinfo.Labels(),
	}).Set(1)

	return &Metrics{
		Registry: reg,

		transactionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_created_total",
				Help: "Transactions persisted, by transaction type.",
			},
			[]string{"type"},
		),
		lockTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_lock_transitions_total",
				Help: "Lock and unlock calls, by operation and whether state changed.",
			},
			[]string{"op", "result"},
		),
		balanceRecomputes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_balance_recomputes_total",
				Help: "Account balance recomputations.",
			},
		),
		recurringRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_recurring_runs_total",
				Help: "Recurring template runs, by outcome.",
			},
			[]string{"status"},
		),
		fxFallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_fx_fallbacks_total",
				Help: "Rate lookups that found no rate and fell back to 1.",
			},
			[]string{"pair"},
		),
		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// IncrTransactionCreated counts a persisted transaction.
func (m *Metrics) IncrTransactionCreated(txnType string) {
	if m == nil {
		return
	}
	m.transactionsCreated.WithLabelValues(txnType).Inc()
}

// IncrLockTransition counts a lock/unlock call; changed=false is a no-op call.
func (m *Metrics) IncrLockTransition(op string, changed bool) {
	if m == nil {
		return
	}
	result := "noop"
	if changed {
		result = "changed"
	}
	m.lockTransitions.WithLabelValues(op, result).Inc()
}

// IncrBalanceRecompute counts one account recomputation.
func (m *Metrics) IncrBalanceRecompute() {
	if m == nil {
		return
	}
	m.balanceRecomputes.Inc()
}

// IncrRecurringRun counts a recurring run outcome ("ok" or "failed").
func (m *Metrics) IncrRecurringRun(status string) {
	if m == nil {
		return
	}
	m.recurringRuns.WithLabelValues(status).Inc()
}

// IncrFXFallback counts a missing-rate fallback for from/to.
func (m *Metrics) IncrFXFallback(from, to string) {
	if m == nil {
		return
	}
	m.fxFallbacks.WithLabelValues(from + "/" + to).Inc()
}

// RecordDuration records how long operation took.
func (m *Metrics) RecordDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}
