package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_Independent(t *testing.T) {
	// Private registries: building twice must not panic on duplicate collectors.
	m1 := NewMetrics()
	m2 := NewMetrics()
	m1.IncrRecurringRun("ok")

	assert.InDelta(t, 1, testutil.ToFloat64(m1.recurringRuns.WithLabelValues("ok")), 0.001)
	assert.InDelta(t, 0, testutil.ToFloat64(m2.recurringRuns.WithLabelValues("ok")), 0.001)
}

func TestLockTransitionLabels(t *testing.T) {
	m := NewMetrics()
	m.IncrLockTransition("lock", true)
	m.IncrLockTransition("lock", false)
	m.IncrLockTransition("lock", false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.lockTransitions.WithLabelValues("lock", "changed")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.lockTransitions.WithLabelValues("lock", "noop")), 0.001)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncrTransactionCreated("journal")
		m.IncrLockTransition("unlock", true)
		m.IncrBalanceRecompute()
		m.IncrRecurringRun("failed")
		m.IncrFXFallback("EUR", "USD")
		m.RecordDuration("lock", time.Millisecond)
	})
}

func TestRegistryGather(t *testing.T) {
	m := NewMetrics()
	m.IncrFXFallback("EUR", "USD")
	m.RecordDuration("create_transaction", 5*time.Millisecond)

	families, err := m.Registry.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "ledger_fx_fallbacks_total")
	assert.Contains(t, names, "ledger_operation_duration_seconds")
	assert.Contains(t, names, "ledger_build_info")
}

func TestNewLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn"} {
		logger, err := NewLogger(level)
		require.NoError(t, err, level)
		require.NotNil(t, logger)
	}
	_, err := NewLogger("chatty")
	assert.Error(t, err)
}
