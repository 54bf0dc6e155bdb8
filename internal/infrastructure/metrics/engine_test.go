package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	domainerrors "yield-vault.backend/internal/domain/errors"
)

func TestEngineMetrics_Singleton(t *testing.T) {
	assert.Same(t, Engine(), Engine())
}

func TestEngineMetrics_Counters(t *testing.T) {
	m := Engine()

	before := testutil.ToFloat64(m.operations.WithLabelValues("apply_yield", "internal_error"))
	m.ObserveOperation("apply_yield", time.Now(), errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("apply_yield", "internal_error")))

	before = testutil.ToFloat64(m.operations.WithLabelValues("queue_withdrawal", "concurrency_timeout"))
	m.ObserveOperation("queue_withdrawal", time.Now(), fmt.Errorf("lock: %w", domainerrors.ErrConcurrencyTimeout))
	assert.Equal(t, before+1, testutil.ToFloat64(m.operations.WithLabelValues("queue_withdrawal", "concurrency_timeout")))

	before = testutil.ToFloat64(m.yieldApplied.WithLabelValues("reserve"))
	m.ObserveYield(true)
	assert.Equal(t, before+1, testutil.ToFloat64(m.yieldApplied.WithLabelValues("reserve")))

	before = testutil.ToFloat64(m.mismatches.WithLabelValues("unknown"))
	m.ObserveMismatch("")
	assert.Equal(t, before+1, testutil.ToFloat64(m.mismatches.WithLabelValues("unknown")))

	m.ObserveLockRetry("queue_withdrawal")
	m.ObserveInstruction("unstake", "withdrawal")
	m.ObserveQueueTransition("ready")
	m.ObserveJobRun("stake_sweep", nil)
}

func TestEngineMetrics_NilSafe(t *testing.T) {
	var m *EngineMetrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("x", time.Now(), nil)
		m.ObserveLockRetry("x")
		m.ObserveMismatch("x")
		m.ObserveYield(false)
		m.ObserveInstruction("stake", "deploy")
		m.ObserveQueueTransition("failed")
		m.ObserveJobRun("x", nil)
	})
}
