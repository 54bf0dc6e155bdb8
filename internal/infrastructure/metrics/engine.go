package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	domainerrors "yield-vault.backend/internal/domain/errors"
)

// EngineMetrics tracks accounting and settlement activity
type EngineMetrics struct {
	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	lockRetries     *prometheus.CounterVec
	mismatches      *prometheus.CounterVec
	yieldApplied    *prometheus.CounterVec
	instructions    *prometheus.CounterVec
	queueTransition *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
}

var (
	engineOnce     sync.Once
	engineRegistry *EngineMetrics
)

// Engine returns the process-wide metrics, registering them on first use
func Engine() *EngineMetrics {
	engineOnce.Do(func() {
		engineRegistry = &EngineMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_operations_total",
				Help: "Engine operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			operationTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "vault_operation_duration_seconds",
				Help:    "Engine operation latency including lock waits.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			lockRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_lock_retries_total",
				Help: "Retries caused by row lock timeouts.",
			}, []string{"operation"}),
			mismatches: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_confirmation_mismatches_total",
				Help: "Ignored external confirmations by kind.",
			}, []string{"kind"}),
			yieldApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_yield_applied_total",
				Help: "Yield harvests applied, split by whether they moved the index or went to reserve.",
			}, []string{"target"}),
			instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_instructions_emitted_total",
				Help: "Outbox instructions emitted by direction and purpose.",
			}, []string{"direction", "purpose"}),
			queueTransition: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_queue_item_transitions_total",
				Help: "Withdrawal queue item transitions by target status.",
			}, []string{"status"}),
			jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "vault_job_runs_total",
				Help: "Background sweep runs by job and outcome.",
			}, []string{"job", "outcome"}),
		}
		prometheus.MustRegister(
			engineRegistry.operations,
			engineRegistry.operationTime,
			engineRegistry.lockRetries,
			engineRegistry.mismatches,
			engineRegistry.yieldApplied,
			engineRegistry.instructions,
			engineRegistry.queueTransition,
			engineRegistry.jobRuns,
		)
	})
	return engineRegistry
}

// outcome labels a result by its domain error code so retries and mismatches stay separable
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(domainerrors.CodeOf(err))
}

// ObserveOperation records one engine operation
func (m *EngineMetrics) ObserveOperation(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, outcome(err)).Inc()
	m.operationTime.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *EngineMetrics) ObserveLockRetry(op string) {
	if m == nil {
		return
	}
	m.lockRetries.WithLabelValues(op).Inc()
}

func (m *EngineMetrics) ObserveMismatch(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.mismatches.WithLabelValues(kind).Inc()
}

func (m *EngineMetrics) ObserveYield(reserved bool) {
	if m == nil {
		return
	}
	target := "index"
	if reserved {
		target = "reserve"
	}
	m.yieldApplied.WithLabelValues(target).Inc()
}

func (m *EngineMetrics) ObserveInstruction(direction, purpose string) {
	if m == nil {
		return
	}
	m.instructions.WithLabelValues(direction, purpose).Inc()
}

func (m *EngineMetrics) ObserveQueueTransition(status string) {
	if m == nil {
		return
	}
	m.queueTransition.WithLabelValues(status).Inc()
}

func (m *EngineMetrics) ObserveJobRun(job string, err error) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome(err)).Inc()
}
