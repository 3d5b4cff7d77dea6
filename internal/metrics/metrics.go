// Package metrics exposes the tasker's operational counters through a
// dedicated prometheus.Registry, following the same register-then-read
// shape the pack's observability packages use (new registry per process,
// vectors keyed by a single label where the signal is per-operation).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Tasker bundles every metric the tasker loop reports.
type Tasker struct {
	registry *prometheus.Registry

	attemptsClaimed prometheus.Counter
	testsClaimed    prometheus.Counter
	testsValid      prometheus.Counter
	testsFailed     prometheus.Counter
	llmRequests     *prometheus.CounterVec
	pendingAttempts prometheus.Gauge
}

// New builds a Tasker metrics bundle registered on a fresh registry.
func New() *Tasker {
	return NewWithRegisterer(prometheus.NewRegistry())
}

// NewWithRegisterer registers every metric on reg, letting tests supply
// their own throwaway registry instead of the process-global default.
func NewWithRegisterer(reg *prometheus.Registry) *Tasker {
	t := &Tasker{
		registry: reg,
		attemptsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasker_attempts_claimed_total",
			Help: "Attempts picked up by next_attempt_with_pending_work.",
		}),
		testsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasker_tests_claimed_total",
			Help: "TestResult claims won via claim_test_result.",
		}),
		testsValid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasker_tests_valid_total",
			Help: "TestResults finalized with status=VALID.",
		}),
		testsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasker_tests_failed_total",
			Help: "TestResults finalized with status=FAILED.",
		}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasker_llm_requests_total",
			Help: "LLM gateway calls by operation.",
		}, []string{"op"}),
		pendingAttempts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tasker_pending_attempts",
			Help: "Attempts observed eligible for processing on the last poll.",
		}),
	}

	reg.MustRegister(t.attemptsClaimed, t.testsClaimed, t.testsValid, t.testsFailed, t.llmRequests, t.pendingAttempts)
	return t
}

// Registry returns the registry these metrics were registered on, for
// mounting behind promhttp.HandlerFor.
func (t *Tasker) Registry() *prometheus.Registry {
	return t.registry
}

func (t *Tasker) AttemptClaimed()        { t.attemptsClaimed.Inc() }
func (t *Tasker) TestClaimed()           { t.testsClaimed.Inc() }
func (t *Tasker) TestValid()             { t.testsValid.Inc() }
func (t *Tasker) TestFailed()            { t.testsFailed.Inc() }
func (t *Tasker) LLMRequest(op string)   { t.llmRequests.WithLabelValues(op).Inc() }
func (t *Tasker) SetPendingAttempts(n int) {
	t.pendingAttempts.Set(float64(n))
}
