// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/proposalai/followups/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	triggersTotalCounter    *prometheus.CounterVec
	transitionsTotalCounter *prometheus.CounterVec
	dispatchTotalCounter    *prometheus.CounterVec
	claimsLostCounter       prometheus.Counter
	escalationsCounter      prometheus.Counter
	stepDurationMetric      prometheus.Histogram
	claimLatencyMetric      prometheus.Histogram
	dueBacklogGauge         prometheus.Gauge
	passesTotalCounter      *prometheus.CounterVec
)

// Trigger results.
const (
	TriggerCreated       = "created"
	TriggerAlreadyActive = "already_active"
	TriggerNoSequence    = "no_sequence"
	TriggerNotMet        = "conditions_not_met"
	TriggerError         = "error"
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		triggersTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_triggers_total",
				Help: "Total number of follow-up trigger evaluations by result.",
			},
			[]string{"result"},
		)

		transitionsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_transitions_total",
				Help: "Total number of execution status transitions by resulting status.",
			},
			[]string{"status"},
		)

		dispatchTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_dispatch_total",
				Help: "Total number of message dispatch attempts by delivery status.",
			},
			[]string{"delivery_status"},
		)

		claimsLostCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "followup_claims_lost_total",
				Help: "Total number of due executions skipped because another pass claimed them.",
			},
		)

		escalationsCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "followup_escalations_total",
				Help: "Total number of executions escalated.",
			},
		)

		stepDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "followup_step_duration_seconds",
				Help:    "Duration of one step executor pass in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		claimLatencyMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "followup_claim_latency_seconds",
				Help:    "Latency of execution claim updates in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		dueBacklogGauge = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "followup_due_backlog",
				Help: "Number of due executions found by the latest scheduler pass.",
			},
		)

		passesTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "followup_passes_total",
				Help: "Total number of scheduler and escalation passes by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		prometheus.MustRegister(
			triggersTotalCounter,
			transitionsTotalCounter,
			dispatchTotalCounter,
			claimsLostCounter,
			escalationsCounter,
			stepDurationMetric,
			claimLatencyMetric,
			dueBacklogGauge,
			passesTotalCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, result := range []string{TriggerCreated, TriggerAlreadyActive, TriggerNoSequence, TriggerNotMet, TriggerError} {
			triggersTotalCounter.WithLabelValues(result)
		}

		for _, status := range []domain.ExecutionStatus{
			domain.ExecutionActive,
			domain.ExecutionPaused,
			domain.ExecutionCompleted,
			domain.ExecutionStopped,
		} {
			transitionsTotalCounter.WithLabelValues(string(status))
		}

		for _, status := range []domain.DeliveryStatus{domain.DeliverySent, domain.DeliveryFailed} {
			dispatchTotalCounter.WithLabelValues(string(status))
		}
	})
}

func IncTrigger(result string) {
	Init()
	triggersTotalCounter.WithLabelValues(result).Inc()
}

func IncTransition(status domain.ExecutionStatus) {
	Init()
	transitionsTotalCounter.WithLabelValues(string(status)).Inc()
}

func IncDispatch(status domain.DeliveryStatus) {
	Init()
	dispatchTotalCounter.WithLabelValues(string(status)).Inc()
}

func IncClaimsLost() {
	Init()
	claimsLostCounter.Inc()
}

func IncEscalations() {
	Init()
	escalationsCounter.Inc()
}

func ObserveStepDuration(d time.Duration) {
	Init()
	stepDurationMetric.Observe(d.Seconds())
}

func ObserveClaimLatency(d time.Duration) {
	Init()
	claimLatencyMetric.Observe(d.Seconds())
}

func SetDueBacklog(n int) {
	Init()
	dueBacklogGauge.Set(float64(n))
}

// IncPass counts a finished pass. kind is "due" or "escalation"; outcome is
// "ok", "aborted" or "skipped".
func IncPass(kind, outcome string) {
	Init()
	passesTotalCounter.WithLabelValues(kind, outcome).Inc()
}
