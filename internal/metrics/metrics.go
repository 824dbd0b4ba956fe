package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the engine.
type Metrics struct {
	RunsStarted      *prometheus.CounterVec
	RunsCompleted    *prometheus.CounterVec
	ActionsDecided   *prometheus.CounterVec
	ActionsExecuted  *prometheus.CounterVec
	UndoRequests     *prometheus.CounterVec
	ChannelRequests  *prometheus.CounterVec
	ChannelLatency   *prometheus.HistogramVec
	QuotaExhaustions *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = New(namespace)
		prometheus.MustRegister(
			metricsInstance.RunsStarted,
			metricsInstance.RunsCompleted,
			metricsInstance.ActionsDecided,
			metricsInstance.ActionsExecuted,
			metricsInstance.UndoRequests,
			metricsInstance.ChannelRequests,
			metricsInstance.ChannelLatency,
			metricsInstance.QuotaExhaustions,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}

// New builds the collectors without registering them. Tests use it to observe
// counters without touching the default registry.
func New(namespace string) *Metrics {
	return &Metrics{
		RunsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total automation runs started by run type.",
		}, []string{"run_type"}),
		RunsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total automation runs finished by run type and outcome.",
		}, []string{"run_type", "outcome"}),
		ActionsDecided: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_decided_total",
			Help:      "Total evaluator decisions by action type and confidence tier.",
		}, []string{"action_type", "confidence_level"}),
		ActionsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_executed_total",
			Help:      "Total executed actions by action type and status.",
		}, []string{"action_type", "status"}),
		UndoRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_requests_total",
			Help:      "Total undo requests by outcome.",
		}, []string{"outcome"}),
		ChannelRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_requests_total",
			Help:      "Total marketplace API requests by channel and status.",
		}, []string{"channel", "status"}),
		ChannelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_request_duration_seconds",
			Help:      "Latency distribution for marketplace API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"channel", "status"}),
		QuotaExhaustions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_exhaustions_total",
			Help:      "Total mutating calls refused because the daily revision cap was reached.",
		}, []string{"channel"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Total errors grouped by component.",
		}, []string{"component"}),
	}
}
