// Package middleware provides the cross-cutting concerns wrapped around
// lab runs: Prometheus metrics and per-unit tracing.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-autolab/infrastructure/llm"
	"github.com/ahrav/go-autolab/internal/ports"
)

// PrometheusMetrics implements ports.MetricsCollector. Known metric names
// map onto dedicated vectors; anything else lands in the generic
// operation vectors keyed by name.
type PrometheusMetrics struct {
	analyses         *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	stageFallbacks   *prometheus.CounterVec
	genomeEvolutions *prometheus.CounterVec
	labScore         *prometheus.GaugeVec
	unitDuration     *prometheus.HistogramVec
	unitErrors       *prometheus.CounterVec
	llmRequests      *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	llmTokens        *prometheus.CounterVec

	operations   *prometheus.CounterVec
	operationDur *prometheus.HistogramVec
	gauges       *prometheus.GaugeVec
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers every collector on reg. A nil reg uses
// the default registerer.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &PrometheusMetrics{
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: ports.MetricAnalysesTotal,
			Help: "Completed dual-lab analyses by judge outcome.",
		}, []string{"winner"}),
		analysisDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    ports.MetricAnalysisDuration,
			Help:    "Wall time of a dual-lab analysis.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"winner"}),
		stageFallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: ports.MetricStageFallbacksTotal,
			Help: "Stages that used their deterministic fallback.",
		}, []string{"lab", "stage"}),
		genomeEvolutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: ports.MetricGenomeEvolutions,
			Help: "Genome versions created by the meta-learner.",
		}, []string{"lab"}),
		labScore: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: ports.MetricLabScore,
			Help: "Judge score of the most recent analysis.",
		}, []string{"lab"}),
		unitDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    ports.MetricUnitDuration,
			Help:    "Execution time of one lab stage or the judge.",
			Buckets: prometheus.DefBuckets,
		}, []string{"unit", "status"}),
		unitErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: ports.MetricUnitErrorsTotal,
			Help: "Unit executions that returned an error.",
		}, []string{"unit"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: llm.MetricRequestsTotal,
			Help: "Text-generation requests by provider, stage and outcome.",
		}, []string{"provider", "model", "stage", "status"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    llm.MetricRequestLatency,
			Help:    "Latency of text-generation requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "stage", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: llm.MetricTokensTotal,
			Help: "Tokens consumed by text generation.",
		}, []string{"provider", "model", "direction"}),

		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autolab_operations_total",
			Help: "Counters without a dedicated metric.",
		}, []string{"metric"}),
		operationDur: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autolab_operation_values",
			Help:    "Latencies and histogram values without a dedicated metric.",
			Buckets: prometheus.DefBuckets,
		}, []string{"metric"}),
		gauges: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autolab_gauges",
			Help: "Gauges without a dedicated metric.",
		}, []string{"metric"}),
	}
}

// RecordLatency observes duration in seconds.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	pm.RecordHistogram(operation, duration.Seconds(), labels)
}

// RecordCounter adds value to the counter named metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricAnalysesTotal:
		pm.analyses.WithLabelValues(label(labels, "winner")).Add(value)
	case ports.MetricStageFallbacksTotal:
		pm.stageFallbacks.WithLabelValues(label(labels, "lab"), label(labels, "stage")).Add(value)
	case ports.MetricGenomeEvolutions:
		pm.genomeEvolutions.WithLabelValues(label(labels, "lab")).Add(value)
	case ports.MetricUnitErrorsTotal:
		pm.unitErrors.WithLabelValues(label(labels, "unit")).Add(value)
	case llm.MetricRequestsTotal:
		pm.llmRequests.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "stage"), label(labels, "status"),
		).Add(value)
	case llm.MetricTokensTotal:
		pm.llmTokens.WithLabelValues(
			label(labels, "provider"), label(labels, "model"), label(labels, "direction"),
		).Add(value)
	default:
		pm.operations.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge sets the gauge named metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricLabScore:
		pm.labScore.WithLabelValues(label(labels, "lab")).Set(value)
	default:
		pm.gauges.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram observes value in the histogram named metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	switch metric {
	case ports.MetricAnalysisDuration:
		pm.analysisDuration.WithLabelValues(label(labels, "winner")).Observe(value)
	case ports.MetricUnitDuration:
		pm.unitDuration.WithLabelValues(label(labels, "unit"), label(labels, "status")).Observe(value)
	case llm.MetricRequestLatency:
		pm.llmLatency.WithLabelValues(
			label(labels, "provider"), label(labels, "stage"), label(labels, "status"),
		).Observe(value)
	default:
		pm.operationDur.WithLabelValues(metric).Observe(value)
	}
}

// label returns labels[key], or "unknown" when it is missing or empty.
func label(labels map[string]string, key string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return "unknown"
}
