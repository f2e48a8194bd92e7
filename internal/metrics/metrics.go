// Package metrics exposes Prometheus metrics for the ranking pipeline.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aman-CERP/hybridrank/pkg/hybrid"
)

const namespace = "hybridrank"

// sizeBuckets covers result list lengths from a handful to a few thousand.
var sizeBuckets = []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.HistogramVec
	retrieverErrors  *prometheus.CounterVec
	lexicalDegraded  prometheus.Counter
	fusedSize        prometheus.Histogram
	budgetOutput     prometheus.Histogram
	tokensUsed       prometheus.Histogram
	disagreementPool prometheus.Histogram
	weightUpdates    prometheus.Counter
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total ranking runs by status.",
		},
		[]string{"status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Ranking run duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	retrieverErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "errors_total",
			Help:      "Retriever failures by source.",
		},
		[]string{"source"},
	)
	lexicalDegraded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrieval",
			Name:      "lexical_degraded_total",
			Help:      "Runs scored without bm25 because the lexical retriever failed.",
		},
	)
	fusedSize := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "fused_results",
			Help:      "Number of documents in the fused list.",
			Buckets:   sizeBuckets,
		},
	)
	budgetOutput := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "output_passages",
			Help:      "Number of passages kept after budgeting.",
			Buckets:   sizeBuckets,
		},
	)
	tokensUsed := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "tokens_used",
			Help:      "Estimated tokens in the budgeted passages.",
			Buckets:   prometheus.ExponentialBuckets(100, 2, 10),
		},
	)
	disagreementPool := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "budget",
			Name:      "disagreement_pool",
			Help:      "Passages whose sparse and dense scores disagree past the threshold.",
			Buckets:   sizeBuckets,
		},
	)
	weightUpdates := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scorer",
			Name:      "weight_updates_total",
			Help:      "Hybrid weight updates applied at runtime.",
		},
	)

	registry.MustRegister(
		runsTotal, runDuration, retrieverErrors, lexicalDegraded,
		fusedSize, budgetOutput, tokensUsed, disagreementPool, weightUpdates,
	)

	return &Metrics{
		registry:         registry,
		runsTotal:        runsTotal,
		runDuration:      runDuration,
		retrieverErrors:  retrieverErrors,
		lexicalDegraded:  lexicalDegraded,
		fusedSize:        fusedSize,
		budgetOutput:     budgetOutput,
		tokensUsed:       tokensUsed,
		disagreementPool: disagreementPool,
		weightUpdates:    weightUpdates,
	}
}

// Handler serves the registry for the embedding application to mount.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveRun(duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (m *Metrics) RetrieverFailed(source string) {
	if m == nil {
		return
	}
	m.retrieverErrors.WithLabelValues(source).Inc()
}

func (m *Metrics) LexicalDegraded() {
	if m == nil {
		return
	}
	m.lexicalDegraded.Inc()
}

func (m *Metrics) ObserveFusion(n int) {
	if m == nil {
		return
	}
	m.fusedSize.Observe(float64(n))
}

func (m *Metrics) ObserveBudget(stats hybrid.BudgetStats) {
	if m == nil {
		return
	}
	m.budgetOutput.Observe(float64(stats.Output))
	m.tokensUsed.Observe(float64(stats.TokensUsed))
	m.disagreementPool.Observe(float64(stats.DisagreementPool))
}

func (m *Metrics) WeightsUpdated() {
	if m == nil {
		return
	}
	m.weightUpdates.Inc()
}
