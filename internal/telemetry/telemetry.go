// Package telemetry owns the prometheus collectors and the tracer used by the
// ingestion and retrieval paths.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the package-wide tracer. Without a configured provider spans are no-ops.
var Tracer trace.Tracer = otel.Tracer("ragchat")

// Batch outcomes.
const (
	OutcomeStored  = "stored"
	OutcomeSkipped = "skipped"
	OutcomeAborted = "aborted"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Batches          *prometheus.CounterVec
	BatchAttempts    prometheus.Counter
	PointsUpserted   prometheus.Counter
	Retrievals       *prometheus.CounterVec
	RetrievalSeconds prometheus.Histogram
}

// NewMetrics registers every collector on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_ingest_batches_total",
				Help: "Ingestion batches by outcome",
			},
			[]string{"outcome"},
		),
		BatchAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_ingest_batch_attempts_total",
			Help: "Embedding plus upsert attempts, including retries",
		}),
		PointsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_ingest_points_upserted_total",
			Help: "Points written to the vector store",
		}),
		Retrievals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ragchat_retrievals_total",
				Help: "Retrieval requests by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		RetrievalSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragchat_retrieval_duration_seconds",
			Help:    "Query embedding plus search latency",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
	}
	m.registry.MustRegister(m.Batches, m.BatchAttempts, m.PointsUpserted, m.Retrievals, m.RetrievalSeconds)
	return m
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Batch(outcome string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Attempt() {
	if m == nil {
		return
	}
	m.BatchAttempts.Inc()
}

func (m *Metrics) Upserted(n int) {
	if m == nil {
		return
	}
	m.PointsUpserted.Add(float64(n))
}

func (m *Metrics) Retrieval(mode, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Retrievals.WithLabelValues(mode, outcome).Inc()
	if seconds > 0 {
		m.RetrievalSeconds.Observe(seconds)
	}
}
