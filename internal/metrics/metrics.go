// Package metrics registers the Prometheus instruments for the ingestion and
// query pipeline. A single Metrics instance is created at startup; tests
// inject a fresh prometheus.Registry so they never pollute the default one.
// All record methods are nil-safe, so components can run unmetered.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values shared across instruments.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Metrics holds every Prometheus instrument owned by the pipeline.
type Metrics struct {
	// embedRequestsTotal counts provider embed calls, partitioned by outcome.
	embedRequestsTotal *prometheus.CounterVec

	// embedRetriesTotal counts transient provider failures that triggered a retry.
	embedRetriesTotal prometheus.Counter

	// embedDurationSeconds records the wall-clock duration of each provider call.
	embedDurationSeconds prometheus.Histogram

	// ingestBatchesTotal counts processed ingestion batches by outcome
	// (ok, skipped, error).
	ingestBatchesTotal *prometheus.CounterVec

	// ingestRecordsTotal counts records by terminal state (ok, skipped, error).
	ingestRecordsTotal *prometheus.CounterVec

	// searchRequestsTotal counts query-engine searches by outcome.
	searchRequestsTotal *prometheus.CounterVec

	// searchDurationSeconds records end-to-end search latency (embed + store query).
	searchDurationSeconds prometheus.Histogram
}

// New registers all pipeline metrics against reg and returns the populated
// Metrics. promauto.With(reg) registers into the provided registry rather
// than the global default, keeping unit tests hermetic.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		embedRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "progdex",
			Subsystem: "embed",
			Name:      "requests_total",
			Help:      "Total embedding provider calls, partitioned by outcome.",
		}, []string{"outcome"}),

		embedRetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "progdex",
			Subsystem: "embed",
			Name:      "retries_total",
			Help:      "Transient provider failures that triggered a backoff retry.",
		}),

		embedDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "progdex",
			Subsystem: "embed",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of individual embedding provider calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		ingestBatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "progdex",
			Subsystem: "ingest",
			Name:      "batches_total",
			Help:      "Ingestion batches processed, partitioned by outcome.",
		}, []string{"outcome"}),

		ingestRecordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "progdex",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Catalog records processed, partitioned by terminal state.",
		}, []string{"outcome"}),

		searchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "progdex",
			Subsystem: "search",
			Name:      "requests_total",
			Help:      "Query-engine searches, partitioned by outcome.",
		}, []string{"outcome"}),

		searchDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "progdex",
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "End-to-end search latency including query embedding.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// EmbedCall records one provider call with its duration.
func (m *Metrics) EmbedCall(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.embedRequestsTotal.WithLabelValues(outcome).Inc()
	m.embedDurationSeconds.Observe(d.Seconds())
}

// EmbedRetry records one transient failure that will be retried.
func (m *Metrics) EmbedRetry() {
	if m == nil {
		return
	}
	m.embedRetriesTotal.Inc()
}

// IngestBatch records one processed batch.
func (m *Metrics) IngestBatch(outcome string) {
	if m == nil {
		return
	}
	m.ingestBatchesTotal.WithLabelValues(outcome).Inc()
}

// IngestRecords records n records reaching the given terminal state.
func (m *Metrics) IngestRecords(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ingestRecordsTotal.WithLabelValues(outcome).Add(float64(n))
}

// Search records one search with its end-to-end latency.
func (m *Metrics) Search(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.searchRequestsTotal.WithLabelValues(outcome).Inc()
	m.searchDurationSeconds.Observe(d.Seconds())
}
