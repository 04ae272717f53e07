// Package metrics registers the Prometheus metrics emitted by the ingestion
// and question-answering pipeline. The HTTP server registers its own request
// metrics separately; both share one registry in `pdfrag serve`.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation label values for APICallDuration.
const (
	OpEnrich      = "enrich"
	OpReformulate = "reformulate"
	OpAnswer      = "answer"
	OpEmbed       = "embed"
)

// Pipeline holds every metric owned by the pipeline packages. A nil
// *Pipeline is valid and records nothing, so components can be built in
// tests without a registry.
type Pipeline struct {
	// enrichAttempts counts generation calls made for chunk enrichment.
	enrichAttempts prometheus.Counter

	// enrichRetries counts failed enrichment calls by error kind.
	enrichRetries *prometheus.CounterVec

	// enrichDegraded counts chunks indexed with a sentinel summary.
	enrichDegraded prometheus.Counter

	// apiCallDuration records the latency of outbound model calls.
	apiCallDuration *prometheus.HistogramVec

	// answers counts answered questions by variant and outcome.
	answers *prometheus.CounterVec

	// chunksIndexed counts chunks written to the index by variant.
	chunksIndexed *prometheus.CounterVec

	// documentsSkipped counts documents dropped during ingestion by reason.
	documentsSkipped *prometheus.CounterVec
}

// New registers all pipeline metrics against reg. promauto.With(reg) keeps
// unit tests hermetic when they pass a fresh registry.
func New(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		enrichAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "enrich",
			Name:      "attempts_total",
			Help:      "Total number of generation calls made to enrich chunks.",
		}),

		enrichRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "enrich",
			Name:      "failures_total",
			Help:      "Failed enrichment calls, partitioned by error kind.",
		}, []string{"kind"}),

		enrichDegraded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "enrich",
			Name:      "degraded_chunks_total",
			Help:      "Chunks indexed with their original text because enrichment failed.",
		}),

		apiCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pdfrag",
			Subsystem: "api",
			Name:      "call_duration_seconds",
			Help:      "Latency of outbound model calls, partitioned by operation.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),

		answers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "qa",
			Name:      "answers_total",
			Help:      "Questions answered, partitioned by variant and outcome.",
		}, []string{"variant", "outcome"}),

		chunksIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Chunks written to the vector index, partitioned by variant.",
		}, []string{"variant"}),

		documentsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdfrag",
			Subsystem: "ingest",
			Name:      "documents_skipped_total",
			Help:      "Documents skipped during ingestion, partitioned by reason.",
		}, []string{"reason"}),
	}
}

// EnrichAttempt records one enrichment call.
func (p *Pipeline) EnrichAttempt() {
	if p != nil {
		p.enrichAttempts.Inc()
	}
}

// EnrichFailure records a failed enrichment call of the given kind.
func (p *Pipeline) EnrichFailure(kind string) {
	if p != nil {
		p.enrichRetries.WithLabelValues(kind).Inc()
	}
}

// EnrichDegraded records a chunk that fell back to its original text.
func (p *Pipeline) EnrichDegraded() {
	if p != nil {
		p.enrichDegraded.Inc()
	}
}

// ObserveCall records the duration of an outbound call started at start.
func (p *Pipeline) ObserveCall(op string, start time.Time) {
	if p != nil {
		p.apiCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}
}

// Answer records an answered question.
func (p *Pipeline) Answer(variant, outcome string) {
	if p != nil {
		p.answers.WithLabelValues(variant, outcome).Inc()
	}
}

// ChunksIndexed records n chunks added to the index.
func (p *Pipeline) ChunksIndexed(variant string, n int) {
	if p != nil {
		p.chunksIndexed.WithLabelValues(variant).Add(float64(n))
	}
}

// DocumentSkipped records a document dropped during ingestion.
func (p *Pipeline) DocumentSkipped(reason string) {
	if p != nil {
		p.documentsSkipped.WithLabelValues(reason).Inc()
	}
}
