// Package metrics registers the Prometheus metrics emitted by the offline
// pipeline stages (index build, embedding, enrichment) and writes them to a
// node-exporter textfile when a batch run finishes.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chapterdex"

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
	OutcomeDisabled = "disabled"
	OutcomeCached   = "cached"
)

// Pipeline holds the pipeline counters. A nil *Pipeline is valid and
// records nothing, so components can be used without metrics.
type Pipeline struct {
	// chaptersTotal counts chapters handled by the index builder, by outcome.
	chaptersTotal *prometheus.CounterVec

	// chunksTotal counts chunks written to the index, by whether they carry
	// a vector ("vector") or are keyword-only ("keyword").
	chunksTotal *prometheus.CounterVec

	// embedBatchesTotal counts embedding batches, by outcome.
	embedBatchesTotal *prometheus.CounterVec

	// enrichTotal counts chapters handled by the enrichment pass, by stage
	// ("heuristic", "llm") and outcome.
	enrichTotal *prometheus.CounterVec
}

// NewPipeline registers the pipeline metrics against reg.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	factory := promauto.With(reg)

	return &Pipeline{
		chaptersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chapters_total",
			Help:      "Chapters processed by the index builder, partitioned by outcome.",
		}, []string{"outcome"}),

		chunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "chunks_total",
			Help:      "Chunks written to the index, partitioned by retrieval mode.",
		}, []string{"mode"}),

		embedBatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "embedding",
			Name:      "batches_total",
			Help:      "Embedding batches, partitioned by outcome.",
		}, []string{"outcome"}),

		enrichTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrich",
			Name:      "chapters_total",
			Help:      "Chapters handled by the enrichment pass, partitioned by stage and outcome.",
		}, []string{"stage", "outcome"}),
	}
}

// Chapter records one chapter outcome of the index builder.
func (p *Pipeline) Chapter(outcome string) {
	if p == nil {
		return
	}
	p.chaptersTotal.WithLabelValues(outcome).Inc()
}

// Chunks records n chunks written with the given mode ("vector" or "keyword").
func (p *Pipeline) Chunks(mode string, n int) {
	if p == nil || n == 0 {
		return
	}
	p.chunksTotal.WithLabelValues(mode).Add(float64(n))
}

// EmbedBatch records one embedding batch outcome.
func (p *Pipeline) EmbedBatch(outcome string) {
	if p == nil {
		return
	}
	p.embedBatchesTotal.WithLabelValues(outcome).Inc()
}

// Enrich records one enrichment outcome for stage.
func (p *Pipeline) Enrich(stage, outcome string) {
	if p == nil {
		return
	}
	p.enrichTotal.WithLabelValues(stage, outcome).Inc()
}

// WriteTextfile writes every metric gathered from g to path in the text
// exposition format, for the node-exporter textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("metrics: write %s: %w", path, err)
	}
	return nil
}
