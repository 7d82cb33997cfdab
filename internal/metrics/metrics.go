package metrics

import (
	"net/http"
	"time"

	"docgraph/pkg/ai"
	"docgraph/pkg/graph"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docgraph"

var _ graph.Observer = (*Collector)(nil)

// Collector holds the pipeline metrics on its own registry and receives
// them as a graph.Observer.
type Collector struct {
	registry *prometheus.Registry

	Batches         *prometheus.CounterVec
	ChunksProcessed prometheus.Counter
	EntitiesMerged  prometheus.Counter
	BatchDuration   prometheus.Histogram
	Documents       *prometheus.CounterVec
	AITokens        *prometheus.CounterVec
	AIDuration      prometheus.Counter
}

// NewCollector creates a Collector with a fresh registry. Go runtime and
// process collectors are registered alongside the pipeline metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	batches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Chunk batches processed, by result",
		},
		[]string{"result"},
	)
	chunks := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_processed_total",
			Help:      "Chunks linked, embedded and extracted",
		},
	)
	entities := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entities_merged_total",
			Help:      "Distinct entities merged per batch, summed",
		},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of one chunk batch",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
	documents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Processing runs finished, by final status",
		},
		[]string{"status"},
	)
	tokens := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_tokens_total",
			Help:      "Model tokens used, by direction",
		},
		[]string{"kind"},
	)
	aiDuration := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_request_seconds_total",
			Help:      "Time spent waiting on model requests",
		},
	)

	registry.MustRegister(
		batches,
		chunks,
		entities,
		duration,
		documents,
		tokens,
		aiDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Collector{
		registry:        registry,
		Batches:         batches,
		ChunksProcessed: chunks,
		EntitiesMerged:  entities,
		BatchDuration:   duration,
		Documents:       documents,
		AITokens:        tokens,
		AIDuration:      aiDuration,
	}
}

// BatchProcessed implements graph.Observer.
func (c *Collector) BatchProcessed(document string, result graph.BatchResult, took time.Duration) {
	c.BatchDuration.Observe(took.Seconds())
	if !result.OK() {
		c.Batches.WithLabelValues(string(result.Failure.Kind)).Inc()
		return
	}
	c.Batches.WithLabelValues("ok").Inc()
	c.ChunksProcessed.Add(float64(result.Chunks))
	c.EntitiesMerged.Add(float64(result.Counts.Nodes))
}

// DocumentFinished implements graph.Observer.
func (c *Collector) DocumentFinished(document string, result graph.ProcessingResult) {
	c.Documents.WithLabelValues(string(result.Status)).Inc()
}

// RecordAI adds the usage of one worker message.
func (c *Collector) RecordAI(m ai.ModelMetrics) {
	c.AITokens.WithLabelValues("input").Add(float64(m.InputTokens))
	c.AITokens.WithLabelValues("output").Add(float64(m.OutputTokens))
	c.AIDuration.Add(float64(m.DurationMs) / 1000)
}

// Registry returns the registry the metrics are registered on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
