package graph

import (
	"errors"
	"time"

	"docgraph/pkg/chunk"
	"docgraph/pkg/store"
)

const defaultBatchSize = 20

// Pipeline drives documents through linkage, embedding, extraction and
// merge against one GraphStore. All collaborators are injected; a Pipeline
// holds no per-document state and may process different documents
// concurrently.
//
// A Pipeline should be created using NewPipeline.
type Pipeline struct {
	store     store.GraphStore
	tracker   *Tracker
	extractor Extractor
	embedder  Embedder
	splitter  *chunk.Splitter
	schema    ExtractionSchema
	observer  Observer

	model           string
	embeddingDim    int
	batchSize       int
	chunksToCombine int
	parallelExtract int

	now func() time.Time
}

// NewPipelineParams defines the collaborators and tuning of a Pipeline.
//
// Embedder may be nil, which disables embeddings and the vector index.
// Splitter is only needed by ProcessSource. Observer defaults to a no-op.
type NewPipelineParams struct {
	Store     store.GraphStore
	Extractor Extractor
	Embedder  Embedder
	Splitter  *chunk.Splitter
	Schema    ExtractionSchema
	Observer  Observer

	Model           string
	EmbeddingDim    int
	BatchSize       int
	ChunksToCombine int
	ParallelExtract int
}

// NewPipeline creates a Pipeline.
//
// Example:
//
//	p, err := graph.NewPipeline(graph.NewPipelineParams{
//		Store:     neo4jStore,
//		Extractor: graph.NewLLMExtractor(aiClient, 2),
//		Embedder:  aiClient,
//		Splitter:  splitter,
//		Model:     aiClient.ExtractionModel(),
//		EmbeddingDim: 1536,
//		BatchSize: 20,
//	})
func NewPipeline(params NewPipelineParams) (*Pipeline, error) {
	if params.Store == nil {
		return nil, errors.New("graph: store is required")
	}
	if params.Extractor == nil {
		return nil, errors.New("graph: extractor is required")
	}
	if params.Embedder != nil && params.EmbeddingDim <= 0 {
		return nil, errors.New("graph: embedding dimension must be positive when embeddings are enabled")
	}

	p := &Pipeline{
		store:     params.Store,
		tracker:   NewTracker(params.Store),
		extractor: params.Extractor,
		embedder:  params.Embedder,
		splitter:  params.Splitter,
		schema:    params.Schema,
		observer:  params.Observer,

		model:           params.Model,
		embeddingDim:    params.EmbeddingDim,
		batchSize:       params.BatchSize,
		chunksToCombine: params.ChunksToCombine,
		parallelExtract: params.ParallelExtract,

		now: time.Now,
	}
	if p.observer == nil {
		p.observer = nopObserver{}
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	if p.chunksToCombine <= 0 {
		p.chunksToCombine = 1
	}
	if p.parallelExtract <= 0 {
		p.parallelExtract = 1
	}
	return p, nil
}

// Tracker returns the lifecycle tracker bound to the pipeline's store.
func (p *Pipeline) Tracker() *Tracker {
	return p.tracker
}

// EmbeddingsEnabled reports whether chunks get an embedding property.
func (p *Pipeline) EmbeddingsEnabled() bool {
	return p.embedder != nil
}
