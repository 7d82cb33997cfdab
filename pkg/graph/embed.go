package graph

import (
	"context"
	"fmt"

	"docgraph/pkg/common"
	"docgraph/pkg/store"
)

// Embedder turns texts into vectors of one fixed dimension.
// ai.GraphAIClient satisfies it.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error)
}

// AttachEmbeddings computes one embedding per chunk in a single provider
// call and writes them in a single batched update. It is a no-op when
// embeddings are disabled.
func (p *Pipeline) AttachEmbeddings(ctx context.Context, document string, chunks []common.Chunk) error {
	if p.embedder == nil || len(chunks) == 0 {
		return nil
	}

	inputs := make([][]byte, len(chunks))
	for i, c := range chunks {
		inputs[i] = []byte(c.Text)
	}

	vectors, err := p.embedder.GenerateEmbeddings(ctx, inputs)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks of %q: %w", len(chunks), document, err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedding provider returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	rows := make([]store.ChunkEmbedding, len(chunks))
	for i, vec := range vectors {
		if len(vec) != p.embeddingDim {
			return fmt.Errorf("embedding for chunk %s has dimension %d, want %d", chunks[i].ID, len(vec), p.embeddingDim)
		}
		rows[i] = store.ChunkEmbedding{ChunkID: chunks[i].ID, Embedding: vec}
	}

	return p.store.SetChunkEmbeddings(ctx, rows)
}

// EnsureVectorIndex creates the cosine vector index over chunk embeddings
// when it is absent. An existing index counts as success.
func (p *Pipeline) EnsureVectorIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("vector index dimension must be positive, got %d", dimension)
	}
	return p.store.EnsureVectorIndex(ctx, dimension)
}

// Prepare bootstraps constraints and, when embeddings are enabled, the
// vector index. It is safe to call on every start.
func (p *Pipeline) Prepare(ctx context.Context) error {
	if err := p.store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	if p.embedder == nil {
		return nil
	}
	if err := p.EnsureVectorIndex(ctx, p.embeddingDim); err != nil {
		return fmt.Errorf("failed to ensure vector index: %w", err)
	}
	return nil
}
