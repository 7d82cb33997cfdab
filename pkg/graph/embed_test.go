package graph

import (
	"context"
	"errors"
	"testing"

	"docgraph/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrepare_CreatesVectorIndex(t *testing.T) {
	s := newMemory()
	p := newTestPipeline(t, s, &fakeExtractor{}, func(params *NewPipelineParams) {
		params.Embedder = &fakeEmbedder{dim: 8}
		params.EmbeddingDim = 8
	})
	require.NoError(t, p.Prepare(context.Background()))
	assert.Equal(t, 8, s.VectorIndexDimension())
}

func TestPrepare_WithoutEmbeddings(t *testing.T) {
	s := newMemory()
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)
	require.NoError(t, p.Prepare(context.Background()))
	assert.Equal(t, 0, s.VectorIndexDimension())
	assert.False(t, p.EmbeddingsEnabled())
}

func TestNewPipeline_EmbedderNeedsDimension(t *testing.T) {
	_, err := NewPipeline(NewPipelineParams{
		Store:     newMemory(),
		Extractor: &fakeExtractor{},
		Embedder:  &fakeEmbedder{dim: 3},
	})
	assert.Error(t, err)
}

func TestAttachEmbeddings_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	doc := createDoc(t, s, "A.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, func(params *NewPipelineParams) {
		params.Embedder = &fakeEmbedder{dim: 4}
		params.EmbeddingDim = 3
	})

	res, err := p.ProcessChunks(ctx, doc, chunksOf("alpha"))
	var be *BatchError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, FailureEmbedding, be.Kind)
	assert.Equal(t, common.StatusFailed, res.Status)
	assert.Nil(t, s.Embedding(ChunkID("alpha")))
}

func TestAttachEmbeddings_ProviderError(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	boom := errors.New("rate limited")
	p := newTestPipeline(t, s, &fakeExtractor{}, func(params *NewPipelineParams) {
		params.Embedder = &fakeEmbedder{dim: 3, err: boom}
		params.EmbeddingDim = 3
	})

	chunks := chunksOf("alpha")
	require.NoError(t, s.UpsertChunks(ctx, "A.pdf", chunks))
	assert.ErrorIs(t, p.AttachEmbeddings(ctx, "A.pdf", chunks), boom)
}
