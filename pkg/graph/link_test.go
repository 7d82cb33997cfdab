package graph

import (
	"context"
	"testing"

	"docgraph/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	assert.Equal(t, "be76331b95dfc399cd776d2fc68021e0db03cc4f", ChunkID("alpha"))
	assert.Equal(t, ChunkID("alpha"), ChunkID("alpha"))
	assert.NotEqual(t, ChunkID("alpha"), ChunkID("alpha "))
}

func TestLinkChunks_AlphaBetaGamma(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)

	linked, err := p.LinkChunks(ctx, "A.pdf", chunksOf("alpha", "beta", "gamma"), "")
	require.NoError(t, err)

	want := []string{ChunkID("alpha"), ChunkID("beta"), ChunkID("gamma")}
	got := make([]string, len(linked))
	for i, c := range linked {
		got[i] = c.ID
	}
	assert.Equal(t, want, got)
	assert.Equal(t, []string{want[0]}, s.FirstChunks("A.pdf"))
	assert.Equal(t, want, s.ChunkChain("A.pdf"))
	for _, id := range want {
		assert.Equal(t, []string{"A.pdf"}, s.PartOf(id))
	}
	assert.Empty(t, s.NextChunks(want[2]))
}

func TestLinkChunks_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)

	chunks := chunksOf("alpha", "beta", "gamma")
	_, err := p.LinkChunks(ctx, "A.pdf", chunks, "")
	require.NoError(t, err)
	_, err = p.LinkChunks(ctx, "A.pdf", chunks, "")
	require.NoError(t, err)

	assert.Equal(t, 3, s.ChunkCount())
	assert.Len(t, s.FirstChunks("A.pdf"), 1)
	assert.Len(t, s.NextChunks(ChunkID("alpha")), 1)
	assert.Len(t, s.ChunkChain("A.pdf"), 3)
}

func TestLinkChunks_ContinuesAcrossBatches(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)

	chunks := chunksOf("alpha", "beta", "gamma")
	_, err := p.LinkChunks(ctx, "A.pdf", chunks[:2], "")
	require.NoError(t, err)
	_, err = p.LinkChunks(ctx, "A.pdf", chunks[2:], chunks[1].ID)
	require.NoError(t, err)

	assert.Equal(t, []string{chunks[0].ID, chunks[1].ID, chunks[2].ID}, s.ChunkChain("A.pdf"))
	assert.Equal(t, []string{chunks[0].ID}, s.FirstChunks("A.pdf"))
}

func TestLinkChunks_RecomputesIDs(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)

	chunks := chunksOf("alpha")
	chunks[0].ID = "random"
	linked, err := p.LinkChunks(ctx, "A.pdf", chunks, "")
	require.NoError(t, err)
	assert.Equal(t, ChunkID("alpha"), linked[0].ID)
	_, ok := s.Chunk("random")
	assert.False(t, ok)
}

func TestLinkChunks_MissingDocument(t *testing.T) {
	p := newTestPipeline(t, newMemory(), &fakeExtractor{}, nil)
	_, err := p.LinkChunks(context.Background(), "missing.pdf", chunksOf("alpha"), "")
	assert.ErrorIs(t, err, store.ErrDocumentNotFound)
}

func TestLinkChunks_SharedChunkAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	createDoc(t, s, "B.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)

	_, err := p.LinkChunks(ctx, "A.pdf", chunksOf("alpha", "beta"), "")
	require.NoError(t, err)
	_, err = p.LinkChunks(ctx, "B.pdf", chunksOf("alpha", "gamma"), "")
	require.NoError(t, err)

	assert.Equal(t, 3, s.ChunkCount())
	assert.Equal(t, []string{"A.pdf", "B.pdf"}, s.PartOf(ChunkID("alpha")))
	assert.Equal(t, []string{ChunkID("alpha"), ChunkID("beta")}, s.ChunkChain("A.pdf"))
	assert.Equal(t, []string{ChunkID("alpha"), ChunkID("gamma")}, s.ChunkChain("B.pdf"))
}
