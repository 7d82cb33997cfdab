package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"docgraph/pkg/common"
	"docgraph/pkg/store"
	"docgraph/pkg/store/memory"

	"github.com/stretchr/testify/require"
)

// fakeExtractor returns the graph registered for a text, or an empty one.
type fakeExtractor struct {
	mu      sync.Mutex
	graphs  map[string]common.GraphDocument
	calls   []string
	err     error
	onCall  func(text string)
	schemas []ExtractionSchema
}

func (f *fakeExtractor) Extract(ctx context.Context, text string, schema ExtractionSchema) (common.GraphDocument, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.schemas = append(f.schemas, schema)
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(text)
	}
	if f.err != nil {
		return common.GraphDocument{}, f.err
	}
	return f.graphs[text], nil
}

func (f *fakeExtractor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeEmbedder maps every text to a vector of its length.
type fakeEmbedder struct {
	dim   int
	calls int
	err   error
}

func (f *fakeEmbedder) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		vec := make([]float32, f.dim)
		vec[0] = float32(len(in))
		out[i] = vec
	}
	return out, nil
}

// failingStore fails MergeEntities from the failAt-th call on.
type failingStore struct {
	store.GraphStore
	mu     sync.Mutex
	calls  int
	failAt int
}

var errStoreDown = errors.New("graph store unavailable")

func (s *failingStore) MergeEntities(ctx context.Context, merges []store.EntityMerge) error {
	s.mu.Lock()
	s.calls++
	n := s.calls
	s.mu.Unlock()
	if n >= s.failAt {
		return errStoreDown
	}
	return s.GraphStore.MergeEntities(ctx, merges)
}

func chunksOf(texts ...string) []common.Chunk {
	out := make([]common.Chunk, len(texts))
	offset := 0
	for i, t := range texts {
		out[i] = common.Chunk{
			ID:   ChunkID(t),
			Text: t,
			Metadata: common.ChunkMetadata{
				Position:      i + 1,
				Length:        len(t),
				ContentOffset: offset,
			},
		}
		offset += len(t)
	}
	return out
}

func person(id string) common.Node {
	return common.Node{ID: id, Type: "Person"}
}

func newTestPipeline(t *testing.T, s store.GraphStore, ex Extractor, mutate func(*NewPipelineParams)) *Pipeline {
	t.Helper()
	params := NewPipelineParams{
		Store:     s,
		Extractor: ex,
		Model:     "test-model",
		BatchSize: 2,
	}
	if mutate != nil {
		mutate(&params)
	}
	p, err := NewPipeline(params)
	require.NoError(t, err)
	return p
}

func createDoc(t *testing.T, s store.GraphStore, name string) common.Document {
	t.Helper()
	d, err := s.CreateDocument(context.Background(), common.Document{
		FileName:   name,
		FileSource: common.SourceLocal,
		FileType:   strings.TrimPrefix(name[strings.LastIndex(name, "."):], "."),
	})
	require.NoError(t, err)
	return d
}

func newMemory() *memory.Store {
	return memory.New()
}
