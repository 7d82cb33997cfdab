package graph

import (
	"context"
	"errors"
	"testing"

	"docgraph/pkg/ai"
	"docgraph/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTypes(t *testing.T) {
	tests := []struct {
		in, node, rel string
	}{
		{in: "person", node: "Person", rel: "PERSON"},
		{in: "PERSON", node: "Person", rel: "PERSON"},
		{in: "creative_work", node: "CreativeWork", rel: "CREATIVE_WORK"},
		{in: "CreativeWork", node: "CreativeWork", rel: "CREATIVEWORK"},
		{in: "worked on", node: "WorkedOn", rel: "WORKED_ON"},
		{in: " works-for ", node: "WorksFor", rel: "WORKS_FOR"},
		{in: "", node: "", rel: ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.node, NormalizeNodeType(tc.in))
			assert.Equal(t, tc.rel, NormalizeRelationshipType(tc.in))
		})
	}
}

func TestNormalizeNodeID(t *testing.T) {
	tests := map[string]string{
		"  Ada   Lovelace ": "Ada Lovelace",
		"IBM":               "IBM",
		"eBay":              "eBay",
		"iPhone 15":         "iPhone 15",
		"ada lovelace":      "ada lovelace",
		"   ":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeNodeID(in), in)
	}
}

func TestNormalizeGraph(t *testing.T) {
	doc := common.GraphDocument{
		Nodes: []common.Node{
			{ID: " Ada  Lovelace", Type: "person", Properties: map[string]any{"born": "1815"}},
			{ID: "Ada Lovelace", Type: "Person", Properties: map[string]any{"died": "1852"}},
			{ID: "London", Type: "location"},
			{ID: "", Type: "Person"},
		},
		Relationships: []common.Relationship{
			{Source: person("Ada Lovelace"), Target: common.Node{ID: "Analytical Engine", Type: "machine"}, Type: "worked on"},
			{Source: person("Ada Lovelace"), Target: common.Node{ID: "Analytical Engine", Type: "Machine"}, Type: "WORKED_ON"},
			{Source: person("Ada Lovelace"), Target: common.Node{ID: "London", Type: "Location"}, Type: "lived in"},
			{Source: person("Ada Lovelace"), Target: person("Charles Babbage"), Type: "knows"},
		},
	}

	t.Run("no allow-lists", func(t *testing.T) {
		got := NormalizeGraph(doc, ExtractionSchema{})

		keys := make([]common.NodeKey, len(got.Nodes))
		for i, n := range got.Nodes {
			keys[i] = n.Key()
		}
		assert.Equal(t, []common.NodeKey{
			{Type: "Person", ID: "Ada Lovelace"},
			{Type: "Location", ID: "London"},
			{Type: "Machine", ID: "Analytical Engine"},
			{Type: "Person", ID: "Charles Babbage"},
		}, keys)
		assert.Equal(t, map[string]any{"born": "1815", "died": "1852"}, got.Nodes[0].Properties)
		require.Len(t, got.Relationships, 3)
		assert.Equal(t, "WORKED_ON", got.Relationships[0].Type)
		assert.Equal(t, "LIVED_IN", got.Relationships[1].Type)
		assert.Equal(t, "KNOWS", got.Relationships[2].Type)
	})

	t.Run("allow-lists", func(t *testing.T) {
		got := NormalizeGraph(doc, ExtractionSchema{
			AllowedNodes:         []string{"PERSON", "machine"},
			AllowedRelationships: []string{"worked_on", "KNOWS"},
		})

		keys := make([]common.NodeKey, len(got.Nodes))
		for i, n := range got.Nodes {
			keys[i] = n.Key()
		}
		assert.Equal(t, []common.NodeKey{
			{Type: "Person", ID: "Ada Lovelace"},
			{Type: "Machine", ID: "Analytical Engine"},
			{Type: "Person", ID: "Charles Babbage"},
		}, keys)
		require.Len(t, got.Relationships, 2)
		assert.Equal(t, "WORKED_ON", got.Relationships[0].Type)
		assert.Equal(t, "KNOWS", got.Relationships[1].Type)
	})

	t.Run("disallowed endpoint is not added", func(t *testing.T) {
		got := NormalizeGraph(common.GraphDocument{
			Relationships: []common.Relationship{
				{Source: person("Ada"), Target: common.Node{ID: "London", Type: "Location"}, Type: "LIVED_IN"},
			},
		}, ExtractionSchema{AllowedNodes: []string{"Person"}})
		assert.Empty(t, got.Nodes)
		assert.Empty(t, got.Relationships)
	})
}

func TestCombineChunks(t *testing.T) {
	chunks := chunksOf("a", "b", "c", "d", "e")
	groups := combineChunks(chunks, 2)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[2], 1)
	assert.Len(t, combineChunks(chunks, 0), 5)
	assert.Empty(t, combineChunks(nil, 3))
}

func TestExtractChunks_KeysGroupsToAllChunkIDs(t *testing.T) {
	ex := &fakeExtractor{graphs: map[string]common.GraphDocument{
		"alpha\nbeta": {Nodes: []common.Node{person("Ada Lovelace")}},
	}}
	p := newTestPipeline(t, newMemory(), ex, func(params *NewPipelineParams) {
		params.ChunksToCombine = 2
		params.ParallelExtract = 2
		params.Schema = ExtractionSchema{AllowedNodes: []string{"Person"}}
	})

	chunks := chunksOf("alpha", "beta", "gamma")
	got, err := p.ExtractChunks(context.Background(), chunks)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, []string{chunks[0].ID, chunks[1].ID}, got[0].ChunkIDs)
	assert.Equal(t, []common.Node{person("Ada Lovelace")}, got[0].Graph.Nodes)
	assert.Equal(t, []string{chunks[2].ID}, got[1].ChunkIDs)
	assert.ElementsMatch(t, []string{"alpha\nbeta", "gamma"}, ex.Calls())
	assert.Equal(t, []string{"Person"}, ex.schemas[0].AllowedNodes)
}

func TestExtractChunks_Error(t *testing.T) {
	boom := errors.New("model unavailable")
	p := newTestPipeline(t, newMemory(), &fakeExtractor{err: boom}, nil)
	_, err := p.ExtractChunks(context.Background(), chunksOf("alpha"))
	assert.ErrorIs(t, err, boom)
}

// scriptedClient answers GenerateCompletionWithFormat with fixed JSON.
type scriptedClient struct {
	ai.MetricsRecorder
	answers []string
	errs    []error
	calls   int
	system  []string
	options ai.GenerateOptions
}

func (c *scriptedClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	i := c.calls
	c.calls++
	o := ai.ApplyOptions(ai.GenerateOptions{}, opts...)
	c.system = o.SystemPrompts
	c.options = o
	if i < len(c.errs) && c.errs[i] != nil {
		return c.errs[i]
	}
	return ai.UnmarshalFlexible(c.answers[i], out)
}

func (c *scriptedClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (c *scriptedClient) GenerateEmbeddings(ctx context.Context, inputs [][]byte) ([][]float32, error) {
	return nil, errors.New("not implemented")
}

func (c *scriptedClient) ExtractionModel() string { return "scripted" }

func TestLLMExtractor_RetriesAndNormalizes(t *testing.T) {
	client := &scriptedClient{
		errs: []error{errors.New("rate limited"), nil},
		answers: []string{"", `{
			"nodes": [{"id": "Ada  Lovelace ", "type": "person", "properties": [{"key": "born", "value": "1815"}]}],
			"relationships": [{"source_node_id": "Ada Lovelace", "source_node_type": "Person",
				"target_node_id": "Analytical Engine", "target_node_type": "machine", "type": "worked on", "properties": []}]
		}`},
	}
	ex := NewLLMExtractor(client, 2)

	doc, err := ex.Extract(context.Background(), "Ada Lovelace worked on the Analytical Engine.", ExtractionSchema{
		AllowedNodes: []string{"Person", "Machine"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	require.Len(t, doc.Nodes, 2)
	assert.Equal(t, common.Node{ID: "Ada Lovelace", Type: "Person", Properties: map[string]any{"born": "1815"}}, doc.Nodes[0])
	assert.Equal(t, common.NodeKey{Type: "Machine", ID: "Analytical Engine"}, doc.Nodes[1].Key())
	require.Len(t, doc.Relationships, 1)
	assert.Equal(t, "WORKED_ON", doc.Relationships[0].Type)
	require.Len(t, client.system, 1)
	assert.Contains(t, client.system[0], "Person, Machine")
}

func TestLLMExtractor_GivesUp(t *testing.T) {
	boom := errors.New("rate limited")
	client := &scriptedClient{errs: []error{boom, boom}, answers: []string{"", ""}}
	_, err := NewLLMExtractor(client, 2).Extract(context.Background(), "text", ExtractionSchema{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, client.calls)
}

func TestLLMExtractor_PassesOptions(t *testing.T) {
	client := &scriptedClient{answers: []string{`{"nodes": [], "relationships": []}`}}
	ex := NewLLMExtractor(client, 1, ai.WithTemperature(0.3), ai.WithThinking("low"))

	_, err := ex.Extract(context.Background(), "nothing here", ExtractionSchema{})
	require.NoError(t, err)
	assert.Equal(t, 0.3, client.options.Temperature)
	assert.Equal(t, "low", client.options.Thinking)
	assert.Len(t, client.options.SystemPrompts, 1)
}
