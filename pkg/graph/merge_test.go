package graph

import (
	"context"
	"testing"

	"docgraph/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeEntities_DedupAcrossDocuments(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	createDoc(t, s, "B.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)

	a, err := p.LinkChunks(ctx, "A.pdf", chunksOf("alpha"), "")
	require.NoError(t, err)
	b, err := p.LinkChunks(ctx, "B.pdf", chunksOf("delta"), "")
	require.NoError(t, err)

	ada := person("Ada Lovelace")
	counts, err := p.MergeEntities(ctx, []ChunkGraph{{ChunkIDs: []string{a[0].ID}, Graph: common.GraphDocument{Nodes: []common.Node{ada}}}})
	require.NoError(t, err)
	assert.Equal(t, MergeCounts{Nodes: 1}, counts)

	_, err = p.MergeEntities(ctx, []ChunkGraph{{ChunkIDs: []string{b[0].ID}, Graph: common.GraphDocument{Nodes: []common.Node{ada}}}})
	require.NoError(t, err)

	assert.Equal(t, []common.NodeKey{ada.Key()}, s.Entities())
	assert.ElementsMatch(t, []string{a[0].ID, b[0].ID}, s.MentioningChunks(ada.Key()))
}

func TestMergeEntities_CountsAndRelationships(t *testing.T) {
	ctx := context.Background()
	s := newMemory()
	createDoc(t, s, "A.pdf")
	p := newTestPipeline(t, s, &fakeExtractor{}, nil)

	linked, err := p.LinkChunks(ctx, "A.pdf", chunksOf("alpha", "beta", "gamma"), "")
	require.NoError(t, err)

	ada := person("Ada Lovelace")
	babbage := person("Charles Babbage")
	engine := common.Node{ID: "Analytical Engine", Type: "Machine", Properties: map[string]any{"year": "1837"}}
	pairs := []ChunkGraph{
		{
			ChunkIDs: []string{linked[0].ID, linked[1].ID},
			Graph: common.GraphDocument{
				Nodes: []common.Node{ada, engine},
				Relationships: []common.Relationship{
					{Source: ada, Target: engine, Type: "WORKED_ON"},
				},
			},
		},
		{
			ChunkIDs: []string{linked[2].ID},
			Graph: common.GraphDocument{
				Nodes: []common.Node{ada, babbage, {ID: "", Type: "Person"}},
				Relationships: []common.Relationship{
					{Source: ada, Target: babbage, Type: "KNOWS"},
					{Source: ada, Target: engine, Type: "WORKED_ON"},
				},
			},
		},
	}

	counts, err := p.MergeEntities(ctx, pairs)
	require.NoError(t, err)
	assert.Equal(t, MergeCounts{Nodes: 3, Relationships: 2}, counts)

	assert.Len(t, s.Entities(), 3)
	assert.Equal(t, []string{linked[0].ID, linked[1].ID, linked[2].ID}, sortedIDs(s.MentioningChunks(ada.Key()), linked))
	assert.True(t, s.HasRelationship(ada.Key(), engine.Key(), "WORKED_ON"))
	assert.True(t, s.HasRelationship(ada.Key(), babbage.Key(), "KNOWS"))
	assert.Equal(t, "1837", s.EntityProperties(engine.Key())["year"])

	again, err := p.MergeEntities(ctx, pairs)
	require.NoError(t, err)
	assert.Equal(t, counts, again)
	assert.Len(t, s.Entities(), 3)
	assert.Equal(t, 2, s.RelationshipCount())
	assert.Len(t, s.MentioningChunks(ada.Key()), 3)
}

func TestMergeEntities_Empty(t *testing.T) {
	p := newTestPipeline(t, newMemory(), &fakeExtractor{}, nil)
	counts, err := p.MergeEntities(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, MergeCounts{}, counts)
}

// sortedIDs returns the ids of linked that appear in got, in linked order.
func sortedIDs(got []string, linked []common.Chunk) []string {
	set := make(map[string]struct{}, len(got))
	for _, id := range got {
		set[id] = struct{}{}
	}
	var out []string
	for _, c := range linked {
		if _, ok := set[c.ID]; ok {
			out = append(out, c.ID)
		}
	}
	return out
}
