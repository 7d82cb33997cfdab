package graph

import (
	"context"
	"fmt"

	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"
)

// ChunkGraph is the graph document extracted from a group of combined
// chunks, keyed by every chunk id of the group.
type ChunkGraph struct {
	ChunkIDs []string
	Graph    common.GraphDocument
}

// MergeCounts are the distinct (type, id) entities and distinct
// relationships contributed by one batch's extraction results.
type MergeCounts struct {
	Nodes         int
	Relationships int
}

// Add returns the sum of c and o.
func (c MergeCounts) Add(o MergeCounts) MergeCounts {
	return MergeCounts{Nodes: c.Nodes + o.Nodes, Relationships: c.Relationships + o.Relationships}
}

// MergeEntities writes one batch of extraction results. Every (chunk, node)
// pair becomes a merge-by-(type, id) of the entity plus a merged HAS_ENTITY
// edge, all in one bulk call. Entity-to-entity relationships follow in a
// second bulk call, typed as extracted. Nodes without an id or type cannot
// be keyed and are skipped.
func (p *Pipeline) MergeEntities(ctx context.Context, pairs []ChunkGraph) (MergeCounts, error) {
	var (
		merges    []store.EntityMerge
		rels      []common.Relationship
		nodeKeys  = make(map[common.NodeKey]struct{})
		relKeys   = make(map[relationshipKey]struct{})
		seenMerge = make(map[entityMergeKey]struct{})
	)

	for _, pair := range pairs {
		for _, node := range pair.Graph.Nodes {
			if node.ID == "" || node.Type == "" {
				logger.Warn("[Graph] Skipping entity without id or type", "id", node.ID, "type", node.Type)
				continue
			}
			nodeKeys[node.Key()] = struct{}{}
			for _, chunkID := range pair.ChunkIDs {
				k := entityMergeKey{chunkID: chunkID, node: node.Key()}
				if _, ok := seenMerge[k]; ok {
					continue
				}
				seenMerge[k] = struct{}{}
				merges = append(merges, store.EntityMerge{ChunkID: chunkID, Node: node})
			}
		}
		for _, rel := range pair.Graph.Relationships {
			if rel.Type == "" || rel.Source.ID == "" || rel.Source.Type == "" || rel.Target.ID == "" || rel.Target.Type == "" {
				continue
			}
			k := relationshipKey{source: rel.Source.Key(), target: rel.Target.Key(), typ: rel.Type}
			if _, ok := relKeys[k]; ok {
				continue
			}
			relKeys[k] = struct{}{}
			rels = append(rels, rel)
		}
	}

	if len(merges) > 0 {
		if err := p.store.MergeEntities(ctx, merges); err != nil {
			return MergeCounts{}, fmt.Errorf("failed to merge %d entities: %w", len(merges), err)
		}
	}
	if len(rels) > 0 {
		if err := p.store.MergeRelationships(ctx, rels); err != nil {
			return MergeCounts{}, fmt.Errorf("failed to merge %d relationships: %w", len(rels), err)
		}
	}

	return MergeCounts{Nodes: len(nodeKeys), Relationships: len(relKeys)}, nil
}

type entityMergeKey struct {
	chunkID string
	node    common.NodeKey
}
