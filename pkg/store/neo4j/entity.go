package neo4j

import (
	"context"
	"fmt"

	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// MergeEntities writes all instructions in one transaction with one
// statement per type label.
func (s *Store) MergeEntities(ctx context.Context, merges []store.EntityMerge) error {
	groups := groupEntityMerges(merges)
	if len(groups) == 0 {
		return nil
	}
	logger.Debug("[Store][MergeEntities] Merging entities", "instructions", len(merges), "labels", len(groups))

	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		for _, g := range groups {
			if err := run(ctx, tx, entityMergeQuery(g.label), map[string]any{"rows": g.rows}); err != nil {
				return struct{}{}, fmt.Errorf("failed to merge %s entities: %w", g.label, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// MergeRelationships writes all relationships in one transaction with one
// statement per (source label, target label, type).
func (s *Store) MergeRelationships(ctx context.Context, rels []common.Relationship) error {
	groups := groupRelationships(rels)
	if len(groups) == 0 {
		return nil
	}
	logger.Debug("[Store][MergeRelationships] Merging relationships", "relationships", len(rels), "groups", len(groups))

	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		for _, g := range groups {
			query := relationshipMergeQuery(g.sourceLabel, g.targetLabel, g.relType)
			if err := run(ctx, tx, query, map[string]any{"rows": g.rows}); err != nil {
				return struct{}{}, fmt.Errorf("failed to merge %s relationships: %w", g.relType, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}
