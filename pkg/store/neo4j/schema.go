package neo4j

import (
	"context"
	"fmt"

	"docgraph/pkg/logger"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var schemaStatements = []string{
	"CREATE CONSTRAINT document_file_name IF NOT EXISTS FOR (d:Document) REQUIRE d.fileName IS UNIQUE",
	"CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE",
	"CREATE INDEX entity_id IF NOT EXISTS FOR (e:`__Entity__`) ON (e.id)",
}

// EnsureSchema creates the constraints and indexes the merge statements
// rely on. Existing equivalents count as success.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.schemaWrite(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	logger.Debug("[Store] Schema ensured", "statements", len(schemaStatements))
	return nil
}

// EnsureVectorIndex creates the cosine vector index over chunk embeddings.
func (s *Store) EnsureVectorIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}
	if err := s.schemaWrite(ctx, vectorIndexQuery(dimension)); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	logger.Debug("[Store] Vector index ensured", "dimension", dimension)
	return nil
}

func (s *Store) schemaWrite(ctx context.Context, stmt string) error {
	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		return struct{}{}, run(ctx, tx, stmt, nil)
	})
	if err != nil && !isAlreadyExists(err) {
		return err
	}
	return nil
}
