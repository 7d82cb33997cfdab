package neo4j

import (
	"context"
	"fmt"

	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const upsertChunksQuery = `MATCH (d:Document {fileName: $name})
UNWIND $rows AS row
MERGE (c:Chunk {id: row.id})
SET c.text = row.text,
    c.position = row.position,
    c.length = row.length,
    c.content_offset = row.content_offset,
    c.page_number = row.page_number,
    c.start_time = row.start_time,
    c.end_time = row.end_time
MERGE (c)-[:PART_OF]->(d)
RETURN count(DISTINCT d) AS documents`

const linkFirstChunkQuery = `MATCH (d:Document {fileName: $name})
MATCH (c:Chunk {id: $chunkId})
OPTIONAL MATCH (d)-[old:FIRST_CHUNK]->(other:Chunk)
WHERE other.id <> $chunkId
DELETE old
WITH DISTINCT d, c
MERGE (d)-[:FIRST_CHUNK]->(c)
RETURN count(c) AS n`

const linkNextChunksQuery = `UNWIND $rows AS row
MATCH (a:Chunk {id: row.previous})
MATCH (b:Chunk {id: row.current})
MERGE (a)-[:NEXT_CHUNK]->(b)
RETURN count(*) AS n`

const chunkAtPositionQuery = `MATCH (c:Chunk)-[:PART_OF]->(:Document {fileName: $name})
WHERE c.position = $position
RETURN c.id AS id
LIMIT 1`

const setEmbeddingsQuery = `UNWIND $rows AS row
MATCH (c:Chunk {id: row.id})
SET c.embedding = row.embedding`

// chunkWriteSize bounds the rows sent in one statement.
const chunkWriteSize = 1000

func (s *Store) UpsertChunks(ctx context.Context, name string, chunks []common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	logger.Debug("[Store][UpsertChunks] Bulk upserting chunks", "document", name, "chunks", len(chunks))

	rows := chunkRows(chunks)
	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		return struct{}{}, store.ChunkRange(len(rows), chunkWriteSize, func(start, end int) error {
			records, err := collect(ctx, tx, upsertChunksQuery, map[string]any{
				"name": name,
				"rows": rows[start:end],
			})
			if err != nil {
				return err
			}
			if len(records) == 0 || recordInt(records[0], "documents") == 0 {
				return store.ErrDocumentNotFound
			}
			return nil
		})
	})
	return err
}

func (s *Store) LinkFirstChunk(ctx context.Context, name string, chunkID string) error {
	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		records, err := collect(ctx, tx, linkFirstChunkQuery, map[string]any{
			"name":    name,
			"chunkId": chunkID,
		})
		if err != nil {
			return struct{}{}, err
		}
		if len(records) == 0 || recordInt(records[0], "n") == 0 {
			return struct{}{}, fmt.Errorf("first chunk %s of %s: %w", chunkID, name, store.ErrDocumentNotFound)
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) LinkNextChunks(ctx context.Context, links []store.ChunkLink) error {
	if len(links) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(links))
	for _, l := range links {
		rows = append(rows, map[string]any{"previous": l.Previous, "current": l.Current})
	}

	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		records, err := collect(ctx, tx, linkNextChunksQuery, map[string]any{"rows": rows})
		if err != nil {
			return struct{}{}, err
		}
		linked := 0
		if len(records) > 0 {
			linked = recordInt(records[0], "n")
		}
		if linked != len(rows) {
			return struct{}{}, fmt.Errorf("linked %d of %d chunk pairs", linked, len(rows))
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) ChunkAtPosition(ctx context.Context, name string, position int) (string, bool, error) {
	id, err := executeRead(ctx, s, func(tx neo4j.ManagedTransaction) (string, error) {
		records, err := collect(ctx, tx, chunkAtPositionQuery, map[string]any{
			"name":     name,
			"position": int64(position),
		})
		if err != nil || len(records) == 0 {
			return "", err
		}
		return recordString(records[0], "id"), nil
	})
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

func (s *Store) SetChunkEmbeddings(ctx context.Context, embeddings []store.ChunkEmbedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(embeddings))
	for _, e := range embeddings {
		vec := make([]float64, len(e.Embedding))
		for i, v := range e.Embedding {
			vec[i] = float64(v)
		}
		rows = append(rows, map[string]any{"id": e.ChunkID, "embedding": vec})
	}

	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		return struct{}{}, run(ctx, tx, setEmbeddingsQuery, map[string]any{"rows": rows})
	})
	return err
}
