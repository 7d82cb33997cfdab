package neo4j

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// lockDocumentQuery takes the write lock on a document before its status is
// read, so check-then-set transitions are atomic.
const lockDocumentQuery = `MATCH (d:Document {fileName: $name})
SET d._lock = true
REMOVE d._lock
RETURN d.status AS status`

const createDocumentQuery = `MERGE (d:Document {fileName: $fileName})
ON CREATE SET d.createdAt = $now
SET d.fileSize = $fileSize,
    d.fileType = $fileType,
    d.fileSource = $fileSource,
    d.url = $url,
    d.total_pages = $totalPages,
    d.model = $model,
    d.status = 'New',
    d.total_chunks = 0,
    d.processed_chunk = 0,
    d.nodeCount = 0,
    d.relationshipCount = 0,
    d.is_cancelled = false,
    d.errorMessage = '',
    d.retry_condition = '',
    d.processingTime = 0.0,
    d.updatedAt = $now
RETURN d {.*} AS doc`

const startProcessingQuery = `MATCH (d:Document {fileName: $name})
WITH d, d.retry_condition = $resume AS resume
SET d.status = 'Processing',
    d.total_chunks = $total,
    d.total_pages = $pages,
    d.model = $model,
    d.is_cancelled = false,
    d.errorMessage = '',
    d.processed_chunk = CASE
        WHEN NOT resume THEN 0
        WHEN d.processed_chunk > $total THEN $total
        ELSE d.processed_chunk END,
    d.nodeCount = CASE WHEN resume THEN d.nodeCount ELSE 0 END,
    d.relationshipCount = CASE WHEN resume THEN d.relationshipCount ELSE 0 END,
    d.retry_condition = '',
    d.processingTime = CASE WHEN resume THEN coalesce(d.processingTime, 0.0) ELSE 0.0 END,
    d.updatedAt = $now
RETURN d {.*} AS doc`

const updateProgressQuery = `MATCH (d:Document {fileName: $name})
SET d.processed_chunk = CASE
        WHEN $processed <= d.processed_chunk THEN d.processed_chunk
        WHEN $processed > d.total_chunks THEN d.total_chunks
        ELSE $processed END,
    d.nodeCount = $nodes,
    d.relationshipCount = $relationships,
    d.processingTime = $processingTime,
    d.updatedAt = $now
RETURN count(d) AS n`

const transitionQuery = `MATCH (d:Document {fileName: $name})
SET d.status = $status,
    d.errorMessage = $errorMessage,
    d.retry_condition = $retryCondition,
    d.processingTime = CASE WHEN $processingTime > 0 THEN $processingTime ELSE d.processingTime END,
    d.nodeCount = CASE WHEN $hasCounts THEN $nodes ELSE d.nodeCount END,
    d.relationshipCount = CASE WHEN $hasCounts THEN $relationships ELSE d.relationshipCount END,
    d.updatedAt = $now`

const cancelDocumentsQuery = `UNWIND $names AS name
MATCH (d:Document {fileName: name})
WHERE d.status IN ['New', 'Processing']
SET d.is_cancelled = true,
    d.status = CASE WHEN d.status = 'New' THEN 'Cancelled' ELSE d.status END,
    d.updatedAt = $now
RETURN d.fileName AS name`

const resetForRetryQuery = `MATCH (d:Document {fileName: $name})
WITH d, $condition = $resume AS resume
SET d.status = 'New',
    d.is_cancelled = false,
    d.errorMessage = '',
    d.retry_condition = $condition,
    d.processed_chunk = CASE WHEN resume THEN d.processed_chunk ELSE 0 END,
    d.nodeCount = CASE WHEN resume THEN d.nodeCount ELSE 0 END,
    d.relationshipCount = CASE WHEN resume THEN d.relationshipCount ELSE 0 END,
    d.updatedAt = $now
RETURN d {.*} AS doc`

const recoverStaleQuery = `MATCH (d:Document {status: 'Processing'})
WHERE d.updatedAt < $olderThan
SET d.status = 'Failed',
    d.errorMessage = 'processing interrupted',
    d.retry_condition = $resume,
    d.updatedAt = $now
RETURN d.fileName AS name
ORDER BY name`

const countDocumentGraphQuery = `MATCH (d:Document {fileName: $name})
OPTIONAL MATCH (d)<-[:PART_OF]-(:Chunk)-[:HAS_ENTITY]->(e)
WITH d, collect(DISTINCT e) AS entities
WITH entities, size(entities) AS nodes
UNWIND CASE WHEN nodes = 0 THEN [null] ELSE entities END AS s
OPTIONAL MATCH (s)-[r]->(t)
WHERE t IN entities
RETURN nodes, count(DISTINCT r) AS relationships`

const deleteFirstChunkQuery = `UNWIND $names AS name
MATCH (:Document {fileName: name})-[f:FIRST_CHUNK]->()
DELETE f`

const deleteDocumentChunksQuery = `UNWIND $names AS name
MATCH (c:Chunk)-[p:PART_OF]->(:Document {fileName: name})
DELETE p
WITH DISTINCT c
WHERE NOT (c)-[:PART_OF]->(:Document)
DETACH DELETE c`

const deleteDocumentNodesQuery = `UNWIND $names AS name
MATCH (d:Document {fileName: name})
DETACH DELETE d`

const deleteOrphanEntitiesQuery = "MATCH (e:`__Entity__`)\n" +
	"WHERE NOT ()-[:HAS_ENTITY]->(e)\n" +
	"DETACH DELETE e"

func lockDocument(ctx context.Context, tx neo4j.ManagedTransaction, name string) (common.DocumentStatus, error) {
	records, err := collect(ctx, tx, lockDocumentQuery, map[string]any{"name": name})
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", store.ErrDocumentNotFound
	}
	return common.DocumentStatus(recordString(records[0], "status")), nil
}

func singleDocument(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) (common.Document, error) {
	records, err := collect(ctx, tx, query, params)
	if err != nil {
		return common.Document{}, err
	}
	if len(records) == 0 {
		return common.Document{}, store.ErrDocumentNotFound
	}
	return decodeDocument(recordMap(records[0], "doc")), nil
}

func (s *Store) CreateDocument(ctx context.Context, doc common.Document) (common.Document, error) {
	return executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (common.Document, error) {
		status, err := lockDocument(ctx, tx, doc.FileName)
		if err != nil && !errors.Is(err, store.ErrDocumentNotFound) {
			return common.Document{}, err
		}
		if status == common.StatusProcessing {
			return common.Document{}, store.ErrAlreadyProcessing
		}

		return singleDocument(ctx, tx, createDocumentQuery, map[string]any{
			"fileName":   doc.FileName,
			"fileSize":   doc.FileSize,
			"fileType":   doc.FileType,
			"fileSource": string(doc.FileSource),
			"url":        doc.URL,
			"totalPages": int64(doc.TotalPages),
			"model":      doc.Model,
			"now":        time.Now().UTC(),
		})
	})
}

func (s *Store) GetDocument(ctx context.Context, name string) (common.Document, error) {
	return executeRead(ctx, s, func(tx neo4j.ManagedTransaction) (common.Document, error) {
		return singleDocument(ctx, tx, "MATCH (d:Document {fileName: $name}) RETURN d {.*} AS doc", map[string]any{"name": name})
	})
}

func (s *Store) ListDocuments(ctx context.Context) ([]common.Document, error) {
	return executeRead(ctx, s, func(tx neo4j.ManagedTransaction) ([]common.Document, error) {
		records, err := collect(ctx, tx, "MATCH (d:Document) RETURN d {.*} AS doc ORDER BY d.fileName", nil)
		if err != nil {
			return nil, err
		}
		docs := make([]common.Document, 0, len(records))
		for _, r := range records {
			docs = append(docs, decodeDocument(recordMap(r, "doc")))
		}
		return docs, nil
	})
}

func (s *Store) StartProcessing(ctx context.Context, name string, start store.Start) (common.Document, error) {
	return executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (common.Document, error) {
		status, err := lockDocument(ctx, tx, name)
		if err != nil {
			return common.Document{}, err
		}
		if err := store.StartError(status); err != nil {
			return common.Document{}, err
		}

		return singleDocument(ctx, tx, startProcessingQuery, map[string]any{
			"name":   name,
			"total":  int64(start.TotalChunks),
			"pages":  int64(start.TotalPages),
			"model":  start.Model,
			"resume": string(common.RetryFromLastProcessed),
			"now":    time.Now().UTC(),
		})
	})
}

func (s *Store) IsCancelled(ctx context.Context, name string) (bool, error) {
	return executeRead(ctx, s, func(tx neo4j.ManagedTransaction) (bool, error) {
		records, err := collect(ctx, tx,
			"MATCH (d:Document {fileName: $name}) RETURN coalesce(d.is_cancelled, false) AS cancelled",
			map[string]any{"name": name})
		if err != nil {
			return false, err
		}
		if len(records) == 0 {
			return false, store.ErrDocumentNotFound
		}
		v, _ := records[0].Get("cancelled")
		cancelled, _ := v.(bool)
		return cancelled, nil
	})
}

func (s *Store) UpdateProgress(ctx context.Context, name string, p store.Progress) error {
	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		records, err := collect(ctx, tx, updateProgressQuery, map[string]any{
			"name":           name,
			"processed":      int64(p.ProcessedChunk),
			"nodes":          int64(p.NodeCount),
			"relationships":  int64(p.RelationshipCount),
			"processingTime": p.ProcessingTime.Seconds(),
			"now":            time.Now().UTC(),
		})
		if err != nil {
			return struct{}{}, err
		}
		if len(records) == 0 || recordInt(records[0], "n") == 0 {
			return struct{}{}, store.ErrDocumentNotFound
		}
		return struct{}{}, nil
	})
	return err
}

func (s *Store) Transition(ctx context.Context, name string, t store.Transition) error {
	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		status, err := lockDocument(ctx, tx, name)
		if err != nil {
			return struct{}{}, err
		}
		if !store.StatusAllowed(t.From, status) {
			return struct{}{}, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, status, t.To)
		}

		params := map[string]any{
			"name":           name,
			"status":         string(t.To),
			"errorMessage":   t.ErrorMessage,
			"retryCondition": string(t.RetryCondition),
			"processingTime": t.ProcessingTime.Seconds(),
			"hasCounts":      t.Counts != nil,
			"nodes":          int64(0),
			"relationships":  int64(0),
			"now":            time.Now().UTC(),
		}
		if t.Counts != nil {
			params["nodes"] = int64(t.Counts.Nodes)
			params["relationships"] = int64(t.Counts.Relationships)
		}
		return struct{}{}, run(ctx, tx, transitionQuery, params)
	})
	return err
}

func (s *Store) CancelDocuments(ctx context.Context, names []string) ([]string, error) {
	names = store.DedupeStrings(names)
	if len(names) == 0 {
		return nil, nil
	}
	return executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) ([]string, error) {
		records, err := collect(ctx, tx, cancelDocumentsQuery, map[string]any{
			"names": names,
			"now":   time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(records))
		for _, r := range records {
			out = append(out, recordString(r, "name"))
		}
		return out, nil
	})
}

func (s *Store) ResetForRetry(ctx context.Context, name string, cond common.RetryCondition) (common.Document, error) {
	return executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (common.Document, error) {
		status, err := lockDocument(ctx, tx, name)
		if err != nil {
			return common.Document{}, err
		}
		if status == common.StatusProcessing {
			return common.Document{}, store.ErrAlreadyProcessing
		}

		if cond == common.RetryDeleteAndFromStart {
			if err := deleteChunks(ctx, tx, []string{name}, true); err != nil {
				return common.Document{}, err
			}
		}

		return singleDocument(ctx, tx, resetForRetryQuery, map[string]any{
			"name":      name,
			"condition": string(cond),
			"resume":    string(common.RetryFromLastProcessed),
			"now":       time.Now().UTC(),
		})
	})
}

func (s *Store) RecoverStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	return executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) ([]string, error) {
		records, err := collect(ctx, tx, recoverStaleQuery, map[string]any{
			"olderThan": olderThan.UTC(),
			"resume":    string(common.RetryFromLastProcessed),
			"now":       time.Now().UTC(),
		})
		if err != nil {
			return nil, err
		}
		var out []string
		for _, r := range records {
			out = append(out, recordString(r, "name"))
		}
		return out, nil
	})
}

func deleteChunks(ctx context.Context, tx neo4j.ManagedTransaction, names []string, deleteEntities bool) error {
	params := map[string]any{"names": names}
	if err := run(ctx, tx, deleteFirstChunkQuery, params); err != nil {
		return fmt.Errorf("failed to delete first chunk links: %w", err)
	}
	if err := run(ctx, tx, deleteDocumentChunksQuery, params); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if deleteEntities {
		if err := run(ctx, tx, deleteOrphanEntitiesQuery, nil); err != nil {
			return fmt.Errorf("failed to delete orphaned entities: %w", err)
		}
	}
	return nil
}

func (s *Store) DeleteDocuments(ctx context.Context, names []string, deleteEntities bool) error {
	names = store.DedupeStrings(names)
	if len(names) == 0 {
		return nil
	}
	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		if err := run(ctx, tx, deleteFirstChunkQuery, map[string]any{"names": names}); err != nil {
			return struct{}{}, err
		}
		if err := run(ctx, tx, deleteDocumentChunksQuery, map[string]any{"names": names}); err != nil {
			return struct{}{}, err
		}
		if err := run(ctx, tx, deleteDocumentNodesQuery, map[string]any{"names": names}); err != nil {
			return struct{}{}, err
		}
		if deleteEntities {
			if err := run(ctx, tx, deleteOrphanEntitiesQuery, nil); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	logger.Info("[Store] Deleted documents", "documents", len(names), "delete_entities", deleteEntities)
	return nil
}

func (s *Store) DeleteDocumentChunks(ctx context.Context, name string, deleteEntities bool) error {
	_, err := executeWrite(ctx, s, func(tx neo4j.ManagedTransaction) (struct{}, error) {
		if _, err := lockDocument(ctx, tx, name); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, deleteChunks(ctx, tx, []string{name}, deleteEntities)
	})
	return err
}

func (s *Store) CountDocumentGraph(ctx context.Context, name string) (common.GraphCounts, error) {
	return executeRead(ctx, s, func(tx neo4j.ManagedTransaction) (common.GraphCounts, error) {
		records, err := collect(ctx, tx, countDocumentGraphQuery, map[string]any{"name": name})
		if err != nil {
			return common.GraphCounts{}, err
		}
		if len(records) == 0 {
			return common.GraphCounts{}, store.ErrDocumentNotFound
		}
		return common.GraphCounts{
			Nodes:         recordInt(records[0], "nodes"),
			Relationships: recordInt(records[0], "relationships"),
		}, nil
	})
}
