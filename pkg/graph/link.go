package graph

import (
	"context"
	"fmt"

	"docgraph/pkg/chunk"
	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"
)

// ChunkID is the content address of a chunk: the lowercase hex SHA-1 of
// its UTF-8 text.
func ChunkID(text string) string {
	return chunk.ID(text)
}

// LinkChunks writes the chunk nodes of one batch with their PART_OF edge to
// the document, the FIRST_CHUNK edge for the chunk at position 1, and the
// NEXT_CHUNK chain. previousID is the last chunk of the preceding batch, or
// empty for the first batch, so the chain continues across batches.
//
// Ids are recomputed from the text. The returned chunks carry them in
// input order. Re-running LinkChunks with the same input changes nothing.
func (p *Pipeline) LinkChunks(
	ctx context.Context,
	document string,
	chunks []common.Chunk,
	previousID string,
) ([]common.Chunk, error) {
	if _, err := p.store.GetDocument(ctx, document); err != nil {
		return nil, fmt.Errorf("failed to load document %q before linking: %w", document, err)
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	linked := make([]common.Chunk, len(chunks))
	links := make([]store.ChunkLink, 0, len(chunks))
	firstID := ""
	prev := previousID
	for i, c := range chunks {
		c.ID = ChunkID(c.Text)
		linked[i] = c

		if c.Metadata.Position == 1 {
			firstID = c.ID
		}
		if prev != "" {
			if prev == c.ID {
				logger.Warn("[Graph] Consecutive chunks with identical text, skipping self link", "document", document, "chunk", c.ID, "position", c.Metadata.Position)
			} else {
				links = append(links, store.ChunkLink{Previous: prev, Current: c.ID})
			}
		}
		prev = c.ID
	}

	if err := p.store.UpsertChunks(ctx, document, linked); err != nil {
		return nil, fmt.Errorf("failed to upsert chunks: %w", err)
	}
	if firstID != "" {
		if err := p.store.LinkFirstChunk(ctx, document, firstID); err != nil {
			return nil, fmt.Errorf("failed to link first chunk: %w", err)
		}
	}
	if len(links) > 0 {
		if err := p.store.LinkNextChunks(ctx, links); err != nil {
			return nil, fmt.Errorf("failed to link next chunks: %w", err)
		}
	}

	return linked, nil
}
