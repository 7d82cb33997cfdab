package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docgraph/pkg/common"
	"docgraph/pkg/loader"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"
)

// ProcessChunks runs one document through the pipeline in batches of the
// configured size.
//
// The document is moved to Processing first; a document that is already
// Processing is rejected without any mutation. Before every batch, and
// once more after the last one, the cancel flag is checked, so a cancel
// arriving during a batch lets that batch finish and stops before the
// next. A failed batch marks the document Failed and stops; work merged by
// earlier batches stays in the graph.
//
// A document reset with common.RetryFromLastProcessed resumes after its
// processed_chunk, continuing the NEXT_CHUNK chain from the chunk already
// stored at that position. Any other run first detaches the chunks left
// from earlier runs; their entities stay in the graph.
//
// The returned error is nil for Completed and Cancelled runs.
func (p *Pipeline) ProcessChunks(ctx context.Context, doc common.Document, chunks []common.Chunk) (ProcessingResult, error) {
	return p.processChunks(ctx, doc, chunks, 0)
}

func (p *Pipeline) processChunks(ctx context.Context, doc common.Document, chunks []common.Chunk, totalPages int) (ProcessingResult, error) {
	name := doc.FileName
	result := ProcessingResult{Document: name, TotalChunks: len(chunks)}

	started, err := p.tracker.Start(ctx, name, store.Start{
		TotalChunks: len(chunks),
		TotalPages:  totalPages,
		Model:       p.model,
	})
	if err != nil {
		result.Status = started.Status
		return result, fmt.Errorf("failed to start processing %q: %w", name, err)
	}
	result.Status = common.StatusProcessing

	begin := p.now()
	base := started.ProcessingTime
	elapsed := func() time.Duration { return base + p.now().Sub(begin) }

	processed, previousID := p.resumePoint(ctx, name, started, chunks)
	if processed == 0 {
		// A run from the start rebuilds the chain, so chunks of an earlier
		// split must not stay linked to the document.
		if err := p.store.DeleteDocumentChunks(ctx, name, false); err != nil {
			return p.fail(ctx, result, newBatchError(FailureWrite, fmt.Errorf("failed to detach previous chunks: %w", err)), elapsed())
		}
	}
	counts := MergeCounts{}
	if processed > 0 {
		counts = MergeCounts{Nodes: started.NodeCount, Relationships: started.RelationshipCount}
		logger.Info("[Graph] Resuming document", "document", name, "processed_chunk", processed, "total_chunks", len(chunks))
	}
	result.ProcessedChunk = processed

	cancelled := false
	for start := processed; start < len(chunks); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			return p.fail(ctx, result, newBatchError(FailureInterrupted, err), elapsed())
		}
		cancelled, err = p.tracker.IsCancelled(ctx, name)
		if err != nil {
			return p.fail(ctx, result, newBatchError(FailureWrite, err), elapsed())
		}
		if cancelled {
			break
		}

		batch := chunks[start:min(start+p.batchSize, len(chunks))]
		batchStart := time.Now()
		res := p.processBatch(ctx, name, batch, previousID)
		result.Batches++
		p.observer.BatchProcessed(name, res, time.Since(batchStart))

		if !res.OK() {
			return p.fail(ctx, result, res.Failure, elapsed())
		}

		counts = counts.Add(res.Counts)
		processed = start + len(batch)
		previousID = batch[len(batch)-1].ID
		if err := p.tracker.RecordBatch(ctx, name, processed, counts, elapsed()); err != nil {
			return p.fail(ctx, result, newBatchError(FailureWrite, err), elapsed())
		}
		result.ProcessedChunk = processed
		result.NodeCount = counts.Nodes
		result.RelationshipCount = counts.Relationships

		logger.Debug("[Graph] Batch processed", "document", name, "processed_chunk", processed, "total_chunks", len(chunks), "nodes", res.Counts.Nodes, "relationships", res.Counts.Relationships)
	}

	if !cancelled {
		cancelled, err = p.tracker.IsCancelled(ctx, name)
		if err != nil {
			return p.fail(ctx, result, newBatchError(FailureWrite, err), elapsed())
		}
	}

	result.ProcessingTime = elapsed()
	if cancelled {
		if err := p.tracker.Cancel(ctx, name, result.ProcessingTime); err != nil {
			return result, fmt.Errorf("failed to mark %q cancelled: %w", name, err)
		}
		result.Status = common.StatusCancelled
		logger.Info("[Graph] Document cancelled", "document", name, "processed_chunk", result.ProcessedChunk, "total_chunks", len(chunks))
	} else {
		exact, err := p.tracker.Complete(ctx, name, result.ProcessingTime)
		if err != nil {
			return result, fmt.Errorf("failed to mark %q completed: %w", name, err)
		}
		result.Status = common.StatusCompleted
		result.NodeCount = exact.Nodes
		result.RelationshipCount = exact.Relationships
		logger.Info("[Graph] Document completed", "document", name, "chunks", len(chunks), "nodes", exact.Nodes, "relationships", exact.Relationships, "took", result.ProcessingTime)
	}

	p.observer.DocumentFinished(name, result)
	return result, nil
}

// resumePoint returns how many leading chunks are already processed and the
// id of the last of them. A stored chunk that does not match the current
// split means the source or splitter changed; processing restarts at 0.
func (p *Pipeline) resumePoint(ctx context.Context, name string, doc common.Document, chunks []common.Chunk) (int, string) {
	processed := min(doc.ProcessedChunk, len(chunks))
	if processed == 0 {
		return 0, ""
	}
	stored, ok, err := p.store.ChunkAtPosition(ctx, name, processed)
	if err != nil || !ok || stored != ChunkID(chunks[processed-1].Text) {
		logger.Warn("[Graph] Stored progress does not match current chunks, restarting", "document", name, "processed_chunk", processed, "err", err)
		return 0, ""
	}
	return processed, stored
}

func (p *Pipeline) processBatch(ctx context.Context, name string, batch []common.Chunk, previousID string) BatchResult {
	linked, err := p.LinkChunks(ctx, name, batch, previousID)
	if err != nil {
		if errors.Is(err, store.ErrDocumentNotFound) {
			return batchFailure(FailureIntegrity, err)
		}
		return batchFailure(FailureWrite, err)
	}

	if err := p.AttachEmbeddings(ctx, name, linked); err != nil {
		return batchFailure(FailureEmbedding, err)
	}

	graphs, err := p.ExtractChunks(ctx, linked)
	if err != nil {
		return batchFailure(FailureExtraction, err)
	}

	counts, err := p.MergeEntities(ctx, graphs)
	if err != nil {
		return batchFailure(FailureWrite, err)
	}

	return batchSuccess(len(linked), counts)
}

// fail records the failure on the document. Status writes use a context
// detached from ctx so a shutdown still leaves the document Failed; such
// interruptions are marked for resumption.
func (p *Pipeline) fail(ctx context.Context, result ProcessingResult, failure *BatchError, elapsed time.Duration) (ProcessingResult, error) {
	cond := common.RetryNone
	if errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
		cond = common.RetryFromLastProcessed
	}

	result.Status = common.StatusFailed
	result.ErrorMessage = failure.Error()
	result.ProcessingTime = elapsed

	if err := p.tracker.Fail(context.WithoutCancel(ctx), result.Document, result.ErrorMessage, cond, elapsed); err != nil {
		logger.Error("[Graph] Failed to mark document failed", "document", result.Document, "err", err)
	}
	logger.Error("[Graph] Document failed", "document", result.Document, "kind", failure.Kind, "err", failure.Err, "processed_chunk", result.ProcessedChunk)

	p.observer.DocumentFinished(result.Document, result)
	return result, failure
}

// ProcessSource loads the document's source, splits it and runs
// ProcessChunks. A source that cannot be loaded or split marks the
// document Failed before any chunk is linked. A staged local upload is
// removed once the run ends Completed or Cancelled.
func (p *Pipeline) ProcessSource(ctx context.Context, doc common.Document, l loader.Loader) (ProcessingResult, error) {
	name := doc.FileName
	result := ProcessingResult{Document: name}

	current, err := p.store.GetDocument(ctx, name)
	if err != nil {
		return result, fmt.Errorf("failed to load document %q: %w", name, err)
	}
	result.Status = current.Status
	if err := store.StartError(current.Status); err != nil {
		return result, fmt.Errorf("failed to start processing %q: %w", name, err)
	}
	if p.splitter == nil {
		return result, errors.New("graph: ProcessSource requires a splitter")
	}

	src := loader.SourceFromDocument(current)
	pages, err := l.Load(ctx, src)
	if err != nil {
		return p.failSource(ctx, result, fmt.Errorf("failed to load source %q: %w", src.Path, err))
	}
	chunks, err := p.splitter.Split(pages)
	if err != nil {
		return p.failSource(ctx, result, fmt.Errorf("failed to split source %q: %w", src.Path, err))
	}
	warnDuplicateChunks(name, chunks)

	result, err = p.processChunks(ctx, current, chunks, len(pages))
	if err != nil {
		return result, err
	}

	if src.Kind == common.SourceLocal && (result.Status == common.StatusCompleted || result.Status == common.StatusCancelled) {
		if c, ok := l.(loader.Cleaner); ok {
			if err := c.Cleanup(ctx, src); err != nil {
				logger.Warn("[Graph] Failed to remove staged upload", "document", name, "path", src.Path, "err", err)
			}
		}
	}
	return result, nil
}

func (p *Pipeline) failSource(ctx context.Context, result ProcessingResult, err error) (ProcessingResult, error) {
	return p.fail(ctx, result, newBatchError(FailureSource, err), 0)
}

// warnDuplicateChunks logs chunks whose text repeats within a document.
// They share one node, so the document's chain visits it more than once.
func warnDuplicateChunks(name string, chunks []common.Chunk) {
	seen := make(map[string]int, len(chunks))
	for _, c := range chunks {
		id := ChunkID(c.Text)
		if pos, ok := seen[id]; ok {
			logger.Warn("[Graph] Duplicate chunk text", "document", name, "chunk", id, "first_position", pos, "position", c.Metadata.Position)
			continue
		}
		seen[id] = c.Metadata.Position
	}
}
