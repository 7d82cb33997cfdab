package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docgraph/pkg/common"
	"docgraph/pkg/graph"
	"docgraph/pkg/loader"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"
)

// ErrStillProcessing is returned by HandleDelete while one of the
// documents is still being processed. The message is retried later.
var ErrStillProcessing = errors.New("documents are still processing")

// SourceProcessor runs one document through the pipeline.
// *graph.Pipeline satisfies it.
type SourceProcessor interface {
	ProcessSource(ctx context.Context, doc common.Document, l loader.Loader) (graph.ProcessingResult, error)
}

// Worker handles the messages of every work queue.
type Worker struct {
	store     store.GraphStore
	pipeline  SourceProcessor
	loader    loader.Loader
	publisher Publisher
	now       func() time.Time
}

// NewWorkerParams configures a Worker. Publisher is used to requeue
// recovered documents.
type NewWorkerParams struct {
	Store     store.GraphStore
	Pipeline  SourceProcessor
	Loader    loader.Loader
	Publisher Publisher
}

// NewWorker creates a Worker.
func NewWorker(params NewWorkerParams) *Worker {
	return &Worker{
		store:     params.Store,
		pipeline:  params.Pipeline,
		loader:    params.Loader,
		publisher: params.Publisher,
		now:       time.Now,
	}
}

// Handlers maps every queue in Queues to its handler.
func (w *Worker) Handlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		ExtractQueue: w.HandleExtract,
		DeleteQueue:  w.HandleDelete,
	}
}

// HandleExtract processes the document named by an ExtractMsg.
//
// A document that is gone or not New is skipped: the message is a
// duplicate, or the document was cancelled or deleted meanwhile. A run
// that fails inside the pipeline has already recorded the failure on the
// document and is not retried from the queue. A run interrupted by
// shutdown is reset to resume from its last processed chunk and the error
// is returned so the message is delivered again.
func (w *Worker) HandleExtract(ctx context.Context, body []byte) error {
	var msg ExtractMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return Permanent(fmt.Errorf("failed to decode extract message: %w", err))
	}
	if msg.FileName == "" {
		return Permanent(errors.New("extract message without file name"))
	}

	doc, err := w.store.GetDocument(ctx, msg.FileName)
	if errors.Is(err, store.ErrDocumentNotFound) {
		logger.Warn("[Queue] Document no longer exists, skipping", "document", msg.FileName, "correlation_id", msg.CorrelationID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load document %q: %w", msg.FileName, err)
	}
	if doc.Status != common.StatusNew {
		logger.Info("[Queue] Document is not startable, skipping", "document", msg.FileName, "status", doc.Status, "correlation_id", msg.CorrelationID)
		return nil
	}

	logger.Info("[Queue] Processing document", "document", msg.FileName, "source", doc.FileSource, "correlation_id", msg.CorrelationID)
	res, err := w.pipeline.ProcessSource(ctx, doc, w.loader)
	if err == nil {
		logger.Info("[Queue] Document finished", "document", msg.FileName, "status", res.Status, "processed_chunk", res.ProcessedChunk, "total_chunks", res.TotalChunks, "correlation_id", msg.CorrelationID)
		return nil
	}

	if errors.Is(err, store.ErrAlreadyProcessing) || errors.Is(err, store.ErrNotStartable) {
		logger.Info("[Queue] Document was started elsewhere, skipping", "document", msg.FileName, "err", err)
		return nil
	}

	var be *graph.BatchError
	if !errors.As(err, &be) {
		return err
	}
	if be.Kind == graph.FailureInterrupted {
		if _, rerr := w.store.ResetForRetry(context.WithoutCancel(ctx), msg.FileName, common.RetryFromLastProcessed); rerr != nil {
			logger.Error("[Queue] Failed to reset interrupted document", "document", msg.FileName, "err", rerr)
		}
		return err
	}

	logger.Warn("[Queue] Document failed", "document", msg.FileName, "kind", be.Kind, "err", be.Err, "correlation_id", msg.CorrelationID)
	return nil
}

// HandleDelete removes the documents of a DeleteMsg. Documents that are
// still processing are flagged cancelled first and the deletion waits for
// a later delivery. Staged uploads of local documents are removed too.
func (w *Worker) HandleDelete(ctx context.Context, body []byte) error {
	var msg DeleteMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return Permanent(fmt.Errorf("failed to decode delete message: %w", err))
	}
	names := store.DedupeStrings(msg.FileNames)
	if len(names) == 0 {
		return nil
	}

	var (
		running []string
		docs    []common.Document
	)
	for _, name := range names {
		doc, err := w.store.GetDocument(ctx, name)
		if errors.Is(err, store.ErrDocumentNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to load document %q: %w", name, err)
		}
		if doc.Status == common.StatusProcessing {
			running = append(running, name)
		}
		docs = append(docs, doc)
	}

	if len(running) > 0 {
		if _, err := w.store.CancelDocuments(ctx, running); err != nil {
			return fmt.Errorf("failed to cancel running documents: %w", err)
		}
		logger.Info("[Queue] Delete waiting for running documents", "documents", running, "correlation_id", msg.CorrelationID)
		return fmt.Errorf("%w: %v", ErrStillProcessing, running)
	}

	if err := w.store.DeleteDocuments(ctx, names, msg.DeleteEntities); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}

	if c, ok := w.loader.(loader.Cleaner); ok {
		for _, doc := range docs {
			if doc.FileSource != common.SourceLocal {
				continue
			}
			if err := c.Cleanup(ctx, loader.SourceFromDocument(doc)); err != nil {
				logger.Warn("[Queue] Failed to remove staged upload", "document", doc.FileName, "err", err)
			}
		}
	}

	logger.Info("[Queue] Deleted documents", "count", len(docs), "delete_entities", msg.DeleteEntities, "correlation_id", msg.CorrelationID)
	return nil
}

// RecoverStale fails documents left Processing by a crashed worker for
// longer than staleAfter, resets them to resume from their last processed
// chunk and enqueues them again.
func (w *Worker) RecoverStale(ctx context.Context, staleAfter time.Duration) error {
	names, err := w.store.RecoverStale(ctx, w.now().Add(-staleAfter))
	if err != nil {
		return fmt.Errorf("failed to recover stale documents: %w", err)
	}
	if len(names) == 0 {
		logger.Debug("[Queue] No stale documents found")
		return nil
	}

	logger.Info("[Queue] Found stale documents", "count", len(names))
	for _, name := range names {
		if _, err := w.store.ResetForRetry(ctx, name, common.RetryFromLastProcessed); err != nil {
			logger.Error("[Queue] Failed to reset stale document", "document", name, "err", err)
			continue
		}
		if w.publisher == nil {
			continue
		}
		id, err := PublishExtract(ctx, w.publisher, name, "", "Recovered stale document")
		if err != nil {
			logger.Error("[Queue] Failed to requeue stale document", "document", name, "err", err)
			continue
		}
		logger.Info("[Queue] Recovered stale document", "document", name, "correlation_id", id)
	}
	return nil
}
