package graph

import (
	"context"
	"fmt"
	"time"

	"docgraph/pkg/common"
	"docgraph/pkg/store"
)

// Tracker owns the status machine of Document nodes:
//
//	New -> Processing -> {Completed, Failed, Cancelled}
//
// Only the orchestrating run of a document writes through its Tracker, so
// the store's per-statement atomicity is the only locking needed.
type Tracker struct {
	store store.GraphStore
}

// NewTracker binds a Tracker to s.
func NewTracker(s store.GraphStore) *Tracker {
	return &Tracker{store: s}
}

// Start moves a New document to Processing and records its totals. A
// document that is already Processing is refused with
// store.ErrAlreadyProcessing and left untouched; terminal documents return
// store.ErrNotStartable until they are reset.
func (t *Tracker) Start(ctx context.Context, name string, start store.Start) (common.Document, error) {
	return t.store.StartProcessing(ctx, name, start)
}

// IsCancelled reports whether a cancel was requested for the document.
func (t *Tracker) IsCancelled(ctx context.Context, name string) (bool, error) {
	return t.store.IsCancelled(ctx, name)
}

// RecordBatch persists cumulative progress after a batch. The store keeps
// processed_chunk monotonic and clamped to total_chunks.
func (t *Tracker) RecordBatch(ctx context.Context, name string, processed int, counts MergeCounts, elapsed time.Duration) error {
	return t.store.UpdateProgress(ctx, name, store.Progress{
		ProcessedChunk:    processed,
		NodeCount:         counts.Nodes,
		RelationshipCount: counts.Relationships,
		ProcessingTime:    elapsed,
	})
}

// Complete marks a Processing document Completed. The approximate running
// totals are replaced with exact counts over the document's chunks.
func (t *Tracker) Complete(ctx context.Context, name string, elapsed time.Duration) (common.GraphCounts, error) {
	counts, err := t.store.CountDocumentGraph(ctx, name)
	if err != nil {
		return common.GraphCounts{}, fmt.Errorf("failed to count document graph: %w", err)
	}
	err = t.store.Transition(ctx, name, store.Transition{
		From:           []common.DocumentStatus{common.StatusProcessing},
		To:             common.StatusCompleted,
		ProcessingTime: elapsed,
		Counts:         &counts,
	})
	return counts, err
}

// Cancel marks a Processing document Cancelled.
func (t *Tracker) Cancel(ctx context.Context, name string, elapsed time.Duration) error {
	return t.store.Transition(ctx, name, store.Transition{
		From:           []common.DocumentStatus{common.StatusProcessing},
		To:             common.StatusCancelled,
		ProcessingTime: elapsed,
	})
}

// Fail marks a New or Processing document Failed with message and an
// optional retry condition for a later retry.
func (t *Tracker) Fail(ctx context.Context, name string, message string, cond common.RetryCondition, elapsed time.Duration) error {
	return t.store.Transition(ctx, name, store.Transition{
		From:           []common.DocumentStatus{common.StatusNew, common.StatusProcessing},
		To:             common.StatusFailed,
		ErrorMessage:   message,
		RetryCondition: cond,
		ProcessingTime: elapsed,
	})
}
