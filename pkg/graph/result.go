package graph

import (
	"fmt"
	"time"

	"docgraph/pkg/common"
)

// FailureKind classifies why a document stopped.
type FailureKind string

const (
	FailureSource     FailureKind = "source"
	FailureExtraction FailureKind = "extraction"
	FailureEmbedding  FailureKind = "embedding"
	FailureWrite      FailureKind = "write"
	FailureIntegrity  FailureKind = "integrity"
	// FailureInterrupted means the run's context ended; the document can
	// resume from its last processed chunk.
	FailureInterrupted FailureKind = "interrupted"
)

// BatchError is the failure half of a BatchResult.
type BatchError struct {
	Kind FailureKind
	Err  error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("%s failure: %v", e.Kind, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

func newBatchError(kind FailureKind, err error) *BatchError {
	return &BatchError{Kind: kind, Err: err}
}

// BatchResult is the outcome of one chunk batch: either the counts it
// contributed or a failure. Failure is nil on success.
type BatchResult struct {
	Chunks  int
	Counts  MergeCounts
	Failure *BatchError
}

func batchSuccess(chunks int, counts MergeCounts) BatchResult {
	return BatchResult{Chunks: chunks, Counts: counts}
}

func batchFailure(kind FailureKind, err error) BatchResult {
	return BatchResult{Failure: newBatchError(kind, err)}
}

// OK reports whether the batch succeeded.
func (r BatchResult) OK() bool {
	return r.Failure == nil
}

// ProcessingResult summarises one processing run of a document.
type ProcessingResult struct {
	Document          string
	Status            common.DocumentStatus
	TotalChunks       int
	ProcessedChunk    int
	NodeCount         int
	RelationshipCount int
	Batches           int
	ProcessingTime    time.Duration
	ErrorMessage      string
}
