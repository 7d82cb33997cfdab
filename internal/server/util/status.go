package util

import (
	"time"

	"docgraph/pkg/common"
)

// DocumentProgress is the processing progress reported to API clients.
type DocumentProgress struct {
	Percentage    int   `json:"percentage"`
	TimeRemaining int64 `json:"time_remaining_ms,omitempty"`
}

// ProgressOf derives the progress of doc from its chunk counters. The
// remaining time is extrapolated from the time spent per processed chunk
// and only reported while the document is processing.
func ProgressOf(doc common.Document) DocumentProgress {
	if doc.Status == common.StatusCompleted {
		return DocumentProgress{Percentage: 100}
	}
	if doc.TotalChunks <= 0 {
		return DocumentProgress{}
	}

	processed := min(doc.ProcessedChunk, doc.TotalChunks)
	p := DocumentProgress{Percentage: processed * 100 / doc.TotalChunks}
	if doc.Status == common.StatusProcessing && processed > 0 {
		perChunk := doc.ProcessingTime / time.Duration(processed)
		p.TimeRemaining = (perChunk * time.Duration(doc.TotalChunks-processed)).Milliseconds()
	}
	return p
}
