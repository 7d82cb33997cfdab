package graph

import "time"

// Observer receives pipeline events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	BatchProcessed(document string, result BatchResult, took time.Duration)
	DocumentFinished(document string, result ProcessingResult)
}

type nopObserver struct{}

func (nopObserver) BatchProcessed(string, BatchResult, time.Duration) {}
func (nopObserver) DocumentFinished(string, ProcessingResult)         {}
