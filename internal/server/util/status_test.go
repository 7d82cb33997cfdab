package util

import (
	"testing"
	"time"

	"docgraph/pkg/common"
)

func TestProgressOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  common.Document
		want DocumentProgress
	}{
		{
			name: "new_document_has_no_progress",
			doc:  common.Document{Status: common.StatusNew},
			want: DocumentProgress{},
		},
		{
			name: "completed_is_full",
			doc:  common.Document{Status: common.StatusCompleted},
			want: DocumentProgress{Percentage: 100},
		},
		{
			name: "processing_extrapolates_remaining_time",
			doc: common.Document{
				Status:         common.StatusProcessing,
				TotalChunks:    10,
				ProcessedChunk: 4,
				ProcessingTime: 8 * time.Second,
			},
			want: DocumentProgress{Percentage: 40, TimeRemaining: 12000},
		},
		{
			name: "failed_keeps_percentage_without_estimate",
			doc: common.Document{
				Status:         common.StatusFailed,
				TotalChunks:    4,
				ProcessedChunk: 1,
				ProcessingTime: time.Second,
			},
			want: DocumentProgress{Percentage: 25},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ProgressOf(tt.doc); got != tt.want {
				t.Fatalf("ProgressOf() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
