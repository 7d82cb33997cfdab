package common

import "time"

// DocumentStatus is the lifecycle state of a Document.
//
// Valid transitions are New -> Processing -> {Completed, Failed, Cancelled}.
// Leaving a terminal state requires a reset back to New (fresh upload or
// retry).
type DocumentStatus string

const (
	StatusNew        DocumentStatus = "New"
	StatusProcessing DocumentStatus = "Processing"
	StatusCompleted  DocumentStatus = "Completed"
	StatusFailed     DocumentStatus = "Failed"
	StatusCancelled  DocumentStatus = "Cancelled"
)

// Terminal reports whether no further processing happens without a reset.
func (s DocumentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// RetryCondition selects how a failed or cancelled document is restarted.
type RetryCondition string

const (
	RetryNone               RetryCondition = ""
	RetryFromBeginning      RetryCondition = "start_from_beginning"
	RetryDeleteAndFromStart RetryCondition = "delete_entities_and_start_from_beginning"
	RetryFromLastProcessed  RetryCondition = "start_from_last_processed_position"
)

// Valid reports whether c is one of the known retry conditions.
func (c RetryCondition) Valid() bool {
	switch c {
	case RetryFromBeginning, RetryDeleteAndFromStart, RetryFromLastProcessed:
		return true
	}
	return false
}

// SourceKind names where a document was loaded from.
type SourceKind string

const (
	SourceLocal SourceKind = "local"
	SourceS3    SourceKind = "s3"
	SourceWeb   SourceKind = "web"
)

// Document is one ingested source. It is keyed by FileName and carries all
// processing state, so a crashed worker can be resumed from the graph alone.
type Document struct {
	FileName          string         `json:"fileName"`
	FileSize          int64          `json:"fileSize"`
	FileType          string         `json:"fileType"`
	FileSource        SourceKind     `json:"fileSource"`
	URL               string         `json:"url,omitempty"`
	Status            DocumentStatus `json:"status"`
	Model             string         `json:"model,omitempty"`
	TotalChunks       int            `json:"total_chunks"`
	ProcessedChunk    int            `json:"processed_chunk"`
	TotalPages        int            `json:"total_pages"`
	NodeCount         int            `json:"nodeCount"`
	RelationshipCount int            `json:"relationshipCount"`
	IsCancelled       bool           `json:"is_cancelled"`
	ErrorMessage      string         `json:"errorMessage,omitempty"`
	RetryCondition    RetryCondition `json:"retry_condition,omitempty"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
	ProcessingTime    time.Duration  `json:"processingTime"`
}

// ChunkMetadata is the source-specific position information of a chunk.
// PageNumber is set for paged sources, StartTime/EndTime for timed ones.
type ChunkMetadata struct {
	Position      int      `json:"position"`
	Length        int      `json:"length"`
	ContentOffset int      `json:"content_offset"`
	PageNumber    *int     `json:"page_number,omitempty"`
	StartTime     *float64 `json:"start_time,omitempty"`
	EndTime       *float64 `json:"end_time,omitempty"`
}

// Chunk is a bounded span of document text. ID is derived from Text only.
type Chunk struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Node is an entity extracted by the model. Its graph identity is (Type, ID).
type Node struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Key returns the dedup key of the node.
func (n Node) Key() NodeKey {
	return NodeKey{Type: n.Type, ID: n.ID}
}

// NodeKey identifies an entity graph-wide.
type NodeKey struct {
	Type string
	ID   string
}

// Relationship is a typed, directed edge between two extracted nodes.
type Relationship struct {
	Source     Node           `json:"source"`
	Target     Node           `json:"target"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
}

// GraphDocument is the result of extracting one piece of text.
type GraphDocument struct {
	Nodes         []Node         `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// GraphCounts are the node and relationship totals of a document.
type GraphCounts struct {
	Nodes         int `json:"nodeCount"`
	Relationships int `json:"relationshipCount"`
}
