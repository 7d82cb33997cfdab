package store

import (
	"context"
	"errors"
	"time"

	"docgraph/pkg/common"
)

var (
	// ErrDocumentNotFound is returned when no Document with the given
	// fileName exists. Linking chunks against a missing document is an
	// integrity violation, not a user error.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrAlreadyProcessing is returned when a document is already in the
	// Processing state. Nothing is mutated.
	ErrAlreadyProcessing = errors.New("document is already processing")
	// ErrNotStartable is returned when a document is in a terminal state and
	// must be reset before it can be processed again.
	ErrNotStartable = errors.New("document is not startable")
	// ErrInvalidTransition is returned when a status transition's
	// precondition does not hold.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ChunkLink is one NEXT_CHUNK edge from Previous to Current.
type ChunkLink struct {
	Previous string
	Current  string
}

// ChunkEmbedding is the embedding vector of one chunk.
type ChunkEmbedding struct {
	ChunkID   string
	Embedding []float32
}

// EntityMerge links the entity Node to the chunk it was extracted from.
type EntityMerge struct {
	ChunkID string
	Node    common.Node
}

// Start carries the values recorded when processing begins.
type Start struct {
	TotalChunks int
	TotalPages  int
	Model       string
}

// Progress is the per-batch update written onto a Document.
type Progress struct {
	ProcessedChunk    int
	NodeCount         int
	RelationshipCount int
	ProcessingTime    time.Duration
}

// Transition moves a Document to status To. When From is not empty the
// current status must be one of its entries, otherwise ErrInvalidTransition
// is returned and nothing changes. Counts replaces the running totals when
// set.
type Transition struct {
	From           []common.DocumentStatus
	To             common.DocumentStatus
	ErrorMessage   string
	RetryCondition common.RetryCondition
	ProcessingTime time.Duration
	Counts         *common.GraphCounts
}

// GraphStore persists documents, chunks and entities in a property graph
// with merge-on-conflict semantics. Every write is idempotent: repeating it
// with the same input leaves the graph unchanged.
type GraphStore interface {
	EnsureSchema(ctx context.Context) error
	EnsureVectorIndex(ctx context.Context, dimension int) error
	Close(ctx context.Context) error

	// CreateDocument registers doc with status New. An existing document is
	// reset to New unless it is Processing, in which case
	// ErrAlreadyProcessing is returned.
	CreateDocument(ctx context.Context, doc common.Document) (common.Document, error)
	GetDocument(ctx context.Context, name string) (common.Document, error)
	ListDocuments(ctx context.Context) ([]common.Document, error)

	// StartProcessing atomically moves a New document to Processing and
	// records the totals and model. Counters and processing time are reset
	// unless the document was reset with common.RetryFromLastProcessed.
	StartProcessing(ctx context.Context, name string, start Start) (common.Document, error)
	IsCancelled(ctx context.Context, name string) (bool, error)
	// UpdateProgress never lowers processed_chunk and never raises it past
	// total_chunks.
	UpdateProgress(ctx context.Context, name string, p Progress) error
	Transition(ctx context.Context, name string, t Transition) error
	// CancelDocuments flags the named documents as cancelled. Documents that
	// have not started yet become Cancelled immediately. It returns the
	// names that were flagged.
	CancelDocuments(ctx context.Context, names []string) ([]string, error)
	ResetForRetry(ctx context.Context, name string, cond common.RetryCondition) (common.Document, error)
	// RecoverStale fails Processing documents not updated since olderThan.
	RecoverStale(ctx context.Context, olderThan time.Time) ([]string, error)
	// DeleteDocuments removes the documents, their chunks that belong to no
	// other document and, when deleteEntities is set, entities left without
	// any HAS_ENTITY edge.
	DeleteDocuments(ctx context.Context, names []string, deleteEntities bool) error
	// DeleteDocumentChunks removes the chunks of a document but keeps the
	// Document node.
	DeleteDocumentChunks(ctx context.Context, name string, deleteEntities bool) error
	CountDocumentGraph(ctx context.Context, name string) (common.GraphCounts, error)

	UpsertChunks(ctx context.Context, name string, chunks []common.Chunk) error
	LinkFirstChunk(ctx context.Context, name string, chunkID string) error
	LinkNextChunks(ctx context.Context, links []ChunkLink) error
	// ChunkAtPosition returns the id of the document's chunk at a 1-based
	// position, or false when there is none.
	ChunkAtPosition(ctx context.Context, name string, position int) (string, bool, error)
	SetChunkEmbeddings(ctx context.Context, embeddings []ChunkEmbedding) error

	MergeEntities(ctx context.Context, merges []EntityMerge) error
	MergeRelationships(ctx context.Context, rels []common.Relationship) error
}
