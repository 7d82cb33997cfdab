package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"docgraph/pkg/common"
	"docgraph/pkg/logger"
	"docgraph/pkg/store"
)

type chunkNode struct {
	chunk     common.Chunk
	embedding []float32
	partOf    map[string]struct{}
}

type hasEntity struct {
	chunkID string
	entity  common.NodeKey
}

type relKey struct {
	source common.NodeKey
	target common.NodeKey
	typ    string
}

var _ store.GraphStore = (*Store)(nil)

// Store is an in-memory GraphStore with the same merge semantics as the
// Neo4j store. It is safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	documents  map[string]*common.Document
	chunks     map[string]*chunkNode
	firstChunk map[string]map[string]struct{}
	nextChunk  map[store.ChunkLink]struct{}
	entities   map[common.NodeKey]map[string]any
	hasEntity  map[hasEntity]struct{}
	relations  map[relKey]map[string]any

	vectorIndex int
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		now:        time.Now,
		documents:  make(map[string]*common.Document),
		chunks:     make(map[string]*chunkNode),
		firstChunk: make(map[string]map[string]struct{}),
		nextChunk:  make(map[store.ChunkLink]struct{}),
		entities:   make(map[common.NodeKey]map[string]any),
		hasEntity:  make(map[hasEntity]struct{}),
		relations:  make(map[relKey]map[string]any),
	}
}

// SetClock replaces the time source. Used by tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return nil
}

func (s *Store) EnsureVectorIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectorIndex == 0 {
		s.vectorIndex = dimension
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return nil
}

func (s *Store) CreateDocument(ctx context.Context, doc common.Document) (common.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	createdAt := now
	if existing, ok := s.documents[doc.FileName]; ok {
		if existing.Status == common.StatusProcessing {
			return *existing, store.ErrAlreadyProcessing
		}
		createdAt = existing.CreatedAt
	}

	d := common.Document{
		FileName:   doc.FileName,
		FileSize:   doc.FileSize,
		FileType:   doc.FileType,
		FileSource: doc.FileSource,
		URL:        doc.URL,
		TotalPages: doc.TotalPages,
		Model:      doc.Model,
		Status:     common.StatusNew,
		CreatedAt:  createdAt,
		UpdatedAt:  now,
	}
	s.documents[doc.FileName] = &d
	return d, nil
}

func (s *Store) GetDocument(ctx context.Context, name string) (common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[name]
	if !ok {
		return common.Document{}, store.ErrDocumentNotFound
	}
	return *d, nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]common.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]common.Document, 0, len(s.documents))
	for _, name := range slices.Sorted(maps.Keys(s.documents)) {
		out = append(out, *s.documents[name])
	}
	return out, nil
}

func (s *Store) StartProcessing(ctx context.Context, name string, start store.Start) (common.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.documents[name]
	if !ok {
		return common.Document{}, store.ErrDocumentNotFound
	}
	if err := store.StartError(d.Status); err != nil {
		return *d, err
	}

	if d.RetryCondition != common.RetryFromLastProcessed {
		d.ProcessedChunk = 0
		d.NodeCount = 0
		d.RelationshipCount = 0
		d.ProcessingTime = 0
	}
	d.Status = common.StatusProcessing
	d.TotalChunks = start.TotalChunks
	d.TotalPages = start.TotalPages
	d.ProcessedChunk = min(d.ProcessedChunk, start.TotalChunks)
	d.Model = start.Model
	d.IsCancelled = false
	d.ErrorMessage = ""
	d.RetryCondition = common.RetryNone
	d.UpdatedAt = s.now()
	return *d, nil
}

func (s *Store) IsCancelled(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[name]
	if !ok {
		return false, store.ErrDocumentNotFound
	}
	return d.IsCancelled, nil
}

func (s *Store) UpdateProgress(ctx context.Context, name string, p store.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[name]
	if !ok {
		return store.ErrDocumentNotFound
	}
	if p.ProcessedChunk > d.ProcessedChunk {
		d.ProcessedChunk = min(p.ProcessedChunk, d.TotalChunks)
	}
	d.NodeCount = p.NodeCount
	d.RelationshipCount = p.RelationshipCount
	d.ProcessingTime = p.ProcessingTime
	d.UpdatedAt = s.now()
	return nil
}

func (s *Store) Transition(ctx context.Context, name string, t store.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[name]
	if !ok {
		return store.ErrDocumentNotFound
	}
	if !store.StatusAllowed(t.From, d.Status) {
		return fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, d.Status, t.To)
	}
	d.Status = t.To
	d.ErrorMessage = t.ErrorMessage
	d.RetryCondition = t.RetryCondition
	if t.ProcessingTime > 0 {
		d.ProcessingTime = t.ProcessingTime
	}
	if t.Counts != nil {
		d.NodeCount = t.Counts.Nodes
		d.RelationshipCount = t.Counts.Relationships
	}
	d.UpdatedAt = s.now()
	return nil
}

func (s *Store) CancelDocuments(ctx context.Context, names []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cancelled []string
	for _, name := range store.DedupeStrings(names) {
		d, ok := s.documents[name]
		if !ok {
			continue
		}
		switch d.Status {
		case common.StatusNew:
			d.Status = common.StatusCancelled
		case common.StatusProcessing:
		default:
			continue
		}
		d.IsCancelled = true
		d.UpdatedAt = s.now()
		cancelled = append(cancelled, name)
	}
	return cancelled, nil
}

func (s *Store) ResetForRetry(ctx context.Context, name string, cond common.RetryCondition) (common.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[name]
	if !ok {
		return common.Document{}, store.ErrDocumentNotFound
	}
	if d.Status == common.StatusProcessing {
		return *d, store.ErrAlreadyProcessing
	}

	if cond == common.RetryDeleteAndFromStart {
		s.deleteChunksLocked(name, true)
	}
	if cond != common.RetryFromLastProcessed {
		d.ProcessedChunk = 0
		d.NodeCount = 0
		d.RelationshipCount = 0
	}
	d.Status = common.StatusNew
	d.IsCancelled = false
	d.ErrorMessage = ""
	d.RetryCondition = cond
	d.UpdatedAt = s.now()
	return *d, nil
}

func (s *Store) RecoverStale(ctx context.Context, olderThan time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recovered []string
	for name, d := range s.documents {
		if d.Status != common.StatusProcessing || !d.UpdatedAt.Before(olderThan) {
			continue
		}
		d.Status = common.StatusFailed
		d.ErrorMessage = "processing interrupted"
		d.RetryCondition = common.RetryFromLastProcessed
		d.UpdatedAt = s.now()
		recovered = append(recovered, name)
	}
	sort.Strings(recovered)
	return recovered, nil
}

func (s *Store) DeleteDocuments(ctx context.Context, names []string, deleteEntities bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range store.DedupeStrings(names) {
		if _, ok := s.documents[name]; !ok {
			continue
		}
		s.deleteChunksLocked(name, deleteEntities)
		delete(s.documents, name)
	}
	return nil
}

func (s *Store) DeleteDocumentChunks(ctx context.Context, name string, deleteEntities bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[name]; !ok {
		return store.ErrDocumentNotFound
	}
	s.deleteChunksLocked(name, deleteEntities)
	return nil
}

// deleteChunksLocked detaches every chunk from the document and removes the
// chunks that are no longer part of any document.
func (s *Store) deleteChunksLocked(name string, deleteEntities bool) {
	delete(s.firstChunk, name)

	for id, c := range s.chunks {
		if _, ok := c.partOf[name]; !ok {
			continue
		}
		delete(c.partOf, name)
		if len(c.partOf) > 0 {
			continue
		}
		delete(s.chunks, id)
		for link := range s.nextChunk {
			if link.Previous == id || link.Current == id {
				delete(s.nextChunk, link)
			}
		}
		for he := range s.hasEntity {
			if he.chunkID == id {
				delete(s.hasEntity, he)
			}
		}
	}

	if !deleteEntities {
		return
	}

	referenced := make(map[common.NodeKey]struct{}, len(s.hasEntity))
	for he := range s.hasEntity {
		referenced[he.entity] = struct{}{}
	}
	for key := range s.entities {
		if _, ok := referenced[key]; ok {
			continue
		}
		delete(s.entities, key)
		for rk := range s.relations {
			if rk.source == key || rk.target == key {
				delete(s.relations, rk)
			}
		}
	}
	logger.Debug("[Store] Removed orphaned entities", "document", name)
}

func (s *Store) CountDocumentGraph(ctx context.Context, name string) (common.GraphCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.documents[name]; !ok {
		return common.GraphCounts{}, store.ErrDocumentNotFound
	}

	nodes := make(map[common.NodeKey]struct{})
	for he := range s.hasEntity {
		c, ok := s.chunks[he.chunkID]
		if !ok {
			continue
		}
		if _, ok := c.partOf[name]; ok {
			nodes[he.entity] = struct{}{}
		}
	}

	rels := 0
	for rk := range s.relations {
		_, src := nodes[rk.source]
		_, tgt := nodes[rk.target]
		if src && tgt {
			rels++
		}
	}
	return common.GraphCounts{Nodes: len(nodes), Relationships: rels}, nil
}

func (s *Store) UpsertChunks(ctx context.Context, name string, chunks []common.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[name]; !ok {
		return store.ErrDocumentNotFound
	}
	for _, c := range chunks {
		node, ok := s.chunks[c.ID]
		if !ok {
			node = &chunkNode{partOf: make(map[string]struct{})}
			s.chunks[c.ID] = node
		}
		node.chunk = c
		node.partOf[name] = struct{}{}
	}
	return nil
}

func (s *Store) LinkFirstChunk(ctx context.Context, name string, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[name]; !ok {
		return store.ErrDocumentNotFound
	}
	if _, ok := s.chunks[chunkID]; !ok {
		return fmt.Errorf("chunk %s not found", chunkID)
	}
	s.firstChunk[name] = map[string]struct{}{chunkID: {}}
	return nil
}

func (s *Store) LinkNextChunks(ctx context.Context, links []store.ChunkLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range links {
		_, prev := s.chunks[l.Previous]
		_, cur := s.chunks[l.Current]
		if !prev || !cur {
			return fmt.Errorf("chunk link %s -> %s references a missing chunk", l.Previous, l.Current)
		}
		s.nextChunk[l] = struct{}{}
	}
	return nil
}

func (s *Store) ChunkAtPosition(ctx context.Context, name string, position int) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, c := range s.chunks {
		if _, ok := c.partOf[name]; ok && c.chunk.Metadata.Position == position {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (s *Store) SetChunkEmbeddings(ctx context.Context, embeddings []store.ChunkEmbedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range embeddings {
		c, ok := s.chunks[e.ChunkID]
		if !ok {
			continue
		}
		c.embedding = slices.Clone(e.Embedding)
	}
	return nil
}

func (s *Store) MergeEntities(ctx context.Context, merges []store.EntityMerge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range merges {
		if _, ok := s.chunks[m.ChunkID]; !ok {
			return fmt.Errorf("chunk %s not found", m.ChunkID)
		}
		key := m.Node.Key()
		s.mergeNodeLocked(m.Node)
		s.hasEntity[hasEntity{chunkID: m.ChunkID, entity: key}] = struct{}{}
	}
	return nil
}

func (s *Store) MergeRelationships(ctx context.Context, rels []common.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rels {
		s.mergeNodeLocked(common.Node{ID: r.Source.ID, Type: r.Source.Type})
		s.mergeNodeLocked(common.Node{ID: r.Target.ID, Type: r.Target.Type})
		rk := relKey{source: r.Source.Key(), target: r.Target.Key(), typ: r.Type}
		props, ok := s.relations[rk]
		if !ok {
			props = make(map[string]any)
			s.relations[rk] = props
		}
		maps.Copy(props, r.Properties)
	}
	return nil
}

func (s *Store) mergeNodeLocked(n common.Node) {
	key := n.Key()
	props, ok := s.entities[key]
	if !ok {
		props = map[string]any{"id": n.ID}
		s.entities[key] = props
	}
	maps.Copy(props, n.Properties)
}
