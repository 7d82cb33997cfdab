package memory

import (
	"maps"
	"slices"
	"sort"

	"docgraph/pkg/common"
)

// The accessors below expose the graph structure for assertions in tests.

// Chunk returns the stored chunk with the given id.
func (s *Store) Chunk(id string) (common.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return common.Chunk{}, false
	}
	return c.chunk, true
}

// ChunkCount returns the number of chunk nodes.
func (s *Store) ChunkCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Embedding returns the embedding attached to a chunk, nil when none.
func (s *Store) Embedding(id string) []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil
	}
	return slices.Clone(c.embedding)
}

// VectorIndexDimension returns the dimension of the vector index, 0 when
// no index exists.
func (s *Store) VectorIndexDimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vectorIndex
}

// PartOf returns the documents a chunk belongs to, sorted.
func (s *Store) PartOf(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(c.partOf))
}

// FirstChunks returns the targets of the document's FIRST_CHUNK edges.
func (s *Store) FirstChunks(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.firstChunk[name]))
}

// NextChunks returns the targets of a chunk's outgoing NEXT_CHUNK edges.
func (s *Store) NextChunks(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for l := range s.nextChunk {
		if l.Previous == id {
			out = append(out, l.Current)
		}
	}
	sort.Strings(out)
	return out
}

// ChunkChain follows FIRST_CHUNK and NEXT_CHUNK edges of a document and
// returns the visited chunk ids in order. It stops at a chunk without a
// successor inside the document or at a cycle.
func (s *Store) ChunkChain(name string) []string {
	first := s.FirstChunks(name)
	if len(first) != 1 {
		return nil
	}

	var chain []string
	seen := make(map[string]struct{})
	current := first[0]
	for {
		if _, ok := seen[current]; ok {
			return chain
		}
		seen[current] = struct{}{}
		chain = append(chain, current)

		next := ""
		for _, candidate := range s.NextChunks(current) {
			if slices.Contains(s.PartOf(candidate), name) {
				next = candidate
				break
			}
		}
		if next == "" {
			return chain
		}
		current = next
	}
}

// Entities returns the keys of all entity nodes, sorted by type then id.
func (s *Store) Entities() []common.NodeKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := slices.Collect(maps.Keys(s.entities))
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}

// EntityProperties returns a copy of an entity's properties.
func (s *Store) EntityProperties(key common.NodeKey) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.entities[key])
}

// MentioningChunks returns the chunks with a HAS_ENTITY edge to key.
func (s *Store) MentioningChunks(key common.NodeKey) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for he := range s.hasEntity {
		if he.entity == key {
			out = append(out, he.chunkID)
		}
	}
	sort.Strings(out)
	return out
}

// RelationshipCount returns the number of entity-to-entity edges.
func (s *Store) RelationshipCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.relations)
}

// HasRelationship reports whether a typed edge exists between two entities.
func (s *Store) HasRelationship(source, target common.NodeKey, typ string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.relations[relKey{source: source, target: target, typ: typ}]
	return ok
}
