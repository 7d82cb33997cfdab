package neo4j

import (
	"fmt"
	"sort"
	"strings"

	"docgraph/pkg/common"
	"docgraph/pkg/store"
)

// entityLabel is added to every extracted entity next to its type label so
// entities can be indexed and matched independently of their type.
const entityLabel = "__Entity__"

// escapeName quotes a label or relationship type for direct inclusion in a
// Cypher statement. Labels cannot be query parameters.
func escapeName(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// entityMergeQuery merges every row as a node of the given type label and
// links it to its chunk.
func entityMergeQuery(label string) string {
	return fmt.Sprintf(`UNWIND $rows AS row
MATCH (c:Chunk {id: row.chunkId})
MERGE (e:%s {id: row.id})
SET e:%s
SET e += row.properties
MERGE (c)-[:HAS_ENTITY]->(e)`, escapeName(label), escapeName(entityLabel))
}

// relationshipMergeQuery merges typed edges between entities of the given
// source and target labels.
func relationshipMergeQuery(sourceLabel, targetLabel, relType string) string {
	return fmt.Sprintf(`UNWIND $rows AS row
MERGE (s:%s {id: row.source})
SET s:%s
MERGE (t:%s {id: row.target})
SET t:%s
MERGE (s)-[r:%s]->(t)
SET r += row.properties`,
		escapeName(sourceLabel), escapeName(entityLabel),
		escapeName(targetLabel), escapeName(entityLabel),
		escapeName(relType))
}

func vectorIndexQuery(dimension int) string {
	return fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS
FOR (c:Chunk) ON c.embedding
OPTIONS {indexConfig: {`+"`vector.dimensions`"+`: %d, `+"`vector.similarity_function`"+`: 'cosine'}}`,
		vectorIndexName, dimension)
}

type entityGroup struct {
	label string
	rows  []map[string]any
}

// groupEntityMerges groups merge instructions by type label, keeping the
// first-seen order of labels. Repeated (chunk, type, id) instructions are
// collapsed.
func groupEntityMerges(merges []store.EntityMerge) []entityGroup {
	index := make(map[string]int)
	seen := make(map[string]struct{})
	var groups []entityGroup

	for _, m := range merges {
		key := m.ChunkID + "\x00" + m.Node.Type + "\x00" + m.Node.ID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		i, ok := index[m.Node.Type]
		if !ok {
			i = len(groups)
			index[m.Node.Type] = i
			groups = append(groups, entityGroup{label: m.Node.Type})
		}
		groups[i].rows = append(groups[i].rows, map[string]any{
			"chunkId":    m.ChunkID,
			"id":         m.Node.ID,
			"properties": properties(m.Node.Properties),
		})
	}
	return groups
}

type relationshipGroup struct {
	sourceLabel string
	targetLabel string
	relType     string
	rows        []map[string]any
}

func groupRelationships(rels []common.Relationship) []relationshipGroup {
	index := make(map[[3]string]int)
	var groups []relationshipGroup

	for _, r := range rels {
		key := [3]string{r.Source.Type, r.Target.Type, r.Type}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, relationshipGroup{
				sourceLabel: r.Source.Type,
				targetLabel: r.Target.Type,
				relType:     r.Type,
			})
		}
		groups[i].rows = append(groups[i].rows, map[string]any{
			"source":     r.Source.ID,
			"target":     r.Target.ID,
			"properties": properties(r.Properties),
		})
	}
	return groups
}

// properties converts extracted properties into values Neo4j can store.
// Nested values are rendered as strings and the reserved id key is dropped.
func properties(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "id" || k == "" {
			continue
		}
		switch v := in[k].(type) {
		case nil:
		case string, bool, int, int64, float64:
			out[k] = v
		case float32:
			out[k] = float64(v)
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

func chunkRows(chunks []common.Chunk) []map[string]any {
	rows := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		row := map[string]any{
			"id":             c.ID,
			"text":           c.Text,
			"position":       int64(c.Metadata.Position),
			"length":         int64(c.Metadata.Length),
			"content_offset": int64(c.Metadata.ContentOffset),
			"page_number":    nil,
			"start_time":     nil,
			"end_time":       nil,
		}
		if c.Metadata.PageNumber != nil {
			row["page_number"] = int64(*c.Metadata.PageNumber)
		}
		if c.Metadata.StartTime != nil {
			row["start_time"] = *c.Metadata.StartTime
		}
		if c.Metadata.EndTime != nil {
			row["end_time"] = *c.Metadata.EndTime
		}
		rows = append(rows, row)
	}
	return rows
}
