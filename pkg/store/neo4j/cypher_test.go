package neo4j

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"docgraph/pkg/common"
	"docgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Person", "`Person`"},
		{"Big Company", "`Big Company`"},
		{"we`ird", "`we``ird`"},
		{"x`) DETACH DELETE (n", "`x``) DETACH DELETE (n`"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeName(tt.in))
	}
}

func TestEntityMergeQuery(t *testing.T) {
	q := entityMergeQuery("Person")
	assert.Contains(t, q, "MERGE (e:`Person` {id: row.id})")
	assert.Contains(t, q, "SET e:`__Entity__`")
	assert.Contains(t, q, "MERGE (c)-[:HAS_ENTITY]->(e)")
	assert.NotContains(t, q, "CREATE")
}

func TestRelationshipMergeQuery(t *testing.T) {
	q := relationshipMergeQuery("Person", "Organization", "WORKS_AT")
	assert.Contains(t, q, "MERGE (s:`Person` {id: row.source})")
	assert.Contains(t, q, "MERGE (t:`Organization` {id: row.target})")
	assert.Contains(t, q, "MERGE (s)-[r:`WORKS_AT`]->(t)")
}

func TestVectorIndexQuery(t *testing.T) {
	q := vectorIndexQuery(1536)
	assert.Contains(t, q, "IF NOT EXISTS")
	assert.Contains(t, q, "`vector.dimensions`: 1536")
	assert.Contains(t, q, "'cosine'")
}

func TestGroupEntityMerges(t *testing.T) {
	ada := common.Node{ID: "Ada Lovelace", Type: "Person", Properties: map[string]any{"born": int64(1815)}}
	engine := common.Node{ID: "Analytical Engine", Type: "Machine"}
	groups := groupEntityMerges([]store.EntityMerge{
		{ChunkID: "c1", Node: ada},
		{ChunkID: "c1", Node: engine},
		{ChunkID: "c2", Node: ada},
		{ChunkID: "c1", Node: ada},
	})

	require.Len(t, groups, 2)
	assert.Equal(t, "Person", groups[0].label)
	assert.Len(t, groups[0].rows, 2, "repeated (chunk, entity) collapses")
	assert.Equal(t, "Machine", groups[1].label)
	assert.Equal(t, map[string]any{"born": int64(1815)}, groups[0].rows[0]["properties"])
}

func TestGroupRelationships(t *testing.T) {
	ada := common.Node{ID: "Ada", Type: "Person"}
	bab := common.Node{ID: "Babbage", Type: "Person"}
	eng := common.Node{ID: "Engine", Type: "Machine"}
	groups := groupRelationships([]common.Relationship{
		{Source: ada, Target: bab, Type: "KNOWS"},
		{Source: bab, Target: ada, Type: "KNOWS"},
		{Source: ada, Target: eng, Type: "WORKED_ON"},
	})
	require.Len(t, groups, 2)
	assert.Len(t, groups[0].rows, 2)
	assert.Equal(t, "WORKED_ON", groups[1].relType)
}

func TestProperties(t *testing.T) {
	got := properties(map[string]any{
		"id":          "dropped",
		"description": "first programmer",
		"score":       float32(0.5),
		"tags":        []string{"a", "b"},
		"none":        nil,
	})
	assert.Equal(t, map[string]any{
		"description": "first programmer",
		"score":       0.5,
		"tags":        "[a b]",
	}, got)
}

func TestChunkRows(t *testing.T) {
	page := 3
	rows := chunkRows([]common.Chunk{{
		ID:   "abc",
		Text: "alpha",
		Metadata: common.ChunkMetadata{
			Position: 1, Length: 5, ContentOffset: 0, PageNumber: &page,
		},
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, int64(3), rows[0]["page_number"])
	assert.Nil(t, rows[0]["start_time"])
	assert.Equal(t, int64(1), rows[0]["position"])
}

func TestIsAlreadyExists(t *testing.T) {
	err := &neo4j.Neo4jError{Code: equivalentSchemaRuleCode, Msg: "exists"}
	assert.True(t, isAlreadyExists(err))
	assert.True(t, isAlreadyExists(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, isAlreadyExists(&neo4j.Neo4jError{Code: "Neo.ClientError.Statement.SyntaxError"}))
	assert.False(t, isAlreadyExists(errors.New("other")))
}

func TestDecodeDocument(t *testing.T) {
	doc := decodeDocument(map[string]any{
		"fileName":        "A.pdf",
		"status":          "Processing",
		"total_chunks":    int64(3),
		"processed_chunk": int64(1),
		"is_cancelled":    true,
		"processingTime":  1.5,
		"retry_condition": "start_from_beginning",
	})
	assert.Equal(t, "A.pdf", doc.FileName)
	assert.Equal(t, common.StatusProcessing, doc.Status)
	assert.Equal(t, 3, doc.TotalChunks)
	assert.Equal(t, 1, doc.ProcessedChunk)
	assert.True(t, doc.IsCancelled)
	assert.Equal(t, common.RetryFromBeginning, doc.RetryCondition)
	assert.Equal(t, "1.5s", doc.ProcessingTime.String())
}

func TestQueriesUseMerge(t *testing.T) {
	for name, q := range map[string]string{
		"chunks": upsertChunksQuery,
		"first":  linkFirstChunkQuery,
		"next":   linkNextChunksQuery,
	} {
		assert.True(t, strings.Contains(q, "MERGE"), name)
		assert.False(t, strings.Contains(q, "CREATE"), name)
	}
}

var caseVariable = regexp.MustCompile(`WHEN (?:NOT )?([a-z][A-Za-z_]*) THEN`)

// Bare variables tested in CASE expressions must be bound earlier in the
// same statement, or Neo4j rejects the query.
func TestDocumentQueriesBindCaseVariables(t *testing.T) {
	queries := map[string]string{
		"create":     createDocumentQuery,
		"start":      startProcessingQuery,
		"progress":   updateProgressQuery,
		"transition": transitionQuery,
		"cancel":     cancelDocumentsQuery,
		"reset":      resetForRetryQuery,
		"stale":      recoverStaleQuery,
		"count":      countDocumentGraphQuery,
	}
	for name, q := range queries {
		for _, m := range caseVariable.FindAllStringSubmatch(q, -1) {
			assert.Contains(t, q, "AS "+m[1], "%s uses %s without binding it", name, m[1])
		}
	}
}

func TestCreateDocumentQuery_ResetsRun(t *testing.T) {
	assert.Contains(t, createDocumentQuery, "d.processingTime = 0.0")
	assert.Contains(t, createDocumentQuery, "d.processed_chunk = 0")
	assert.NotContains(t, createDocumentQuery, "resume")
}
