package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNode struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

type testRelationship struct {
	Source string `json:"source_node_id"`
	Target string `json:"target_node_id"`
	Type   string `json:"type"`
}

type testGraph struct {
	Nodes         []testNode         `json:"nodes"`
	Relationships []testRelationship `json:"relationships"`
}

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "valid json object", input: `{"name":"Ada Lovelace"}`},
		{name: "unquoted key and single quotes", input: `{name: 'Ada Lovelace'}`},
		{name: "trailing comma", input: `{"name":"Ada Lovelace",}`},
		{name: "missing end bracket", input: `{"name":"Ada Lovelace`},
		{name: "stringified invalid json object", input: `"{name: 'Ada Lovelace'}"`},
		{name: "duplicate leading brace", input: "{\n{\n  \"name\": \"Ada Lovelace\"\n}\n"},
		{name: "duplicate leading brace no newlines", input: `{ { "name": "Ada Lovelace" }`},
		{name: "json code fence", input: "```json\n{\"name\": \"Ada Lovelace\"}\n```"},
		{name: "bare code fence", input: "```\n{\"name\": \"Ada Lovelace\"}\n```"},
		{name: "prose around the answer", input: `Here is the entity: {"name": "Ada Lovelace"} Let me know if you need more.`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got testNode
			require.NoError(t, UnmarshalFlexible(tc.input, &got))
			assert.Equal(t, testNode{Name: "Ada Lovelace"}, got)
		})
	}
}

func TestUnmarshalFlexible_ArrayVariants(t *testing.T) {
	var got []testNode
	require.NoError(t, UnmarshalFlexible(`[{name:'A'},{name:'B',}]`, &got))
	assert.Equal(t, []testNode{{Name: "A"}, {Name: "B"}}, got)
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got testNode
	assert.Error(t, UnmarshalFlexible("hello", &got))
}

func TestUnmarshalFlexible_GraphAnswers(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{
			name:  "stringified",
			input: `"{ \"nodes\": [{\"name\": \"Ada\", \"type\": \"Person\"}], \"relationships\": [{\"source_node_id\": \"Ada\", \"target_node_id\": \"Engine\", \"type\": \"WORKED_ON\"}] }"`,
		},
		{
			name:  "truncated after last relationship",
			input: `{"nodes": [{"name": "Ada", "type": "Person"}], "relationships": [{"source_node_id": "Ada", "target_node_id": "Engine", "type": "WORKED_ON"}`,
		},
		{
			name:  "fenced",
			input: "```json\n{\"nodes\": [{\"name\": \"Ada\", \"type\": \"Person\"}], \"relationships\": [{\"source_node_id\": \"Ada\", \"target_node_id\": \"Engine\", \"type\": \"WORKED_ON\"}]}\n```",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got testGraph
			require.NoError(t, UnmarshalFlexible(tc.input, &got))
			assert.Equal(t, []testNode{{Name: "Ada", Type: "Person"}}, got.Nodes)
			require.Len(t, got.Relationships, 1)
			assert.Equal(t, "WORKED_ON", got.Relationships[0].Type)
		})
	}
}

func TestJSONSpan_KeepsTruncatedTail(t *testing.T) {
	in := `{"nodes": [{"name": "Ada"}], "relationships": [{"source_node_id": "Ada", "tar`
	assert.Equal(t, in, jsonSpan(in))
	assert.Equal(t, `{"a": 1}`, jsonSpan(`Sure! {"a": 1} Done, thanks.`))
}

func TestGenerateSchema(t *testing.T) {
	schema := GenerateSchema(&testGraph{})
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema.Type)
	assert.Same(t, schema, GenerateSchema(testGraph{}), "schemas are cached per type")

	nodes, ok := schema.Properties.Get("nodes")
	require.True(t, ok)
	assert.Equal(t, "array", nodes.Type)
}
