package ai

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

var schemaCache sync.Map // reflect.Type -> *jsonschema.Schema

// GenerateSchema returns the JSON Schema for the type of value, which may be
// a pointer. Schemas are closed (no additional properties) and inlined,
// as strict structured output requires. The result is cached per type.
func GenerateSchema(value any) *jsonschema.Schema {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*jsonschema.Schema)
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.ReflectFromType(t)
	actual, _ := schemaCache.LoadOrStore(t, schema)
	return actual.(*jsonschema.Schema)
}

// UnmarshalFlexible decodes a model answer into out. Answers that are not
// plain JSON are cleaned up step by step before decoding: a JSON string
// holding the document is unwrapped, markdown code fences and text around
// the JSON are dropped, a doubled opening brace is removed and finally
// the remaining syntax errors are repaired.
//
// Example:
//
//	var doc extractResponse
//	// each of these decodes to the same value
//	UnmarshalFlexible(`{"nodes": []}`, &doc)
//	UnmarshalFlexible("```json\n{\"nodes\": []}\n```", &doc)
//	UnmarshalFlexible(`Here is the graph: {nodes: [],}`, &doc)
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)
	if json.Unmarshal([]byte(input), out) == nil {
		return nil
	}

	var inner string
	if json.Unmarshal([]byte(input), &inner) == nil {
		input = strings.TrimSpace(inner)
		if json.Unmarshal([]byte(input), out) == nil {
			return nil
		}
	}

	cleaned := dropDoubledBrace(jsonSpan(stripCodeFence(input)))
	if json.Unmarshal([]byte(cleaned), out) == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return fmt.Errorf("failed to repair model answer: %w (answer: %s)", err, input)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("failed to decode repaired model answer: %w (answer: %s, repaired: %s)", err, input, repaired)
	}
	return nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// language tag
		if !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// jsonSpan drops text before the first opening bracket, and text after the
// last matching closing bracket when that tail is prose. A tail that still
// looks like JSON is a truncated answer and is kept for the repair step.
func jsonSpan(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	s = s[start:]
	closer := "}"
	if s[0] == '[' {
		closer = "]"
	}
	end := strings.LastIndex(s, closer)
	if end < 0 || strings.ContainsAny(s[end+1:], "\"{[:") {
		return s
	}
	return s[:end+1]
}

// dropDoubledBrace turns "{ {...}" into "{...}", a slip some models make at
// the start of an answer.
func dropDoubledBrace(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "{"); ok {
		rest = strings.TrimSpace(rest)
		if strings.HasPrefix(rest, "{") {
			return rest
		}
	}
	return s
}
