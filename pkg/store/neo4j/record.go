package neo4j

import (
	"time"

	"docgraph/pkg/common"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

func asString(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func asInt(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func asFloat(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func asBool(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}

func asTime(m map[string]any, key string) time.Time {
	switch v := m[key].(type) {
	case time.Time:
		return v
	case neo4j.LocalDateTime:
		return v.Time()
	}
	return time.Time{}
}

// decodeDocument maps a Document node's property map onto common.Document.
func decodeDocument(props map[string]any) common.Document {
	return common.Document{
		FileName:          asString(props, "fileName"),
		FileSize:          int64(asInt(props, "fileSize")),
		FileType:          asString(props, "fileType"),
		FileSource:        common.SourceKind(asString(props, "fileSource")),
		URL:               asString(props, "url"),
		Status:            common.DocumentStatus(asString(props, "status")),
		Model:             asString(props, "model"),
		TotalChunks:       asInt(props, "total_chunks"),
		ProcessedChunk:    asInt(props, "processed_chunk"),
		TotalPages:        asInt(props, "total_pages"),
		NodeCount:         asInt(props, "nodeCount"),
		RelationshipCount: asInt(props, "relationshipCount"),
		IsCancelled:       asBool(props, "is_cancelled"),
		ErrorMessage:      asString(props, "errorMessage"),
		RetryCondition:    common.RetryCondition(asString(props, "retry_condition")),
		CreatedAt:         asTime(props, "createdAt"),
		UpdatedAt:         asTime(props, "updatedAt"),
		ProcessingTime:    time.Duration(asFloat(props, "processingTime") * float64(time.Second)),
	}
}

func recordMap(record *neo4j.Record, key string) map[string]any {
	v, ok := record.Get(key)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]any)
	return m
}

func recordInt(record *neo4j.Record, key string) int {
	v, ok := record.Get(key)
	if !ok {
		return 0
	}
	n, _ := v.(int64)
	return int(n)
}

func recordString(record *neo4j.Record, key string) string {
	v, ok := record.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
