package graph

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"docgraph/internal/util"
	"docgraph/pkg/ai"
	"docgraph/pkg/common"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ExtractionSchema restricts what an Extractor may return. Empty lists
// allow every type.
type ExtractionSchema struct {
	AllowedNodes         []string
	AllowedRelationships []string
}

// Extractor turns a piece of text into a graph document.
type Extractor interface {
	Extract(ctx context.Context, text string, schema ExtractionSchema) (common.GraphDocument, error)
}

type extractProperty struct {
	Key   string `json:"key" jsonschema_description:"Property name in camelCase"`
	Value string `json:"value" jsonschema_description:"Property value as found in the text"`
}

type extractNode struct {
	ID         string            `json:"id" jsonschema_description:"Name or human-readable identifier of the entity as it appears in the text"`
	Type       string            `json:"type" jsonschema_description:"Type of the entity, one of the allowed node types when given"`
	Properties []extractProperty `json:"properties" jsonschema_description:"Additional attributes such as dates or descriptions"`
}

type extractRelationship struct {
	SourceNodeID   string            `json:"source_node_id" jsonschema_description:"Id of the source node"`
	SourceNodeType string            `json:"source_node_type" jsonschema_description:"Type of the source node"`
	TargetNodeID   string            `json:"target_node_id" jsonschema_description:"Id of the target node"`
	TargetNodeType string            `json:"target_node_type" jsonschema_description:"Type of the target node"`
	Type           string            `json:"type" jsonschema_description:"Relationship type in UPPER_SNAKE_CASE"`
	Properties     []extractProperty `json:"properties" jsonschema_description:"Additional attributes of the relationship"`
}

type extractResponse struct {
	Nodes         []extractNode         `json:"nodes" jsonschema_description:"Entities identified in the text"`
	Relationships []extractRelationship `json:"relationships" jsonschema_description:"Relationships between the identified entities"`
}

// LLMExtractor implements Extractor with a schema constrained model call.
// The vendor is decided by the ai.GraphAIClient it wraps.
type LLMExtractor struct {
	client     ai.GraphAIClient
	maxRetries int
	opts       []ai.GenerateOption
}

// NewLLMExtractor wraps client. A failed call is attempted maxRetries times
// in total before the error is returned. opts are applied to every call,
// e.g. ai.WithTemperature or ai.WithThinking.
func NewLLMExtractor(client ai.GraphAIClient, maxRetries int, opts ...ai.GenerateOption) *LLMExtractor {
	return &LLMExtractor{client: client, maxRetries: maxRetries, opts: opts}
}

// Extract implements Extractor. The result is normalised with
// NormalizeGraph.
func (e *LLMExtractor) Extract(ctx context.Context, text string, schema ExtractionSchema) (common.GraphDocument, error) {
	systemPrompt := fmt.Sprintf(
		ai.ExtractPrompt,
		strings.Join(schema.AllowedNodes, ", "),
		strings.Join(schema.AllowedRelationships, ", "),
	)
	prompt := fmt.Sprintf(ai.ExtractUserPrompt, text)
	opts := append([]ai.GenerateOption{ai.WithSystemPrompts(systemPrompt)}, e.opts...)

	res, err := util.RetryWithContext(ctx, e.maxRetries, func(ctx context.Context) (extractResponse, error) {
		var res extractResponse
		err := e.client.GenerateCompletionWithFormat(
			ctx,
			"knowledge_graph",
			"Nodes and relationships extracted from a document.",
			prompt,
			&res,
			opts...,
		)
		return res, err
	})
	if err != nil {
		return common.GraphDocument{}, err
	}

	return NormalizeGraph(res.toGraphDocument(), schema), nil
}

func (r extractResponse) toGraphDocument() common.GraphDocument {
	doc := common.GraphDocument{
		Nodes:         make([]common.Node, 0, len(r.Nodes)),
		Relationships: make([]common.Relationship, 0, len(r.Relationships)),
	}
	for _, n := range r.Nodes {
		doc.Nodes = append(doc.Nodes, common.Node{
			ID:         n.ID,
			Type:       n.Type,
			Properties: propertyMap(n.Properties),
		})
	}
	for _, rel := range r.Relationships {
		doc.Relationships = append(doc.Relationships, common.Relationship{
			Source:     common.Node{ID: rel.SourceNodeID, Type: rel.SourceNodeType},
			Target:     common.Node{ID: rel.TargetNodeID, Type: rel.TargetNodeType},
			Type:       rel.Type,
			Properties: propertyMap(rel.Properties),
		})
	}
	return doc
}

func propertyMap(props []extractProperty) map[string]any {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]any, len(props))
	for _, p := range props {
		key := strings.TrimSpace(p.Key)
		if key == "" || key == "id" {
			continue
		}
		out[key] = p.Value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// casers are stateful and must not be shared between goroutines
func titleCase(s string) string {
	return cases.Title(language.English, cases.NoLower).String(s)
}

// NormalizeNodeType turns "creative_work" or "creative work" into
// "CreativeWork".
func NormalizeNodeType(t string) string {
	words := strings.FieldsFunc(t, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	for i, w := range words {
		if strings.ToUpper(w) == w {
			w = strings.ToLower(w)
		}
		words[i] = titleCase(w)
	}
	return strings.Join(words, "")
}

// NormalizeRelationshipType turns "worked on" into "WORKED_ON".
func NormalizeRelationshipType(t string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(t), func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	})
	return cases.Upper(language.English).String(strings.Join(fields, "_"))
}

// NormalizeNodeID trims the id and collapses inner whitespace. Casing is
// the model's choice and is kept, so "eBay" stays "eBay".
func NormalizeNodeID(id string) string {
	return strings.Join(strings.Fields(id), " ")
}

// NormalizeGraph applies the allow-lists and casing rules to an extracted
// graph document:
//   - node types become CamelCase, relationship types UPPER_SNAKE_CASE;
//   - nodes without id or type, or of a type not allowed, are dropped;
//   - relationships of a type not allowed, or touching a dropped or
//     disallowed node, are dropped;
//   - relationship endpoints missing from the node list are added to it;
//   - duplicate nodes are collapsed by (type, id), merging properties.
func NormalizeGraph(doc common.GraphDocument, schema ExtractionSchema) common.GraphDocument {
	allowedNodes := allowSet(schema.AllowedNodes, NormalizeNodeType)
	allowedRels := allowSet(schema.AllowedRelationships, NormalizeRelationshipType)

	out := common.GraphDocument{}
	index := make(map[common.NodeKey]int)

	normalize := func(n common.Node) (common.Node, bool) {
		n.ID = NormalizeNodeID(n.ID)
		n.Type = NormalizeNodeType(n.Type)
		if n.ID == "" || n.Type == "" {
			return n, false
		}
		if allowedNodes != nil {
			if _, ok := allowedNodes[n.Type]; !ok {
				return n, false
			}
		}
		return n, true
	}
	addNode := func(n common.Node) {
		i, ok := index[n.Key()]
		if !ok {
			n.Properties = maps.Clone(n.Properties)
			index[n.Key()] = len(out.Nodes)
			out.Nodes = append(out.Nodes, n)
			return
		}
		existing := &out.Nodes[i]
		for k, v := range n.Properties {
			if existing.Properties == nil {
				existing.Properties = make(map[string]any)
			}
			existing.Properties[k] = v
		}
	}

	for _, n := range doc.Nodes {
		if n, ok := normalize(n); ok {
			addNode(n)
		}
	}

	seen := make(map[relationshipKey]struct{})
	for _, rel := range doc.Relationships {
		rel.Type = NormalizeRelationshipType(rel.Type)
		if rel.Type == "" {
			continue
		}
		if allowedRels != nil {
			if _, ok := allowedRels[rel.Type]; !ok {
				continue
			}
		}
		src, ok := normalize(common.Node{ID: rel.Source.ID, Type: rel.Source.Type})
		if !ok {
			continue
		}
		tgt, ok := normalize(common.Node{ID: rel.Target.ID, Type: rel.Target.Type})
		if !ok {
			continue
		}
		addNode(src)
		addNode(tgt)
		rel.Source = src
		rel.Target = tgt

		key := relationshipKey{source: src.Key(), target: tgt.Key(), typ: rel.Type}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.Relationships = append(out.Relationships, rel)
	}

	return out
}

func allowSet(values []string, normalize func(string) string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

type relationshipKey struct {
	source common.NodeKey
	target common.NodeKey
	typ    string
}

// ExtractChunks groups consecutive chunks chunksToCombine at a time, runs
// the extractor on each group with bounded parallelism and keys every
// result back to all chunk ids of its group. Results are returned in group
// order once every call has finished; the first error cancels the rest.
func (p *Pipeline) ExtractChunks(ctx context.Context, chunks []common.Chunk) ([]ChunkGraph, error) {
	groups := combineChunks(chunks, p.chunksToCombine)
	results := make([]ChunkGraph, len(groups))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(p.parallelExtract)
	for i, group := range groups {
		eg.Go(func() error {
			texts := make([]string, len(group))
			ids := make([]string, len(group))
			for j, c := range group {
				texts[j] = c.Text
				ids[j] = c.ID
			}

			doc, err := p.extractor.Extract(gCtx, strings.Join(texts, "\n"), p.schema)
			if err != nil {
				return fmt.Errorf("failed to extract graph from chunks %v: %w", ids, err)
			}
			results[i] = ChunkGraph{ChunkIDs: ids, Graph: doc}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func combineChunks(chunks []common.Chunk, size int) [][]common.Chunk {
	if size <= 0 {
		size = 1
	}
	groups := make([][]common.Chunk, 0, (len(chunks)+size-1)/size)
	for start := 0; start < len(chunks); start += size {
		groups = append(groups, chunks[start:min(start+size, len(chunks))])
	}
	return groups
}
