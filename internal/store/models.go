// Package store is the persistence layer above the engine bridge:
// knowledge-graph nodes and edges, documents with chunks and
// embeddings, and a small key-value table for indexer state.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Node kinds used by the graph tables. Free-form strings are accepted
// too; these are the ones the markdown ingester emits.
const (
	NodeTypeDocument = "document"
	NodeTypeTag      = "tag"
	NodeTypeCategory = "category"
	NodeTypeLink     = "link"
	NodeTypeResource = "resource"
	NodeTypeConcept  = "concept"
	NodeTypePerson   = "person"
	NodeTypeProject  = "project"
)

// Edge kinds emitted by ingestion.
const (
	EdgeTypeReferences  = "references"
	EdgeTypeTagged      = "tagged"
	EdgeTypeCategorized = "categorized"
	EdgeTypeMentions    = "mentions"
)

// GraphNode is one row of graph_nodes. Attributes round-trips through
// a JSON column.
type GraphNode struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Label      string            `json:"label"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  int64             `json:"createdAt"`
	UpdatedAt  int64             `json:"updatedAt"`
}

// GraphEdge is one row of graph_edges. The ID is derived from the
// endpoints and type, so the same logical edge always maps to the same
// row and re-upserting accumulates weight instead of duplicating.
type GraphEdge struct {
	ID         string            `json:"id"`
	FromNodeID string            `json:"fromNodeId"`
	ToNodeID   string            `json:"toNodeId"`
	Type       string            `json:"type"`
	Weight     float64           `json:"weight"`
	Attributes map[string]string `json:"attributes,omitempty"`
	CreatedAt  int64             `json:"createdAt"`
	UpdatedAt  int64             `json:"updatedAt"`
}

// Document is one row of documents.
type Document struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	Title       string `json:"title"`
	ContentHash string `json:"contentHash,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt"`
}

// Chunk is one row of chunks: a contiguous span of document content in
// sequence order.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	Seq        int64  `json:"seq"`
	Content    string `json:"content"`
	CreatedAt  int64  `json:"createdAt"`
}

// EdgeID derives the deterministic identifier for a (from, to, type)
// triple. 32 hex characters keeps ids short while leaving collisions
// out of practical reach.
func EdgeID(from, to, edgeType string) string {
	sum := sha256.Sum256([]byte(from + "|" + to + "|" + edgeType))
	return hex.EncodeToString(sum[:])[:32]
}

// encodeAttributes serializes an attribute map for storage. Empty maps
// store as NULL.
func encodeAttributes(attrs map[string]string) (any, error) {
	if len(attrs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// decodeAttributes parses the attribute column, tolerating NULL and
// malformed leftovers.
func decodeAttributes(v any) map[string]string {
	s, ok := v.(string)
	if !ok || s == "" {
		if b, isBytes := v.([]byte); isBytes && len(b) > 0 {
			s = string(b)
		} else {
			return nil
		}
	}
	var attrs map[string]string
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil
	}
	return attrs
}

// str pulls a column out of a bridge row as a string. The two drivers
// disagree on byte-vs-string for TEXT, so both forms are handled.
func str(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// i64 pulls a column out of a bridge row as int64.
func i64(row map[string]any, key string) int64 {
	switch v := row[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

// f64 pulls a column out of a bridge row as float64.
func f64(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}

// blob pulls a column out of a bridge row as raw bytes.
func blob(row map[string]any, key string) []byte {
	switch v := row[key].(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}
