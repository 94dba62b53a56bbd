package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kittclouds/lodestone/internal/engine"
	"github.com/kittclouds/lodestone/pkg/extract"
	"github.com/kittclouds/lodestone/pkg/memgraph"
)

// GraphStore persists the knowledge graph through the engine bridge.
// Referential integrity between nodes and edges is managed at the
// application level: deleting a node cascades to its edges in one
// transaction.
type GraphStore struct {
	br     *engine.Bridge
	fts    bool
	logger *slog.Logger
}

func NewGraphStore(br *engine.Bridge, ftsEnabled bool) *GraphStore {
	return &GraphStore{
		br:     br,
		fts:    ftsEnabled,
		logger: slog.Default().With("component", "graphstore"),
	}
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

// placeholders builds "?, ?, ?" for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// UpsertNode inserts or updates a node. Re-upserting keeps the
// original created_at and overwrites everything else.
func (g *GraphStore) UpsertNode(ctx context.Context, node *GraphNode) error {
	now := nowMillis()
	if node.CreatedAt == 0 {
		node.CreatedAt = now
	}
	node.UpdatedAt = now

	attrs, err := encodeAttributes(node.Attributes)
	if err != nil {
		return fmt.Errorf("marshal node attributes: %w", err)
	}

	_, err = g.br.Execute(ctx, `
		INSERT INTO graph_nodes (id, type, label, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			label = excluded.label,
			attributes = excluded.attributes,
			updated_at = excluded.updated_at
	`, node.ID, node.Type, node.Label, attrs, node.CreatedAt, node.UpdatedAt)
	if err != nil {
		return err
	}
	return g.reindexNode(ctx, node.ID, node.Label, attrs)
}

// reindexNode keeps the metadata FTS table in step with graph_nodes.
// FTS5 has no upsert, so the row is deleted and reinserted.
func (g *GraphStore) reindexNode(ctx context.Context, id, label string, attrs any) error {
	if !g.fts {
		return nil
	}
	if _, err := g.br.Execute(ctx, "DELETE FROM meta_fts WHERE node_id = ?", id); err != nil {
		return err
	}
	_, err := g.br.Execute(ctx,
		"INSERT INTO meta_fts (node_id, label, attributes) VALUES (?, ?, ?)",
		id, label, attrs)
	return err
}

// GetNode retrieves a node by ID, or nil when absent.
func (g *GraphStore) GetNode(ctx context.Context, id string) (*GraphNode, error) {
	row, err := g.br.QueryRow(ctx, `
		SELECT id, type, label, attributes, created_at, updated_at
		FROM graph_nodes WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return nodeFromRow(row), nil
}

// GetNodesByType lists nodes of one type ordered by label.
func (g *GraphStore) GetNodesByType(ctx context.Context, nodeType string) ([]*GraphNode, error) {
	rows, err := g.br.Query(ctx, `
		SELECT id, type, label, attributes, created_at, updated_at
		FROM graph_nodes WHERE type = ? ORDER BY label
	`, nodeType)
	if err != nil {
		return nil, err
	}
	nodes := make([]*GraphNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, nodeFromRow(row))
	}
	return nodes, nil
}

// DeleteNode removes a node and every edge touching it, atomically.
func (g *GraphStore) DeleteNode(ctx context.Context, id string) error {
	return g.br.WithTx(ctx, func() error {
		if _, err := g.br.Execute(ctx,
			"DELETE FROM graph_edges WHERE from_node_id = ? OR to_node_id = ?", id, id); err != nil {
			return err
		}
		if g.fts {
			if _, err := g.br.Execute(ctx, "DELETE FROM meta_fts WHERE node_id = ?", id); err != nil {
				return err
			}
		}
		_, err := g.br.Execute(ctx, "DELETE FROM graph_nodes WHERE id = ?", id)
		return err
	})
}

// UpsertEdge inserts an edge or, when the (from, to, type) triple
// already exists, accumulates its weight. A repeated reference makes
// the connection stronger rather than being dropped. Attributes only
// replace the stored ones when the caller supplies some; an
// attribute-less re-upsert keeps what is there.
func (g *GraphStore) UpsertEdge(ctx context.Context, edge *GraphEdge) error {
	now := nowMillis()
	if edge.ID == "" {
		edge.ID = EdgeID(edge.FromNodeID, edge.ToNodeID, edge.Type)
	}
	if edge.Weight == 0 {
		edge.Weight = 1.0
	}
	if edge.CreatedAt == 0 {
		edge.CreatedAt = now
	}
	edge.UpdatedAt = now

	attrs, err := encodeAttributes(edge.Attributes)
	if err != nil {
		return fmt.Errorf("marshal edge attributes: %w", err)
	}

	_, err = g.br.Execute(ctx, `
		INSERT INTO graph_edges (id, from_node_id, to_node_id, type, weight, attributes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_node_id, to_node_id, type) DO UPDATE SET
			weight = graph_edges.weight + excluded.weight,
			attributes = COALESCE(excluded.attributes, graph_edges.attributes),
			updated_at = excluded.updated_at
	`, edge.ID, edge.FromNodeID, edge.ToNodeID, edge.Type, edge.Weight, attrs, edge.CreatedAt, edge.UpdatedAt)
	return err
}

// GetOutgoingEdges lists edges whose source is id.
func (g *GraphStore) GetOutgoingEdges(ctx context.Context, id string) ([]*GraphEdge, error) {
	rows, err := g.br.Query(ctx, `
		SELECT id, from_node_id, to_node_id, type, weight, attributes, created_at, updated_at
		FROM graph_edges WHERE from_node_id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	return edgesFromRows(rows), nil
}

// GetIncomingEdges lists edges whose target is id.
func (g *GraphStore) GetIncomingEdges(ctx context.Context, id string) ([]*GraphEdge, error) {
	rows, err := g.br.Query(ctx, `
		SELECT id, from_node_id, to_node_id, type, weight, attributes, created_at, updated_at
		FROM graph_edges WHERE to_node_id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	return edgesFromRows(rows), nil
}

// DeleteEdge removes one edge identified by its endpoints and type.
func (g *GraphStore) DeleteEdge(ctx context.Context, from, to, edgeType string) error {
	_, err := g.br.Execute(ctx,
		"DELETE FROM graph_edges WHERE from_node_id = ? AND to_node_id = ? AND type = ?",
		from, to, edgeType)
	return err
}

// CountOutgoingEdges returns the out-degree of a node.
func (g *GraphStore) CountOutgoingEdges(ctx context.Context, id string) (int64, error) {
	row, err := g.br.QueryRow(ctx,
		"SELECT COUNT(*) AS n FROM graph_edges WHERE from_node_id = ?", id)
	if err != nil {
		return 0, err
	}
	return i64(row, "n"), nil
}

// CountIncomingEdges returns the in-degree of a node.
func (g *GraphStore) CountIncomingEdges(ctx context.Context, id string) (int64, error) {
	row, err := g.br.QueryRow(ctx,
		"SELECT COUNT(*) AS n FROM graph_edges WHERE to_node_id = ?", id)
	if err != nil {
		return 0, err
	}
	return i64(row, "n"), nil
}

// GetNeighborIDs returns the distinct outgoing-edge targets of id.
func (g *GraphStore) GetNeighborIDs(ctx context.Context, id string) ([]string, error) {
	rows, err := g.br.Query(ctx,
		"SELECT DISTINCT to_node_id FROM graph_edges WHERE from_node_id = ?", id)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, str(row, "to_node_id"))
	}
	return out, nil
}

// GetNeighborIDsMap resolves outgoing neighbors for a whole batch of
// nodes in exactly one query. Traversals call this once per frontier,
// so query count scales with hop count, not node count.
func (g *GraphStore) GetNeighborIDsMap(ctx context.Context, ids []string) (map[string][]string, error) {
	result := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := g.br.Query(ctx,
		"SELECT from_node_id, to_node_id FROM graph_edges WHERE from_node_id IN ("+
			placeholders(len(ids))+")", toArgs(ids)...)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]map[string]bool, len(ids))
	for _, row := range rows {
		from, to := str(row, "from_node_id"), str(row, "to_node_id")
		if seen[from] == nil {
			seen[from] = make(map[string]bool)
		}
		if !seen[from][to] {
			seen[from][to] = true
			result[from] = append(result[from], to)
		}
	}
	return result, nil
}

// GetRelatedNodeIDs walks outgoing edges breadth-first from start, up
// to hops levels out, issuing one batched query per frontier. The
// start node itself is never included, and the walk stops early once a
// frontier comes back empty.
func (g *GraphStore) GetRelatedNodeIDs(ctx context.Context, start string, hops int) ([]string, error) {
	if hops <= 0 {
		return nil, nil
	}
	visited := map[string]bool{start: true}
	frontier := []string{start}
	var related []string

	for depth := 0; depth < hops && len(frontier) > 0; depth++ {
		neighbors, err := g.GetNeighborIDsMap(ctx, frontier)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, nids := range neighbors {
			for _, nid := range nids {
				if visited[nid] {
					continue
				}
				visited[nid] = true
				related = append(related, nid)
				next = append(next, nid)
			}
		}
		frontier = next
	}
	return related, nil
}

// GetHardOrphanNodeIDs returns nodes with no edges in either
// direction. The two degree checks run as independent queries and the
// result is their intersection, so a node referenced only one way never
// counts as orphaned.
func (g *GraphStore) GetHardOrphanNodeIDs(ctx context.Context) ([]string, error) {
	noOut, err := g.br.Query(ctx, `
		SELECT id FROM graph_nodes
		WHERE id NOT IN (SELECT from_node_id FROM graph_edges)
	`)
	if err != nil {
		return nil, err
	}
	noIn, err := g.br.Query(ctx, `
		SELECT id FROM graph_nodes
		WHERE id NOT IN (SELECT to_node_id FROM graph_edges)
	`)
	if err != nil {
		return nil, err
	}

	inSet := make(map[string]bool, len(noIn))
	for _, row := range noIn {
		inSet[str(row, "id")] = true
	}
	var orphans []string
	for _, row := range noOut {
		id := str(row, "id")
		if inSet[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// TopNodesByDegree returns the ids of the most connected nodes,
// counting both directions, highest first.
func (g *GraphStore) TopNodesByDegree(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := g.br.Query(ctx, `
		SELECT nid, COUNT(*) AS degree FROM (
			SELECT from_node_id AS nid FROM graph_edges
			UNION ALL
			SELECT to_node_id AS nid FROM graph_edges
		) GROUP BY nid ORDER BY degree DESC, nid LIMIT ?
	`, int64(limit))
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, str(row, "nid"))
	}
	return out, nil
}

// SearchNodes runs a text search over node labels and attributes: FTS5
// MATCH when the metadata table came up, otherwise a LIKE scan so
// search still works, just slower.
func (g *GraphStore) SearchNodes(ctx context.Context, query string, limit int) ([]*GraphNode, error) {
	if limit <= 0 {
		limit = 20
	}
	if g.fts {
		rows, err := g.br.Query(ctx, `
			SELECT n.id, n.type, n.label, n.attributes, n.created_at, n.updated_at
			FROM meta_fts JOIN graph_nodes n ON n.id = meta_fts.node_id
			WHERE meta_fts MATCH ? ORDER BY meta_fts.rank LIMIT ?
		`, query, int64(limit))
		if err == nil {
			nodes := make([]*GraphNode, 0, len(rows))
			for _, row := range rows {
				nodes = append(nodes, nodeFromRow(row))
			}
			return nodes, nil
		}
		// Malformed MATCH syntax falls through to the scan.
		g.logger.Warn("fts query failed, falling back to scan", "error", err)
	}
	rows, err := g.br.Query(ctx, `
		SELECT id, type, label, attributes, created_at, updated_at
		FROM graph_nodes WHERE label LIKE ? OR attributes LIKE ?
		ORDER BY label LIMIT ?
	`, "%"+query+"%", "%"+query+"%", int64(limit))
	if err != nil {
		return nil, err
	}
	nodes := make([]*GraphNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, nodeFromRow(row))
	}
	return nodes, nil
}

// GetPreview builds a bounded visualization subgraph. With a start
// node it BFS-expands up to maxHops levels, capping the collected set
// at maxNodes; without one it falls back to the most recently updated
// nodes. Either way, only edges whose endpoints both survived the cap
// are returned, so the edge set never dangles.
func (g *GraphStore) GetPreview(ctx context.Context, startID string, maxNodes, maxHops int) ([]*GraphNode, []*GraphEdge, error) {
	if maxNodes <= 0 {
		maxNodes = 100
	}
	if maxHops <= 0 {
		maxHops = 2
	}

	var ids []string
	if startID != "" {
		visited := map[string]bool{startID: true}
		ids = append(ids, startID)
		frontier := []string{startID}
		for depth := 0; depth < maxHops && len(frontier) > 0 && len(ids) < maxNodes; depth++ {
			neighbors, err := g.GetNeighborIDsMap(ctx, frontier)
			if err != nil {
				return nil, nil, err
			}
			var next []string
			for _, nids := range neighbors {
				for _, nid := range nids {
					if visited[nid] {
						continue
					}
					visited[nid] = true
					next = append(next, nid)
					if len(ids) < maxNodes {
						ids = append(ids, nid)
					}
				}
			}
			frontier = next
		}
	} else {
		rows, err := g.br.Query(ctx,
			"SELECT id FROM graph_nodes ORDER BY updated_at DESC LIMIT ?", int64(maxNodes))
		if err != nil {
			return nil, nil, err
		}
		for _, row := range rows {
			ids = append(ids, str(row, "id"))
		}
	}

	nodes, err := g.HydrateNodes(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	if len(ids) == 0 {
		return nodes, nil, nil
	}

	ph := placeholders(len(ids))
	args := append(toArgs(ids), toArgs(ids)...)
	edgeRows, err := g.br.Query(ctx, `
		SELECT id, from_node_id, to_node_id, type, weight, attributes, created_at, updated_at
		FROM graph_edges
		WHERE from_node_id IN (`+ph+`) AND to_node_id IN (`+ph+`)
	`, args...)
	if err != nil {
		return nil, nil, err
	}
	return nodes, edgesFromRows(edgeRows), nil
}

// UpsertMarkdownDocument ingests one markdown document into the graph
// in a single transaction: the document node, a link node plus
// references edge per wiki link, a tag node plus tagged edge per tag,
// and, when a dictionary is supplied, a mentions edge per matched
// entity. Repeated references within the document accumulate weight.
func (g *GraphStore) UpsertMarkdownDocument(ctx context.Context, docID, title, content string, dict *extract.Dictionary) error {
	res := extract.Scan(content)

	return g.br.WithTx(ctx, func() error {
		if err := g.UpsertNode(ctx, &GraphNode{
			ID:    docID,
			Type:  NodeTypeDocument,
			Label: title,
		}); err != nil {
			return err
		}

		for _, link := range res.WikiLinks {
			linkID := "link:" + link.Target
			if err := g.UpsertNode(ctx, &GraphNode{
				ID:    linkID,
				Type:  NodeTypeLink,
				Label: link.Target,
			}); err != nil {
				return err
			}
			if err := g.UpsertEdge(ctx, &GraphEdge{
				FromNodeID: docID,
				ToNodeID:   linkID,
				Type:       EdgeTypeReferences,
			}); err != nil {
				return err
			}
		}

		for _, tag := range res.Tags {
			tagID := "tag:" + tag
			if err := g.UpsertNode(ctx, &GraphNode{
				ID:    tagID,
				Type:  NodeTypeTag,
				Label: tag,
			}); err != nil {
				return err
			}
			if err := g.UpsertEdge(ctx, &GraphEdge{
				FromNodeID: docID,
				ToNodeID:   tagID,
				Type:       EdgeTypeTagged,
			}); err != nil {
				return err
			}
		}

		if dict != nil {
			for _, m := range dict.Scan(content) {
				if m.NodeID == docID {
					continue
				}
				if err := g.UpsertEdge(ctx, &GraphEdge{
					FromNodeID: docID,
					ToNodeID:   m.NodeID,
					Type:       EdgeTypeMentions,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// =============================================================================
// In-memory analyzer source
// =============================================================================

// AllNodeIDs lists every node id, for whole-graph analysis builds.
func (g *GraphStore) AllNodeIDs(ctx context.Context) ([]string, error) {
	rows, err := g.br.Query(ctx, "SELECT id FROM graph_nodes")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, str(row, "id"))
	}
	return out, nil
}

// NeighborIDsMap satisfies the analyzer's batched adjacency lookup.
func (g *GraphStore) NeighborIDsMap(ctx context.Context, ids []string) (map[string][]string, error) {
	return g.GetNeighborIDsMap(ctx, ids)
}

// AllWeightedEdges streams every edge as analyzer input.
func (g *GraphStore) AllWeightedEdges(ctx context.Context) ([]memgraph.Edge, error) {
	rows, err := g.br.Query(ctx,
		"SELECT from_node_id, to_node_id, weight FROM graph_edges")
	if err != nil {
		return nil, err
	}
	return memEdgesFromRows(rows), nil
}

// EdgesAmong returns the edges whose endpoints both fall inside ids,
// for neighborhood subgraph builds.
func (g *GraphStore) EdgesAmong(ctx context.Context, ids []string) ([]memgraph.Edge, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	ph := placeholders(len(ids))
	args := append(toArgs(ids), toArgs(ids)...)
	rows, err := g.br.Query(ctx, `
		SELECT from_node_id, to_node_id, weight FROM graph_edges
		WHERE from_node_id IN (`+ph+`) AND to_node_id IN (`+ph+`)
	`, args...)
	if err != nil {
		return nil, err
	}
	return memEdgesFromRows(rows), nil
}

// HydrateNodes loads full node records for a set of ids, typically the
// output of an analyzer pass.
func (g *GraphStore) HydrateNodes(ctx context.Context, ids []string) ([]*GraphNode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := g.br.Query(ctx, `
		SELECT id, type, label, attributes, created_at, updated_at
		FROM graph_nodes WHERE id IN (`+placeholders(len(ids))+`)
	`, toArgs(ids)...)
	if err != nil {
		return nil, err
	}
	nodes := make([]*GraphNode, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, nodeFromRow(row))
	}
	return nodes, nil
}

func nodeFromRow(row engine.Row) *GraphNode {
	return &GraphNode{
		ID:         str(row, "id"),
		Type:       str(row, "type"),
		Label:      str(row, "label"),
		Attributes: decodeAttributes(row["attributes"]),
		CreatedAt:  i64(row, "created_at"),
		UpdatedAt:  i64(row, "updated_at"),
	}
}

func edgesFromRows(rows []engine.Row) []*GraphEdge {
	edges := make([]*GraphEdge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, &GraphEdge{
			ID:         str(row, "id"),
			FromNodeID: str(row, "from_node_id"),
			ToNodeID:   str(row, "to_node_id"),
			Type:       str(row, "type"),
			Weight:     f64(row, "weight"),
			Attributes: decodeAttributes(row["attributes"]),
			CreatedAt:  i64(row, "created_at"),
			UpdatedAt:  i64(row, "updated_at"),
		})
	}
	return edges
}

func memEdgesFromRows(rows []engine.Row) []memgraph.Edge {
	edges := make([]memgraph.Edge, 0, len(rows))
	for _, row := range rows {
		edges = append(edges, memgraph.Edge{
			From:   str(row, "from_node_id"),
			To:     str(row, "to_node_id"),
			Weight: f64(row, "weight"),
		})
	}
	return edges
}

var _ memgraph.Source = (*GraphStore)(nil)
