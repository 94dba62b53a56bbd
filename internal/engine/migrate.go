package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// requiredSchema holds the tables the system cannot function without.
// Everything is IF NOT EXISTS so migration is safely re-runnable on
// every open. No foreign keys between graph tables: the two backends
// do not share constraint semantics, so referential integrity is
// enforced at the application layer (cascading edge deletes).
const requiredSchema = `
CREATE TABLE IF NOT EXISTS index_state (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS graph_nodes (
    id TEXT PRIMARY KEY,
    type TEXT NOT NULL,
    label TEXT NOT NULL,
    attributes TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_type ON graph_nodes(type);

CREATE TABLE IF NOT EXISTS graph_edges (
    id TEXT PRIMARY KEY,
    from_node_id TEXT NOT NULL,
    to_node_id TEXT NOT NULL,
    type TEXT NOT NULL,
    weight REAL NOT NULL DEFAULT 1.0,
    attributes TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    UNIQUE(from_node_id, to_node_id, type)
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_from ON graph_edges(from_node_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_to ON graph_edges(to_node_id);

CREATE TABLE IF NOT EXISTS documents (
    id TEXT PRIMARY KEY,
    path TEXT NOT NULL,
    title TEXT NOT NULL,
    content_hash TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
    id TEXT PRIMARY KEY,
    document_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

CREATE TABLE IF NOT EXISTS embeddings (
    chunk_id TEXT PRIMARY KEY,
    dim INTEGER NOT NULL,
    vector BLOB NOT NULL,
    created_at INTEGER NOT NULL
);
`

// optionalSchema lists virtual tables that depend on optional engine
// features (FTS5 may not be compiled into the native build). Each is
// attempted independently; failure degrades a capability, never the
// migration. The vec0 table is deliberately absent here: its
// dimensionality is unknown until the first embedding write, so it is
// created lazily by the document store.
var optionalSchema = []struct {
	name string
	ddl  string
}{
	{
		name: "chunks_fts",
		ddl: `CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			content
		)`,
	},
	{
		name: "meta_fts",
		ddl: `CREATE VIRTUAL TABLE IF NOT EXISTS meta_fts USING fts5(
			node_id UNINDEXED,
			label,
			attributes
		)`,
	},
}

// Migrate applies the schema to an open engine. It returns whether the
// full-text virtual tables came up; a required-table failure is fatal.
func Migrate(ctx context.Context, br *Bridge, logger *slog.Logger) (ftsEnabled bool, err error) {
	if logger == nil {
		logger = slog.Default().With("component", "migrate")
	}
	if err := br.Engine().Exec(ctx, requiredSchema); err != nil {
		return false, fmt.Errorf("apply required schema: %w", err)
	}

	ftsEnabled = true
	for _, vt := range optionalSchema {
		if err := br.Engine().Exec(ctx, vt.ddl); err != nil {
			logger.Warn("optional virtual table unavailable, continuing without it",
				"table", vt.name, "error", err)
			ftsEnabled = false
		}
	}
	return ftsEnabled, nil
}
