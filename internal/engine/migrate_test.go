package engine

import (
	"context"
	"testing"
)

func TestMigrateIdempotent(t *testing.T) {
	ctx := context.Background()
	br := NewBridge(newTestEngine(t))

	for i := 0; i < 2; i++ {
		if _, err := Migrate(ctx, br, nil); err != nil {
			t.Fatalf("migrate pass %d: %v", i+1, err)
		}
	}

	for _, table := range []string{"index_state", "graph_nodes", "graph_edges", "documents", "chunks", "embeddings"} {
		row, err := br.QueryRow(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table)
		if err != nil {
			t.Fatalf("check %s: %v", table, err)
		}
		if row == nil {
			t.Errorf("table %s missing after migrate", table)
		}
	}
}

func TestMigrateSurvivesExistingData(t *testing.T) {
	ctx := context.Background()
	br := NewBridge(newTestEngine(t))

	if _, err := Migrate(ctx, br, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := br.Execute(ctx,
		"INSERT INTO graph_nodes (id, type, label, created_at, updated_at) VALUES ('n1', 'tag', 'x', 1, 1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := Migrate(ctx, br, nil); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	row, err := br.QueryRow(ctx, "SELECT id FROM graph_nodes WHERE id = 'n1'")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row == nil {
		t.Fatal("re-migration dropped existing data")
	}
}
