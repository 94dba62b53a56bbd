package store

import (
	"context"
	"testing"

	"github.com/hack-pad/hackpadfs/mem"

	"github.com/kittclouds/lodestone/internal/engine"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}
	m, err := NewManager(context.Background(), Options{
		Backend:      engine.PreferenceWASM,
		SearchDBPath: engine.MemoryPath,
		MetaDBPath:   engine.MemoryPath,
		FS:           fs,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestManagerReportsBackend(t *testing.T) {
	m := newTestManager(t)
	if m.DatabaseType() != engine.KindWASM {
		t.Fatalf("DatabaseType = %v, want %v", m.DatabaseType(), engine.KindWASM)
	}
	if m.IsVectorSearchEnabled() {
		t.Fatal("wasm backend must report vector search off")
	}
}

func TestManagerCloseIdempotent(t *testing.T) {
	m := newTestManager(t)
	if err := m.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestManagerPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}
	opts := Options{
		Backend:      engine.PreferenceWASM,
		SearchDBPath: "data/search.db",
		MetaDBPath:   "data/meta.db",
		FS:           fs,
	}

	m, err := NewManager(ctx, opts)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if err := m.Graph().UpsertNode(ctx, &GraphNode{ID: "n1", Type: NodeTypeTag, Label: "keep"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	m2, err := NewManager(ctx, opts)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()
	node, err := m2.Graph().GetNode(ctx, "n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if node == nil || node.Label != "keep" {
		t.Fatalf("node lost across reopen: %v", node)
	}
}

func TestSingletonLifecycle(t *testing.T) {
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}
	opts := Options{Backend: engine.PreferenceWASM, FS: fs}

	if Default() != nil {
		t.Fatal("Default before Init should be nil")
	}
	if err := Init(context.Background(), opts); err != nil {
		t.Fatalf("init: %v", err)
	}
	if Default() == nil {
		t.Fatal("Default after Init should not be nil")
	}
	if err := Init(context.Background(), opts); err == nil {
		t.Fatal("double Init should fail")
	}
	if err := Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if Default() != nil {
		t.Fatal("Default after Shutdown should be nil")
	}
	if err := Shutdown(); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
