// storeprobe opens the store with the effective configuration, runs a
// small end-to-end exercise through every layer, and reports which
// capabilities came up. Useful for checking a deployment's backend and
// extension situation.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/kittclouds/lodestone/internal/config"
	"github.com/kittclouds/lodestone/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := store.Init(ctx, store.Options{
		Backend:      cfg.Backend,
		SearchDBPath: cfg.SearchDBPath(),
		MetaDBPath:   cfg.MetaDBPath(),
		VecDir:       cfg.VecPath,
	}); err != nil {
		log.Fatalf("init store: %v", err)
	}
	defer store.Shutdown()

	m := store.Default()
	fmt.Printf("backend: %s\n", m.DatabaseType())
	fmt.Printf("vector search: %v\n", m.IsVectorSearchEnabled())

	runProbe(ctx, m)

	fmt.Println("\n✅ All probes passed!")
}

func runProbe(ctx context.Context, m *store.Manager) {
	g := m.Graph()
	d := m.Documents()

	if err := d.UpsertDocument(ctx, &store.Document{
		ID:    "probe:doc",
		Path:  "probe/doc.md",
		Title: "Probe Document",
	}); err != nil {
		log.Fatalf("UpsertDocument failed: %v", err)
	}
	fmt.Println("  ✓ UpsertDocument works")

	content := "A probe that links to [[Other Note]] and carries #probe."
	if err := g.UpsertMarkdownDocument(ctx, "probe:doc", "Probe Document", content, nil); err != nil {
		log.Fatalf("UpsertMarkdownDocument failed: %v", err)
	}
	fmt.Println("  ✓ UpsertMarkdownDocument works")

	edges, err := g.GetOutgoingEdges(ctx, "probe:doc")
	if err != nil {
		log.Fatalf("GetOutgoingEdges failed: %v", err)
	}
	if len(edges) != 2 {
		log.Fatalf("expected 2 edges from probe document, got %d", len(edges))
	}
	fmt.Println("  ✓ Graph extraction works")

	if _, err := d.ReplaceChunks(ctx, "probe:doc", []string{content}); err != nil {
		log.Fatalf("ReplaceChunks failed: %v", err)
	}
	hits, err := d.SearchChunks(ctx, "probe", 10)
	if err != nil {
		log.Fatalf("SearchChunks failed: %v", err)
	}
	if len(hits) == 0 {
		log.Fatal("SearchChunks found nothing")
	}
	fmt.Println("  ✓ Text search works")

	nodes, previewEdges, err := g.GetPreview(ctx, "probe:doc", 10, 2)
	if err != nil {
		log.Fatalf("GetPreview failed: %v", err)
	}
	fmt.Printf("  ✓ Preview works (%d nodes, %d edges)\n", len(nodes), len(previewEdges))

	if err := g.DeleteNode(ctx, "probe:doc"); err != nil {
		log.Fatalf("DeleteNode failed: %v", err)
	}
	if err := d.DeleteDocument(ctx, "probe:doc"); err != nil {
		log.Fatalf("DeleteDocument failed: %v", err)
	}
	fmt.Println("  ✓ Cleanup works")
}
