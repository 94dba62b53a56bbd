package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hack-pad/hackpadfs"
	hackos "github.com/hack-pad/hackpadfs/os"

	"github.com/kittclouds/lodestone/internal/engine"
)

// Options configures a Manager. Zero values get sensible defaults.
type Options struct {
	// Backend is the engine preference; the runtime probe may override
	// it when the native engine cannot run in this build.
	Backend engine.Preference
	// SearchDBPath holds documents, chunks, embeddings, and the text
	// indexes.
	SearchDBPath string
	// MetaDBPath holds the knowledge graph.
	MetaDBPath string
	// VecDir optionally points at a directory containing the loadable
	// vector extension.
	VecDir string
	// FS backs WASM engine persistence. Defaults to the OS filesystem;
	// tests substitute an in-memory one.
	FS hackpadfs.FS
}

// Manager owns the two database handles and the repositories over
// them. The search database and the metadata database are independent
// files; there is no cross-database atomicity, and callers that touch
// both must tolerate one side landing without the other.
type Manager struct {
	mu     sync.Mutex
	closed bool
	logger *slog.Logger

	searchEng engine.Engine
	metaEng   engine.Engine
	searchBr  *engine.Bridge
	metaBr    *engine.Bridge

	graph *GraphStore
	docs  *DocumentStore
	kv    *KVStore
}

// NewManager opens both databases, applies migrations, and wires the
// repositories. A native-preference open that fails at the driver
// level falls back to the WASM backend instead of failing the caller.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	logger := slog.Default().With("component", "storemanager")
	if opts.SearchDBPath == "" {
		opts.SearchDBPath = engine.MemoryPath
	}
	if opts.MetaDBPath == "" {
		opts.MetaDBPath = engine.MemoryPath
	}
	if opts.FS == nil {
		opts.FS = hackos.NewFS()
	}

	kind := engine.SelectBackend(opts.Backend, logger)

	searchEng, err := openEngine(ctx, kind, opts.SearchDBPath, opts.VecDir, opts.FS, logger)
	if err != nil {
		return nil, fmt.Errorf("open search database: %w", err)
	}
	// Both handles use the same backend so serialized images stay
	// interchangeable between them.
	metaEng, err := openEngine(ctx, searchEng.Kind(), opts.MetaDBPath, opts.VecDir, opts.FS, logger)
	if err != nil {
		searchEng.Close()
		return nil, fmt.Errorf("open metadata database: %w", err)
	}

	m := &Manager{
		logger:    logger,
		searchEng: searchEng,
		metaEng:   metaEng,
		searchBr:  engine.NewBridge(searchEng),
		metaBr:    engine.NewBridge(metaEng),
	}

	ftsEnabled, err := engine.Migrate(ctx, m.searchBr, logger)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("migrate search database: %w", err)
	}
	metaFTS, err := engine.Migrate(ctx, m.metaBr, logger)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("migrate metadata database: %w", err)
	}

	m.kv = NewKVStore(m.searchBr)
	m.docs = NewDocumentStore(m.searchBr, m.kv, ftsEnabled)
	m.graph = NewGraphStore(m.metaBr, metaFTS)

	logger.Info("store manager ready",
		"backend", searchEng.Kind(),
		"vector", searchEng.VectorEnabled(),
		"fts", ftsEnabled)
	return m, nil
}

// openEngine constructs one adapter of the given kind. A failed native
// open degrades to WASM; a failed WASM open is fatal.
func openEngine(ctx context.Context, kind engine.Kind, path, vecDir string, fsys hackpadfs.FS, logger *slog.Logger) (engine.Engine, error) {
	if kind == engine.KindNative {
		eng, err := engine.OpenNative(ctx, path, vecDir)
		if err == nil {
			return eng, nil
		}
		logger.Warn("native open failed, falling back to wasm backend",
			"path", path, "error", err)
	}
	return engine.OpenWASM(ctx, fsys, path)
}

// Graph is the knowledge-graph repository, on the metadata database.
func (m *Manager) Graph() *GraphStore { return m.graph }

// Documents is the document repository, on the search database.
func (m *Manager) Documents() *DocumentStore { return m.docs }

// KV is the indexer state table, on the search database.
func (m *Manager) KV() *KVStore { return m.kv }

// SearchBridge exposes the search database for ad hoc queries.
func (m *Manager) SearchBridge() *engine.Bridge { return m.searchBr }

// MetaBridge exposes the metadata database for ad hoc queries.
func (m *Manager) MetaBridge() *engine.Bridge { return m.metaBr }

// DatabaseType reports which backend ended up active.
func (m *Manager) DatabaseType() engine.Kind { return m.searchEng.Kind() }

// IsVectorSearchEnabled reports the vector capability of the search
// database.
func (m *Manager) IsVectorSearchEnabled() bool { return m.searchEng.VectorEnabled() }

// Save flushes both databases to disk.
func (m *Manager) Save(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return engine.ErrClosed
	}
	if err := m.searchEng.Save(ctx); err != nil {
		return fmt.Errorf("save search database: %w", err)
	}
	if err := m.metaEng.Save(ctx); err != nil {
		return fmt.Errorf("save metadata database: %w", err)
	}
	return nil
}

// Close shuts both handles down. WASM handles persist their image on
// the way out. Safe to call twice.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if err := m.searchEng.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close search database: %w", err))
	}
	if err := m.metaEng.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close metadata database: %w", err))
	}
	return errors.Join(errs...)
}

// =============================================================================
// Process-wide singleton
// =============================================================================

var (
	defaultMu      sync.Mutex
	defaultManager *Manager
)

// Init opens the process-wide manager. A second Init without Shutdown
// is an error.
func Init(ctx context.Context, opts Options) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager != nil {
		return errors.New("store: already initialized")
	}
	m, err := NewManager(ctx, opts)
	if err != nil {
		return err
	}
	defaultManager = m
	return nil
}

// Default returns the process-wide manager, or nil before Init.
func Default() *Manager {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultManager
}

// Shutdown closes the process-wide manager. Idempotent.
func Shutdown() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultManager == nil {
		return nil
	}
	err := defaultManager.Close()
	defaultManager = nil
	return err
}
