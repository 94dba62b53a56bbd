// Package engine wraps one physical SQLite engine behind a uniform
// primitive surface. Two adapters exist: a natively compiled one
// (mattn/go-sqlite3, cgo) and a portable WASM-compiled one
// (ncruces/go-sqlite3 via wazero). Everything above this package goes
// through the Bridge and never sees which adapter is active.
package engine

import (
	"context"
	"errors"
)

// Kind identifies which physical engine backs a handle.
type Kind string

const (
	KindNative Kind = "native"
	KindWASM   Kind = "wasm"
)

// Preference is the user-facing backend choice.
type Preference string

const (
	PreferenceAuto   Preference = "auto"
	PreferenceNative Preference = "native"
	PreferenceWASM   Preference = "wasm"
)

// MemoryPath is the volatile in-memory sentinel. A WASM engine opened
// on it never persists; Close skips the implicit Save.
const MemoryPath = ":memory:"

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("engine: handle is closed")

// Row is one result row keyed by column name. Values carry whatever
// the active driver produced (int64, float64, string, []byte, nil);
// decode helpers above this layer absorb the variance.
type Row map[string]any

// ExecInfo reports the outcome of a write statement. Both counters are
// 64-bit so large tables cannot overflow them.
type ExecInfo struct {
	LastInsertID int64
	RowsAffected int64
}

// Statement is a prepared, parameterized statement.
type Statement interface {
	// Get runs the statement and returns the first row, or nil if the
	// result set is empty.
	Get(ctx context.Context, args ...any) (Row, error)
	// All runs the statement and materializes every row.
	All(ctx context.Context, args ...any) ([]Row, error)
	// Run executes a write statement.
	Run(ctx context.Context, args ...any) (ExecInfo, error)
	Close() error
}

// Engine is the capability surface each adapter implements natively.
// Statements issued sequentially against one Engine execute in
// issuance order; there is no ordering guarantee across engines.
type Engine interface {
	Kind() Kind
	// VectorEnabled reports whether the vector-similarity virtual
	// table extension initialized. Callers branch on this flag; they
	// must never learn about vector support from an error.
	VectorEnabled() bool
	// Exec runs SQL without parameters or results (DDL, pragmas,
	// transaction verbs).
	Exec(ctx context.Context, sql string) error
	Prepare(ctx context.Context, sql string) (Statement, error)
	// Path is the database file this handle persists to.
	Path() string
	// Save flushes state to disk. For the native engine this is a WAL
	// checkpoint; for the WASM engine it serializes the in-memory
	// image and is the only way writes reach the file.
	Save(ctx context.Context) error
	Close() error
}
