package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// NativeEngine is the natively compiled SQLite adapter. The mattn
// driver registers under CGO_ENABLED=0 too but fails at open, which is
// what lets the selector probe it at runtime instead of at build time.
type NativeEngine struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	vector bool
	closed bool
	logger *slog.Logger
}

// OpenNative opens a file-backed native engine. vecDir, when not
// empty, is prepended to the vector extension search path.
func OpenNative(ctx context.Context, path string, vecDir string) (*NativeEngine, error) {
	logger := slog.Default().With("component", "engine", "backend", KindNative)

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	vecStaticInit()

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open native database: %w", err)
	}
	// One connection per handle: keeps issuance order and makes
	// BEGIN/COMMIT pair up on the same physical connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping native database: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA wal_autocheckpoint=1000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal_autocheckpoint: %w", err)
	}

	e := &NativeEngine{db: db, path: path, logger: logger}
	e.vector = loadVectorExtension(ctx, db, vecDir, logger)
	return e, nil
}

func (e *NativeEngine) Kind() Kind          { return KindNative }
func (e *NativeEngine) VectorEnabled() bool { return e.vector }
func (e *NativeEngine) Path() string        { return e.path }

func (e *NativeEngine) Exec(ctx context.Context, query string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	_, err := e.db.ExecContext(ctx, query)
	return err
}

func (e *NativeEngine) Prepare(ctx context.Context, query string) (Statement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	stmt, err := e.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &nativeStatement{stmt: stmt}, nil
}

// Save forces a WAL checkpoint so the main database file is current.
func (e *NativeEngine) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	_, err := e.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (e *NativeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

type nativeStatement struct {
	stmt *sql.Stmt
}

func (s *nativeStatement) Get(ctx context.Context, args ...any) (Row, error) {
	rows, err := s.All(ctx, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *nativeStatement) All(ctx context.Context, args ...any) ([]Row, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func (s *nativeStatement) Run(ctx context.Context, args ...any) (ExecInfo, error) {
	res, err := s.stmt.ExecContext(ctx, args...)
	if err != nil {
		return ExecInfo{}, err
	}
	var info ExecInfo
	if id, err := res.LastInsertId(); err == nil {
		info.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		info.RowsAffected = n
	}
	return info, nil
}

func (s *nativeStatement) Close() error { return s.stmt.Close() }

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

var _ Engine = (*NativeEngine)(nil)
