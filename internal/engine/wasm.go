package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/hack-pad/hackpadfs"
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/ncruces/go-sqlite3/ext/serdes"
)

// WASMEngine runs the WASM-compiled SQLite build entirely in memory.
// The whole database image is deserialized at open and only written
// back by an explicit Save; crashing before Save loses unwritten data.
// It cannot load native extensions, so vector search is always off.
type WASMEngine struct {
	mu     sync.Mutex
	conn   *sqlite3.Conn
	fs     hackpadfs.FS
	path   string
	fsPath string
	closed bool
	logger *slog.Logger
}

// OpenWASM opens an in-memory engine seeded from the image at path (if
// one exists in fsys). path == MemoryPath skips persistence entirely.
func OpenWASM(ctx context.Context, fsys hackpadfs.FS, dbPath string) (*WASMEngine, error) {
	logger := slog.Default().With("component", "engine", "backend", KindWASM)

	conn, err := sqlite3.Open(MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("open wasm database: %w", err)
	}

	e := &WASMEngine{
		conn:   conn,
		fs:     fsys,
		path:   dbPath,
		fsPath: toFSPath(dbPath),
		logger: logger,
	}

	if dbPath != MemoryPath {
		data, err := hackpadfs.ReadFile(fsys, e.fsPath)
		switch {
		case err == nil && len(data) > 0:
			if err := serdes.Deserialize(conn, "main", data); err != nil {
				conn.Close()
				return nil, fmt.Errorf("restore database image %s: %w", dbPath, err)
			}
		case err != nil && !isNotExist(err):
			conn.Close()
			return nil, fmt.Errorf("read database image %s: %w", dbPath, err)
		}
	}

	if err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return e, nil
}

func (e *WASMEngine) Kind() Kind          { return KindWASM }
func (e *WASMEngine) VectorEnabled() bool { return false }
func (e *WASMEngine) Path() string        { return e.path }

func (e *WASMEngine) Exec(ctx context.Context, query string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.conn.Exec(query)
}

func (e *WASMEngine) Prepare(ctx context.Context, query string) (Statement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stmt, _, err := e.conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &wasmStatement{eng: e, stmt: stmt}, nil
}

// Save serializes the in-memory image and writes it through the FS.
// Until Save runs, the on-disk file (if any) is stale.
func (e *WASMEngine) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.saveLocked(ctx)
}

func (e *WASMEngine) saveLocked(ctx context.Context) error {
	if e.closed {
		return ErrClosed
	}
	if e.path == MemoryPath {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := serdes.Serialize(e.conn, "main")
	if err != nil {
		return fmt.Errorf("serialize database image: %w", err)
	}
	if dir := path.Dir(e.fsPath); dir != "." && dir != "" {
		if err := hackpadfs.MkdirAll(e.fs, dir, 0o755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
	}
	if err := hackpadfs.WriteFullFile(e.fs, e.fsPath, data, 0o644); err != nil {
		return fmt.Errorf("write database image %s: %w", e.path, err)
	}
	return nil
}

// Close saves first unless the handle is volatile, then releases the
// in-memory image. Safe to call twice.
func (e *WASMEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	if e.path != MemoryPath {
		if err := e.saveLocked(context.Background()); err != nil {
			e.closed = true
			e.conn.Close()
			return err
		}
	}
	e.closed = true
	return e.conn.Close()
}

type wasmStatement struct {
	eng  *WASMEngine
	stmt *sqlite3.Stmt
}

func (s *wasmStatement) Get(ctx context.Context, args ...any) (Row, error) {
	rows, err := s.All(ctx, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *wasmStatement) All(ctx context.Context, args ...any) ([]Row, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	if s.eng.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.bind(args); err != nil {
		return nil, err
	}
	defer s.stmt.Reset()

	var out []Row
	n := s.stmt.ColumnCount()
	for s.stmt.Step() {
		row := make(Row, n)
		for i := 0; i < n; i++ {
			name := s.stmt.ColumnName(i)
			switch s.stmt.ColumnType(i) {
			case sqlite3.INTEGER:
				row[name] = s.stmt.ColumnInt64(i)
			case sqlite3.FLOAT:
				row[name] = s.stmt.ColumnFloat(i)
			case sqlite3.TEXT:
				row[name] = s.stmt.ColumnText(i)
			case sqlite3.BLOB:
				row[name] = s.stmt.ColumnBlob(i, nil)
			default:
				row[name] = nil
			}
		}
		out = append(out, row)
	}
	if err := s.stmt.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *wasmStatement) Run(ctx context.Context, args ...any) (ExecInfo, error) {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	if s.eng.closed {
		return ExecInfo{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return ExecInfo{}, err
	}
	if err := s.bind(args); err != nil {
		return ExecInfo{}, err
	}
	defer s.stmt.Reset()

	if err := s.stmt.Exec(); err != nil {
		return ExecInfo{}, err
	}
	return ExecInfo{
		LastInsertID: s.eng.conn.LastInsertRowID(),
		RowsAffected: s.eng.conn.Changes(),
	}, nil
}

func (s *wasmStatement) Close() error {
	s.eng.mu.Lock()
	defer s.eng.mu.Unlock()
	return s.stmt.Close()
}

// bind assigns 1-based parameters. Caller holds the engine lock.
func (s *wasmStatement) bind(args []any) error {
	if err := s.stmt.ClearBindings(); err != nil {
		return err
	}
	for i, arg := range args {
		var err error
		switch v := arg.(type) {
		case nil:
			err = s.stmt.BindNull(i + 1)
		case string:
			err = s.stmt.BindText(i+1, v)
		case int:
			err = s.stmt.BindInt64(i+1, int64(v))
		case int64:
			err = s.stmt.BindInt64(i+1, v)
		case float64:
			err = s.stmt.BindFloat(i+1, v)
		case bool:
			err = s.stmt.BindBool(i+1, v)
		case []byte:
			err = s.stmt.BindBlob(i+1, v)
		default:
			return fmt.Errorf("bind arg %d: unsupported type %T", i+1, arg)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// toFSPath converts an OS path into the unrooted slash form hackpadfs
// expects.
func toFSPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return strings.TrimPrefix(p, "/")
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, hackpadfs.ErrNotExist)
}

var _ Engine = (*WASMEngine)(nil)
