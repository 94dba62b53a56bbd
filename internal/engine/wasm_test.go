package engine

import (
	"context"
	"testing"

	"github.com/hack-pad/hackpadfs"
	"github.com/hack-pad/hackpadfs/mem"
)

func TestWASMSaveReopenRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}

	eng, err := OpenWASM(ctx, fs, "data/test.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := eng.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := eng.Exec(ctx, "INSERT INTO t (v) VALUES ('persisted')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := eng.Save(ctx); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := hackpadfs.Stat(fs, "data/test.db"); err != nil {
		t.Fatalf("image file missing after save: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenWASM(ctx, fs, "data/test.db")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	stmt, err := reopened.Prepare(ctx, "SELECT v FROM t")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	defer stmt.Close()
	row, err := stmt.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row == nil || row["v"] != "persisted" {
		t.Fatalf("round trip lost data, got %v", row)
	}
}

func TestWASMCloseSavesImplicitly(t *testing.T) {
	ctx := context.Background()
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}

	eng, err := OpenWASM(ctx, fs, "db/implicit.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := eng.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	// No explicit Save; Close must flush.
	if err := eng.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := hackpadfs.Stat(fs, "db/implicit.db"); err != nil {
		t.Fatalf("close did not persist the image: %v", err)
	}
}

func TestWASMMemoryPathNeverPersists(t *testing.T) {
	ctx := context.Background()
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}

	eng, err := OpenWASM(ctx, fs, MemoryPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := eng.Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := eng.Save(ctx); err != nil {
		t.Fatalf("save on memory path should be a no-op, got %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestWASMCloseIdempotent(t *testing.T) {
	eng := newTestEngine(t)
	if err := eng.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := eng.Exec(context.Background(), "SELECT 1"); err != ErrClosed {
		t.Fatalf("exec after close = %v, want ErrClosed", err)
	}
}

func TestWASMVectorAlwaysDisabled(t *testing.T) {
	eng := newTestEngine(t)
	if eng.VectorEnabled() {
		t.Fatal("wasm engine must report vector disabled")
	}
}

func TestWASMBindTypes(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)
	if err := eng.Exec(ctx, "CREATE TABLE t (i INTEGER, f REAL, s TEXT, b BLOB, n TEXT)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	stmt, err := eng.Prepare(ctx, "INSERT INTO t (i, f, s, b, n) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := stmt.Run(ctx, int64(7), 1.5, "text", []byte{1, 2}, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	stmt.Close()

	q, err := eng.Prepare(ctx, "SELECT i, f, s, b, n FROM t")
	if err != nil {
		t.Fatalf("prepare select: %v", err)
	}
	defer q.Close()
	row, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if row["i"] != int64(7) || row["f"] != 1.5 || row["s"] != "text" {
		t.Errorf("scalar round trip mismatch: %v", row)
	}
	if b, ok := row["b"].([]byte); !ok || len(b) != 2 {
		t.Errorf("blob round trip mismatch: %v", row["b"])
	}
	if row["n"] != nil {
		t.Errorf("null round trip mismatch: %v", row["n"])
	}
}
