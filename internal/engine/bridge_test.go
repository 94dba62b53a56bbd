package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/hack-pad/hackpadfs/mem"
)

var errTest = errors.New("boom")

func newTestEngine(t *testing.T) *WASMEngine {
	t.Helper()
	fs, err := mem.NewFS()
	if err != nil {
		t.Fatalf("mem fs: %v", err)
	}
	eng, err := OpenWASM(context.Background(), fs, MemoryPath)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestBridgeExecuteClassification(t *testing.T) {
	ctx := context.Background()
	br := NewBridge(newTestEngine(t))

	if err := br.Engine().Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	res, err := br.Execute(ctx, "INSERT INTO t (name) VALUES (?)", "alpha")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if res.LastInsertID != 1 {
		t.Errorf("LastInsertID = %d, want 1", res.LastInsertID)
	}
	if res.RowsAffected != 1 {
		t.Errorf("RowsAffected = %d, want 1", res.RowsAffected)
	}
	if res.Rows != nil {
		t.Errorf("write statement produced rows: %v", res.Rows)
	}

	res, err = br.Execute(ctx, "SELECT id, name FROM t")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(res.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(res.Rows))
	}
	if got := res.Rows[0]["name"]; got != "alpha" {
		t.Errorf("name = %v, want alpha", got)
	}
	if got := res.Rows[0]["id"]; got != int64(1) {
		t.Errorf("id = %v, want int64(1)", got)
	}
}

func TestBridgeQueryRow(t *testing.T) {
	ctx := context.Background()
	br := NewBridge(newTestEngine(t))

	if err := br.Engine().Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	row, err := br.QueryRow(ctx, "SELECT id FROM t WHERE id = ?", 42)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if row != nil {
		t.Errorf("empty result should be nil, got %v", row)
	}
}

func TestBridgeStream(t *testing.T) {
	ctx := context.Background()
	br := NewBridge(newTestEngine(t))

	if err := br.Engine().Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := br.Execute(ctx, "INSERT INTO t (id) VALUES (?)", int64(i+1)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var chunkSizes []int
	var total int
	err := br.Stream(ctx, "SELECT id FROM t ORDER BY id", 3, func(rows []Row) error {
		chunkSizes = append(chunkSizes, len(rows))
		total += len(rows)
		return nil
	})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if total != 7 {
		t.Errorf("streamed %d rows, want 7", total)
	}
	want := []int{3, 3, 1}
	if len(chunkSizes) != len(want) {
		t.Fatalf("got chunks %v, want %v", chunkSizes, want)
	}
	for i := range want {
		if chunkSizes[i] != want[i] {
			t.Errorf("chunk %d size = %d, want %d", i, chunkSizes[i], want[i])
		}
	}
}

func TestBridgeWithTxRollback(t *testing.T) {
	ctx := context.Background()
	br := NewBridge(newTestEngine(t))

	if err := br.Engine().Exec(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	boom := errTest
	err := br.WithTx(ctx, func() error {
		if _, err := br.Execute(ctx, "INSERT INTO t (id) VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("WithTx error = %v, want %v", err, boom)
	}

	rows, err := br.Query(ctx, "SELECT id FROM t")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("rollback left %d rows behind", len(rows))
	}
}

func TestIsReadStatement(t *testing.T) {
	reads := []string{
		"SELECT 1",
		"  select * from t",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"PRAGMA user_version",
		"EXPLAIN QUERY PLAN SELECT 1",
	}
	writes := []string{
		"INSERT INTO t VALUES (1)",
		"UPDATE t SET a = 1",
		"DELETE FROM t",
		"CREATE TABLE t (id INTEGER)",
	}
	for _, q := range reads {
		if !isReadStatement(q) {
			t.Errorf("%q should classify as read", q)
		}
	}
	for _, q := range writes {
		if isReadStatement(q) {
			t.Errorf("%q should classify as write", q)
		}
	}
}
