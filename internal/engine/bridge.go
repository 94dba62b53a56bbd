package engine

import (
	"context"
	"strings"
)

// Result is the uniform envelope every executed statement produces,
// regardless of which adapter ran it. Reads fill Rows; writes fill the
// counters.
type Result struct {
	Rows         []Row
	LastInsertID int64
	RowsAffected int64
}

// Bridge presents one execution surface over either adapter. Compiled
// (sql, args) pairs are classified as read or write by textual prefix
// and dispatched to the adapter's All/Run primitives; transactions map
// to BEGIN/COMMIT/ROLLBACK through Exec.
type Bridge struct {
	eng Engine
}

func NewBridge(eng Engine) *Bridge {
	return &Bridge{eng: eng}
}

// Engine exposes the wrapped adapter for capability checks.
func (b *Bridge) Engine() Engine { return b.eng }

// Execute runs one statement and reshapes the outcome into a Result.
func (b *Bridge) Execute(ctx context.Context, query string, args ...any) (Result, error) {
	stmt, err := b.eng.Prepare(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer stmt.Close()

	if isReadStatement(query) {
		rows, err := stmt.All(ctx, args...)
		if err != nil {
			return Result{}, err
		}
		return Result{Rows: rows}, nil
	}
	info, err := stmt.Run(ctx, args...)
	if err != nil {
		return Result{}, err
	}
	return Result{LastInsertID: info.LastInsertID, RowsAffected: info.RowsAffected}, nil
}

// Query is Execute for reads, returning the rows directly.
func (b *Bridge) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	res, err := b.Execute(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// QueryRow returns the first row of a read, or nil when empty.
func (b *Bridge) QueryRow(ctx context.Context, query string, args ...any) (Row, error) {
	stmt, err := b.eng.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()
	return stmt.Get(ctx, args...)
}

// Stream materializes the query and hands rows to fn in chunks of at
// most chunkSize. Neither backend offers server-side cursors, so this
// bounds response payload size, not memory use during the query.
func (b *Bridge) Stream(ctx context.Context, query string, chunkSize int, fn func([]Row) error, args ...any) error {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	rows, err := b.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := fn(rows[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bridge) Begin(ctx context.Context) error    { return b.eng.Exec(ctx, "BEGIN") }
func (b *Bridge) Commit(ctx context.Context) error   { return b.eng.Exec(ctx, "COMMIT") }
func (b *Bridge) Rollback(ctx context.Context) error { return b.eng.Exec(ctx, "ROLLBACK") }

// WithTx runs fn inside a transaction, rolling back on error.
func (b *Bridge) WithTx(ctx context.Context, fn func() error) error {
	if err := b.Begin(ctx); err != nil {
		return err
	}
	if err := fn(); err != nil {
		// Best effort; the original error is the one that matters.
		_ = b.Rollback(ctx)
		return err
	}
	return b.Commit(ctx)
}

func isReadStatement(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") ||
		strings.HasPrefix(q, "WITH") ||
		strings.HasPrefix(q, "PRAGMA") ||
		strings.HasPrefix(q, "EXPLAIN")
}
