//go:build cgo

package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"
)

var (
	vecInitOnce      sync.Once
	errNotSQLiteConn = errors.New("engine: driver connection is not sqlite3")
)

// vecStaticInit registers the statically linked sqlite-vec build with
// the driver so every new connection gets vec0 automatically. Must run
// before the first sql.Open.
func vecStaticInit() {
	vecInitOnce.Do(sqlite_vec.Auto)
}

// loadVectorExtension reports whether vec0 is usable on db. The static
// registration usually suffices; when it did not take (for example a
// binding built without the extension), each candidate shared library
// is tried in turn. Failure only clears the capability flag.
func loadVectorExtension(ctx context.Context, db *sql.DB, vecDir string, logger *slog.Logger) bool {
	if vecAvailable(ctx, db) {
		return true
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		logger.Warn("vector extension probe failed to acquire connection", "error", err)
		return false
	}
	defer conn.Close()

	for _, p := range vecCandidatePaths(vecDir) {
		loadErr := conn.Raw(func(driverConn any) error {
			sc, ok := driverConn.(*sqlite3.SQLiteConn)
			if !ok {
				return errNotSQLiteConn
			}
			return sc.LoadExtension(p, "")
		})
		if loadErr != nil {
			continue
		}
		if vecAvailable(ctx, db) {
			logger.Info("loaded vector extension", "path", p)
			return true
		}
	}

	logger.Info("vector extension unavailable, similarity search disabled")
	return false
}

func vecAvailable(ctx context.Context, db *sql.DB) bool {
	var version string
	return db.QueryRowContext(ctx, "SELECT vec_version()").Scan(&version) == nil
}
