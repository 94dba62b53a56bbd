//go:build !cgo

package engine

import (
	"context"
	"database/sql"
	"log/slog"
)

func vecStaticInit() {}

// Without cgo there is no native extension loading; the capability is
// simply off.
func loadVectorExtension(ctx context.Context, db *sql.DB, vecDir string, logger *slog.Logger) bool {
	return false
}
