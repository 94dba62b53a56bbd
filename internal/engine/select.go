package engine

import (
	"database/sql"
	"log/slog"
	"sync"
)

var (
	probeMu      sync.Mutex
	nativeProbed bool
)

// NativeAvailable probes whether the native engine can actually run in
// this process by opening a throwaway in-memory instance. A successful
// probe is cached for the process lifetime; failures are retried on
// the next call and never propagated.
func NativeAvailable() bool {
	probeMu.Lock()
	defer probeMu.Unlock()
	if nativeProbed {
		return true
	}
	db, err := sql.Open("sqlite3", MemoryPath)
	if err != nil {
		return false
	}
	defer db.Close()
	if _, err := db.Exec("SELECT 1"); err != nil {
		// Typical under CGO_ENABLED=0: the mattn stub driver refuses
		// to open. Treated as unavailable, not as an error.
		return false
	}
	nativeProbed = true
	return true
}

// SelectBackend decides which adapter to construct for the given
// preference. Explicit preferences are honored only when the probe
// agrees; otherwise the WASM backend substitutes and the substitution
// is logged.
func SelectBackend(pref Preference, logger *slog.Logger) Kind {
	if logger == nil {
		logger = slog.Default()
	}
	switch pref {
	case PreferenceWASM:
		return KindWASM
	case PreferenceNative:
		if NativeAvailable() {
			return KindNative
		}
		logger.Warn("native engine unavailable, substituting wasm backend", "preference", pref)
		return KindWASM
	default:
		if NativeAvailable() {
			return KindNative
		}
		return KindWASM
	}
}
