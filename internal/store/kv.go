package store

import (
	"context"

	"github.com/kittclouds/lodestone/internal/engine"
)

// KVStore is the index_state table: small string facts the indexer and
// stores need across restarts (schema markers, vector dimension, sync
// cursors).
type KVStore struct {
	br *engine.Bridge
}

func NewKVStore(br *engine.Bridge) *KVStore {
	return &KVStore{br: br}
}

// Get returns the value for key, or "" when absent.
func (k *KVStore) Get(ctx context.Context, key string) (string, error) {
	row, err := k.br.QueryRow(ctx,
		"SELECT value FROM index_state WHERE key = ?", key)
	if err != nil {
		return "", err
	}
	if row == nil {
		return "", nil
	}
	return str(row, "value"), nil
}

// Set writes key to value, overwriting any previous value.
func (k *KVStore) Set(ctx context.Context, key, value string) error {
	_, err := k.br.Execute(ctx, `
		INSERT INTO index_state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// Delete removes a key. Deleting a missing key is not an error.
func (k *KVStore) Delete(ctx context.Context, key string) error {
	_, err := k.br.Execute(ctx, "DELETE FROM index_state WHERE key = ?", key)
	return err
}

// Keys lists stored keys with the given prefix, sorted. An empty
// prefix lists everything.
func (k *KVStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := k.br.Query(ctx,
		"SELECT key FROM index_state WHERE key LIKE ? ORDER BY key",
		prefix+"%")
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, str(row, "key"))
	}
	return out, nil
}
