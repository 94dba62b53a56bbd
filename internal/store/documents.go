package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/kittclouds/lodestone/internal/engine"
)

// ErrVectorDisabled is returned by similarity operations when the
// active engine has no vector extension. Capability checks should use
// IsVectorEnabled instead of provoking this error.
var ErrVectorDisabled = errors.New("store: vector search is not available on this backend")

// ErrDimensionMismatch is returned when an embedding's dimensionality
// disagrees with the one the vector table was created with.
var ErrDimensionMismatch = errors.New("store: embedding dimension does not match vector table")

const vecDimKey = "vector_dim"

// DocumentStore persists documents, their content chunks, chunk
// embeddings, and the derived search indexes. The vec0 virtual table
// is created lazily on the first embedding write because its dimension
// is only known then.
type DocumentStore struct {
	br     *engine.Bridge
	kv     *KVStore
	fts    bool
	logger *slog.Logger

	vecMu    sync.Mutex
	vecDim   int
	vecReady bool
}

func NewDocumentStore(br *engine.Bridge, kv *KVStore, ftsEnabled bool) *DocumentStore {
	return &DocumentStore{
		br:     br,
		kv:     kv,
		fts:    ftsEnabled,
		logger: slog.Default().With("component", "docstore"),
	}
}

// IsVectorEnabled reports whether similarity search can work here.
func (d *DocumentStore) IsVectorEnabled() bool {
	return d.br.Engine().VectorEnabled()
}

// UpsertDocument inserts or updates document metadata.
func (d *DocumentStore) UpsertDocument(ctx context.Context, doc *Document) error {
	now := nowMillis()
	if doc.CreatedAt == 0 {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	_, err := d.br.Execute(ctx, `
		INSERT INTO documents (id, path, title, content_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`, doc.ID, doc.Path, doc.Title, doc.ContentHash, doc.CreatedAt, doc.UpdatedAt)
	return err
}

// GetDocument retrieves document metadata, or nil when absent.
func (d *DocumentStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	row, err := d.br.QueryRow(ctx, `
		SELECT id, path, title, content_hash, created_at, updated_at
		FROM documents WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &Document{
		ID:          str(row, "id"),
		Path:        str(row, "path"),
		Title:       str(row, "title"),
		ContentHash: str(row, "content_hash"),
		CreatedAt:   i64(row, "created_at"),
		UpdatedAt:   i64(row, "updated_at"),
	}, nil
}

// DeleteDocument removes a document with its chunks, embeddings, and
// index rows, atomically.
func (d *DocumentStore) DeleteDocument(ctx context.Context, id string) error {
	return d.br.WithTx(ctx, func() error {
		if err := d.deleteChunkData(ctx, id); err != nil {
			return err
		}
		_, err := d.br.Execute(ctx, "DELETE FROM documents WHERE id = ?", id)
		return err
	})
}

// ReplaceChunks swaps a document's chunks for a new sequence. Old
// chunks, their embeddings, and their index rows go away; the new set
// comes in with fresh sequential ids. Runs in one transaction.
func (d *DocumentStore) ReplaceChunks(ctx context.Context, docID string, contents []string) ([]*Chunk, error) {
	now := nowMillis()
	chunks := make([]*Chunk, 0, len(contents))

	err := d.br.WithTx(ctx, func() error {
		if err := d.deleteChunkData(ctx, docID); err != nil {
			return err
		}
		for seq, content := range contents {
			c := &Chunk{
				ID:         docID + ":" + strconv.Itoa(seq),
				DocumentID: docID,
				Seq:        int64(seq),
				Content:    content,
				CreatedAt:  now,
			}
			if _, err := d.br.Execute(ctx, `
				INSERT INTO chunks (id, document_id, seq, content, created_at)
				VALUES (?, ?, ?, ?, ?)
			`, c.ID, c.DocumentID, c.Seq, c.Content, c.CreatedAt); err != nil {
				return err
			}
			if d.fts {
				if _, err := d.br.Execute(ctx,
					"INSERT INTO chunks_fts (chunk_id, content) VALUES (?, ?)",
					c.ID, c.Content); err != nil {
					return err
				}
			}
			chunks = append(chunks, c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// deleteChunkData clears everything derived from a document's chunks.
// Caller supplies the transaction.
func (d *DocumentStore) deleteChunkData(ctx context.Context, docID string) error {
	if d.fts {
		if _, err := d.br.Execute(ctx,
			"DELETE FROM chunks_fts WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)",
			docID); err != nil {
			return err
		}
	}
	if d.vectorTableExists(ctx) {
		if _, err := d.br.Execute(ctx, `
			DELETE FROM chunk_vectors WHERE rowid IN (
				SELECT rowid FROM chunks WHERE document_id = ?
			)`, docID); err != nil {
			return err
		}
	}
	if _, err := d.br.Execute(ctx,
		"DELETE FROM embeddings WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)",
		docID); err != nil {
		return err
	}
	_, err := d.br.Execute(ctx, "DELETE FROM chunks WHERE document_id = ?", docID)
	return err
}

// GetChunks returns a document's chunks in sequence order.
func (d *DocumentStore) GetChunks(ctx context.Context, docID string) ([]*Chunk, error) {
	rows, err := d.br.Query(ctx, `
		SELECT id, document_id, seq, content, created_at
		FROM chunks WHERE document_id = ? ORDER BY seq
	`, docID)
	if err != nil {
		return nil, err
	}
	return chunksFromRows(rows), nil
}

// SearchChunks runs a text search over chunk content: FTS5 MATCH when
// the virtual table came up, otherwise a LIKE scan so search still
// works, just slower.
func (d *DocumentStore) SearchChunks(ctx context.Context, query string, limit int) ([]*Chunk, error) {
	if limit <= 0 {
		limit = 20
	}
	if d.fts {
		rows, err := d.br.Query(ctx, `
			SELECT c.id, c.document_id, c.seq, c.content, c.created_at
			FROM chunks_fts JOIN chunks c ON c.id = chunks_fts.chunk_id
			WHERE chunks_fts MATCH ? ORDER BY chunks_fts.rank LIMIT ?
		`, query, int64(limit))
		if err == nil {
			return chunksFromRows(rows), nil
		}
		// Malformed MATCH syntax falls through to the scan.
		d.logger.Warn("fts query failed, falling back to scan", "error", err)
	}
	rows, err := d.br.Query(ctx, `
		SELECT id, document_id, seq, content, created_at
		FROM chunks WHERE content LIKE ? ORDER BY document_id, seq LIMIT ?
	`, "%"+query+"%", int64(limit))
	if err != nil {
		return nil, err
	}
	return chunksFromRows(rows), nil
}

// PutEmbedding stores a chunk's embedding vector. The first write
// fixes the dimension and creates the vec0 table; later writes must
// match it. On a backend without the vector extension only the plain
// embeddings table is written, so vectors survive a round-trip through
// the portable backend.
func (d *DocumentStore) PutEmbedding(ctx context.Context, chunkID string, vec []float32) error {
	if len(vec) == 0 {
		return fmt.Errorf("store: empty embedding for chunk %s", chunkID)
	}
	data := encodeVector(vec)

	_, err := d.br.Execute(ctx, `
		INSERT INTO embeddings (chunk_id, dim, vector, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			dim = excluded.dim,
			vector = excluded.vector,
			created_at = excluded.created_at
	`, chunkID, int64(len(vec)), data, nowMillis())
	if err != nil {
		return err
	}

	if !d.IsVectorEnabled() {
		return nil
	}
	if err := d.ensureVectorTable(ctx, len(vec)); err != nil {
		return err
	}

	// vec0 tables have no upsert; delete then insert, keyed on the
	// chunk's rowid so KNN results join back cheaply.
	row, err := d.br.QueryRow(ctx, "SELECT rowid FROM chunks WHERE id = ?", chunkID)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("store: embedding for unknown chunk %s", chunkID)
	}
	rowid := i64(row, "rowid")
	if _, err := d.br.Execute(ctx,
		"DELETE FROM chunk_vectors WHERE rowid = ?", rowid); err != nil {
		return err
	}
	_, err = d.br.Execute(ctx,
		"INSERT INTO chunk_vectors (rowid, embedding, chunk_id) VALUES (?, ?, ?)",
		rowid, data, chunkID)
	return err
}

// GetEmbedding retrieves a stored vector, or nil when absent.
func (d *DocumentStore) GetEmbedding(ctx context.Context, chunkID string) ([]float32, error) {
	row, err := d.br.QueryRow(ctx,
		"SELECT dim, vector FROM embeddings WHERE chunk_id = ?", chunkID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return decodeVector(blob(row, "vector"), int(i64(row, "dim")))
}

// SimilarChunk pairs a chunk with its KNN distance.
type SimilarChunk struct {
	Chunk    *Chunk
	Distance float64
}

// SimilarChunks runs a KNN query against the vec0 table. On a backend
// without the vector extension it fails fast with ErrVectorDisabled.
func (d *DocumentStore) SimilarChunks(ctx context.Context, vec []float32, limit int) ([]*SimilarChunk, error) {
	if !d.IsVectorEnabled() {
		return nil, ErrVectorDisabled
	}
	if limit <= 0 {
		limit = 10
	}
	if !d.vectorTableExists(ctx) {
		return nil, nil
	}

	rows, err := d.br.Query(ctx, `
		SELECT v.chunk_id, v.distance, c.id, c.document_id, c.seq, c.content, c.created_at
		FROM (
			SELECT chunk_id, distance FROM chunk_vectors
			WHERE embedding MATCH ? AND k = ?
		) v JOIN chunks c ON c.id = v.chunk_id
		ORDER BY v.distance
	`, encodeVector(vec), int64(limit))
	if err != nil {
		return nil, err
	}

	out := make([]*SimilarChunk, 0, len(rows))
	for _, row := range rows {
		out = append(out, &SimilarChunk{
			Chunk: &Chunk{
				ID:         str(row, "id"),
				DocumentID: str(row, "document_id"),
				Seq:        i64(row, "seq"),
				Content:    str(row, "content"),
				CreatedAt:  i64(row, "created_at"),
			},
			Distance: f64(row, "distance"),
		})
	}
	return out, nil
}

// ensureVectorTable creates the vec0 virtual table on first use with
// the observed dimension, recorded in index_state so later opens and
// writes can verify it.
func (d *DocumentStore) ensureVectorTable(ctx context.Context, dim int) error {
	d.vecMu.Lock()
	defer d.vecMu.Unlock()

	if d.vecReady {
		if dim != d.vecDim {
			return fmt.Errorf("%w: have %d, got %d", ErrDimensionMismatch, d.vecDim, dim)
		}
		return nil
	}

	stored, err := d.kv.Get(ctx, vecDimKey)
	if err != nil {
		return err
	}
	if stored != "" {
		storedDim, err := strconv.Atoi(stored)
		if err == nil && storedDim != dim {
			return fmt.Errorf("%w: have %d, got %d", ErrDimensionMismatch, storedDim, dim)
		}
	}

	ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(
		embedding float[%d],
		+chunk_id TEXT
	)`, dim)
	if err := d.br.Engine().Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create vector table: %w", err)
	}
	if err := d.kv.Set(ctx, vecDimKey, strconv.Itoa(dim)); err != nil {
		return err
	}
	d.vecDim = dim
	d.vecReady = true
	return nil
}

func (d *DocumentStore) vectorTableExists(ctx context.Context) bool {
	d.vecMu.Lock()
	if d.vecReady {
		d.vecMu.Unlock()
		return true
	}
	d.vecMu.Unlock()

	row, err := d.br.QueryRow(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'chunk_vectors'")
	return err == nil && row != nil
}

func chunksFromRows(rows []engine.Row) []*Chunk {
	chunks := make([]*Chunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, &Chunk{
			ID:         str(row, "id"),
			DocumentID: str(row, "document_id"),
			Seq:        i64(row, "seq"),
			Content:    str(row, "content"),
			CreatedAt:  i64(row, "created_at"),
		})
	}
	return chunks
}

// encodeVector packs float32s little-endian, the layout sqlite-vec
// reads natively.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte, dim int) ([]float32, error) {
	if len(data) != dim*4 {
		return nil, fmt.Errorf("store: vector blob is %d bytes, want %d", len(data), dim*4)
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
