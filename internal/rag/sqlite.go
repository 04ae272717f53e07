package rag

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// IndexFileName is the database file created inside the persist directory.
const IndexFileName = "index.db"

// SQLiteStore is a persistent VectorStore backed by a local SQLite file.
// Vectors are stored as little-endian float32 blobs and similarity is
// computed in Go over every row of the collection. Several collections may
// share one database file.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
	// collection scopes every query to one logical index.
	collection string
}

// OpenSQLiteStore opens (or creates) the index database inside persistDir and
// binds the returned store to collection. Use ":memory:" as persistDir in tests.
func OpenSQLiteStore(persistDir, collection string) (*SQLiteStore, error) {
	path := persistDir
	if persistDir != ":memory:" {
		if err := os.MkdirAll(persistDir, 0o755); err != nil {
			return nil, fmt.Errorf("rag: sqlite: create %s: %w", persistDir, err)
		}
		path = filepath.Join(persistDir, IndexFileName)
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("rag: sqlite: open %s: %w", path, err)
	}
	// Single writer connection; also keeps ":memory:" databases alive.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, collection: collection}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id            TEXT    PRIMARY KEY,
    collection    TEXT    NOT NULL,
    document_id   TEXT    NOT NULL,
    source_path   TEXT    NOT NULL,
    chunk_index   INTEGER NOT NULL,
    char_offset   INTEGER NOT NULL,
    text          TEXT    NOT NULL,
    summary       TEXT    NOT NULL,
    indexed_text  TEXT    NOT NULL,
    enriched      INTEGER NOT NULL,
    vector        BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks (collection);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("rag: sqlite: migrate: %w", err)
	}
	return nil
}

// Upsert implements VectorStore. Conflicting IDs are updated in place, which
// keeps their original rowid and therefore their insertion order.
func (s *SQLiteStore) Upsert(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("rag: sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `
INSERT INTO chunks (id, collection, document_id, source_path, chunk_index, char_offset,
                    text, summary, indexed_text, enriched, vector)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    document_id  = excluded.document_id,
    source_path  = excluded.source_path,
    chunk_index  = excluded.chunk_index,
    char_offset  = excluded.char_offset,
    text         = excluded.text,
    summary      = excluded.summary,
    indexed_text = excluded.indexed_text,
    enriched     = excluded.enriched,
    vector       = excluded.vector`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("rag: sqlite: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		c := r.Chunk
		_, err := stmt.ExecContext(ctx,
			r.ID, s.collection, c.Chunk.DocumentID, c.Chunk.SourcePath, c.Chunk.Index, c.Chunk.Offset,
			c.Chunk.Text, c.ContextSummary, c.IndexedText, boolToInt(c.Enriched), encodeVector(r.Vector),
		)
		if err != nil {
			return fmt.Errorf("rag: sqlite: upsert %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("rag: sqlite: commit: %w", err)
	}
	return nil
}

// Search implements VectorStore.
func (s *SQLiteStore) Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error) {
	const q = `
SELECT document_id, source_path, chunk_index, char_offset, text, summary, indexed_text, enriched, vector
FROM   chunks
WHERE  collection = ?
ORDER  BY rowid ASC`

	rows, err := s.db.QueryContext(ctx, q, s.collection)
	if err != nil {
		return nil, fmt.Errorf("rag: sqlite: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			ec       EnrichedChunk
			enriched int
			blob     []byte
		)
		if err := rows.Scan(
			&ec.Chunk.DocumentID, &ec.Chunk.SourcePath, &ec.Chunk.Index, &ec.Chunk.Offset,
			&ec.Chunk.Text, &ec.ContextSummary, &ec.IndexedText, &enriched, &blob,
		); err != nil {
			return nil, fmt.Errorf("rag: sqlite: search scan: %w", err)
		}
		ec.Enriched = enriched != 0
		results = append(results, SearchResult{Chunk: ec, Score: Cosine(query, decodeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rag: sqlite: search rows: %w", err)
	}
	if results == nil {
		return []SearchResult{}, nil
	}
	return topResults(results, topK), nil
}

// Delete implements VectorStore.
func (s *SQLiteStore) Delete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ? AND collection = ?`, id, s.collection); err != nil {
			return fmt.Errorf("rag: sqlite: delete %s: %w", id, err)
		}
	}
	return nil
}

// Count implements VectorStore.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n); err != nil {
		return 0, fmt.Errorf("rag: sqlite: count: %w", err)
	}
	return n, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("rag: sqlite: close: %w", err)
	}
	return nil
}

// encodeVector serialises v as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
