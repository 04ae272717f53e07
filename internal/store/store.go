// Package store persists pipeline state that is not part of the vector
// index: conversation history for server sessions and the ledger of
// documents already indexed into each collection. Both live in one SQLite
// database, <persist_dir>/state.db by default.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// FileName is the database file created inside the persist directory.
const FileName = "state.db"

// ConversationStore persists session history. Implementations must be safe
// for concurrent use.
type ConversationStore interface {
	// Append persists one turn for the session.
	Append(ctx context.Context, sessionID string, turn rag.Turn) error
	// History returns the most recent n turns of the session, oldest first.
	// A non-positive n returns every turn.
	History(ctx context.Context, sessionID string, n int) ([]rag.Turn, error)
	// Close releases any resources held by the store.
	Close() error
}

// DocumentRecord is one ledger entry.
type DocumentRecord struct {
	// Collection is the index collection the document was added to.
	Collection string
	// DocumentID is the SHA-256 of the document text.
	DocumentID string
	// SourcePath is the path the document was loaded from.
	SourcePath string
	// Chunks is the number of chunks indexed.
	Chunks int
	// IndexedAt is when the record was written.
	IndexedAt time.Time
}

// SQLiteStore implements ConversationStore and the document ledger.
type SQLiteStore struct {
	db *sql.DB
}

// PathIn returns the state database path inside persistDir, creating the
// directory if needed.
func PathIn(persistDir string) (string, error) {
	if err := os.MkdirAll(persistDir, 0o755); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", persistDir, err)
	}
	return filepath.Join(persistDir, FileName), nil
}

// Open opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session      TEXT    NOT NULL,
    role         TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content      TEXT    NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_conversations_session ON conversations (session, id);

CREATE TABLE IF NOT EXISTS documents (
    collection   TEXT    NOT NULL,
    document_id  TEXT    NOT NULL,
    source_path  TEXT    NOT NULL,
    chunks       INTEGER NOT NULL,
    indexed_at   INTEGER NOT NULL,
    PRIMARY KEY (collection, document_id)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single turn for the session.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turn rag.Turn) error {
	const q = `INSERT INTO conversations (session, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, sessionID, string(turn.Role), turn.Content, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// History returns the most recent n turns for the session, oldest first.
func (s *SQLiteStore) History(ctx context.Context, sessionID string, n int) ([]rag.Turn, error) {
	if n <= 0 {
		n = -1 // SQLite: no limit
	}
	const q = `
SELECT role, content FROM (
    SELECT id, role, content
    FROM   conversations
    WHERE  session = ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("store: history: %w", err)
	}
	defer rows.Close()

	var turns []rag.Turn
	for rows.Next() {
		var t rag.Turn
		var role string
		if err := rows.Scan(&role, &t.Content); err != nil {
			return nil, fmt.Errorf("store: history scan: %w", err)
		}
		t.Role = rag.Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: history rows: %w", err)
	}
	return turns, nil
}

// Indexed reports whether documentID is recorded for collection.
func (s *SQLiteStore) Indexed(ctx context.Context, collection, documentID string) (bool, error) {
	const q = `SELECT 1 FROM documents WHERE collection = ? AND document_id = ?`
	var one int
	err := s.db.QueryRowContext(ctx, q, collection, documentID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("store: indexed: %w", err)
	}
	return true, nil
}

// Record writes or replaces a ledger entry. A zero IndexedAt is set to now.
func (s *SQLiteStore) Record(ctx context.Context, rec DocumentRecord) error {
	if rec.IndexedAt.IsZero() {
		rec.IndexedAt = time.Now()
	}
	const q = `
INSERT INTO documents (collection, document_id, source_path, chunks, indexed_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (collection, document_id) DO UPDATE SET
    source_path = excluded.source_path,
    chunks      = excluded.chunks,
    indexed_at  = excluded.indexed_at`
	if _, err := s.db.ExecContext(ctx, q, rec.Collection, rec.DocumentID, rec.SourcePath, rec.Chunks, rec.IndexedAt.Unix()); err != nil {
		return fmt.Errorf("store: record: %w", err)
	}
	return nil
}

// Documents lists the ledger entries of collection, oldest first.
func (s *SQLiteStore) Documents(ctx context.Context, collection string) ([]DocumentRecord, error) {
	const q = `
SELECT collection, document_id, source_path, chunks, indexed_at
FROM   documents
WHERE  collection = ?
ORDER  BY indexed_at ASC, rowid ASC`
	rows, err := s.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, fmt.Errorf("store: documents: %w", err)
	}
	defer rows.Close()

	var out []DocumentRecord
	for rows.Next() {
		var r DocumentRecord
		var ts int64
		if err := rows.Scan(&r.Collection, &r.DocumentID, &r.SourcePath, &r.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("store: documents scan: %w", err)
		}
		r.IndexedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: documents rows: %w", err)
	}
	return out, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
