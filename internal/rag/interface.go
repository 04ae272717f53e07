// Package rag defines the data model and the retrieval components of the
// pipeline: documents, chunks, enriched chunks, conversation turns, the
// embedding and vector storage interfaces, and the [Indexer] that ties them
// together. Concrete stores (memory, SQLite, Qdrant) satisfy [VectorStore] so
// the pipeline never depends on a specific backend.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Document is the full extracted text of one PDF. Immutable once built.
type Document struct {
	// ID is the hex SHA-256 of RawText; identical content yields identical IDs.
	ID string

	// SourcePath is the filesystem path the text was extracted from.
	SourcePath string

	// RawText is the plain text extracted from every page, in page order.
	RawText string
}

// NewDocument builds a Document, deriving its ID from the text content.
func NewDocument(sourcePath, rawText string) Document {
	sum := sha256.Sum256([]byte(rawText))
	return Document{
		ID:         hex.EncodeToString(sum[:]),
		SourcePath: sourcePath,
		RawText:    rawText,
	}
}

// Chunk is a contiguous, bounded-length slice of a document's text.
type Chunk struct {
	// Index is the chunk's position within its document, starting at 0.
	Index int

	// Text is the chunk content. Never empty or whitespace-only.
	Text string

	// SourcePath is inherited from the parent document.
	SourcePath string

	// DocumentID is the parent document's ID.
	DocumentID string

	// Offset is the rune offset of Text's first rune in the document.
	Offset int
}

// EnrichedChunk is a chunk paired with the text that gets embedded.
// Similarity is always computed over IndexedText while answer context is
// always built from Chunk.Text.
type EnrichedChunk struct {
	// Chunk is the original chunk.
	Chunk Chunk

	// ContextSummary is the generated situating summary, or a fixed sentinel
	// when enrichment failed. Empty for the simple variant.
	ContextSummary string

	// IndexedText is the string passed to the embedder.
	IndexedText string

	// Enriched reports whether ContextSummary came from a successful call.
	Enriched bool
}

// Plain wraps a chunk without enrichment; IndexedText equals the chunk text.
func Plain(c Chunk) EnrichedChunk {
	return EnrichedChunk{Chunk: c, IndexedText: c.Text}
}

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a question asked by the user.
	RoleUser Role = "user"
	// RoleAssistant is an answer produced by the pipeline.
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a session's conversation history.
type Turn struct {
	// Role is the author of the turn.
	Role Role
	// Content is the turn's text.
	Content string
}

// SearchResult is one retrieved chunk with its similarity score.
type SearchResult struct {
	// Chunk is the stored enriched chunk, including its original text.
	Chunk EnrichedChunk
	// Score is the cosine similarity to the query; higher is more similar.
	Score float32
}

// Record is the unit persisted by a VectorStore.
type Record struct {
	// ID is the deterministic point ID, see [PointID].
	ID string
	// Vector is the embedding of Chunk.IndexedText.
	Vector []float32
	// Chunk is stored alongside the vector so search results carry the
	// original text, summary and provenance.
	Chunk EnrichedChunk
}

// VectorStore persists records and performs nearest-neighbour search.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores a batch of records, replacing any with the same ID in
	// place so insertion order is preserved.
	Upsert(ctx context.Context, records []Record) error

	// Search returns at most topK results ordered by descending score. The
	// in-process stores break ties by insertion order; QdrantStore returns
	// ties in the order the server reports them. An empty store yields an
	// empty slice.
	Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error)

	// Delete removes records by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
