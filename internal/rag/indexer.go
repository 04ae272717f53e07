package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 32

// DefaultTopK is used when Search is called with k <= 0.
const DefaultTopK = 3

// ErrNilDependency is returned by NewIndexer when the embedder or store is nil.
var ErrNilDependency = errors.New("rag: embedder and store must not be nil")

// pointNamespace scopes the deterministic point IDs.
var pointNamespace = uuid.MustParse("6f1d7c52-3a0e-4c8b-9a53-1b0f5e2d7a41")

// PointID returns a UUIDv5 over (collection, document ID, chunk index).
// Re-indexing the same chunk into the same collection yields the same ID, so
// an upsert replaces instead of duplicating.
func PointID(collection, documentID string, index int) string {
	name := collection + "\x00" + documentID + "\x00" + strconv.Itoa(index)
	return uuid.NewSHA1(pointNamespace, []byte(name)).String()
}

// Indexer embeds enriched chunks and answers similarity queries against a
// VectorStore.
type Indexer struct {
	// embedder converts indexed text and queries to vectors.
	embedder Embedder

	// store persists vectors and performs the similarity search.
	store VectorStore

	// collection scopes point IDs so the simple and contextual variants
	// never overwrite each other.
	collection string

	// batchSize is the number of texts per Embed call.
	batchSize int
}

// NewIndexer constructs an Indexer. collection may be empty.
func NewIndexer(embedder Embedder, store VectorStore, collection string) (*Indexer, error) {
	if embedder == nil || store == nil {
		return nil, ErrNilDependency
	}
	return &Indexer{
		embedder:   embedder,
		store:      store,
		collection: collection,
		batchSize:  DefaultBatchSize,
	}, nil
}

// Add embeds each chunk's IndexedText and upserts it with full metadata.
// Chunks are processed in batches; an error aborts the remaining batches and
// is returned wrapped.
func (ix *Indexer) Add(ctx context.Context, chunks []EnrichedChunk) error {
	log := logging.FromContext(ctx)
	for start := 0; start < len(chunks); start += ix.batchSize {
		end := min(start+ix.batchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.IndexedText
		}

		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("rag: embedding batch %d-%d failed: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("rag: embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}

		records := make([]Record, len(batch))
		for i, c := range batch {
			records[i] = Record{
				ID:     PointID(ix.collection, c.Chunk.DocumentID, c.Chunk.Index),
				Vector: vectors[i],
				Chunk:  c,
			}
		}
		if err := ix.store.Upsert(ctx, records); err != nil {
			return fmt.Errorf("rag: upsert batch %d-%d failed: %w", start, end, err)
		}
		log.Debug("rag: indexed batch", "collection", ix.collection, "from", start, "to", end)
	}
	return nil
}

// Search embeds query and returns the k most similar stored chunks in
// descending score order. If k <= 0, DefaultTopK is used.
func (ix *Indexer) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	results, err := ix.store.Search(ctx, vectors[0], k)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return results, nil
}

// Count reports how many chunks the underlying store holds.
func (ix *Indexer) Count(ctx context.Context) (int, error) {
	return ix.store.Count(ctx)
}

// Cosine returns the cosine similarity of a and b. Mismatched lengths or a
// zero-magnitude vector yield 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
