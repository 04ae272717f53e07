package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// Payload keys written for every point.
const (
	payloadText        = "text"
	payloadSummary     = "summary"
	payloadIndexedText = "indexed_text"
	payloadEnriched    = "enriched"
	payloadSource      = "source_path"
	payloadDocumentID  = "document_id"
	payloadChunkIndex  = "chunk_index"
	payloadOffset      = "offset"
)

// QdrantStore implements VectorStore backed by a Qdrant instance.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary).
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	return store, nil
}

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// Upsert implements VectorStore.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(records))
	for _, r := range records {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(r.ID),
			Vectors: qdrant.NewVectorsDense(r.Vector),
			Payload: qdrant.NewValueMap(chunkPayload(r.Chunk)),
		})
	}

	wait := true
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search implements VectorStore. Equal scores come back in Qdrant's order,
// not insertion order.
func (s *QdrantStore) Search(ctx context.Context, query []float32, topK int) ([]SearchResult, error) {
	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	results := make([]SearchResult, 0, len(points))
	for _, p := range points {
		results = append(results, SearchResult{
			Chunk: chunkFromPayload(p.Payload),
			Score: p.Score,
		})
	}

	return results, nil
}

// Delete implements VectorStore.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Count implements VectorStore.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exact := true
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count failed: %w", err)
	}
	return int(n), nil
}

// Client returns the underlying gRPC client, e.g. for health probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// chunkPayload flattens an enriched chunk into a Qdrant payload map.
func chunkPayload(c EnrichedChunk) map[string]any {
	return map[string]any{
		payloadText:        c.Chunk.Text,
		payloadSummary:     c.ContextSummary,
		payloadIndexedText: c.IndexedText,
		payloadEnriched:    c.Enriched,
		payloadSource:      c.Chunk.SourcePath,
		payloadDocumentID:  c.Chunk.DocumentID,
		payloadChunkIndex:  int64(c.Chunk.Index),
		payloadOffset:      int64(c.Chunk.Offset),
	}
}

// chunkFromPayload is the inverse of chunkPayload. Missing keys leave zero values.
func chunkFromPayload(p map[string]*qdrant.Value) EnrichedChunk {
	var c EnrichedChunk
	if p == nil {
		return c
	}
	c.Chunk.Text = p[payloadText].GetStringValue()
	c.ContextSummary = p[payloadSummary].GetStringValue()
	c.IndexedText = p[payloadIndexedText].GetStringValue()
	c.Enriched = p[payloadEnriched].GetBoolValue()
	c.Chunk.SourcePath = p[payloadSource].GetStringValue()
	c.Chunk.DocumentID = p[payloadDocumentID].GetStringValue()
	c.Chunk.Index = int(p[payloadChunkIndex].GetIntegerValue())
	c.Chunk.Offset = int(p[payloadOffset].GetIntegerValue())
	return c
}
