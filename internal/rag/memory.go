package rag

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is an in-process VectorStore using brute-force cosine search.
// Contents are lost when the process exits.
type MemoryStore struct {
	// mu guards records and pos.
	mu sync.RWMutex
	// records holds stored records in insertion order.
	records []Record
	// pos maps record ID to its index in records.
	pos map[string]int
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pos: make(map[string]int)}
}

// Upsert implements VectorStore.
func (m *MemoryStore) Upsert(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		if i, ok := m.pos[r.ID]; ok {
			m.records[i] = r
			continue
		}
		m.pos[r.ID] = len(m.records)
		m.records = append(m.records, r)
	}
	return nil
}

// Search implements VectorStore.
func (m *MemoryStore) Search(_ context.Context, query []float32, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	results := make([]SearchResult, 0, len(m.records))
	for _, r := range m.records {
		results = append(results, SearchResult{Chunk: r.Chunk, Score: Cosine(query, r.Vector)})
	}
	m.mu.RUnlock()
	return topResults(results, topK), nil
}

// Delete implements VectorStore.
func (m *MemoryStore) Delete(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := m.records[:0]
	for _, r := range m.records {
		if !drop[r.ID] {
			kept = append(kept, r)
		}
	}
	m.records = kept
	m.pos = make(map[string]int, len(kept))
	for i, r := range kept {
		m.pos[r.ID] = i
	}
	return nil
}

// Count implements VectorStore.
func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Close implements VectorStore.
func (m *MemoryStore) Close() error { return nil }

// topResults stable-sorts results by descending score and truncates to k.
// results must be in insertion order so ties resolve to the earlier record.
func topResults(results []SearchResult, k int) []SearchResult {
	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results
}
