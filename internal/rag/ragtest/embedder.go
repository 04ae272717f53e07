// Package ragtest provides deterministic embedders for tests that need
// meaningful similarity without a model server.
package ragtest

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// Dim is the vector length produced by HashEmbedder.
const Dim = 256

// HashEmbedder maps each lowercased word to a bucket and counts occurrences,
// so texts sharing vocabulary have high cosine similarity.
type HashEmbedder struct {
	mu sync.Mutex
	// Calls records the batch sizes of every Embed call.
	Calls []int
	// Texts records every text embedded, in order.
	Texts []string
}

// Embed implements rag.Embedder.
func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.Calls = append(h.Calls, len(texts))
	h.Texts = append(h.Texts, texts...)
	h.mu.Unlock()

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = Vector(t)
	}
	return out, nil
}

// CallCount returns the number of Embed calls so far.
func (h *HashEmbedder) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.Calls)
}

// Vector returns the bag-of-words vector for text.
func Vector(text string) []float32 {
	v := make([]float32, Dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%Dim]++
	}
	return v
}

// ErrEmbed is returned by FailingEmbedder.
var ErrEmbed = errors.New("ragtest: embedding service unavailable")

// FailingEmbedder fails every call whose batch contains a text with Marker,
// or every call when Marker is empty.
type FailingEmbedder struct {
	HashEmbedder
	// Marker selects which batches fail.
	Marker string
}

// Embed implements rag.Embedder.
func (f *FailingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if f.Marker == "" || strings.Contains(t, f.Marker) {
			return nil, ErrEmbed
		}
	}
	return f.HashEmbedder.Embed(ctx, texts)
}
