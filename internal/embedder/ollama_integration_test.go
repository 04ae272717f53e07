//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestOllamaEmbedder_Integration calls a locally running Ollama.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Context: A treaty overview.\n\nContent: The treaty was signed in 1648.",
		"Context: Recipe notes.\n\nContent: Whisk the eggs before adding flour.",
	}

	embeddings, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and the model is pulled:\n  ollama pull %s", err, model)
	}
	if len(embeddings) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	for i, vec := range embeddings {
		if len(vec) == 0 {
			t.Errorf("embedding[%d] is empty", i)
		}
	}
	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d for a Qdrant collection)", model, len(embeddings[0]), len(embeddings[0]))
}
