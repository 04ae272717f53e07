package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OllamaEmbedder implements rag.Embedder using the Ollama /api/embed endpoint.
// It is safe for concurrent use.
type OllamaEmbedder struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the embedding model name (e.g. "nomic-embed-text").
	model  string
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL.
	Host string
	// Model is the embedding model name.
	Model string
}

// NewOllamaEmbedder constructs an OllamaEmbedder from the given config.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	return &OllamaEmbedder{
		host:   cfg.Host,
		model:  cfg.Model,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts a batch of texts into embeddings, parallel to texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	raw, code, err := postJSON(ctx, e.client, e.host+"/api/embed",
		ollamaEmbedRequest{Model: e.model, Input: texts}, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}

	var result ollamaEmbedResponse
	decodeErr := json.Unmarshal(raw, &result)
	if !ok(code) {
		detail := result.Error
		if decodeErr != nil {
			detail = string(raw)
		}
		return nil, fmt.Errorf("ollama embedder: %w", statusError(code, detail))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", decodeErr)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
