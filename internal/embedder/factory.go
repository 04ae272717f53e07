package embedder

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768
)

// Backend returns the effective embedding backend: EMBEDDING_PROVIDER, then
// MODEL_PROVIDER, then "ollama".
func Backend() string {
	if b := os.Getenv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	return config.GetEnvOrDefault("MODEL_PROVIDER", "ollama")
}

// DefaultDimensions returns the vector size produced by the default model of
// backend. The Qdrant store needs it to create its collection.
// EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := config.GetEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// NewFromEnv constructs a rag.Embedder. Settings not given explicitly for
// embeddings are inherited from the chat provider configuration:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER (default: ollama)
//  2. EMBEDDING_MODEL overrides the backend's default model
//  3. EMBEDDING_API_KEY overrides the inherited API key
//  4. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  5. EMBEDDING_DIMENSIONS requests a vector size (openai, azure)
func NewFromEnv(ctx context.Context) (rag.Embedder, error) {
	switch backend := Backend(); backend {
	case "ollama":
		host := firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"),
			config.GetEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"))
		return NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: config.GetEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		}), nil

	case "openai":
		apiKey := firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), "https://api.openai.com/v1"),
			APIKey:     apiKey,
			Model:      config.GetEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.GetEnvInt("EMBEDDING_DIMENSIONS", 0),
		}), nil

	case "azure":
		apiKey := firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("AZURE_OPENAI_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), os.Getenv("AZURE_OPENAI_ENDPOINT"))
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      config.GetEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: config.GetEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: config.GetEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview"),
		}), nil

	case "gemini":
		apiKey := firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("GOOGLE_API_KEY"))
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: gemini requires GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
		g, err := NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey: apiKey,
			Model:  config.GetEnvOrDefault("EMBEDDING_MODEL", defaultGeminiModel),
		})
		if err != nil {
			return nil, err
		}
		return g, nil

	case "bedrock":
		return nil, fmt.Errorf("embedder: bedrock has no embedding backend; set EMBEDDING_PROVIDER to ollama, openai, azure or gemini")

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid: ollama, openai, azure, gemini)", backend)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
