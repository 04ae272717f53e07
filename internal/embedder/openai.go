// Package embedder implements rag.Embedder against remote embedding APIs:
// Ollama and OpenAI/Azure OpenAI over plain HTTP, and Gemini through the
// genai SDK. Backends are selected from the environment by NewFromEnv.
package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OpenAIEmbedder implements rag.Embedder using the OpenAI (or Azure OpenAI)
// embeddings REST API. It is safe for concurrent use.
type OpenAIEmbedder struct {
	// baseURL is the API base (e.g. "https://api.openai.com/v1" or an Azure endpoint).
	baseURL string
	// apiKey is the Bearer token (OpenAI) or api-key header value (Azure).
	apiKey string
	model  string
	// dimensions is the requested vector length (0 = model default).
	dimensions int
	// azure selects the api-key header and deployment-scoped URL.
	azure      bool
	apiVersion string
	client     *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is "https://api.openai.com/v1" for OpenAI or
	// "https://<resource>.openai.azure.com/openai" for Azure.
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model (the deployment name on Azure).
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode.
	Azure bool
	// APIVersion is the Azure api-version query parameter.
	APIVersion string
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(cfg *OpenAIConfig) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// endpoint returns the embeddings URL for the configured mode.
func (e *OpenAIEmbedder) endpoint() string {
	if e.azure {
		return e.baseURL + "/deployments/" + url.PathEscape(e.model) +
			"/embeddings?api-version=" + url.QueryEscape(e.apiVersion)
	}
	return e.baseURL + "/embeddings"
}

// Embed converts a batch of texts into embeddings, parallel to texts.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	header := http.Header{}
	if e.azure {
		header.Set("api-key", e.apiKey)
	} else {
		header.Set("Authorization", "Bearer "+e.apiKey)
	}

	raw, code, err := postJSON(ctx, e.client, e.endpoint(), openaiEmbedRequest{
		Input:      texts,
		Model:      e.model,
		Dimensions: e.dimensions,
	}, header)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	var result openaiEmbedResponse
	decodeErr := json.Unmarshal(raw, &result)
	if !ok(code) {
		detail := string(raw)
		if decodeErr == nil && result.Error != nil {
			detail = result.Error.Message
		}
		return nil, fmt.Errorf("openai embedder: %w", statusError(code, detail))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("openai embedder: decode response: %w", decodeErr)
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// Data may arrive out of order.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
