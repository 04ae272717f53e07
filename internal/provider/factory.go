package provider

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/pdfrag-go/internal/config"
)

// defaultTimeout bounds a single generation call when MODEL_TIMEOUT_SECONDS
// is not set.
const defaultTimeout = 60 * time.Second

// ConfigFromEnv resolves provider configuration from environment variables.
// MODEL_PROVIDER selects the backend; each provider uses its own native
// credential env vars.
//
// Environment variables:
//
//	MODEL_PROVIDER              = ollama | openai | azure | bedrock | gemini (default: ollama)
//
//	Ollama:  OLLAMA_HOST (default: http://localhost:11434), OLLAMA_MODEL (default: llama3)
//	OpenAI:  OPENAI_API_KEY, OPENAI_MODEL (default: gpt-4o)
//	Azure:   AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_DEPLOYMENT,
//	         AZURE_OPENAI_API_VERSION (default: 2024-02-01)
//	Bedrock: AWS_REGION (default: us-east-1), BEDROCK_MODEL_ID
//	Gemini:  GOOGLE_API_KEY, GEMINI_MODEL (default: gemini-1.5-pro)
//
//	Shared:  MODEL_MAX_TOKENS (default: 1024), MODEL_TIMEOUT_SECONDS (default: 60)
func ConfigFromEnv() *Config {
	return &Config{
		Backend: Backend(config.GetEnvOrDefault("MODEL_PROVIDER", string(BackendOllama))),
		Ollama: ProviderOllama{
			Host:  config.GetEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"),
			Model: config.GetEnvOrDefault("OLLAMA_MODEL", "llama3"),
		},
		OpenAI: ProviderOpenAI{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  config.GetEnvOrDefault("OPENAI_MODEL", "gpt-4o"),
		},
		AzureOpenAI: ProviderAzureOpenAI{
			APIKey:     os.Getenv("AZURE_OPENAI_API_KEY"),
			Endpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
			Deployment: os.Getenv("AZURE_OPENAI_DEPLOYMENT"),
			APIVersion: config.GetEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		},
		Bedrock: ProviderBedrock{
			AWSRegion: config.GetEnvOrDefault("AWS_REGION", "us-east-1"),
			ModelID:   os.Getenv("BEDROCK_MODEL_ID"),
		},
		Gemini: ProviderGemini{
			APIKey: os.Getenv("GOOGLE_API_KEY"),
			Model:  config.GetEnvOrDefault("GEMINI_MODEL", "gemini-1.5-pro"),
		},
		Tuning: SharedTuning{
			MaxTokens:   config.GetEnvInt("MODEL_MAX_TOKENS", 1024),
			Temperature: 0,
			Timeout:     time.Duration(config.GetEnvInt("MODEL_TIMEOUT_SECONDS", int(defaultTimeout/time.Second))) * time.Second,
		},
	}
}

// NewFromEnv builds a [ChatGenerator] from environment configuration.
func NewFromEnv(ctx context.Context) (*ChatGenerator, error) {
	cfg := ConfigFromEnv()
	m, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewChatGenerator(m, cfg), nil
}

// New constructs a chat model from an explicit Config, delegating to the
// appropriate backend factory function. It validates the config first so
// callers get a clear error at startup rather than on the first request.
func New(ctx context.Context, cfg *Config) (model.BaseChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendOllama:
		return newOllama(ctx, cfg)
	case BackendOpenAI:
		return newOpenAI(ctx, cfg)
	case BackendAzure:
		return newAzure(ctx, cfg)
	case BackendBedrock:
		return newBedrock(ctx, cfg)
	case BackendGemini:
		return newGemini(ctx, cfg)
	default:
		return nil, fmt.Errorf("provider: unknown backend %q", cfg.Backend)
	}
}
