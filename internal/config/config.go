// Package config provides layered configuration for pdfrag.
// Precedence, lowest to highest: built-in defaults → YAML file → .env file →
// process environment. Both files are applied by exporting their values as
// environment variables that are not already set, so every component reads
// plain env vars and the process environment always wins.
//
// YAML search order:
//  1. --config CLI flag (explicit path)
//  2. PDFRAG_CONFIG environment variable
//  3. ~/.pdfrag/config.yaml
//  4. ./pdfrag.yaml
//
// The .env file is read from the working directory (or PDFRAG_DOTENV).
// Missing files are not an error.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Qdrant configures the optional Qdrant vector store backend.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// RAG configures chunking, enrichment pacing, and retrieval.
	RAG RAGConfig `yaml:"rag"`

	// Server configures `pdfrag serve`.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in a response.
	MaxTokens int `yaml:"max_tokens"`
	// TimeoutSeconds bounds every single generation call.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	Ollama  OllamaConfig  `yaml:"ollama"`
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Azure   AzureConfig   `yaml:"azure"`
	Bedrock BedrockConfig `yaml:"bedrock"`
	Gemini  GeminiConfig  `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	Region  string `yaml:"region"`
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host   string `yaml:"host"`
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// RAGConfig holds the pipeline tuning knobs.
type RAGConfig struct {
	// Store selects the vector index backend: sqlite, memory, qdrant.
	Store string `yaml:"store"`
	// PersistDir is the on-disk directory for the sqlite index and state db.
	PersistDir string `yaml:"persist_dir"`
	// Collection overrides the per-variant collection name.
	Collection string `yaml:"collection"`
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the overlap between consecutive chunks in characters.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// TopK is the number of passages retrieved per question.
	TopK int `yaml:"top_k"`
	// MaxChunks caps chunks processed per document; 0 means unlimited.
	MaxChunks int `yaml:"max_chunks"`
	// CallsPerMinute is the enrichment pacing budget.
	CallsPerMinute int `yaml:"calls_per_minute"`
	// MaxRetries is the enrichment retry budget per chunk.
	MaxRetries int `yaml:"max_retries"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var PDFRAG_API_KEY.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TIMEOUT_SECONDS", func(c *Config) string { return intStr(c.Model.TimeoutSeconds) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.Model.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.Model.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"PDFRAG_STORE", func(c *Config) string { return c.RAG.Store }},
	{"PDFRAG_PERSIST_DIR", func(c *Config) string { return c.RAG.PersistDir }},
	{"PDFRAG_COLLECTION", func(c *Config) string { return c.RAG.Collection }},
	{"PDFRAG_CHUNK_SIZE", func(c *Config) string { return intStr(c.RAG.ChunkSize) }},
	{"PDFRAG_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.RAG.ChunkOverlap) }},
	{"PDFRAG_TOP_K", func(c *Config) string { return intStr(c.RAG.TopK) }},
	{"PDFRAG_MAX_CHUNKS", func(c *Config) string { return intStr(c.RAG.MaxChunks) }},
	{"PDFRAG_CALLS_PER_MINUTE", func(c *Config) string { return intStr(c.RAG.CallsPerMinute) }},
	{"PDFRAG_MAX_RETRIES", func(c *Config) string { return intStr(c.RAG.MaxRetries) }},
	{"PDFRAG_HOST", func(c *Config) string { return c.Server.Host }},
	{"PDFRAG_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"PDFRAG_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load applies the .env file and the YAML config file to the process
// environment without overwriting variables that are already set.
// Returns the YAML path that was loaded, or "" if none was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	if err := loadDotEnv(log); err != nil {
		return "", err
	}

	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// loadDotEnv reads .env (or PDFRAG_DOTENV) into the environment.
// godotenv.Load never overrides variables that are already set.
func loadDotEnv(log *slog.Logger) error {
	path := GetEnvOrDefault("PDFRAG_DOTENV", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded dotenv file", slog.String("path", path))
	return nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("PDFRAG_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".pdfrag", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("pdfrag.yaml"); err == nil {
		return "pdfrag.yaml"
	}

	return ""
}

// GetEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func GetEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func GetEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
