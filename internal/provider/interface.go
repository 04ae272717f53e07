// Package provider selects and constructs the LLM chat backend at runtime and
// exposes it to the pipeline as a plain text [Generator].
// Supported backends: Ollama, OpenAI, Azure OpenAI, AWS Bedrock, Google Gemini.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendBedrock selects AWS Bedrock.
	BackendBedrock Backend = "bedrock"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Generator is a single-prompt text generation call. Implementations must be
// safe for concurrent use. Errors are returned as [*CallError] so callers can
// branch on [KindOf].
type Generator interface {
	// Generate sends prompt as one user message and returns the model's text.
	Generate(ctx context.Context, prompt string) (string, error)
}

// ProviderOllama holds Ollama connection settings.
type ProviderOllama struct {
	// Host is the Ollama base URL (e.g. http://localhost:11434).
	Host string
	// Model is the Ollama model tag (e.g. llama3).
	Model string
}

// ProviderOpenAI holds OpenAI settings.
type ProviderOpenAI struct {
	// APIKey is the OpenAI secret key.
	APIKey string
	// Model is the chat model name (e.g. gpt-4o).
	Model string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	// APIKey is the Azure resource key.
	APIKey string
	// Endpoint is the resource URL (e.g. https://my.openai.azure.com).
	Endpoint string
	// Deployment is the deployment name; used as the model name.
	Deployment string
	// APIVersion is the REST API version (e.g. 2024-02-01).
	APIVersion string
}

// ProviderBedrock holds AWS Bedrock settings.
type ProviderBedrock struct {
	// AWSRegion is the Bedrock region.
	AWSRegion string
	// ModelID is the Bedrock model identifier.
	ModelID string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	// APIKey is the Google AI Studio key.
	APIKey string
	// Model is the Gemini model name (e.g. gemini-1.5-pro).
	Model string
}

// SharedTuning holds knobs that apply to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness. pdfrag pins this to 0.
	Temperature float32
	// Timeout bounds each individual generation call.
	Timeout time.Duration
}

// Config holds all provider-level configuration resolved from environment
// variables or explicit caller-supplied values.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Bedrock     ProviderBedrock
	Gemini      ProviderGemini

	// Tuning is applied to every call regardless of backend.
	Tuning SharedTuning
}

// Validate checks that every field the selected backend needs is present, so
// a misconfiguration fails at startup rather than on the first chunk.
func (c *Config) Validate() error {
	if c.Tuning.MaxTokens < 0 {
		return fmt.Errorf("provider: MODEL_MAX_TOKENS must not be negative, got %d", c.Tuning.MaxTokens)
	}
	if c.Tuning.Timeout < 0 {
		return fmt.Errorf("provider: MODEL_TIMEOUT_SECONDS must not be negative, got %s", c.Tuning.Timeout)
	}
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendBedrock:
		if c.Bedrock.ModelID == "" {
			return fmt.Errorf("provider: BEDROCK_MODEL_ID is required for bedrock backend")
		}
		if c.Bedrock.AWSRegion == "" {
			return fmt.Errorf("provider: AWS_REGION is required for bedrock backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: ollama, openai, azure, bedrock, gemini)", c.Backend)
	}
	return nil
}

// ModelName returns the model identifier in use for the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendBedrock:
		return c.Bedrock.ModelID
	case BackendGemini:
		return c.Gemini.Model
	default:
		return ""
	}
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model. These reject the temperature parameter.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
