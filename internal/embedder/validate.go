package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// chatModelMarkers are name fragments of chat/completion models, which make
// poor embedding models.
var chatModelMarkers = []string{
	"gpt-4", "gpt-3.5", "gpt-35", "o1", "o3",
	"llama3", "llama2", "llama-3", "llama-2",
	"mistral", "mixtral", "gemma", "phi-", "phi3",
	"claude", "command-r", "deepseek", "qwen",
	"solar", "vicuna", "falcon", "yi-",
}

func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, m := range chatModelMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// Validate is a startup check of the embedding configuration. It returns an
// error when the configuration cannot work and logs a warning when
// EMBEDDING_MODEL looks like a chat model or the backend is inherited from
// MODEL_PROVIDER without an explicit EMBEDDING_PROVIDER.
func Validate(log *slog.Logger) error {
	backend := Backend()

	if backend != "ollama" && os.Getenv("EMBEDDING_PROVIDER") == "" {
		log.Warn("embedder: EMBEDDING_PROVIDER is not set, inheriting MODEL_PROVIDER",
			slog.String("backend", backend),
			slog.String("hint", "set EMBEDDING_PROVIDER=ollama (or openai/azure/gemini) to be explicit"),
		)
	}

	switch backend {
	case "ollama":
	case "openai":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("OPENAI_API_KEY")) == "" {
			return fmt.Errorf("embedder: no OpenAI API key found; set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("AZURE_OPENAI_API_KEY")) == "" {
			return fmt.Errorf("embedder: no Azure API key found; set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if firstNonEmpty(os.Getenv("EMBEDDING_ENDPOINT"), os.Getenv("AZURE_OPENAI_ENDPOINT")) == "" {
			return fmt.Errorf("embedder: no Azure endpoint found; set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	case "gemini":
		if firstNonEmpty(os.Getenv("EMBEDDING_API_KEY"), os.Getenv("GOOGLE_API_KEY")) == "" {
			return fmt.Errorf("embedder: no Gemini API key found; set GOOGLE_API_KEY or EMBEDDING_API_KEY")
		}
	case "bedrock":
		return fmt.Errorf("embedder: bedrock has no embedding backend; set EMBEDDING_PROVIDER to ollama, openai, azure or gemini")
	default:
		return fmt.Errorf("embedder: unknown backend %q", backend)
	}

	if model := os.Getenv("EMBEDDING_MODEL"); model != "" && looksLikeChatModel(model) {
		log.Warn("embedder: EMBEDDING_MODEL looks like a chat model, embeddings will likely be poor",
			slog.String("model", model),
			slog.String("hint", "use a dedicated embedding model e.g. nomic-embed-text, text-embedding-3-small"),
		)
	}
	return nil
}
