// Package audit logs one structured entry per CLI command invocation with the
// command name, the config file in effect and the relevant environment.
// Secret values are never logged, only whether they are set.
package audit

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// auditedEnv is the ordered list of variables in every audit entry, grouped
// by the component that reads them.
var auditedEnv = [][]string{
	// chat model
	{"MODEL_PROVIDER", "MODEL_TIMEOUT_SECONDS", "OLLAMA_HOST", "OLLAMA_MODEL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_ENDPOINT",
		"AZURE_OPENAI_DEPLOYMENT", "GOOGLE_API_KEY", "GEMINI_MODEL", "AWS_REGION", "BEDROCK_MODEL_ID"},
	// embeddings
	{"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "EMBEDDING_API_KEY"},
	// pipeline
	{"PDFRAG_STORE", "PDFRAG_PERSIST_DIR", "PDFRAG_COLLECTION", "PDFRAG_CHUNK_SIZE",
		"PDFRAG_CHUNK_OVERLAP", "PDFRAG_TOP_K", "PDFRAG_MAX_CHUNKS",
		"PDFRAG_CALLS_PER_MINUTE", "PDFRAG_MAX_RETRIES"},
	// backends and serving
	{"QDRANT_HOST", "QDRANT_PORT", "QDRANT_API_KEY", "PDFRAG_API_KEY"},
	// observability
	{"LOG_LEVEL", "LOG_FORMAT", "LANGFUSE_HOST", "LANGFUSE_PUBLIC_KEY", "LANGFUSE_SECRET_KEY"},
}

// secretSuffixes mark variables whose values are credentials.
var secretSuffixes = []string{"_API_KEY", "_SECRET_KEY", "_PUBLIC_KEY", "_SECRET_ACCESS_KEY", "_TOKEN"}

// LogCommandStart logs the start of command with the config file path and
// the sanitised audited environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, 32)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)
	for _, group := range auditedEnv {
		for _, key := range group {
			attrs = append(attrs, slog.String(key, SanitiseKey(key, os.Getenv(key))))
		}
	}
	log.LogAttrs(context.Background(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey returns the value of a non-secret variable, or only "set" /
// "unset" for a credential. Empty values are reported as "unset".
func SanitiseKey(key, value string) string {
	if isSecret(key) {
		return presence(value)
	}
	if value == "" {
		return "unset"
	}
	return value
}

func isSecret(key string) bool {
	for _, suffix := range secretSuffixes {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	return false
}

func presence(v string) string {
	if v == "" {
		return "unset"
	}
	return "set"
}

// sanitiseConfigPath abbreviates the home directory to "~" and reports an
// absent file as "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return p
	}
	if rel, err := filepath.Rel(home, p); err == nil && !strings.HasPrefix(rel, "..") && filepath.IsAbs(p) {
		return filepath.Join("~", rel)
	}
	return p
}
