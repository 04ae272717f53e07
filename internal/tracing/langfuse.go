// Package tracing wires optional Langfuse tracing into every eino chat model
// call made by the process.
package tracing

import (
	"log/slog"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/pdfrag-go/internal/config"
)

// Settings are the Langfuse connection parameters.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY. ok is false when either key is missing.
func SettingsFromEnv() (s Settings, ok bool) {
	s = Settings{
		Host:      config.GetEnvOrDefault("LANGFUSE_HOST", "http://localhost:3000"),
		PublicKey: config.GetEnvOrDefault("LANGFUSE_PUBLIC_KEY", ""),
		SecretKey: config.GetEnvOrDefault("LANGFUSE_SECRET_KEY", ""),
	}
	return s, s.PublicKey != "" && s.SecretKey != ""
}

// Setup registers a global Langfuse callback handler when credentials are
// configured. The returned flush function sends buffered traces and must be
// called before exit; it is a no-op when tracing is disabled.
func Setup(log *slog.Logger) (flush func()) {
	s, ok := SettingsFromEnv()
	if !ok {
		log.Debug("tracing: langfuse disabled")
		return func() {}
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
	})
	callbacks.AppendGlobalHandlers(handler)
	log.Info("tracing: langfuse enabled", slog.String("host", s.Host))
	return flusher
}
