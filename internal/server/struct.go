package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/pdfrag-go/internal/pipeline"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full ingestion with enrichment.
	WriteTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one /api/ask request (default: 2m).
	AskTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers are the dependency probes run by GET /api/ready.
	Pingers []Pinger
	// RateLimit is the sustained per-IP request rate on /api/* (req/s).
	// Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the per-IP burst. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /api/* routes other than
	// health and readiness. Empty disables authentication.
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer is served at /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
}

// Engine answers questions within sessions and ingests documents.
// [NewEngine] adapts a *pipeline.Pipeline; tests inject a fake.
type Engine interface {
	// Ask answers question in the session identified by sessionID, creating
	// the session when sessionID is empty or unknown. It returns the
	// session ID actually used.
	Ask(ctx context.Context, sessionID, question string) (pipeline.Answer, string, error)
	// Ingest indexes every PDF under path.
	Ingest(ctx context.Context, path string) (pipeline.Stats, error)
	// Ready reports whether questions can be answered.
	Ready() bool
}

// Server is the HTTP front end of a pipeline.
type Server struct {
	engine     Engine
	cfg        *Config
	httpServer *http.Server
	log        *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	metrics *serverMetrics
	// stopRL stops the rate limiter's eviction goroutine on shutdown.
	stopRL func()
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Question is the natural-language question.
	Question string `json:"question"`
	// SessionID continues an earlier conversation when set.
	SessionID string `json:"session_id,omitempty"`
}

// source is one retrieved chunk in an askResponse.
type source struct {
	SourcePath string  `json:"source_path"`
	ChunkIndex int     `json:"chunk_index"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
	Summary    string  `json:"summary,omitempty"`
}

// askResponse is the JSON response for POST /api/ask.
type askResponse struct {
	SessionID   string   `json:"session_id"`
	Question    string   `json:"question"`
	SearchQuery string   `json:"search_query"`
	Answer      string   `json:"answer"`
	Sources     []source `json:"sources"`
}

// ingestRequest is the JSON body for POST /api/ingest.
type ingestRequest struct {
	// Path is a PDF file or a directory of PDFs on the server host.
	Path string `json:"path"`
}
