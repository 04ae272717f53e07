// Package server exposes a pipeline over HTTP: question answering, document
// ingestion, liveness and readiness probes, and Prometheus metrics. It is
// started by `pdfrag serve`.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/pdfrag-go/internal/loader"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// New constructs a Server for engine.
func New(engine Engine, cfg *Config) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("server: engine must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 2 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	s := &Server{
		engine:  engine,
		cfg:     cfg,
		log:     log,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stop

	if cfg.APIKey == "" {
		log.Warn("server: PDFRAG_API_KEY is not set, authentication disabled")
	}
	protect := func(h http.HandlerFunc) http.Handler {
		return rl.middleware(authMiddleware(cfg.APIKey, h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/ask", protect(s.handleAsk))
	mux.Handle("POST /api/ingest", protect(s.handleIngest))
	mux.Handle("GET /api/health", rl.middleware(http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", rl.middleware(http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, s.metrics.instrument(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server: listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleAsk handles POST /api/ask.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		http.Error(w, "question is required", http.StatusBadRequest)
		return
	}
	if !s.engine.Ready() {
		s.metrics.observeAsk("not_ready", time.Now())
		http.Error(w, "no documents indexed yet", http.StatusServiceUnavailable)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	s.metrics.askInFlight.Inc()
	defer s.metrics.askInFlight.Dec()
	start := time.Now()

	ans, sessionID, err := s.engine.Ask(ctx, req.SessionID, req.Question)
	switch {
	case errors.Is(err, pipeline.ErrNotReady):
		s.metrics.observeAsk("not_ready", start)
		http.Error(w, "no documents indexed yet", http.StatusServiceUnavailable)
		return
	case errors.Is(err, context.DeadlineExceeded):
		s.metrics.observeAsk("timeout", start)
		log.Warn("server: ask timed out", slog.Duration("timeout", s.cfg.AskTimeout))
		http.Error(w, "request timed out", http.StatusGatewayTimeout)
		return
	case err != nil:
		s.metrics.observeAsk("error", start)
		log.Error("server: ask failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.metrics.observeAsk("ok", start)

	resp := askResponse{
		SessionID:   sessionID,
		Question:    ans.Question,
		SearchQuery: ans.SearchQuery,
		Answer:      ans.Text,
		Sources:     make([]source, 0, len(ans.Sources)),
	}
	for _, res := range ans.Sources {
		resp.Sources = append(resp.Sources, source{
			SourcePath: res.Chunk.Chunk.SourcePath,
			ChunkIndex: res.Chunk.Chunk.Index,
			Score:      res.Score,
			Text:       res.Chunk.Chunk.Text,
			Summary:    res.Chunk.ContextSummary,
		})
	}
	writeJSON(w, log, http.StatusOK, resp)
}

// handleIngest handles POST /api/ingest. The request blocks until
// ingestion finishes.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Path == "" {
		http.Error(w, "path is required", http.StatusBadRequest)
		return
	}

	// The pipeline logs and skips an unusable path; API callers get a 400.
	if _, err := loader.Resolve(req.Path); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stats, err := s.engine.Ingest(r.Context(), req.Path)
	if err != nil {
		log.Error("server: ingest failed", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, log, http.StatusOK, stats)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("server: encode response", slog.Any("error", err))
	}
}
