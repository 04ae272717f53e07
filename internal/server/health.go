package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/pdfrag-go/internal/logging"
)

// probeTimeout bounds each dependency probe run by GET /api/ready.
const probeTimeout = 5 * time.Second

// Pinger reports whether one dependency is reachable. Implementations must
// be safe for concurrent use.
type Pinger interface {
	// Ping returns nil when the dependency is healthy.
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses (e.g. "ollama").
	Name() string
}

// readyCheck is the result of one probe.
type readyCheck struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready.
type readyResponse struct {
	// Ready is true only when every probe succeeded.
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Each registered Pinger is probed in
// order; any failure turns the response into a 503.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	resp := readyResponse{Ready: true, Checks: make([]readyCheck, 0, len(s.pingers))}
	for _, p := range s.pingers {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.Ping(ctx)
		cancel()

		check := readyCheck{Name: p.Name(), OK: err == nil}
		if err != nil {
			check.Error = err.Error()
			resp.Ready = false
			log.Warn("server: readiness probe failed",
				slog.String("dependency", p.Name()),
				slog.Any("error", err),
			)
		}
		resp.Checks = append(resp.Checks, check)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}
