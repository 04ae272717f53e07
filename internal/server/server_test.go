package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// fakeEngine is a scriptable Engine.
type fakeEngine struct {
	mu    sync.Mutex
	ready bool

	askErr    error
	ingestErr error
	// block makes Ask wait for ctx to end.
	block bool

	asked    []string
	sessions []string
	ingested []string
}

func (f *fakeEngine) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *fakeEngine) Ask(ctx context.Context, sessionID, question string) (pipeline.Answer, string, error) {
	f.mu.Lock()
	f.asked = append(f.asked, question)
	f.sessions = append(f.sessions, sessionID)
	block, askErr := f.block, f.askErr
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return pipeline.Answer{}, "", ctx.Err()
	}
	if askErr != nil {
		return pipeline.Answer{}, "", askErr
	}
	if sessionID == "" {
		sessionID = "generated"
	}
	return pipeline.Answer{
		Question:    question,
		SearchQuery: question + " (rewritten)",
		Text:        "answer to " + question,
		Sources: []rag.SearchResult{{
			Chunk: rag.EnrichedChunk{
				Chunk:          rag.Chunk{Index: 2, Text: "chunk text", SourcePath: "a.pdf"},
				ContextSummary: "summary",
			},
			Score: 0.9,
		}},
	}, sessionID, nil
}

func (f *fakeEngine) Ingest(_ context.Context, path string) (pipeline.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, path)
	if f.ingestErr != nil {
		return pipeline.Stats{}, f.ingestErr
	}
	f.ready = true
	return pipeline.Stats{Paths: 1, Documents: 1, Chunks: 7}, nil
}

// newTestServer builds a Server over e with an isolated registry and
// authentication disabled.
func newTestServer(t *testing.T, e Engine, opts ...func(*Config)) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := &Config{
		Logger:          logging.Discard(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	s, err := New(e, cfg)
	require.NoError(t, err)
	t.Cleanup(s.stopRL)
	return s, reg
}

func postJSON(t *testing.T, h http.Handler, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestNew_RequiresEngine(t *testing.T) {
	t.Parallel()
	_, err := New(nil, &Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{})

	assert.Equal(t, "127.0.0.1:8080", s.httpServer.Addr)
	assert.Equal(t, 2*time.Minute, s.cfg.AskTimeout)
	assert.Equal(t, 10*time.Second, s.cfg.ShutdownTimeout)
}

func TestAsk_OK(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{ready: true}
	s, _ := newTestServer(t, e)

	w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "  How tall is it?  ", SessionID: "s1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp askResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "How tall is it?", resp.Question)
	assert.Equal(t, "How tall is it? (rewritten)", resp.SearchQuery)
	assert.Equal(t, "answer to How tall is it?", resp.Answer)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, source{SourcePath: "a.pdf", ChunkIndex: 2, Score: 0.9, Text: "chunk text", Summary: "summary"}, resp.Sources[0])

	assert.Equal(t, []string{"s1"}, e.sessions)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.askRequestsTotal.WithLabelValues("ok")))
	assert.Zero(t, testutil.ToFloat64(s.metrics.askInFlight))
}

func TestAsk_NewSessionIDReturned(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{ready: true})

	w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "hi"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp askResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "generated", resp.SessionID)
}

func TestAsk_RejectsBadInput(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{ready: true}
	s, _ := newTestServer(t, e)

	w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Empty(t, e.asked)
}

func TestAsk_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{ready: true})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ask", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAsk_NotReady(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{}
	s, _ := newTestServer(t, e)

	w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "q"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Empty(t, e.asked)
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.askRequestsTotal.WithLabelValues("not_ready")))
}

func TestAsk_EngineErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		err     error
		code    int
		outcome string
	}{
		{"not ready", fmt.Errorf("ask: %w", pipeline.ErrNotReady), http.StatusServiceUnavailable, "not_ready"},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s, _ := newTestServer(t, &fakeEngine{ready: true, askErr: tc.err})

			w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "q"})
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.askRequestsTotal.WithLabelValues(tc.outcome)))
		})
	}
}

func TestAsk_Timeout(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{ready: true, block: true}, func(c *Config) {
		c.AskTimeout = 20 * time.Millisecond
	})

	w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "q"})
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

func TestAsk_RequiresAPIKey(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{ready: true}
	s, _ := newTestServer(t, e, func(c *Config) { c.APIKey = "k" })

	w := postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "q"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, e.asked)

	w = postJSON(t, s.Handler(), "/api/ask", askRequest{Question: "q"}, "Authorization", "Bearer k")
	assert.Equal(t, http.StatusOK, w.Code)

	// Probes stay open.
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// pdfDir returns a temp directory holding one PDF file.
func pdfDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF-1.4"), 0o644))
	return dir
}

func TestIngest_OK(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{}
	s, _ := newTestServer(t, e)
	dir := pdfDir(t)

	w := postJSON(t, s.Handler(), "/api/ingest", ingestRequest{Path: dir})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var stats pipeline.Stats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 7, stats.Chunks)
	assert.Equal(t, []string{dir}, e.ingested)
	assert.True(t, e.Ready())
}

func TestIngest_UnusablePathIsRejected(t *testing.T) {
	t.Parallel()

	cases := map[string]func(t *testing.T) string{
		"no pdfs":      func(t *testing.T) string { return t.TempDir() },
		"missing path": func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.pdf") },
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			e := &fakeEngine{}
			s, _ := newTestServer(t, e)

			w := postJSON(t, s.Handler(), "/api/ingest", ingestRequest{Path: input(t)})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Empty(t, e.ingested)
		})
	}
}

func TestIngest_EngineFailure(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{ingestErr: errors.New("disk full")})

	w := postJSON(t, s.Handler(), "/api/ingest", ingestRequest{Path: pdfDir(t)})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestIngest_RequiresPath(t *testing.T) {
	t.Parallel()
	e := &fakeEngine{}
	s, _ := newTestServer(t, e)

	w := postJSON(t, s.Handler(), "/api/ingest", ingestRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, e.ingested)
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, &fakeEngine{})
	s.httpServer.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
