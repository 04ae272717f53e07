// Package pipeline orchestrates ingestion (load, split, enrich, index) and
// question answering (reformulate, retrieve, answer) for both the simple and
// the contextual variant.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/54b3r/pdfrag-go/internal/chunker"
	"github.com/54b3r/pdfrag-go/internal/loader"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/qa"
	"github.com/54b3r/pdfrag-go/internal/rag"
	"github.com/54b3r/pdfrag-go/internal/store"
)

// Variant selects the pipeline flavour.
type Variant string

const (
	// VariantSimple embeds raw chunks and answers without history.
	VariantSimple Variant = "simple"
	// VariantContextual enriches chunks, reformulates follow-up questions
	// and answers with history.
	VariantContextual Variant = "contextual"
)

// ParseVariant validates s.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantSimple, VariantContextual:
		return v, nil
	}
	return "", fmt.Errorf("pipeline: unknown variant %q (valid: simple, contextual)", s)
}

var (
	// ErrNotReady is returned when a session is requested before any
	// successful ingestion.
	ErrNotReady = errors.New("pipeline: not ready, ingest documents first")
	// ErrSessionClosed is returned by Ask on a closed session.
	ErrSessionClosed = errors.New("pipeline: session closed")
)

// Loader extracts one file into a document. *loader.Loader satisfies it.
type Loader interface {
	Load(ctx context.Context, path string) (rag.Document, error)
}

// Enricher enriches chunks in order. *enrich.Enricher satisfies it.
type Enricher interface {
	EnrichAll(ctx context.Context, chunks []rag.Chunk) ([]rag.EnrichedChunk, error)
}

// Index stores and searches enriched chunks. *rag.Indexer satisfies it.
type Index interface {
	Add(ctx context.Context, chunks []rag.EnrichedChunk) error
	Search(ctx context.Context, query string, k int) ([]rag.SearchResult, error)
}

// Ledger remembers which documents a collection already holds.
// *store.SQLiteStore satisfies it.
type Ledger interface {
	Indexed(ctx context.Context, collection, documentID string) (bool, error)
	Record(ctx context.Context, rec store.DocumentRecord) error
}

// Config holds the per-pipeline knobs.
type Config struct {
	// Variant selects simple or contextual behaviour.
	Variant Variant
	// Collection names the index collection; used for the ledger.
	Collection string
	// TopK is the number of chunks retrieved per question.
	TopK int
	// MaxChunks caps the chunks indexed per document. Zero means no cap.
	MaxChunks int
	// Reindex ignores the ledger and indexes every document again.
	Reindex bool
	// HistoryLimit bounds the turns loaded when resuming a stored session.
	// Zero loads every turn.
	HistoryLimit int
}

// Deps are the collaborators of a Pipeline. Ledger, Conversations and
// Metrics are optional; Enricher and Reformulator are required only for
// the contextual variant.
type Deps struct {
	Loader        Loader
	Splitter      *chunker.Splitter
	Enricher      Enricher
	Index         Index
	Reformulator  *qa.Reformulator
	Answerer      *qa.Answerer
	Ledger        Ledger
	Conversations store.ConversationStore
	Metrics       *metrics.Pipeline
}

// Stats summarises one Ingest call.
type Stats struct {
	// Paths is the number of input files resolved.
	Paths int `json:"paths"`
	// Documents is the number of documents added to the index.
	Documents int `json:"documents"`
	// Skipped counts documents that failed to load or index.
	Skipped int `json:"skipped"`
	// Duplicates counts documents the ledger already held.
	Duplicates int `json:"duplicates"`
	// Chunks is the number of chunks added to the index.
	Chunks int `json:"chunks"`
	// Truncated counts chunks dropped by MaxChunks.
	Truncated int `json:"truncated"`
	// Degraded counts chunks indexed without a generated summary.
	Degraded int `json:"degraded"`
}

// Pipeline owns ingestion and hands out question-answering sessions.
type Pipeline struct {
	cfg  Config
	deps Deps

	// ingestMu serialises Ingest calls.
	ingestMu sync.Mutex

	mu    sync.RWMutex
	state State
	// ready stays true once any ingestion succeeded, including while a
	// later ingestion runs.
	ready bool
}

// New validates cfg and deps and returns an idle Pipeline.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	if _, err := ParseVariant(string(cfg.Variant)); err != nil {
		return nil, err
	}
	if deps.Loader == nil || deps.Splitter == nil || deps.Index == nil || deps.Answerer == nil {
		return nil, errors.New("pipeline: loader, splitter, index and answerer are required")
	}
	if cfg.Variant == VariantContextual && (deps.Enricher == nil || deps.Reformulator == nil) {
		return nil, errors.New("pipeline: contextual variant requires an enricher and a reformulator")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = rag.DefaultTopK
	}
	if cfg.MaxChunks < 0 {
		cfg.MaxChunks = 0
	}
	return &Pipeline{cfg: cfg, deps: deps, state: StateIdle}, nil
}

// Variant returns the configured variant.
func (p *Pipeline) Variant() Variant { return p.cfg.Variant }

// State returns the current pipeline state.
func (p *Pipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Ready reports whether sessions can be created.
func (p *Pipeline) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	if s == StateReady {
		p.ready = true
	}
	p.mu.Unlock()
}

// Ingest loads every PDF under path and adds it to the index. A path that
// does not exist or holds no PDFs, and per-document load and index
// failures, are logged and skipped; the pipeline still becomes ready. The
// error is non-nil only when ctx is cancelled.
func (p *Pipeline) Ingest(ctx context.Context, path string) (Stats, error) {
	p.ingestMu.Lock()
	defer p.ingestMu.Unlock()

	log := logging.FromContext(ctx).With(slog.String("variant", string(p.cfg.Variant)))
	prev := p.State()
	var stats Stats

	p.setState(StateLoading)
	paths, err := loader.Resolve(path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			p.setState(prev)
			return stats, fmt.Errorf("pipeline: %w", ctxErr)
		}
		log.Error("pipeline: failed to resolve input path, skipping",
			slog.String("path", path),
			slog.Any("error", err),
		)
		stats.Skipped++
		p.deps.Metrics.DocumentSkipped("load_error")
	}
	stats.Paths = len(paths)

	docs := make([]rag.Document, 0, len(paths))
	for _, fp := range paths {
		doc, err := p.deps.Loader.Load(ctx, fp)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				p.setState(prev)
				return stats, fmt.Errorf("pipeline: %w", ctxErr)
			}
			log.Error("pipeline: failed to load document, skipping",
				slog.String("path", fp),
				slog.Any("error", err),
			)
			stats.Skipped++
			p.deps.Metrics.DocumentSkipped("load_error")
			continue
		}
		docs = append(docs, doc)
	}
	log.Info("pipeline: documents loaded",
		slog.Int("loaded", len(docs)),
		slog.Int("skipped", stats.Skipped),
	)

	p.setState(StateIndexing)
	for _, doc := range docs {
		if err := p.indexDocument(ctx, log, doc, &stats); err != nil {
			p.setState(prev)
			return stats, err
		}
	}

	p.setState(StateReady)
	log.Info("pipeline: ingestion complete",
		slog.Int("documents", stats.Documents),
		slog.Int("chunks", stats.Chunks),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("degraded", stats.Degraded),
	)
	return stats, nil
}

// indexDocument splits, enriches and indexes one document. It returns an
// error only on cancellation.
func (p *Pipeline) indexDocument(ctx context.Context, log *slog.Logger, doc rag.Document, stats *Stats) error {
	log = log.With(slog.String("source", doc.SourcePath))

	if p.deps.Ledger != nil && !p.cfg.Reindex {
		seen, err := p.deps.Ledger.Indexed(ctx, p.cfg.Collection, doc.ID)
		if err != nil {
			log.Warn("pipeline: ledger lookup failed, indexing anyway", slog.Any("error", err))
		} else if seen {
			log.Info("pipeline: document already indexed, skipping", slog.String("document_id", doc.ID))
			stats.Duplicates++
			p.deps.Metrics.DocumentSkipped("duplicate")
			return nil
		}
	}

	chunks := p.deps.Splitter.Split(doc)
	if p.cfg.MaxChunks > 0 && len(chunks) > p.cfg.MaxChunks {
		log.Warn("pipeline: truncating document to chunk cap",
			slog.Int("chunks", len(chunks)),
			slog.Int("max_chunks", p.cfg.MaxChunks),
		)
		stats.Truncated += len(chunks) - p.cfg.MaxChunks
		chunks = chunks[:p.cfg.MaxChunks]
	}
	log.Info("pipeline: document split", slog.Int("chunks", len(chunks)))

	var enriched []rag.EnrichedChunk
	if p.cfg.Variant == VariantContextual {
		var err error
		enriched, err = p.deps.Enricher.EnrichAll(ctx, chunks)
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	} else {
		enriched = make([]rag.EnrichedChunk, len(chunks))
		for i, c := range chunks {
			enriched[i] = rag.Plain(c)
		}
	}

	start := time.Now()
	err := p.deps.Index.Add(ctx, enriched)
	p.deps.Metrics.ObserveCall(metrics.OpEmbed, start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("pipeline: %w", ctxErr)
		}
		log.Error("pipeline: failed to index document, skipping", slog.Any("error", err))
		stats.Skipped++
		p.deps.Metrics.DocumentSkipped("index_error")
		return nil
	}

	degraded := 0
	for _, c := range enriched {
		if p.cfg.Variant == VariantContextual && !c.Enriched {
			degraded++
		}
	}
	stats.Documents++
	stats.Chunks += len(enriched)
	stats.Degraded += degraded
	p.deps.Metrics.ChunksIndexed(string(p.cfg.Variant), len(enriched))

	if p.deps.Ledger != nil {
		rec := store.DocumentRecord{
			Collection: p.cfg.Collection,
			DocumentID: doc.ID,
			SourcePath: doc.SourcePath,
			Chunks:     len(enriched),
		}
		if err := p.deps.Ledger.Record(ctx, rec); err != nil {
			log.Warn("pipeline: failed to record document in ledger", slog.Any("error", err))
		}
	}
	return nil
}

// NewSession starts a question-answering session. An empty id generates a
// random one. When a conversation store is configured, prior turns of id
// are loaded.
func (p *Pipeline) NewSession(ctx context.Context, id string) (*Session, error) {
	if !p.Ready() {
		return nil, ErrNotReady
	}
	if id == "" {
		id = uuid.NewString()
	}
	s := &Session{p: p, id: id, state: StateReady}

	if p.deps.Conversations != nil {
		turns, err := p.deps.Conversations.History(ctx, id, p.cfg.HistoryLimit)
		if err != nil {
			return nil, fmt.Errorf("pipeline: load session %s: %w", id, err)
		}
		s.history = turns
	}
	return s, nil
}
