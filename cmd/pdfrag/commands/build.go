package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/chunker"
	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/embedder"
	"github.com/54b3r/pdfrag-go/internal/enrich"
	"github.com/54b3r/pdfrag-go/internal/loader"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/qa"
	"github.com/54b3r/pdfrag-go/internal/rag"
	"github.com/54b3r/pdfrag-go/internal/ratelimit"
	"github.com/54b3r/pdfrag-go/internal/store"
)

// Vector store backends selectable with --store.
const (
	storeSQLite = "sqlite"
	storeMemory = "memory"
	storeQdrant = "qdrant"
)

// defaultPersistDir holds index.db and state.db for the sqlite backend.
const defaultPersistDir = "vector_db"

// buildOptions are the knobs shared by the run and serve commands.
type buildOptions struct {
	variant    pipeline.Variant
	storeKind  string
	persistDir string
	topK       int
	maxChunks  int
	reindex    bool
	// conversations persists session history in state.db (serve only).
	conversations bool
}

// applyEnvDefaults fills options whose flags were not given from the
// environment. It runs after config.Load has exported the YAML settings.
func applyEnvDefaults(cmd *cobra.Command, o *buildOptions) {
	flags := cmd.Flags()
	if !flags.Changed("k") {
		o.topK = config.GetEnvInt("PDFRAG_TOP_K", o.topK)
	}
	if !flags.Changed("max-chunks") {
		o.maxChunks = config.GetEnvInt("PDFRAG_MAX_CHUNKS", o.maxChunks)
	}
	if !flags.Changed("store") {
		o.storeKind = config.GetEnvOrDefault("PDFRAG_STORE", o.storeKind)
	}
	if !flags.Changed("persist-dir") {
		o.persistDir = config.GetEnvOrDefault("PDFRAG_PERSIST_DIR", o.persistDir)
	}
}

// components is a wired pipeline plus the resources that back it.
type components struct {
	pipeline *pipeline.Pipeline
	// state is nil for the memory backend.
	state *store.SQLiteStore
	// qdrant is set only for the qdrant backend.
	qdrant     *rag.QdrantStore
	collection string
	closers    []func() error
}

// Close releases every resource in reverse order of acquisition.
func (c *components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// buildPipeline constructs the model clients, vector index, state store and
// pipeline for opts. Metrics are registered against reg.
func buildPipeline(ctx context.Context, log *slog.Logger, opts buildOptions, reg prometheus.Registerer) (_ *components, err error) {
	c := &components{}
	defer func() {
		if err != nil {
			_ = c.Close()
		}
	}()

	gen, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	if err := embedder.Validate(log); err != nil {
		return nil, err
	}
	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	collection := config.GetEnvOrDefault("PDFRAG_COLLECTION", string(opts.variant))
	c.collection = collection
	vs, err := openVectorStore(ctx, c, opts, collection)
	if err != nil {
		return nil, err
	}
	index, err := rag.NewIndexer(emb, vs, collection)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.New(
		config.GetEnvInt("PDFRAG_CHUNK_SIZE", chunker.DefaultSize),
		config.GetEnvInt("PDFRAG_CHUNK_OVERLAP", chunker.DefaultOverlap),
	)
	if err != nil {
		return nil, err
	}

	m := metrics.New(reg)
	deps := pipeline.Deps{
		Loader:   loader.New(nil),
		Splitter: splitter,
		Index:    index,
		Metrics:  m,
	}

	if opts.storeKind != storeMemory {
		path, err := store.PathIn(opts.persistDir)
		if err != nil {
			return nil, err
		}
		st, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		c.state = st
		c.closers = append(c.closers, st.Close)
		deps.Ledger = st
		if opts.conversations {
			deps.Conversations = st
		}
	}

	style := qa.StyleSimple
	if opts.variant == pipeline.VariantContextual {
		style = qa.StyleContextual
		limiter := ratelimit.New(config.GetEnvInt("PDFRAG_CALLS_PER_MINUTE", ratelimit.DefaultCallsPerMinute))
		deps.Enricher = enrich.New(gen, limiter,
			enrich.WithMaxRetries(config.GetEnvInt("PDFRAG_MAX_RETRIES", enrich.DefaultMaxRetries)),
			enrich.WithMetrics(m),
		)
		deps.Reformulator = qa.NewReformulator(gen, m)
	}
	deps.Answerer = qa.NewAnswerer(gen, style, qa.WithAnswerMetrics(m))

	p, err := pipeline.New(pipeline.Config{
		Variant:    opts.variant,
		Collection: collection,
		TopK:       opts.topK,
		MaxChunks:  opts.maxChunks,
		Reindex:    opts.reindex,
	}, deps)
	if err != nil {
		return nil, err
	}
	c.pipeline = p

	log.Info("pipeline initialised",
		slog.String("variant", string(opts.variant)),
		slog.String("store", opts.storeKind),
		slog.String("collection", collection),
		slog.String("provider", config.GetEnvOrDefault("MODEL_PROVIDER", "ollama")),
		slog.String("embedding_provider", embedder.Backend()),
	)
	return c, nil
}

// openVectorStore opens the backend named by opts.storeKind and registers
// its closer on c.
func openVectorStore(ctx context.Context, c *components, opts buildOptions, collection string) (rag.VectorStore, error) {
	switch opts.storeKind {
	case storeMemory:
		return rag.NewMemoryStore(), nil
	case storeSQLite:
		s, err := rag.OpenSQLiteStore(opts.persistDir, collection)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	case storeQdrant:
		dims := config.GetEnvInt("EMBEDDING_DIMENSIONS", embedder.DefaultDimensions(embedder.Backend()))
		s, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       config.GetEnvOrDefault("QDRANT_HOST", "localhost"),
			Port:       config.GetEnvInt("QDRANT_PORT", 6334),
			Collection: collection,
			VectorSize: uint64(dims),
			APIKey:     config.GetEnvOrDefault("QDRANT_API_KEY", ""),
			UseTLS:     strings.EqualFold(config.GetEnvOrDefault("QDRANT_TLS", ""), "true"),
		})
		if err != nil {
			return nil, err
		}
		c.qdrant = s
		c.closers = append(c.closers, s.Close)
		return s, nil
	}
	return nil, fmt.Errorf("unknown --store %q (valid: sqlite, memory, qdrant)", opts.storeKind)
}
