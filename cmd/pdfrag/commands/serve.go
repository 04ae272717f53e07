package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/config"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/rag"
	"github.com/54b3r/pdfrag-go/internal/server"
	"github.com/54b3r/pdfrag-go/internal/tracing"
)

// NewServeCmd constructs `pdfrag serve`, which answers questions over HTTP.
func NewServeCmd() *cobra.Command {
	var (
		host    string
		port    int
		pdfPath string
		variant string
		opts    buildOptions
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question-answering pipeline over HTTP",
		Long: `Start an HTTP server in front of one pipeline.

Endpoints:
  POST /api/ask      {"question": "...", "session_id": "..."}
  POST /api/ingest   {"path": "/data/docs"}
  GET  /api/health   liveness
  GET  /api/ready    dependency and index readiness
  GET  /metrics      Prometheus metrics

Set PDFRAG_API_KEY to require "Authorization: Bearer <key>" on /api/ask and
/api/ingest. Conversation history is kept in <persist-dir>/state.db so a
session can be resumed by passing its session_id.

Examples:
  pdfrag serve --pdf_path data
  pdfrag serve --variant simple --port 9090 --store qdrant`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			flush := tracing.Setup(log)
			defer flush()

			v, err := pipeline.ParseVariant(variant)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			opts.variant = v
			opts.conversations = true
			applyEnvDefaults(cmd, &opts)
			if !cmd.Flags().Changed("host") {
				host = config.GetEnvOrDefault("PDFRAG_HOST", host)
			}
			if !cmd.Flags().Changed("port") {
				port = config.GetEnvInt("PDFRAG_PORT", port)
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			c, err := buildPipeline(ctx, log, opts, reg)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() {
				if err := c.Close(); err != nil {
					log.Warn("serve: close failed", slog.Any("error", err))
				}
			}()

			if pdfPath != "" {
				stats, err := c.pipeline.Ingest(ctx, pdfPath)
				if err != nil {
					return fmt.Errorf("serve: initial ingestion: %w", err)
				}
				log.Info("serve: initial ingestion finished",
					slog.Int("documents", stats.Documents),
					slog.Int("chunks", stats.Chunks),
				)
			}

			engine := server.NewEngine(c.pipeline)
			srv, err := server.New(engine, &server.Config{
				Host:            host,
				Port:            port,
				Logger:          log,
				Pingers:         buildPingers(c, engine),
				APIKey:          config.GetEnvOrDefault("PDFRAG_API_KEY", ""),
				MetricsRegistry: reg,
				MetricsGatherer: reg,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}
			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")
	cmd.Flags().StringVar(&pdfPath, "pdf_path", "", "PDF file or directory to index before serving")
	cmd.Flags().StringVar(&variant, "variant", string(pipeline.VariantContextual), "Pipeline variant: simple or contextual")
	cmd.Flags().IntVar(&opts.topK, "k", rag.DefaultTopK, "Number of chunks retrieved per question")
	cmd.Flags().IntVar(&opts.maxChunks, "max-chunks", 0, "Maximum chunks indexed per document (0 = unlimited)")
	cmd.Flags().StringVar(&opts.storeKind, "store", storeSQLite, "Vector store backend: sqlite, memory or qdrant")
	cmd.Flags().StringVar(&opts.persistDir, "persist-dir", defaultPersistDir, "Directory for the on-disk index and state")
	cmd.Flags().BoolVar(&opts.reindex, "reindex", false, "Index documents again even if already indexed")

	return cmd
}

// buildPingers returns the readiness probes for the configured backends.
func buildPingers(c *components, engine server.Engine) []server.Pinger {
	pingers := []server.Pinger{server.NewIndexPinger(engine)}

	if c.state != nil {
		pingers = append(pingers, server.NewFuncPinger("state", c.state.Ping))
	}
	if c.qdrant != nil {
		pingers = append(pingers, server.NewQdrantPinger(c.qdrant.Client()))
	}
	if config.GetEnvOrDefault("MODEL_PROVIDER", "ollama") == "ollama" {
		host := strings.TrimRight(config.GetEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"), "/")
		pingers = append(pingers, server.NewHTTPPinger("ollama", host+"/api/tags"))
	}
	return pingers
}
