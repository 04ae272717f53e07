package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/pipeline"
	"github.com/54b3r/pdfrag-go/internal/rag"
	"github.com/54b3r/pdfrag-go/internal/tracing"
)

// usageMessage is printed when neither --query nor --interactive is given.
const usageMessage = "Please provide a query using --query or use --interactive mode"

// exitCommand ends an interactive session, case-insensitively.
const exitCommand = "exit"

// runFlags are the flags of `pdfrag simple` and `pdfrag contextual`.
type runFlags struct {
	pdfPath     string
	query       string
	interactive bool
	build       buildOptions
}

// NewSimpleCmd constructs `pdfrag simple`.
func NewSimpleCmd() *cobra.Command {
	return newRunCmd(pipeline.VariantSimple,
		"Answer questions with the simple pipeline",
		`Index the PDFs at --pdf_path and answer questions from the most similar
chunks. Each question is answered on its own.

Examples:
  pdfrag simple --pdf_path data --query "What is the warranty period?"
  pdfrag simple --pdf_path manual.pdf --interactive --store memory`)
}

// NewContextualCmd constructs `pdfrag contextual`.
func NewContextualCmd() *cobra.Command {
	return newRunCmd(pipeline.VariantContextual,
		"Answer questions with the contextual pipeline",
		`Index the PDFs at --pdf_path with a generated summary on every chunk, then
answer questions. In interactive mode follow-up questions are rewritten
using the conversation so far before retrieval.

Summaries cost one model call per chunk and are paced by
PDFRAG_CALLS_PER_MINUTE; use --max-chunks to bound a first run.

Examples:
  pdfrag contextual --pdf_path data --interactive
  pdfrag contextual --pdf_path paper.pdf --query "What dataset is used?" --max-chunks 40`)
}

func newRunCmd(variant pipeline.Variant, short, long string) *cobra.Command {
	f := &runFlags{build: buildOptions{variant: variant}}

	cmd := &cobra.Command{
		Use:   string(variant),
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			applyEnvDefaults(cmd, &f.build)
			return run(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), f)
		},
	}

	cmd.Flags().StringVar(&f.pdfPath, "pdf_path", "", "Path to a PDF file or a directory containing PDF files")
	cmd.Flags().StringVar(&f.query, "query", "", "Question to ask")
	cmd.Flags().BoolVar(&f.interactive, "interactive", false, "Run in interactive mode")
	cmd.Flags().IntVar(&f.build.topK, "k", rag.DefaultTopK, "Number of chunks retrieved per question")
	cmd.Flags().IntVar(&f.build.maxChunks, "max-chunks", 0, "Maximum chunks indexed per document (0 = unlimited)")
	cmd.Flags().StringVar(&f.build.storeKind, "store", storeSQLite, "Vector store backend: sqlite, memory or qdrant")
	cmd.Flags().StringVar(&f.build.persistDir, "persist-dir", defaultPersistDir, "Directory for the on-disk index and state")
	cmd.Flags().BoolVar(&f.build.reindex, "reindex", false, "Index documents again even if already indexed")
	_ = cmd.MarkFlagRequired("pdf_path")

	return cmd
}

// run ingests f.pdfPath and answers one question or runs the interactive
// loop. Nothing is built when there is no question to answer.
func run(ctx context.Context, in io.Reader, out io.Writer, f *runFlags) error {
	if f.query == "" && !f.interactive {
		fmt.Fprintln(out, usageMessage)
		return nil
	}

	log := logging.New()
	ctx = logging.WithLogger(ctx, log)

	flush := tracing.Setup(log)
	defer flush()

	c, err := buildPipeline(ctx, log, f.build, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("%s: %w", f.build.variant, err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("close failed", slog.Any("error", err))
		}
	}()

	fmt.Fprintf(out, "Processing: %s\n", f.pdfPath)
	stats, err := c.pipeline.Ingest(ctx, f.pdfPath)
	if err != nil {
		return fmt.Errorf("%s: %w", f.build.variant, err)
	}
	log.Info("ingestion finished",
		slog.Int("documents", stats.Documents),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("skipped", stats.Skipped),
		slog.Int("chunks", stats.Chunks),
		slog.Int("degraded", stats.Degraded),
	)
	if c.state != nil {
		docs, err := c.state.Documents(ctx, c.collection)
		if err != nil {
			log.Warn("listing indexed documents failed", slog.Any("error", err))
		} else {
			log.Info("index holds documents",
				slog.String("collection", c.collection),
				slog.Int("documents", len(docs)),
			)
		}
	}

	session, err := c.pipeline.NewSession(ctx, "")
	if err != nil {
		return fmt.Errorf("%s: %w", f.build.variant, err)
	}
	defer session.Close()

	if f.interactive {
		return repl(ctx, in, out, session.Ask)
	}

	ans, err := session.Ask(ctx, f.query)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nQuestion: %s\n", f.query)
	fmt.Fprintf(out, "Answer: %s\n", ans.Text)
	return nil
}

// askFunc answers one question. (*pipeline.Session).Ask satisfies it.
type askFunc func(ctx context.Context, question string) (pipeline.Answer, error)

// repl reads questions line by line until "exit", end of input or ctx
// cancellation. Blank lines are ignored.
func repl(ctx context.Context, in io.Reader, out io.Writer, ask askFunc) error {
	st := newStyles(out)
	fmt.Fprintln(out)
	fmt.Fprintln(out, st.hint.Render("Entering interactive mode. Type 'exit' to quit."))

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				readErr <- nil
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		fmt.Fprint(out, "\n"+st.prompt.Render("Your question:")+" ")

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return <-readErr
			}
			line = strings.TrimSpace(l)
		}

		if strings.EqualFold(line, exitCommand) {
			return nil
		}
		if line == "" {
			continue
		}

		ans, err := ask(ctx, line)
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s %s\n", st.label.Render("Answer:"), ans.Text)
	}
}
