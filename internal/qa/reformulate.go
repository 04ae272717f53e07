package qa

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Reformulator rewrites follow-up questions into standalone search queries.
type Reformulator struct {
	gen     provider.Generator
	metrics *metrics.Pipeline
}

// NewReformulator returns a Reformulator backed by gen. m may be nil.
func NewReformulator(gen provider.Generator, m *metrics.Pipeline) *Reformulator {
	return &Reformulator{gen: gen, metrics: m}
}

// Reformulate returns a search query for question. With no history the
// question is returned unchanged and no call is made. The model output is
// used verbatim; a failed call or a blank response falls back to question.
func (r *Reformulator) Reformulate(ctx context.Context, question string, history []rag.Turn) string {
	if len(history) == 0 {
		return question
	}

	log := logging.FromContext(ctx)
	prompt := ReformulationPrompt(FormatHistory(history), question)

	start := time.Now()
	out, err := r.gen.Generate(ctx, prompt)
	r.metrics.ObserveCall(metrics.OpReformulate, start)
	if err != nil {
		log.Warn("qa: reformulation failed, using original question",
			slog.String("kind", provider.KindOf(err).String()),
			slog.Any("error", err),
		)
		return question
	}
	if strings.TrimSpace(out) == "" {
		log.Warn("qa: reformulation returned no text, using original question")
		return question
	}

	log.Debug("qa: reformulated query", slog.String("query", out))
	return out
}
