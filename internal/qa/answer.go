// Package qa builds the prompts that turn retrieved chunks and conversation
// history into answers, and issues the generation calls for query
// reformulation and answering.
package qa

import (
	"context"
	"log/slog"
	"time"

	"github.com/54b3r/pdfrag-go/internal/budget"
	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Style selects the answer prompt.
type Style int

const (
	// StyleContextual includes the conversation history in the prompt.
	StyleContextual Style = iota
	// StyleSimple answers from the retrieved context alone.
	StyleSimple
)

// String returns the variant label used in logs and metrics.
func (s Style) String() string {
	if s == StyleSimple {
		return "simple"
	}
	return "contextual"
}

// ErrorPrefix starts every answer produced from a failed call.
const ErrorPrefix = "Error generating response: "

// ErrorAnswer formats err as an answer string.
func ErrorAnswer(err error) string {
	return ErrorPrefix + err.Error()
}

// Answerer generates answers grounded in retrieved chunks.
type Answerer struct {
	gen     provider.Generator
	style   Style
	metrics *metrics.Pipeline

	// maxHistoryTokens bounds the history rendered into the prompt.
	maxHistoryTokens int
}

// AnswererOption configures an Answerer.
type AnswererOption func(*Answerer)

// WithHistoryBudget sets the estimated token budget for history in the
// prompt. Non-positive disables trimming.
func WithHistoryBudget(tokens int) AnswererOption {
	return func(a *Answerer) { a.maxHistoryTokens = tokens }
}

// WithAnswerMetrics records call latency and answer outcomes to m.
func WithAnswerMetrics(m *metrics.Pipeline) AnswererOption {
	return func(a *Answerer) { a.metrics = m }
}

// NewAnswerer returns an Answerer that builds prompts in the given style.
func NewAnswerer(gen provider.Generator, style Style, opts ...AnswererOption) *Answerer {
	a := &Answerer{
		gen:              gen,
		style:            style,
		maxHistoryTokens: budget.DefaultMaxHistoryTokens,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Prompt returns the prompt Answer would send. history is trimmed to the
// configured budget; the caller's slice is left untouched.
func (a *Answerer) Prompt(question string, results []rag.SearchResult, history []rag.Turn) string {
	ctxText := JoinContext(results)
	if a.style == StyleSimple {
		return SimpleAnswerPrompt(ctxText, question)
	}
	trimmed := budget.TrimTurns(history, a.maxHistoryTokens)
	return ContextualAnswerPrompt(ctxText, FormatHistory(trimmed), question)
}

// Answer makes one generation call and returns the model output verbatim.
// Failures are reported in-band as an ErrorAnswer string.
func (a *Answerer) Answer(ctx context.Context, question string, results []rag.SearchResult, history []rag.Turn) string {
	log := logging.FromContext(ctx)
	if a.style == StyleContextual {
		if dropped := len(history) - len(budget.TrimTurns(history, a.maxHistoryTokens)); dropped > 0 {
			log.Warn("qa: history trimmed to fit token budget",
				slog.Int("dropped_turns", dropped),
				slog.Int("budget_tokens", a.maxHistoryTokens),
			)
		}
	}

	start := time.Now()
	out, err := a.gen.Generate(ctx, a.Prompt(question, results, history))
	a.metrics.ObserveCall(metrics.OpAnswer, start)
	if err != nil {
		log.Error("qa: answer generation failed",
			slog.String("kind", provider.KindOf(err).String()),
			slog.Any("error", err),
		)
		a.metrics.Answer(a.style.String(), "error")
		return ErrorAnswer(err)
	}
	a.metrics.Answer(a.style.String(), "ok")
	return out
}

// Failed reports an answer that could not be produced because an earlier
// step failed, e.g. retrieval. It records the outcome and returns the
// formatted error answer.
func (a *Answerer) Failed(err error) string {
	a.metrics.Answer(a.style.String(), "error")
	return ErrorAnswer(err)
}
