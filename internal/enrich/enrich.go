// Package enrich annotates chunks with a short generated summary that situates
// them within their document, improving retrieval precision. Calls are paced
// by a shared limiter and retried with exponential backoff; a chunk whose
// enrichment fails falls back to its original text and never aborts the batch.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/metrics"
	"github.com/54b3r/pdfrag-go/internal/provider"
	"github.com/54b3r/pdfrag-go/internal/rag"
	"github.com/54b3r/pdfrag-go/internal/ratelimit"
)

// Sentinel summaries stored on chunks whose enrichment did not succeed.
const (
	// SentinelUnavailable is used when every allowed attempt failed.
	SentinelUnavailable = "Context unavailable due to API error after multiple retries."
	// SentinelFailed is used when the retry loop ended without exhausting its
	// attempts, e.g. on a credential error or a negative retry budget.
	SentinelFailed = "Failed to generate context after multiple attempts."
)

const (
	// DefaultMaxRetries allows up to four calls per chunk.
	DefaultMaxRetries = 3
	// DefaultRateLimitBackoff is the first wait after a rate-limit error.
	DefaultRateLimitBackoff = 15 * time.Second
	// DefaultTransientBackoff is the first wait after any other error.
	DefaultTransientBackoff = 5 * time.Second
)

// Limiter paces outbound calls. *ratelimit.Limiter satisfies it.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// Enricher generates context summaries for chunks.
type Enricher struct {
	// gen issues the summary generation calls.
	gen provider.Generator
	// limiter is acquired before every call, including retries.
	limiter Limiter
	// maxRetries bounds the number of retries after the first call.
	maxRetries int
	// rateLimitBackoff and transientBackoff are the base waits; both are
	// multiplied by a factor that doubles after every failed attempt.
	rateLimitBackoff time.Duration
	transientBackoff time.Duration
	// sleep waits between attempts and must honour ctx.
	sleep func(ctx context.Context, d time.Duration) error
	// metrics may be nil.
	metrics *metrics.Pipeline
}

// Option configures an Enricher.
type Option func(*Enricher)

// WithMaxRetries sets the retry budget. Zero means a single attempt.
func WithMaxRetries(n int) Option {
	return func(e *Enricher) { e.maxRetries = n }
}

// WithBackoff sets the base waits for rate-limit and other errors.
func WithBackoff(rateLimited, transient time.Duration) Option {
	return func(e *Enricher) {
		e.rateLimitBackoff = rateLimited
		e.transientBackoff = transient
	}
}

// WithSleep replaces the backoff sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Enricher) { e.sleep = sleep }
}

// WithMetrics records attempts, failures and degraded chunks.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(e *Enricher) { e.metrics = m }
}

// New returns an Enricher that calls gen after acquiring limiter.
func New(gen provider.Generator, limiter Limiter, opts ...Option) *Enricher {
	e := &Enricher{
		gen:              gen,
		limiter:          limiter,
		maxRetries:       DefaultMaxRetries,
		rateLimitBackoff: DefaultRateLimitBackoff,
		transientBackoff: DefaultTransientBackoff,
		sleep:            ratelimit.Sleep,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Prompt returns the summary instruction for one chunk of text.
func Prompt(text string) string {
	return "Provide a brief context for the following text chunk.\n\n" +
		"Provide 1-2 sentences that explain:\n" +
		"1. What is the main topic of this chunk?\n" +
		"2. What key information does it contain?\n\n" +
		"Text chunk:\n" + text + "\n\n" +
		"Provide ONLY the contextual summary in 1-2 sentences. Be concise but informative."
}

// IndexedText combines a summary with the chunk's original text.
func IndexedText(summary, text string) string {
	return "Context: " + summary + "\n\nContent: " + text
}

// Enrich produces the enriched form of chunk. API failures never surface as
// errors: after the retry budget is spent the chunk is returned with a
// sentinel summary and its original text as IndexedText. The error is
// non-nil only when ctx is cancelled.
func (e *Enricher) Enrich(ctx context.Context, chunk rag.Chunk) (rag.EnrichedChunk, error) {
	log := logging.FromContext(ctx).With(
		slog.String("source", chunk.SourcePath),
		slog.Int("chunk", chunk.Index),
	)

	factor := 1
	for retries := 0; retries <= e.maxRetries; {
		if err := e.limiter.Acquire(ctx); err != nil {
			return rag.EnrichedChunk{}, fmt.Errorf("enrich: waiting for rate limiter: %w", err)
		}

		e.metrics.EnrichAttempt()
		start := time.Now()
		summary, err := e.gen.Generate(ctx, Prompt(chunk.Text))
		e.metrics.ObserveCall(metrics.OpEnrich, start)
		if err == nil {
			summary = strings.TrimSpace(summary)
			return rag.EnrichedChunk{
				Chunk:          chunk,
				ContextSummary: summary,
				IndexedText:    IndexedText(summary, chunk.Text),
				Enriched:       true,
			}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rag.EnrichedChunk{}, fmt.Errorf("enrich: %w", ctxErr)
		}

		kind := provider.KindOf(err)
		e.metrics.EnrichFailure(kind.String())
		retries++

		if kind == provider.KindFatal {
			log.Error("enrich: unrecoverable generation error", slog.Any("error", err))
			break
		}
		if retries > e.maxRetries {
			log.Warn("enrich: retries exhausted",
				slog.Int("attempts", retries),
				slog.Any("error", err),
			)
			return e.degraded(chunk, SentinelUnavailable), nil
		}

		base := e.transientBackoff
		if kind == provider.KindRateLimited {
			base = e.rateLimitBackoff
		}
		wait := time.Duration(factor) * base
		factor *= 2

		log.Warn("enrich: generation failed, backing off",
			slog.String("kind", kind.String()),
			slog.Duration("wait", wait),
			slog.Int("attempt", retries),
			slog.Int("max_retries", e.maxRetries),
			slog.Any("error", err),
		)
		if err := e.sleep(ctx, wait); err != nil {
			return rag.EnrichedChunk{}, fmt.Errorf("enrich: backoff interrupted: %w", err)
		}
	}

	return e.degraded(chunk, SentinelFailed), nil
}

// EnrichAll enriches chunks sequentially in order. A chunk that degrades is
// logged and kept with its original text; only cancellation stops the loop.
func (e *Enricher) EnrichAll(ctx context.Context, chunks []rag.Chunk) ([]rag.EnrichedChunk, error) {
	log := logging.FromContext(ctx)
	out := make([]rag.EnrichedChunk, 0, len(chunks))
	for i, c := range chunks {
		log.Info("enrich: processing chunk",
			slog.Int("n", i+1),
			slog.Int("total", len(chunks)),
			slog.String("source", c.SourcePath),
		)
		ec, err := e.Enrich(ctx, c)
		if err != nil {
			return out, err
		}
		if !ec.Enriched {
			log.Warn("enrich: using original text for chunk",
				slog.Int("chunk", c.Index),
				slog.String("summary", ec.ContextSummary),
			)
		}
		out = append(out, ec)
	}
	return out, nil
}

// degraded builds the fallback enriched chunk.
func (e *Enricher) degraded(chunk rag.Chunk, sentinel string) rag.EnrichedChunk {
	e.metrics.EnrichDegraded()
	return rag.EnrichedChunk{
		Chunk:          chunk,
		ContextSummary: sentinel,
		IndexedText:    chunk.Text,
		Enriched:       false,
	}
}
