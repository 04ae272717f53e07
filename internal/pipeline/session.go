package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

// Answer is the result of one question.
type Answer struct {
	// Question is the question as asked.
	Question string `json:"question"`
	// SearchQuery is the query used for retrieval, after reformulation.
	SearchQuery string `json:"search_query"`
	// Text is the model's answer or an error description.
	Text string `json:"answer"`
	// Sources are the retrieved chunks, best first.
	Sources []rag.SearchResult `json:"-"`
}

// Session is one conversation. Its history is append-only. A Session is
// safe for concurrent use; questions are answered one at a time.
type Session struct {
	p  *Pipeline
	id string

	mu      sync.Mutex
	state   State
	history []rag.Turn
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns StateReady, StateAnswering or StateClosed.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// History returns a copy of the conversation so far.
func (s *Session) History() []rag.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rag.Turn(nil), s.history...)
}

// Close ends the session. Further calls to Ask fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
}

// Ask answers question and appends the user and assistant turns to the
// history. Generation and retrieval failures are reported in the answer
// text; the error is reserved for a closed session and cancellation.
func (s *Session) Ask(ctx context.Context, question string) (Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return Answer{}, ErrSessionClosed
	}
	s.state = StateAnswering
	defer func() {
		if s.state == StateAnswering {
			s.state = StateReady
		}
	}()

	p := s.p
	log := logging.FromContext(ctx).With(
		slog.String("session", s.id),
		slog.String("variant", string(p.cfg.Variant)),
	)

	query := question
	if p.cfg.Variant == VariantContextual {
		query = p.deps.Reformulator.Reformulate(ctx, question, s.history)
	}
	if err := ctx.Err(); err != nil {
		return Answer{}, fmt.Errorf("pipeline: %w", err)
	}

	var text string
	results, err := p.deps.Index.Search(ctx, query, p.cfg.TopK)
	switch {
	case err != nil && ctx.Err() != nil:
		return Answer{}, fmt.Errorf("pipeline: %w", ctx.Err())
	case err != nil:
		log.Error("pipeline: retrieval failed", slog.Any("error", err))
		text = p.deps.Answerer.Failed(err)
	default:
		log.Debug("pipeline: retrieved chunks",
			slog.String("query", query),
			slog.Int("results", len(results)),
		)
		text = p.deps.Answerer.Answer(ctx, question, results, s.history)
	}
	if err := ctx.Err(); err != nil {
		return Answer{}, fmt.Errorf("pipeline: %w", err)
	}

	turns := []rag.Turn{
		{Role: rag.RoleUser, Content: question},
		{Role: rag.RoleAssistant, Content: text},
	}
	s.history = append(s.history, turns...)
	if conv := p.deps.Conversations; conv != nil {
		for _, t := range turns {
			if err := conv.Append(ctx, s.id, t); err != nil {
				log.Warn("pipeline: failed to persist turn", slog.Any("error", err))
				break
			}
		}
	}

	return Answer{
		Question:    question,
		SearchQuery: query,
		Text:        text,
		Sources:     results,
	}, nil
}
