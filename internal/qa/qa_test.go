package qa

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pdfrag-go/internal/provider/providertest"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

func results(texts ...string) []rag.SearchResult {
	out := make([]rag.SearchResult, len(texts))
	for i, t := range texts {
		out[i] = rag.SearchResult{
			Chunk: rag.EnrichedChunk{
				Chunk:          rag.Chunk{Index: i, Text: t},
				ContextSummary: "SUMMARY-" + t,
				IndexedText:    "Context: SUMMARY-" + t + "\n\nContent: " + t,
				Enriched:       true,
			},
			Score: float32(len(texts) - i),
		}
	}
	return out
}

var history = []rag.Turn{
	{Role: rag.RoleUser, Content: "Who wrote the report?"},
	{Role: rag.RoleAssistant, Content: "Alice wrote it."},
}

func TestFormatHistory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, NoHistory, FormatHistory(nil))
	assert.Equal(t, "User: Who wrote the report?\nAssistant: Alice wrote it.", FormatHistory(history))
}

func TestPrompts(t *testing.T) {
	t.Parallel()

	p := ReformulationPrompt("User: hi", "what next?")
	assert.True(t, strings.HasSuffix(p, "Current Question: what next?\n\nReformulated Search Query:"))
	assert.Contains(t, p, "Conversation History:\nUser: hi\n\n")

	p = ContextualAnswerPrompt("CTX", "HIST", "Q?")
	assert.Contains(t, p, "Context:\nCTX\n\n")
	assert.Contains(t, p, "Conversation History:\nHIST\n\n")
	assert.Contains(t, p, "Question: Q?\n\n")
	assert.Contains(t, p, "using only the information in the context")

	assert.Equal(t, "Answer the question based only on the following context:\nCTX\n\nQuestion: Q?",
		SimpleAnswerPrompt("CTX", "Q?"))
}

func TestJoinContext_UsesOriginalText(t *testing.T) {
	t.Parallel()

	got := JoinContext(results("alpha", "beta"))
	assert.Equal(t, "alpha\n\nbeta", got)
	assert.NotContains(t, got, "SUMMARY")
	assert.Empty(t, JoinContext(nil))
}

func TestReformulate_EmptyHistoryMakesNoCall(t *testing.T) {
	t.Parallel()
	gen := providertest.New()

	got := NewReformulator(gen, nil).Reformulate(context.Background(), "What is X?", nil)
	assert.Equal(t, "What is X?", got)
	assert.Zero(t, gen.Calls())
}

func TestReformulate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		step providertest.Step
		want string
	}{
		{"verbatim output", providertest.Step{Text: " report author Alice "}, " report author Alice "},
		{"api error falls back", providertest.Step{Err: errors.New("status 503")}, "When?"},
		{"blank output falls back", providertest.Step{Text: "  \n"}, "When?"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			gen := providertest.New(tc.step)

			got := NewReformulator(gen, nil).Reformulate(context.Background(), "When?", history)
			assert.Equal(t, tc.want, got)
			require.Equal(t, 1, gen.Calls())
			prompt := gen.Prompts()[0]
			assert.Contains(t, prompt, "User: Who wrote the report?\nAssistant: Alice wrote it.")
			assert.Contains(t, prompt, "Current Question: When?")
		})
	}
}

func TestAnswer_Contextual(t *testing.T) {
	t.Parallel()
	gen := providertest.New(providertest.Step{Text: "It was published in 2020."})
	a := NewAnswerer(gen, StyleContextual)

	got := a.Answer(context.Background(), "When?", results("Published 2020.", "By Alice."), history)
	assert.Equal(t, "It was published in 2020.", got)

	require.Equal(t, 1, gen.Calls())
	prompt := gen.Prompts()[0]
	assert.Contains(t, prompt, "Context:\nPublished 2020.\n\nBy Alice.\n\n")
	assert.Contains(t, prompt, "Assistant: Alice wrote it.")
	assert.Contains(t, prompt, "Question: When?")
	assert.NotContains(t, prompt, "SUMMARY")
}

func TestAnswer_ContextualEmptyHistory(t *testing.T) {
	t.Parallel()
	gen := providertest.New(providertest.Step{Text: "ok"})

	NewAnswerer(gen, StyleContextual).Answer(context.Background(), "Q", results("c"), nil)
	assert.Contains(t, gen.Prompts()[0], "Conversation History:\n"+NoHistory)
}

func TestAnswer_SimpleIgnoresHistory(t *testing.T) {
	t.Parallel()
	gen := providertest.New(providertest.Step{Text: "ok"})

	NewAnswerer(gen, StyleSimple).Answer(context.Background(), "Q", results("c1", "c2"), history)
	assert.Equal(t, "Answer the question based only on the following context:\nc1\n\nc2\n\nQuestion: Q", gen.Prompts()[0])
}

func TestAnswer_ErrorIsReturnedInBand(t *testing.T) {
	t.Parallel()
	gen := providertest.New(providertest.Step{Err: errors.New("connection refused")})

	got := NewAnswerer(gen, StyleContextual).Answer(context.Background(), "Q", results("c"), nil)
	assert.Equal(t, "Error generating response: connection refused", got)
}

func TestAnswer_HistoryTrimmedButNotMutated(t *testing.T) {
	t.Parallel()
	long := []rag.Turn{
		{Role: rag.RoleUser, Content: "OLDEST " + strings.Repeat("x", 400)},
		{Role: rag.RoleAssistant, Content: "NEWEST"},
	}
	snapshot := append([]rag.Turn(nil), long...)
	gen := providertest.New(providertest.Step{Text: "ok"})

	a := NewAnswerer(gen, StyleContextual, WithHistoryBudget(20))
	a.Answer(context.Background(), "Q", results("c"), long)

	prompt := gen.Prompts()[0]
	assert.NotContains(t, prompt, "OLDEST")
	assert.Contains(t, prompt, "Assistant: NEWEST")
	assert.Equal(t, snapshot, long)
}

func TestAnswerer_Failed(t *testing.T) {
	t.Parallel()
	a := NewAnswerer(providertest.New(), StyleSimple)
	assert.Equal(t, "Error generating response: index unavailable", a.Failed(errors.New("index unavailable")))
}
