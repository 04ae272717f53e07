package chunker

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// randomText builds a deterministic pseudo-random document with words,
// lines, paragraphs and the occasional very long token.
func randomText(seed uint64, words int) string {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	vocab := []string{"pdf", "vector", "chunk", "retrieval", "über", "naïve", "context", "a", "of", "summary", "λόγος"}
	var b strings.Builder
	for i := range words {
		if r.IntN(40) == 0 {
			b.WriteString(strings.Repeat("x", 50+r.IntN(300)))
		} else {
			b.WriteString(vocab[r.IntN(len(vocab))])
		}
		switch n := r.IntN(30); {
		case n == 0:
			b.WriteString("\n\n")
		case n == 1:
			b.WriteString("\n")
		case n == 2 && i%7 == 0:
			b.WriteString("  \t ")
		default:
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		size, overlap int
		wantErr       bool
	}{
		{"defaults", DefaultSize, DefaultOverlap, false},
		{"no overlap", 10, 0, false},
		{"zero size", 0, 0, true},
		{"negative overlap", 10, -1, true},
		{"overlap equals size", 10, 10, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.size, tc.overlap)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitText_Empty(t *testing.T) {
	t.Parallel()

	s, err := New(100, 20)
	require.NoError(t, err)
	assert.Empty(t, s.SplitText(""))
	assert.Empty(t, s.SplitText("   \n\n\t  "))
}

func TestSplitText_ShortTextIsOneChunk(t *testing.T) {
	t.Parallel()

	s, err := New(100, 20)
	require.NoError(t, err)
	chunks := s.SplitText("  The capital of France is Paris.  ")
	require.Len(t, chunks, 1)
	assert.Equal(t, "The capital of France is Paris.", chunks[0].Text)
	assert.Equal(t, 2, chunks[0].Offset)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitText_PrefersParagraphBreak(t *testing.T) {
	t.Parallel()

	s, err := New(40, 0)
	require.NoError(t, err)
	text := "first paragraph is here.\n\nsecond paragraph follows on."
	chunks := s.SplitText(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "first paragraph is here.", chunks[0].Text)
	assert.True(t, strings.HasPrefix(chunks[1].Text, "second"))
}

func TestSplitText_OverlapStartsOnWordBoundary(t *testing.T) {
	t.Parallel()

	s, err := New(30, 10)
	require.NoError(t, err)
	text := "alpha bravo charlie delta echo foxtrot golf hotel india juliet kilo lima"
	chunks := s.SplitText(text)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks[1:] {
		assert.True(t, c.Offset == 0 || text[c.Offset-1] == ' ', "chunk %d starts mid-word: %q", c.Index, c.Text)
	}
	// Adjacent chunks share text.
	assert.True(t, chunks[1].Offset < chunks[0].Offset+len(chunks[0].Text))
}

func TestSplitText_Properties(t *testing.T) {
	t.Parallel()

	configs := []struct{ size, overlap int }{
		{DefaultSize, DefaultOverlap},
		{100, 20},
		{37, 12},
		{10, 0},
		{8, 7},
	}
	for seed := uint64(1); seed <= 12; seed++ {
		text := randomText(seed, 400)
		runes := []rune(text)
		for _, cfg := range configs {
			s, err := New(cfg.size, cfg.overlap)
			require.NoError(t, err)
			chunks := s.SplitText(text)
			require.NotEmpty(t, chunks)

			for i, c := range chunks {
				r := []rune(c.Text)
				assert.Equal(t, i, c.Index)
				assert.LessOrEqual(t, len(r), cfg.size)
				assert.NotEmpty(t, strings.TrimSpace(c.Text))
				assert.Equal(t, c.Text, string(runes[c.Offset:c.Offset+len(r)]), "offset mismatch")
				if i > 0 {
					assert.Greater(t, c.Offset, chunks[i-1].Offset, "offsets must increase")
				}
			}

			// Reconstruction modulo whitespace.
			assert.Equal(t, strings.Fields(text), strings.Fields(Reassemble(chunks)),
				"seed=%d size=%d overlap=%d", seed, cfg.size, cfg.overlap)

			// Determinism.
			assert.Equal(t, chunks, s.SplitText(text))
		}
	}
}

func TestSplit_InheritsDocumentFields(t *testing.T) {
	t.Parallel()

	s, err := New(20, 5)
	require.NoError(t, err)
	doc := rag.NewDocument("papers/a.pdf", "one two three four five six seven eight nine ten")
	chunks := s.Split(doc)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "papers/a.pdf", c.SourcePath)
		assert.Equal(t, doc.ID, c.DocumentID)
	}
}
