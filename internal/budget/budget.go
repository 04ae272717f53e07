// Package budget estimates token usage and trims conversation history so the
// answer prompt fits the model's context window. Backends use different
// tokenizers, so the estimate is a character heuristic: 1 token ≈ 4
// characters of English prose.
package budget

import (
	"github.com/54b3r/pdfrag-go/internal/rag"
)

const (
	// charsPerToken is the character-to-token ratio used for estimation.
	charsPerToken = 4

	// turnOverhead approximates the per-turn "Role: " prefix and separator.
	turnOverhead = 4

	// DefaultMaxHistoryTokens is the default history budget for one prompt.
	DefaultMaxHistoryTokens = 6000
)

// Estimate returns a rough token count for s.
func Estimate(s string) int {
	n := len(s) / charsPerToken
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}

// EstimateTurns returns the estimated token count of turns, including a
// small overhead per turn.
func EstimateTurns(turns []rag.Turn) int {
	total := 0
	for _, t := range turns {
		total += turnOverhead
		total += Estimate(string(t.Role))
		total += Estimate(t.Content)
	}
	return total
}

// TrimTurns returns the longest suffix of turns whose estimate fits within
// maxTokens. Oldest turns are dropped first. The input slice is not modified;
// the result may share its backing array. A non-positive maxTokens disables
// trimming.
func TrimTurns(turns []rag.Turn, maxTokens int) []rag.Turn {
	if maxTokens <= 0 {
		return turns
	}
	for len(turns) > 0 && EstimateTurns(turns) > maxTokens {
		turns = turns[1:]
	}
	return turns
}
