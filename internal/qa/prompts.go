package qa

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// NoHistory stands in for an empty transcript inside prompts.
const NoHistory = "No prior conversation."

// FormatHistory renders turns as newline-joined "Role: content" lines with
// the role capitalised. An empty history yields NoHistory.
func FormatHistory(turns []rag.Turn) string {
	if len(turns) == 0 {
		return NoHistory
	}
	lines := make([]string, len(turns))
	for i, t := range turns {
		lines[i] = capitalise(string(t.Role)) + ": " + t.Content
	}
	return strings.Join(lines, "\n")
}

// ReformulationPrompt asks the model to rewrite question as a standalone
// search query given the transcript.
func ReformulationPrompt(transcript, question string) string {
	return "Given the conversation history and the current question, generate a search query " +
		"that captures the full context needed to answer the current question accurately.\n\n" +
		"Conversation History:\n" + transcript + "\n\n" +
		"Current Question: " + question + "\n\n" +
		"Reformulated Search Query:"
}

// ContextualAnswerPrompt grounds the answer in context and the transcript.
func ContextualAnswerPrompt(context, transcript, question string) string {
	return "You are a helpful assistant that provides accurate information based on the context provided.\n\n" +
		"Answer the question based on the following context and conversation history:\n\n" +
		"Context:\n" + context + "\n\n" +
		"Conversation History:\n" + transcript + "\n\n" +
		"Question: " + question + "\n\n" +
		"Provide a comprehensive and accurate answer using only the information in the context."
}

// SimpleAnswerPrompt grounds the answer in context only.
func SimpleAnswerPrompt(context, question string) string {
	return "Answer the question based only on the following context:\n" +
		context + "\n\n" +
		"Question: " + question
}

// JoinContext concatenates the original text of each result, separated by a
// blank line. Enrichment summaries never reach the answer prompt.
func JoinContext(results []rag.SearchResult) string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Chunk.Text
	}
	return strings.Join(texts, "\n\n")
}

func capitalise(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
