// Package chunker splits document text into overlapping, bounded-length
// chunks. Splitting is deterministic: the same text and settings always yield
// the same chunks with the same offsets.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

const (
	// DefaultSize is the maximum chunk length in characters.
	DefaultSize = 1000
	// DefaultOverlap is the number of characters shared by adjacent chunks.
	DefaultOverlap = 200
)

// separators are tried in order when looking for a place to end a chunk.
var separators = []string{"\n\n", "\n", " "}

// Splitter cuts text into chunks of at most Size runes, preferring paragraph,
// then line, then word boundaries, with roughly Overlap runes repeated
// between consecutive chunks.
type Splitter struct {
	// size is the maximum chunk length in runes.
	size int
	// overlap is the target number of runes repeated from the previous chunk.
	overlap int
}

// New returns a Splitter. size must be positive and overlap must be in
// [0, size).
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunker: size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunker: overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split chunks a document. Every chunk inherits the document's source path
// and ID. Whitespace-only documents yield no chunks.
func (s *Splitter) Split(doc rag.Document) []rag.Chunk {
	chunks := s.SplitText(doc.RawText)
	for i := range chunks {
		chunks[i].SourcePath = doc.SourcePath
		chunks[i].DocumentID = doc.ID
	}
	return chunks
}

// SplitText chunks raw text. Chunk offsets are rune offsets into text.
func (s *Splitter) SplitText(text string) []rag.Chunk {
	runes := []rune(text)
	n := len(runes)
	start := skipSpace(runes, 0)

	var chunks []rag.Chunk
	for start < n {
		end := min(start+s.size, n)
		if end < n {
			end = s.breakPoint(runes, start, end)
		}

		// Trim trailing whitespace; start is never whitespace so this
		// leaves at least one rune.
		stop := end
		for stop > start && unicode.IsSpace(runes[stop-1]) {
			stop--
		}
		chunks = append(chunks, rag.Chunk{
			Index:  len(chunks),
			Text:   string(runes[start:stop]),
			Offset: start,
		})

		if end >= n {
			break
		}
		start = s.nextStart(runes, start, end)
	}
	return chunks
}

// breakPoint returns where a chunk that starts at start and may extend to end
// should stop. A cut is only accepted in the second half of the window so
// chunks stay close to the target size.
func (s *Splitter) breakPoint(runes []rune, start, end int) int {
	if unicode.IsSpace(runes[end]) || unicode.IsSpace(runes[end-1]) {
		return end
	}
	floor := start + s.size/2
	window := string(runes[floor:end])
	for _, sep := range separators {
		if i := strings.LastIndex(window, sep); i > 0 {
			return floor + len([]rune(window[:i]))
		}
	}
	return end
}

// nextStart returns the start of the chunk following [start, end): end minus
// the overlap, moved forward to the beginning of a word so the overlap never
// begins mid-word, then past any whitespace. It always makes progress.
func (s *Splitter) nextStart(runes []rune, start, end int) int {
	next := end - s.overlap
	if next <= start {
		next = end
	}
	for next < end && next > 0 && !unicode.IsSpace(runes[next-1]) {
		next++
	}
	next = skipSpace(runes, next)
	if next <= start {
		next = skipSpace(runes, end)
	}
	return next
}

// skipSpace returns the first index at or after i that is not whitespace.
func skipSpace(runes []rune, i int) int {
	for i < len(runes) && unicode.IsSpace(runes[i]) {
		i++
	}
	return i
}

// Reassemble rebuilds the text covered by chunks from a single document,
// dropping the overlapping prefix of each chunk. Whitespace between chunks is
// collapsed to a single space, so the result equals the source text modulo
// whitespace.
func Reassemble(chunks []rag.Chunk) string {
	var b strings.Builder
	covered := 0
	for i, c := range chunks {
		r := []rune(c.Text)
		skip := 0
		if i > 0 {
			if c.Offset > covered {
				b.WriteByte(' ')
			} else {
				skip = min(covered-c.Offset, len(r))
			}
		}
		b.WriteString(string(r[skip:]))
		covered = max(covered, c.Offset+len(r))
	}
	return b.String()
}
