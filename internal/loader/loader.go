// Package loader resolves PDF input paths and extracts their text into
// rag.Documents.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tsawler/tabula"

	"github.com/54b3r/pdfrag-go/internal/logging"
	"github.com/54b3r/pdfrag-go/internal/rag"
)

var (
	// ErrNoPDFs is returned by Resolve for a directory with no PDF files.
	ErrNoPDFs = errors.New("loader: no PDF files found")
	// ErrNoText is returned by Load when extraction yields only whitespace,
	// typically a scanned PDF without a text layer.
	ErrNoText = errors.New("loader: document has no extractable text")
)

// Resolve expands path into the list of PDF files to load. A regular file is
// returned as is. A directory is scanned non-recursively for entries whose
// name ends in ".pdf" in any letter case; results are sorted by name.
func Resolve(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read dir %s: %w", path, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !IsPDF(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(path, e.Name()))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoPDFs, path)
	}
	sort.Strings(out)
	return out, nil
}

// IsPDF reports whether name has a .pdf extension, ignoring case.
func IsPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Extractor returns the plain text of one file.
type Extractor interface {
	Extract(ctx context.Context, path string) (string, error)
}

// TabulaExtractor extracts text with github.com/tsawler/tabula.
type TabulaExtractor struct {
	// JoinParagraphs merges lines wrapped inside a paragraph.
	JoinParagraphs bool
}

// Extract implements Extractor. Recoverable parse problems reported by
// tabula are logged at warn level.
func (x TabulaExtractor) Extract(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	ext := tabula.Open(path)
	if x.JoinParagraphs {
		ext = ext.JoinParagraphs()
	}
	text, warnings, err := ext.Text()
	if err != nil {
		return "", err
	}
	if len(warnings) > 0 {
		logging.FromContext(ctx).Warn("loader: extraction warnings",
			slog.String("path", path),
			slog.Int("count", len(warnings)),
			slog.Any("warnings", tabula.FormatWarnings(warnings)),
		)
	}
	return text, nil
}

// Loader turns files into documents.
type Loader struct {
	extractor Extractor
}

// New returns a Loader using x. A nil x selects TabulaExtractor.
func New(x Extractor) *Loader {
	if x == nil {
		x = TabulaExtractor{JoinParagraphs: true}
	}
	return &Loader{extractor: x}
}

// Load extracts path into a Document whose ID is the SHA-256 of its text.
func (l *Loader) Load(ctx context.Context, path string) (rag.Document, error) {
	text, err := l.extractor.Extract(ctx, path)
	if err != nil {
		return rag.Document{}, fmt.Errorf("loader: extract %s: %w", path, err)
	}
	if strings.TrimSpace(text) == "" {
		return rag.Document{}, fmt.Errorf("%w: %s", ErrNoText, path)
	}
	return rag.NewDocument(path, text), nil
}
