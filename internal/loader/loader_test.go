package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapExtractor map[string]string

func (m mapExtractor) Extract(_ context.Context, path string) (string, error) {
	text, ok := m[filepath.Base(path)]
	if !ok {
		return "", errors.New("malformed PDF")
	}
	return text, nil
}

func touch(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestResolve_SingleFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := touch(t, dir, "notes.txt", "x")

	got, err := Resolve(p)
	require.NoError(t, err)
	assert.Equal(t, []string{p}, got)
}

func TestResolve_DirectoryIsNonRecursiveAndCaseInsensitive(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	touch(t, dir, "b.pdf", "x")
	touch(t, dir, "A.PDF", "x")
	touch(t, dir, "readme.md", "x")
	touch(t, dir, "c.Pdf", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	touch(t, filepath.Join(dir, "nested"), "deep.pdf", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.pdf"), 0o755))

	got, err := Resolve(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "A.PDF"),
		filepath.Join(dir, "b.pdf"),
		filepath.Join(dir, "c.Pdf"),
	}, got)
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	_, err := Resolve(filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	dir := t.TempDir()
	touch(t, dir, "only.txt", "x")
	_, err = Resolve(dir)
	assert.ErrorIs(t, err, ErrNoPDFs)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	l := New(mapExtractor{"good.pdf": "Some text.", "blank.pdf": " \n\t "})

	doc, err := l.Load(context.Background(), "/data/good.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/data/good.pdf", doc.SourcePath)
	assert.Equal(t, "Some text.", doc.RawText)
	assert.Len(t, doc.ID, 64)

	_, err = l.Load(context.Background(), "/data/blank.pdf")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = l.Load(context.Background(), "/data/corrupt.pdf")
	assert.ErrorContains(t, err, "malformed PDF")
}

func TestTabulaExtractor_RejectsCorruptFile(t *testing.T) {
	t.Parallel()
	p := touch(t, t.TempDir(), "corrupt.pdf", "this is not a PDF file")

	_, err := New(nil).Load(context.Background(), p)
	assert.Error(t, err)
}

func TestTabulaExtractor_CancelledContext(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := TabulaExtractor{}.Extract(ctx, "unused.pdf")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsPDF(t *testing.T) {
	t.Parallel()
	assert.True(t, IsPDF("x.pdf"))
	assert.True(t, IsPDF("X.PDF"))
	assert.False(t, IsPDF("x.pdf.txt"))
	assert.False(t, IsPDF("pdf"))
}
