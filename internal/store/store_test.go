package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/54b3r/pdfrag-go/internal/rag"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func user(c string) rag.Turn      { return rag.Turn{Role: rag.RoleUser, Content: c} }
func assistant(c string) rag.Turn { return rag.Turn{Role: rag.RoleAssistant, Content: c} }

func Test_Store_AppendAndHistory(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "s1", user("hello")); err != nil {
		t.Fatalf("append user: %v", err)
	}
	if err := s.Append(ctx, "s1", assistant("world")); err != nil {
		t.Fatalf("append assistant: %v", err)
	}

	turns, err := s.History(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("want 2 turns, got %d", len(turns))
	}
	if turns[0] != user("hello") {
		t.Errorf("turn[0]: want user/hello, got %s/%s", turns[0].Role, turns[0].Content)
	}
	if turns[1] != assistant("world") {
		t.Errorf("turn[1]: want assistant/world, got %s/%s", turns[1].Role, turns[1].Content)
	}
}

func Test_Store_HistoryLimitKeepsMostRecent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	for _, c := range []string{"1", "2", "3", "4", "5", "6"} {
		if err := s.Append(ctx, "s", user(c)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	turns, err := s.History(ctx, "s", 4)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(turns) != 4 || turns[0].Content != "3" || turns[3].Content != "6" {
		t.Errorf("want turns 3..6 oldest first, got %v", turns)
	}

	all, err := s.History(ctx, "s", 0)
	if err != nil {
		t.Fatalf("history all: %v", err)
	}
	if len(all) != 6 {
		t.Errorf("want all 6 turns, got %d", len(all))
	}
}

func Test_Store_SessionIsolation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, "x", user("from x")); err != nil {
		t.Fatalf("append x: %v", err)
	}
	if err := s.Append(ctx, "y", user("from y")); err != nil {
		t.Fatalf("append y: %v", err)
	}

	tx, _ := s.History(ctx, "x", 10)
	ty, _ := s.History(ctx, "y", 10)
	if len(tx) != 1 || tx[0].Content != "from x" {
		t.Errorf("session x isolation failed: got %v", tx)
	}
	if len(ty) != 1 || ty[0].Content != "from y" {
		t.Errorf("session y isolation failed: got %v", ty)
	}

	empty, err := s.History(ctx, "none", 10)
	if err != nil {
		t.Fatalf("history empty: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("want 0 turns, got %d", len(empty))
	}
}

func Test_Store_Ledger(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.Indexed(ctx, "contextual", "abc")
	if err != nil || ok {
		t.Fatalf("want not indexed, got %v, %v", ok, err)
	}

	rec := DocumentRecord{Collection: "contextual", DocumentID: "abc", SourcePath: "a.pdf", Chunks: 3}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok, _ := s.Indexed(ctx, "contextual", "abc"); !ok {
		t.Error("want indexed after record")
	}
	if ok, _ := s.Indexed(ctx, "simple", "abc"); ok {
		t.Error("ledger must be scoped per collection")
	}

	rec.Chunks = 5
	rec.SourcePath = "renamed.pdf"
	if err := s.Record(ctx, rec); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	docs, err := s.Documents(ctx, "contextual")
	if err != nil {
		t.Fatalf("documents: %v", err)
	}
	if len(docs) != 1 || docs[0].Chunks != 5 || docs[0].SourcePath != "renamed.pdf" {
		t.Errorf("want one updated record, got %+v", docs)
	}
	if time.Since(docs[0].IndexedAt) > time.Minute {
		t.Errorf("indexed_at not set: %v", docs[0].IndexedAt)
	}
}

func Test_Store_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path, err := PathIn(filepath.Join(t.TempDir(), "vector_db"))
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Record(ctx, DocumentRecord{Collection: "c", DocumentID: "d", SourcePath: "p", Chunks: 1}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := s.Append(ctx, "s", user("q")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if ok, _ := s.Indexed(ctx, "c", "d"); !ok {
		t.Error("ledger entry lost across reopen")
	}
	if turns, _ := s.History(ctx, "s", 0); len(turns) != 1 {
		t.Errorf("history lost across reopen: %v", turns)
	}
	if err := s.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}
