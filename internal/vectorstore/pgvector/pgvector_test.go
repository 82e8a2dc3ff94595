package pgvector

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/spigell/screener/internal/retrieval"
)

func TestNewValidatesArguments(t *testing.T) {
	db := &gorm.DB{}

	if _, err := New(context.Background(), nil, "", 3); err == nil {
		t.Fatal("expected error for nil db")
	}
	if _, err := New(context.Background(), db, "chunks; DROP TABLE x", 3); err == nil {
		t.Fatal("expected error for invalid table name")
	}
	if _, err := New(context.Background(), db, "chunks", 0); err == nil {
		t.Fatal("expected error for zero dimensions")
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	s := &Store{table: DefaultTable, dimensions: 3}

	if _, err := s.Search(context.Background(), []float32{1}, 1); !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if err := s.Upsert(context.Background(), []retrieval.Chunk{{ID: "a", Embedding: []float32{1}}}); !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestRecordConversion(t *testing.T) {
	chunk := retrieval.Chunk{ID: "a", Source: "cv.pdf", ChunkIndex: 2, Text: "Go", Embedding: []float32{0.5, 0.25}}

	back := toChunk(toRecord(chunk))
	if back.ID != chunk.ID || back.Source != chunk.Source || back.ChunkIndex != 2 || back.Text != "Go" {
		t.Fatalf("unexpected chunk: %+v", back)
	}
	if len(back.Embedding) != 2 || back.Embedding[1] != 0.25 {
		t.Fatalf("unexpected embedding: %v", back.Embedding)
	}
}

// TestStoreAgainstPostgres runs when SCREENER_TEST_PG_DSN points at a database
// with the pgvector extension available.
func TestStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("SCREENER_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("SCREENER_TEST_PG_DSN is not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	table := "test_chunks_" + uuid.NewString()[:8]
	t.Cleanup(func() { db.Exec("DROP TABLE IF EXISTS " + table) })

	ctx := context.Background()
	s, err := New(ctx, db, table, 2)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	chunks := []retrieval.Chunk{
		{ID: uuid.NewString(), Source: "cv.md", ChunkIndex: 0, Text: "Go", Embedding: []float32{1, 0}},
		{ID: uuid.NewString(), Source: "cv.md", ChunkIndex: 1, Text: "Rust", Embedding: []float32{0, 1}},
	}
	if err := s.Upsert(ctx, chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	matches, err := s.Search(ctx, []float32{1, 0.1}, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(matches) != 1 || matches[0].Text != "Go" {
		t.Fatalf("unexpected matches: %+v", matches)
	}

	_, err = s.ReplaceSource(ctx, "cv.md", []retrieval.Chunk{
		{ID: uuid.NewString(), Source: "cv.md", ChunkIndex: 0, Text: "Zig", Embedding: []float32{1}},
	})
	if !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if count, _ := s.Count(ctx); count != 2 {
		t.Fatalf("failed replace must keep old chunks, got %d", count)
	}

	replaced, err := s.ReplaceSource(ctx, "cv.md", []retrieval.Chunk{
		{ID: uuid.NewString(), Source: "cv.md", ChunkIndex: 0, Text: "Zig", Embedding: []float32{1, 0}},
	})
	if err != nil || replaced != 2 {
		t.Fatalf("replace: %d %v", replaced, err)
	}

	deleted, err := s.DeleteBySource(ctx, "cv.md")
	if err != nil || deleted != 1 {
		t.Fatalf("delete: %d %v", deleted, err)
	}
}
