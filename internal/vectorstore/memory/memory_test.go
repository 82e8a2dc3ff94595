package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spigell/screener/internal/retrieval"
)

func seed(t *testing.T, s *Store) {
	t.Helper()
	err := s.Upsert(context.Background(), []retrieval.Chunk{
		{ID: "1", Source: "cv.md", ChunkIndex: 0, Text: "Go and Kubernetes", Embedding: []float32{1, 0}},
		{ID: "2", Source: "cv.md", ChunkIndex: 1, Text: "Blockchain", Embedding: []float32{0, 1}},
		{ID: "3", Source: "notes.txt", ChunkIndex: 0, Text: "Remote only", Embedding: []float32{0.7, 0.7}},
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSearchRanksByCosine(t *testing.T) {
	s := New(2)
	seed(t, s)

	matches, err := s.Search(context.Background(), []float32{1, 0.1}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != "1" || matches[1].ID != "3" {
		t.Fatalf("unexpected order: %s, %s", matches[0].ID, matches[1].ID)
	}
	if matches[0].Score < matches[1].Score {
		t.Fatal("scores must be descending")
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	matches, err := New(3).Search(context.Background(), []float32{1, 2}, 5)
	if err != nil || len(matches) != 0 {
		t.Fatalf("expected empty result, got %v %v", matches, err)
	}
}

func TestDimensionMismatch(t *testing.T) {
	s := New(0)
	seed(t, s)

	if _, err := s.Search(context.Background(), []float32{1, 0, 0}, 1); !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}

	err := s.Upsert(context.Background(), []retrieval.Chunk{{ID: "x", Embedding: []float32{1}}})
	if !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch on upsert, got %v", err)
	}
}

func TestDeleteBySourceAndCount(t *testing.T) {
	s := New(2)
	seed(t, s)

	deleted, err := s.DeleteBySource(context.Background(), "cv.md")
	if err != nil || deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d (%v)", deleted, err)
	}

	count, _ := s.Count(context.Background())
	if count != 1 {
		t.Fatalf("expected 1 chunk left, got %d", count)
	}
}

func TestReplaceSourceKeepsOldChunksOnInvalidInput(t *testing.T) {
	s := New(2)
	seed(t, s)

	_, err := s.ReplaceSource(context.Background(), "cv.md", []retrieval.Chunk{
		{ID: "4", Source: "cv.md", ChunkIndex: 0, Text: "new", Embedding: []float32{1, 0}},
		{ID: "5", Source: "cv.md", ChunkIndex: 1, Text: "broken", Embedding: []float32{1}},
	})
	if !errors.Is(err, retrieval.ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if count, _ := s.Count(context.Background()); count != 3 {
		t.Fatalf("previous chunks must survive a failed replace, got %d", count)
	}

	deleted, err := s.ReplaceSource(context.Background(), "cv.md", []retrieval.Chunk{
		{ID: "4", Source: "cv.md", ChunkIndex: 0, Text: "new", Embedding: []float32{1, 0}},
	})
	if err != nil || deleted != 2 {
		t.Fatalf("expected 2 replaced, got %d (%v)", deleted, err)
	}
	if count, _ := s.Count(context.Background()); count != 2 {
		t.Fatalf("expected 2 chunks after replace, got %d", count)
	}
}

func TestConcurrentSearch(t *testing.T) {
	s := New(2)
	seed(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Search(context.Background(), []float32{0, 1}, 1); err != nil {
				t.Errorf("search: %v", err)
			}
		}()
	}
	wg.Wait()
}
