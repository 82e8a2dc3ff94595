// Package memory is an in-process vector index for development and tests.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/spigell/screener/internal/retrieval"
)

// Store keeps chunks in memory and answers exact cosine-similarity queries.
type Store struct {
	mu         sync.RWMutex
	dimensions int
	chunks     map[string]retrieval.Chunk
}

// New creates a Store. A zero dimensions value is fixed by the first upsert.
func New(dimensions int) *Store {
	return &Store{dimensions: dimensions, chunks: make(map[string]retrieval.Chunk)}
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]retrieval.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d", retrieval.ErrDimensionMismatch, len(vector), s.dimensions)
	}

	matches := make([]retrieval.Match, 0, len(s.chunks))
	for _, chunk := range s.chunks {
		matches = append(matches, retrieval.Match{Chunk: chunk, Score: cosine(vector, chunk.Embedding)})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Source != matches[j].Source {
			return matches[i].Source < matches[j].Source
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (s *Store) Upsert(ctx context.Context, chunks []retrieval.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dims, err := s.check(chunks)
	if err != nil {
		return err
	}
	s.put(dims, chunks)
	return nil
}

func (s *Store) DeleteBySource(ctx context.Context, source string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteSource(source), nil
}

// ReplaceSource swaps the chunks of source under one lock. Invalid chunks
// leave the previous ones in place.
func (s *Store) ReplaceSource(ctx context.Context, source string, chunks []retrieval.Chunk) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dims, err := s.check(chunks)
	if err != nil {
		return 0, err
	}
	deleted := s.deleteSource(source)
	s.put(dims, chunks)
	return deleted, nil
}

// check returns the index dimension after chunks are written. Callers hold mu.
func (s *Store) check(chunks []retrieval.Chunk) (int, error) {
	dims := s.dimensions
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return 0, fmt.Errorf("chunk %s#%d has no id", chunk.Source, chunk.ChunkIndex)
		}
		if dims == 0 {
			dims = len(chunk.Embedding)
		}
		if len(chunk.Embedding) != dims {
			return 0, fmt.Errorf("%w: chunk %s has %d, index has %d", retrieval.ErrDimensionMismatch, chunk.ID, len(chunk.Embedding), dims)
		}
	}
	return dims, nil
}

func (s *Store) put(dims int, chunks []retrieval.Chunk) {
	s.dimensions = dims
	for _, chunk := range chunks {
		chunk.Embedding = append([]float32(nil), chunk.Embedding...)
		s.chunks[chunk.ID] = chunk
	}
}

func (s *Store) deleteSource(source string) int64 {
	var deleted int64
	for id, chunk := range s.chunks {
		if chunk.Source == source {
			delete(s.chunks, id)
			deleted++
		}
	}
	return deleted
}

func (s *Store) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.chunks)), nil
}

func cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
