package retrieval

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned by an Index queried or written with a
// vector whose length differs from the index dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Chunk is one positional slice of an ingested source document.
type Chunk struct {
	ID         string
	Source     string
	ChunkIndex int
	Text       string
	Embedding  []float32
}

// Match is a chunk returned by a similarity search. Higher scores are closer.
type Match struct {
	Chunk
	Score float64
}

// Index stores chunk embeddings and answers nearest-neighbour queries.
// Implementations must allow concurrent Search calls.
type Index interface {
	// Search returns at most topK matches ordered by descending score.
	Search(ctx context.Context, vector []float32, topK int) ([]Match, error)
	Upsert(ctx context.Context, chunks []Chunk) error
	// DeleteBySource removes every chunk ingested from source.
	DeleteBySource(ctx context.Context, source string) (int64, error)
	// ReplaceSource swaps every chunk of source for chunks in one step and
	// returns how many were removed. On error the old chunks remain.
	ReplaceSource(ctx context.Context, source string, chunks []Chunk) (int64, error)
	Count(ctx context.Context) (int64, error)
}
