package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/retrieval"
)

const (
	DefaultChunkSize   = 1000
	defaultConcurrency = 4
	defaultBatchSize   = 16
)

type Config struct {
	ChunkSize   int
	Concurrency int
	BatchSize   int
	// RatePerSecond limits embedding requests. Zero disables limiting.
	RatePerSecond float64
}

// Report summarises one ingestion run.
type Report struct {
	Files   int
	Skipped int
	Chunks  int
	Deleted int64
}

// Ingester turns a directory of documents into indexed chunks. Re-running it
// replaces the chunks of every source it reads.
type Ingester struct {
	embedder ai.Embedder
	index    retrieval.Index
	config   Config
	limiter  *rate.Limiter
	extract  func(path string) (string, error)
	newID    func() string
	logger   *zap.Logger
}

func New(embedder ai.Embedder, index retrieval.Index, cfg Config, logger *zap.Logger) (*Ingester, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}

	return &Ingester{
		embedder: embedder,
		index:    index,
		config:   cfg,
		limiter:  limiter,
		extract:  ExtractText,
		newID:    uuid.NewString,
		logger:   logger,
	}, nil
}

// Run ingests every regular file directly under dir.
func (in *Ingester) Run(ctx context.Context, dir string) (Report, error) {
	var report Report

	entries, err := os.ReadDir(dir)
	if err != nil {
		return report, fmt.Errorf("read source dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		source := entry.Name()
		text, err := in.extract(filepath.Join(dir, source))
		if err != nil {
			if errors.Is(err, ErrUnsupported) {
				in.logger.Warn("skipping source", zap.String("source", source), zap.Error(err))
				report.Skipped++
				continue
			}
			return report, err
		}

		if strings.TrimSpace(text) == "" {
			in.logger.Warn("skipping source without text", zap.String("source", source))
			report.Skipped++
			continue
		}

		written, deleted, err := in.ingestSource(ctx, source, text)
		if err != nil {
			return report, fmt.Errorf("ingest %s: %w", source, err)
		}

		report.Files++
		report.Chunks += written
		report.Deleted += deleted

		in.logger.Info("source ingested",
			zap.String("source", source),
			zap.Int("chunks", written),
			zap.Int64("replaced", deleted),
		)
	}

	return report, nil
}

func (in *Ingester) ingestSource(ctx context.Context, source, text string) (int, int64, error) {
	pieces, err := Chunk(text, in.config.ChunkSize)
	if err != nil {
		return 0, 0, err
	}

	// Whitespace-only slices keep their position but are not indexed.
	chunks := make([]retrieval.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		if strings.TrimSpace(piece) == "" {
			continue
		}
		chunks = append(chunks, retrieval.Chunk{ID: in.newID(), Source: source, ChunkIndex: i, Text: piece})
	}

	if err := in.embed(ctx, chunks); err != nil {
		return 0, 0, err
	}

	deleted, err := in.index.ReplaceSource(ctx, source, chunks)
	if err != nil {
		return 0, 0, err
	}
	return len(chunks), deleted, nil
}

// embed fills in embeddings batch by batch. Batches write disjoint ranges.
func (in *Ingester) embed(ctx context.Context, chunks []retrieval.Chunk) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(in.config.Concurrency)

	for start := 0; start < len(chunks); start += in.config.BatchSize {
		end := min(start+in.config.BatchSize, len(chunks))
		batch := chunks[start:end]

		g.Go(func() error {
			if err := in.limiter.Wait(ctx); err != nil {
				return err
			}

			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.Text
			}

			vectors, err := in.embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("embed chunks %d-%d: %w", batch[0].ChunkIndex, batch[len(batch)-1].ChunkIndex, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vectors[i]
			}
			return nil
		})
	}

	return g.Wait()
}
