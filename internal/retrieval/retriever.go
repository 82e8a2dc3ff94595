package retrieval

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/utils"
)

// Fallback is the context handed to callers when nothing relevant was found.
const Fallback = "No information found."

const defaultTopK = 4

// Passage is one retrieved piece of background text.
type Passage struct {
	Text       string
	Score      float64
	Source     string
	ChunkIndex int
}

// Timeouts bound the external calls made per retrieval.
type Timeouts struct {
	Embedding time.Duration
	Search    time.Duration
}

// Retriever embeds a query and looks it up in an Index. Failures never
// reach the caller; they degrade to an empty result.
type Retriever struct {
	embedder ai.Embedder
	index    Index
	timeouts Timeouts
	logger   *zap.Logger
}

func New(embedder ai.Embedder, index Index, timeouts Timeouts, logger *zap.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if index == nil {
		return nil, errors.New("index is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, index: index, timeouts: timeouts, logger: logger}, nil
}

// Retrieve returns up to topK passages ranked by descending score.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) []Passage {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	if topK <= 0 {
		topK = defaultTopK
	}

	embedCtx, cancel := utils.WithTimeout(ctx, r.timeouts.Embedding)
	vectors, err := r.embedder.Embed(embedCtx, []string{query})
	cancel()
	if err != nil {
		r.logger.Warn("embedding query failed, using empty result", zap.Error(err))
		return nil
	}
	if len(vectors) != 1 {
		r.logger.Warn("embedder returned unexpected result", zap.Int("vectors", len(vectors)))
		return nil
	}

	searchCtx, cancel := utils.WithTimeout(ctx, r.timeouts.Search)
	matches, err := r.index.Search(searchCtx, vectors[0], topK)
	cancel()
	if err != nil {
		r.logger.Warn("vector search failed, using empty result", zap.Error(err))
		return nil
	}

	passages := make([]Passage, 0, len(matches))
	for _, match := range matches {
		if strings.TrimSpace(match.Text) == "" {
			continue
		}
		passages = append(passages, Passage{
			Text:       match.Text,
			Score:      match.Score,
			Source:     match.Source,
			ChunkIndex: match.ChunkIndex,
		})
	}

	r.logger.Debug("retrieved passages", zap.Int("count", len(passages)), zap.Int("top_k", topK))
	return passages
}

// Context joins retrieved passages with blank lines, or returns Fallback.
func (r *Retriever) Context(ctx context.Context, query string, topK int) string {
	return JoinPassages(r.Retrieve(ctx, query, topK))
}

func JoinPassages(passages []Passage) string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		if text := strings.TrimSpace(p.Text); text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return Fallback
	}
	return strings.Join(texts, "\n\n")
}
