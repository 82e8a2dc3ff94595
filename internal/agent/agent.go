package agent

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/prompts"
	"github.com/spigell/screener/internal/threads"
)

const (
	defaultTopK         = 4
	defaultHistoryLimit = 20
	defaultMaxLogLength = 200
	maxFocusRunes       = 1000
)

// Retriever supplies background context for a query.
type Retriever interface {
	Context(ctx context.Context, query string, topK int) string
}

// ThreadStore persists conversation state.
type ThreadStore interface {
	Begin(ctx context.Context, id string, now time.Time) (*threads.Thread, threads.Continuity, error)
	History(ctx context.Context, id string, limit int) ([]threads.Turn, error)
	AppendTurns(ctx context.Context, turns ...threads.Turn) error
	SaveState(ctx context.Context, id string, state threads.State) error
}

// Escalation is an opportunity handed to the human approval path.
type Escalation struct {
	ThreadID       string
	Summary        string
	JobDescription string
	CustomFocus    string
}

type EscalationResult struct {
	Delivered   bool
	ArtifactRef string
}

// Escalator requests human approval and, once delivered, produces the document.
type Escalator interface {
	Escalate(ctx context.Context, req Escalation) (EscalationResult, error)
}

type Config struct {
	// MinimumFitScore downgrades positive analyses scoring below it.
	MinimumFitScore float64
	TopK            int
	HistoryLimit    int
	// FocusAreas is the owner's advisory description of target roles.
	FocusAreas   string
	ModelTimeout time.Duration
	MaxLogLength int
}

// Agent analyses opportunities and negotiates with recruiters.
type Agent struct {
	generator ai.Generator
	retriever Retriever
	store     ThreadStore
	prompts   *prompts.Set
	escalator Escalator
	config    Config
	now       func() time.Time
	logger    *zap.Logger
}

// New creates an Agent. store and escalator are needed only by Converse.
func New(generator ai.Generator, retriever Retriever, store ThreadStore, set *prompts.Set, escalator Escalator, cfg Config, logger *zap.Logger) (*Agent, error) {
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if set == nil {
		return nil, errors.New("prompt set is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.MaxLogLength <= 0 {
		cfg.MaxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Agent{
		generator: generator,
		retriever: retriever,
		store:     store,
		prompts:   set,
		escalator: escalator,
		config:    cfg,
		now:       time.Now,
		logger:    logger,
	}, nil
}
