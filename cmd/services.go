package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/agent"
	"github.com/spigell/screener/internal/ai"
	"github.com/spigell/screener/internal/ai/gemini"
	"github.com/spigell/screener/internal/ai/openai"
	"github.com/spigell/screener/internal/database"
	"github.com/spigell/screener/internal/ingest"
	"github.com/spigell/screener/internal/logger"
	"github.com/spigell/screener/internal/notify"
	"github.com/spigell/screener/internal/pipeline"
	"github.com/spigell/screener/internal/prompts"
	"github.com/spigell/screener/internal/resume"
	"github.com/spigell/screener/internal/retrieval"
	"github.com/spigell/screener/internal/safety"
	"github.com/spigell/screener/internal/secrets"
	"github.com/spigell/screener/internal/threads"
	"github.com/spigell/screener/internal/vectorstore/memory"
	"github.com/spigell/screener/internal/vectorstore/pgvector"
)

const (
	providerGemini = "gemini"
	providerOpenAI = "openai"

	vectorMemory   = "memory"
	vectorPgvector = "pgvector"

	storageLocal = "local"
	storageMinio = "minio"
)

// services holds everything the commands need, built from one Config.
type services struct {
	config    *Config
	logger    *zap.Logger
	models    *models
	index     retrieval.Index
	threads   *threads.Store
	agent     *agent.Agent
	pipeline  *pipeline.Pipeline
	publicDir string
}

type models struct {
	generator ai.Generator
	embedder  ai.Embedder
	scorer    ai.Scorer
}

// setup creates the logger and reads the config. Failures here are fatal,
// as in every command.
func setup() (*zap.Logger, *Config) {
	config, err := getConfig()
	if err != nil {
		log.Fatalf("getting a config: %s", err)
	}
	if config == nil {
		log.Fatal("config is required")
	}

	logFile := ""
	if config.Log != nil {
		logFile = config.Log.File
	}

	logger, err := logger.NewWithOptions(logger.Options{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
		File:  logFile,
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

// redacted returns a copy of config that is safe to log.
func redacted(config *Config) Config {
	out := *config
	if config.Resume != nil && config.Resume.Minio != nil {
		resumeCfg := *config.Resume
		minioCfg := *config.Resume.Minio
		if minioCfg.SecretAccessKey != "" {
			minioCfg.SecretAccessKey = "***"
		}
		resumeCfg.Minio = &minioCfg
		out.Resume = &resumeCfg
	}
	return out
}

func newModels(ctx context.Context, cfg *AIConfig, dimensions int, log *zap.Logger) (*models, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = providerGemini
	}

	m := &models{}
	switch provider {
	case providerGemini:
		if cfg.Gemini == nil {
			return nil, errors.New("ai.gemini section is required for the gemini provider")
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name: "gemini api key",
			File: cfg.Gemini.APIKeyFile,
			Env:  "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
		}

		client, err := gemini.NewClient(ctx, apiKey)
		if err != nil {
			return nil, err
		}

		genLogger := logger.WithCommonFields(log, providerGemini, cfg.Gemini.Model).With(
			zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries),
		)
		if m.generator, err = gemini.NewGenerator(client, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger); err != nil {
			return nil, err
		}
		if m.embedder, err = gemini.NewEmbedder(client, cfg.Gemini.EmbeddingModel, dimensions); err != nil {
			return nil, err
		}
	case providerOpenAI:
		if cfg.OpenAI == nil {
			return nil, errors.New("ai.openai section is required for the openai provider")
		}
		client, err := newOpenAIClient(cfg.OpenAI)
		if err != nil {
			return nil, err
		}

		genLogger := logger.WithCommonFields(log, providerOpenAI, cfg.OpenAI.Model).With(
			zap.Int("ai_retry_attempts", cfg.OpenAI.MaxRetries),
		)
		if m.generator, err = openai.NewGenerator(client, cfg.OpenAI.Model, cfg.OpenAI.MaxRetries, genLogger); err != nil {
			return nil, err
		}
		if m.embedder, err = openai.NewEmbedder(client, cfg.OpenAI.EmbeddingModel, dimensions); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	if cfg.OpenAI != nil && cfg.OpenAI.Moderation {
		client, err := newOpenAIClient(cfg.OpenAI)
		if err != nil {
			return nil, fmt.Errorf("moderation scorer: %w", err)
		}
		scorer, err := openai.NewScorer(client, "")
		if err != nil {
			return nil, err
		}
		m.scorer = scorer
	}

	return m, nil
}

func newOpenAIClient(cfg *OpenAIConfig) (*goopenai.Client, error) {
	apiKey, err := secrets.Load(secrets.Source{
		Name: "openai api key",
		File: cfg.APIKeyFile,
		Env:  "OPENAI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.openai.api-key-file or OPENAI_API_KEY)", err)
	}
	return openai.NewClient(apiKey, cfg.BaseURL)
}

// newIndex opens the vector index. The memory index starts empty and is
// filled by an in-process ingestion run.
func newIndex(ctx context.Context, cfg *VectorConfig, dimensions int, log *zap.Logger) (retrieval.Index, error) {
	driver := strings.TrimSpace(strings.ToLower(cfg.Driver))
	switch driver {
	case vectorMemory, "":
		return memory.New(dimensions), nil
	case vectorPgvector:
		db, err := database.Open(database.DriverPostgres, cfg.DSN, log.Named("vector"))
		if err != nil {
			return nil, err
		}
		table := cfg.Table
		if table == "" {
			table = pgvector.DefaultTable
		}
		return pgvector.New(ctx, db, table, dimensions)
	default:
		return nil, fmt.Errorf("unsupported vector driver %q", cfg.Driver)
	}
}

func newArtifactStore(ctx context.Context, cfg *ResumeConfig) (resume.ArtifactStore, string, error) {
	storage := strings.TrimSpace(strings.ToLower(cfg.Storage))
	switch storage {
	case storageLocal, "":
		store, err := resume.NewLocalStore(cfg.PublicDir)
		if err != nil {
			return nil, "", err
		}
		return store, store.Dir(), nil
	case storageMinio:
		if cfg.Minio == nil {
			return nil, "", errors.New("resume.minio section is required for minio storage")
		}
		minioCfg := *cfg.Minio
		secret, err := secrets.Load(secrets.Source{
			Name:  "minio secret access key",
			Env:   "MINIO_SECRET_ACCESS_KEY",
			Value: minioCfg.SecretAccessKey,
		})
		if err != nil {
			return nil, "", err
		}
		minioCfg.SecretAccessKey = secret
		store, err := resume.NewMinioStore(ctx, minioCfg)
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		return nil, "", fmt.Errorf("unsupported resume storage %q", cfg.Storage)
	}
}

func newIngester(m *models, index retrieval.Index, cfg *IngestConfig, log *zap.Logger) (*ingest.Ingester, error) {
	return ingest.New(m.embedder, index, ingest.Config{
		ChunkSize:     cfg.ChunkSize,
		Concurrency:   cfg.Concurrency,
		RatePerSecond: cfg.Rate,
	}, log.Named("ingest"))
}

// newServices wires the full screening stack.
func newServices(ctx context.Context, log *zap.Logger, config *Config) (*services, error) {
	if err := requireSections(config); err != nil {
		return nil, err
	}

	m, err := newModels(ctx, config.AI, config.Embedding.Dimensions, log)
	if err != nil {
		return nil, fmt.Errorf("building ai models: %w", err)
	}

	index, err := newIndex(ctx, config.Vector, config.Embedding.Dimensions, log)
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}

	retriever, err := retrieval.New(m.embedder, index, retrieval.Timeouts{
		Embedding: config.Timeouts.Embedding,
		Search:    config.Timeouts.Vector,
	}, log.Named("retrieval"))
	if err != nil {
		return nil, err
	}

	db, err := database.Open(config.Store.Driver, config.Store.DSN, log.Named("store"))
	if err != nil {
		return nil, err
	}
	store, err := threads.NewStore(ctx, db, config.Agent.Dormancy)
	if err != nil {
		return nil, err
	}

	set, err := prompts.Load(config.Prompts.File)
	if err != nil {
		return nil, err
	}

	maxLogLength := 0
	if config.AI.Gemini != nil {
		maxLogLength = config.AI.Gemini.MaxLogLength
	}

	classifier, err := safety.New(m.generator, set, m.scorer, log.Named("safety"), maxLogLength)
	if err != nil {
		return nil, err
	}

	approval, publicDir, err := newApproval(ctx, config, log)
	if err != nil {
		return nil, err
	}

	agentLogger := logger.WithCommonFields(log.Named("agent"), config.AI.Provider, m.generator.Model()).With(
		zap.Float64("minimum_fit_score", config.Agent.MinimumFitScore),
	)
	screeningAgent, err := agent.New(m.generator, retriever, store, set, approval, agent.Config{
		MinimumFitScore: config.Agent.MinimumFitScore,
		TopK:            config.Agent.TopK,
		HistoryLimit:    config.Agent.HistoryLimit,
		FocusAreas:      config.Agent.FocusAreas,
		ModelTimeout:    config.Timeouts.Model,
		MaxLogLength:    maxLogLength,
	}, agentLogger)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.New(classifier, screeningAgent, screeningAgent, approval, pipeline.Config{
		StrictAlignment: config.Agent.StrictAlignment,
		Timeouts:        pipelineTimeouts(config.Timeouts),
	}, log.Named("pipeline"))
	if err != nil {
		return nil, err
	}

	return &services{
		config:    config,
		logger:    log,
		models:    m,
		index:     index,
		threads:   store,
		agent:     screeningAgent,
		pipeline:  p,
		publicDir: publicDir,
	}, nil
}

func newApproval(ctx context.Context, config *Config, log *zap.Logger) (*pipeline.Approval, string, error) {
	webhookURL, err := secrets.Optional(secrets.Source{
		Name: "approval webhook url",
		File: config.Notify.WebhookURLFile,
		Env:  "SCREENER_WEBHOOK_URL",
	})
	if err != nil {
		return nil, "", err
	}
	if webhookURL == "" {
		log.Warn("approval webhook is not configured",
			zap.String("hint", "set notify.webhook-url-file or SCREENER_WEBHOOK_URL; approvals stay pending"),
		)
	}
	notifier := notify.New(webhookURL, config.Notify.Channel, config.Notify.Timeout, log.Named("notify"))

	profile, err := resume.LoadProfile(config.Resume.ProfileFile)
	if err != nil {
		return nil, "", err
	}
	artifacts, publicDir, err := newArtifactStore(ctx, config.Resume)
	if err != nil {
		return nil, "", fmt.Errorf("opening artifact store: %w", err)
	}
	documents, err := resume.NewGenerator(profile, artifacts, config.Timeouts.Storage, log.Named("resume"))
	if err != nil {
		return nil, "", err
	}

	approval, err := pipeline.NewApproval(notifier, documents, config.Notify.Channel, pipelineTimeouts(config.Timeouts), log.Named("approval"))
	if err != nil {
		return nil, "", err
	}
	return approval, publicDir, nil
}

func pipelineTimeouts(t *TimeoutsConfig) pipeline.Timeouts {
	return pipeline.Timeouts{
		Model:   t.Model,
		Webhook: t.Webhook,
		Storage: t.Storage,
	}
}

// requireSections fails early on sections the defaults always provide, so
// their absence means a broken config rather than a missing one.
func requireSections(config *Config) error {
	var missing []string
	if config.AI == nil {
		missing = append(missing, "ai")
	}
	if config.Embedding == nil {
		missing = append(missing, "embedding")
	}
	if config.Agent == nil {
		missing = append(missing, "agent")
	}
	if config.Prompts == nil {
		missing = append(missing, "prompts")
	}
	if config.Store == nil {
		missing = append(missing, "store")
	}
	if config.Vector == nil {
		missing = append(missing, "vector")
	}
	if config.Notify == nil {
		missing = append(missing, "notify")
	}
	if config.Resume == nil {
		missing = append(missing, "resume")
	}
	if config.Ingest == nil {
		missing = append(missing, "ingest")
	}
	if config.Timeouts == nil {
		missing = append(missing, "timeouts")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing config sections: %s", strings.Join(missing, ", "))
	}
	return nil
}
