package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/screener/internal/resume"
	"github.com/spigell/screener/internal/server"
)

const (
	app = "screener"
)

type Config struct {
	AI        *AIConfig        `mapstructure:"ai"`
	Embedding *EmbeddingConfig `mapstructure:"embedding"`
	Agent     *AgentConfig     `mapstructure:"agent"`
	Prompts   *PromptsConfig   `mapstructure:"prompts"`
	Store     *StoreConfig     `mapstructure:"store"`
	Vector    *VectorConfig    `mapstructure:"vector"`
	Notify    *NotifyConfig    `mapstructure:"notify"`
	Resume    *ResumeConfig    `mapstructure:"resume"`
	Ingest    *IngestConfig    `mapstructure:"ingest"`
	Timeouts  *TimeoutsConfig  `mapstructure:"timeouts"`
	Server    *server.Config   `mapstructure:"server"`
	Log       *LogConfig       `mapstructure:"log"`
}

type AIConfig struct {
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	OpenAI   *OpenAIConfig `mapstructure:"openai"`
}

type GeminiConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	MaxRetries     int    `mapstructure:"max-retries"`
	MaxLogLength   int    `mapstructure:"max-log-length"`
}

type OpenAIConfig struct {
	APIKeyFile     string `mapstructure:"api-key-file"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding-model"`
	BaseURL        string `mapstructure:"base-url"`
	MaxRetries     int    `mapstructure:"max-retries"`
	// Moderation adds moderation scores to safety logs. It works with either provider.
	Moderation bool `mapstructure:"moderation"`
}

type EmbeddingConfig struct {
	Dimensions int `mapstructure:"dimensions"`
}

type AgentConfig struct {
	MinimumFitScore float64       `mapstructure:"minimum-fit-score"`
	StrictAlignment bool          `mapstructure:"strict-alignment"`
	TopK            int           `mapstructure:"top-k"`
	HistoryLimit    int           `mapstructure:"history-limit"`
	Dormancy        time.Duration `mapstructure:"dormancy"`
	FocusAreas      string        `mapstructure:"focus-areas"`
}

type PromptsConfig struct {
	File string `mapstructure:"file"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type VectorConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

type NotifyConfig struct {
	WebhookURLFile string        `mapstructure:"webhook-url-file"`
	Channel        string        `mapstructure:"channel"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

type ResumeConfig struct {
	ProfileFile string             `mapstructure:"profile-file"`
	Storage     string             `mapstructure:"storage"`
	PublicDir   string             `mapstructure:"public-dir"`
	Minio       *resume.MinioConfig `mapstructure:"minio"`
}

type IngestConfig struct {
	SourceDir   string  `mapstructure:"source-dir"`
	ChunkSize   int     `mapstructure:"chunk-size"`
	Concurrency int     `mapstructure:"concurrency"`
	Rate        float64 `mapstructure:"rate"`
}

type TimeoutsConfig struct {
	Model     time.Duration `mapstructure:"model"`
	Embedding time.Duration `mapstructure:"embedding"`
	Vector    time.Duration `mapstructure:"vector"`
	Webhook   time.Duration `mapstructure:"webhook"`
	Storage   time.Duration `mapstructure:"storage"`
}

type LogConfig struct {
	File string `mapstructure:"file"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "screener pre-screens recruiter messages, negotiates and drafts tailored resumes",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is screener.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults()
}

// setDefaults registers every key so that SCREENER_* variables override
// values the config file never mentions.
func setDefaults() {
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.model", "")
	viper.SetDefault("ai.gemini.embedding-model", "")
	viper.SetDefault("ai.gemini.max-retries", 3)
	viper.SetDefault("ai.gemini.max-log-length", 200)
	viper.SetDefault("ai.openai.api-key-file", "")
	viper.SetDefault("ai.openai.model", "")
	viper.SetDefault("ai.openai.embedding-model", "")
	viper.SetDefault("ai.openai.base-url", "")
	viper.SetDefault("ai.openai.max-retries", 3)
	viper.SetDefault("ai.openai.moderation", false)

	viper.SetDefault("embedding.dimensions", 768)

	viper.SetDefault("agent.minimum-fit-score", 0.6)
	viper.SetDefault("agent.strict-alignment", true)
	viper.SetDefault("agent.top-k", 4)
	viper.SetDefault("agent.history-limit", 20)
	viper.SetDefault("agent.dormancy", "30m")
	viper.SetDefault("agent.focus-areas", "")

	viper.SetDefault("prompts.file", "")

	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", "screener.db")

	viper.SetDefault("vector.driver", "memory")
	viper.SetDefault("vector.dsn", "")
	viper.SetDefault("vector.table", "")

	viper.SetDefault("notify.webhook-url-file", "")
	viper.SetDefault("notify.channel", "")
	viper.SetDefault("notify.timeout", "10s")

	viper.SetDefault("resume.profile-file", "")
	viper.SetDefault("resume.storage", "local")
	viper.SetDefault("resume.public-dir", "public/resumes")
	viper.SetDefault("resume.minio.endpoint", "")
	viper.SetDefault("resume.minio.access-key-id", "")
	viper.SetDefault("resume.minio.secret-access-key", "")
	viper.SetDefault("resume.minio.bucket", "")
	viper.SetDefault("resume.minio.prefix", "")
	viper.SetDefault("resume.minio.use-ssl", false)
	viper.SetDefault("resume.minio.public-base-url", "")

	viper.SetDefault("ingest.source-dir", "")
	viper.SetDefault("ingest.chunk-size", 1000)
	viper.SetDefault("ingest.concurrency", 4)
	viper.SetDefault("ingest.rate", 0)

	viper.SetDefault("timeouts.model", "60s")
	viper.SetDefault("timeouts.embedding", "15s")
	viper.SetDefault("timeouts.vector", "5s")
	viper.SetDefault("timeouts.webhook", "10s")
	viper.SetDefault("timeouts.storage", "30s")

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.public-dir", "")

	viper.SetDefault("log.file", "")
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(strings.ToUpper(app))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// A missing default config is fine, everything has a default or an env override.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
