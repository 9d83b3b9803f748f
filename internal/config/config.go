package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Hardcover   HardcoverConfig   `yaml:"hardcover" mapstructure:"hardcover"`
	GoogleBooks GoogleBooksConfig `yaml:"google_books" mapstructure:"google_books"`
	OpenLibrary OpenLibraryConfig `yaml:"open_library" mapstructure:"open_library"`
	Anthropic   AnthropicConfig   `yaml:"anthropic" mapstructure:"anthropic"`
	Scoring     ScoringConfig     `yaml:"scoring" mapstructure:"scoring"`
	Context     ContextConfig     `yaml:"context" mapstructure:"context"`
	Quota       QuotaConfig       `yaml:"quota" mapstructure:"quota"`
	Batch       BatchConfig       `yaml:"batch" mapstructure:"batch"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	CacheSize   int    `yaml:"cache_size" mapstructure:"cache_size"`
}

// HardcoverConfig holds the primary source adapter settings.
type HardcoverConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GoogleBooksConfig holds the secondary source adapter settings.
type GoogleBooksConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OpenLibraryConfig holds the tertiary source adapter settings.
type OpenLibraryConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings for the scoring engine.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ScoringConfig holds the rubric and retry tuning for the scoring engine.
// The weights and the readability cap are tuned editorial values, kept
// overridable rather than hard-coded.
type ScoringConfig struct {
	ReadabilityWeight  float64 `yaml:"readability_weight" mapstructure:"readability_weight"`
	SecondaryWeight    float64 `yaml:"secondary_weight" mapstructure:"secondary_weight"`
	ReadabilityFloor   int     `yaml:"readability_floor" mapstructure:"readability_floor"`
	CappedOverall      int     `yaml:"capped_overall" mapstructure:"capped_overall"`
	MaxAttempts        int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs float64 `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	MinReviewCount     int     `yaml:"min_review_count" mapstructure:"min_review_count"`
	MinContextChars    int     `yaml:"min_context_chars" mapstructure:"min_context_chars"`
}

// ContextConfig holds the quality-excerpt filter bounds.
type ContextConfig struct {
	MinExcerptChars int    `yaml:"min_excerpt_chars" mapstructure:"min_excerpt_chars"`
	MaxExcerptChars int    `yaml:"max_excerpt_chars" mapstructure:"max_excerpt_chars"`
	MaxExcerpts     int    `yaml:"max_excerpts" mapstructure:"max_excerpts"`
	BackfillMin     int    `yaml:"backfill_min" mapstructure:"backfill_min"`
	BackfillMax     int    `yaml:"backfill_max" mapstructure:"backfill_max"`
	VocabularyPath  string `yaml:"vocabulary_path" mapstructure:"vocabulary_path"`
}

// QuotaConfig holds the per-identity monthly ceiling for on-demand scoring.
type QuotaConfig struct {
	MonthlyCap int `yaml:"monthly_cap" mapstructure:"monthly_cap"`
}

// BatchConfig configures batch rescoring.
type BatchConfig struct {
	MaxConcurrentBooks int `yaml:"max_concurrent_books" mapstructure:"max_concurrent_books"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STYLESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "stylescope.db")
	v.SetDefault("store.cache_size", 512)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("hardcover.base_url", "https://api.hardcover.app/v1/graphql")
	v.SetDefault("hardcover.timeout_secs", 20)
	v.SetDefault("google_books.base_url", "https://www.googleapis.com/books/v1/volumes")
	v.SetDefault("google_books.timeout_secs", 15)
	v.SetDefault("open_library.base_url", "https://openlibrary.org")
	v.SetDefault("open_library.timeout_secs", 15)
	// Empty defaults so AutomaticEnv can bind secrets during Unmarshal.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("hardcover.key", "")
	v.SetDefault("context.vocabulary_path", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("scoring.readability_weight", 0.40)
	v.SetDefault("scoring.secondary_weight", 0.15)
	v.SetDefault("scoring.readability_floor", 70)
	v.SetDefault("scoring.capped_overall", 75)
	v.SetDefault("scoring.max_attempts", 3)
	v.SetDefault("scoring.initial_backoff_secs", 2.0)
	v.SetDefault("scoring.min_review_count", 5)
	v.SetDefault("scoring.min_context_chars", 800)
	v.SetDefault("context.min_excerpt_chars", 50)
	v.SetDefault("context.max_excerpt_chars", 600)
	v.SetDefault("context.max_excerpts", 80)
	v.SetDefault("context.backfill_min", 3)
	v.SetDefault("context.backfill_max", 30)
	v.SetDefault("quota.monthly_cap", 10)
	v.SetDefault("batch.max_concurrent_books", 4)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
