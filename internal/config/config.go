package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Collection  string     `yaml:"collection" mapstructure:"collection"` // logical collection name exposed to consumers
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional postgres connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the match adjudicator.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// IndexConfig holds contract retrieval index settings.
type IndexConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Name      string  `yaml:"name" mapstructure:"name"` // index holding contract documents
	TopK      int     `yaml:"top_k" mapstructure:"top_k"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // queries per second
}

// ReconcileConfig configures engine behavior.
type ReconcileConfig struct {
	// AmountTolerance is the absolute tolerance for numeric total/subtotal
	// comparison. Zero means exact comparison.
	AmountTolerance float64 `yaml:"amount_tolerance" mapstructure:"amount_tolerance"`

	RetrieveTimeoutSecs   int `yaml:"retrieve_timeout_secs" mapstructure:"retrieve_timeout_secs"`
	AdjudicateTimeoutSecs int `yaml:"adjudicate_timeout_secs" mapstructure:"adjudicate_timeout_secs"`

	// MaxConcurrentFiles bounds the reconcile command's fan-out over input files.
	MaxConcurrentFiles int `yaml:"max_concurrent_files" mapstructure:"max_concurrent_files"`
}

// RetrieveTimeout returns the retrieval call deadline as a duration.
func (c ReconcileConfig) RetrieveTimeout() time.Duration {
	return time.Duration(c.RetrieveTimeoutSecs) * time.Second
}

// AdjudicateTimeout returns the reasoning call deadline as a duration.
func (c ReconcileConfig) AdjudicateTimeout() time.Duration {
	return time.Duration(c.AdjudicateTimeoutSecs) * time.Second
}

// ServerConfig configures the webhook server.
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
	v.SetEnvPrefix("RECONCILE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reconcile.db")
	v.SetDefault("store.collection", "invoices")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("index.base_url", "https://api.cloud.llamaindex.ai/api/v1/retrieval")
	v.SetDefault("index.name", "contracts")
	v.SetDefault("index.top_k", 3)
	v.SetDefault("index.rate_limit", 5)
	v.SetDefault("reconcile.amount_tolerance", 0)
	v.SetDefault("reconcile.retrieve_timeout_secs", 30)
	v.SetDefault("reconcile.adjudicate_timeout_secs", 60)
	v.SetDefault("reconcile.max_concurrent_files", 4)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
