package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Engine    EngineConfig    `yaml:"engine" mapstructure:"engine"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Scorer    ScorerConfig    `yaml:"scorer" mapstructure:"scorer"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EngineConfig configures the match engine.
type EngineConfig struct {
	// Workers bounds how many policies of one run are evaluated concurrently.
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// BatchConfig configures batch matching.
type BatchConfig struct {
	MaxConcurrentApplications int `yaml:"max_concurrent_applications" mapstructure:"max_concurrent_applications"`
}

// ScorerConfig holds the global normalization ranges shared by every policy.
// Policies may override the revenue and years ranges and the paynet neutral value.
type ScorerConfig struct {
	RevenueMin    float64 `yaml:"revenue_min" mapstructure:"revenue_min"`
	RevenueMax    float64 `yaml:"revenue_max" mapstructure:"revenue_max"`
	YearsMin      float64 `yaml:"years_min" mapstructure:"years_min"`
	YearsMax      float64 `yaml:"years_max" mapstructure:"years_max"`
	PaynetMin     float64 `yaml:"paynet_min" mapstructure:"paynet_min"`
	PaynetMax     float64 `yaml:"paynet_max" mapstructure:"paynet_max"`
	PaynetNeutral float64 `yaml:"paynet_neutral" mapstructure:"paynet_neutral"`
	MaxScore      float64 `yaml:"max_score" mapstructure:"max_score"`
}

// CacheConfig configures the optional match-result cache. An empty
// RedisURL disables caching.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLSecs  int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// IngestConfig configures policy document ingestion.
type IngestConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// AnthropicConfig holds Anthropic API settings for AI policy extraction.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "lender-match.db")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 50)
	v.SetDefault("server.rate_limit_burst", 100)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("engine.workers", 8)
	v.SetDefault("batch.max_concurrent_applications", 4)
	v.SetDefault("scorer.revenue_min", 0)
	v.SetDefault("scorer.revenue_max", 5_000_000)
	v.SetDefault("scorer.years_min", 0)
	v.SetDefault("scorer.years_max", 10)
	v.SetDefault("scorer.paynet_min", 1)
	v.SetDefault("scorer.paynet_max", 999)
	v.SetDefault("scorer.paynet_neutral", 0.5)
	v.SetDefault("scorer.max_score", 100)
	v.SetDefault("cache.redis_url", "")
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("ingest.pdftotext_path", "pdftotext")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)

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

// Validate checks the settings a command depends on. Modes: "store",
// "server", "engine", "batch", "ingest_ai".
func (c *Config) Validate(components ...string) error {
	var errs []string
	for _, comp := range components {
		switch comp {
		case "store":
			if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
				errs = append(errs, "store.driver must be sqlite or postgres")
			}
			if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for postgres (LENDER_STORE_DATABASE_URL)")
			}
		case "server":
			if c.Server.Port <= 0 || c.Server.Port > 65535 {
				errs = append(errs, "server.port must be between 1 and 65535")
			}
			if c.Server.RateLimitRPS < 0 {
				errs = append(errs, "server.rate_limit_rps must be >= 0")
			}
		case "engine":
			if c.Engine.Workers < 1 || c.Engine.Workers > 256 {
				errs = append(errs, "engine.workers must be between 1 and 256")
			}
		case "batch":
			if c.Batch.MaxConcurrentApplications < 1 || c.Batch.MaxConcurrentApplications > 50 {
				errs = append(errs, "batch.max_concurrent_applications must be between 1 and 50")
			}
		case "ingest_ai":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required for AI ingestion (LENDER_ANTHROPIC_KEY)")
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown mode %q", comp))
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
