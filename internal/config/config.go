// Package config loads and validates process configuration via viper,
// bound to a typed Config struct.
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
	Store      StoreConfig     `yaml:"store" mapstructure:"store"`
	Queue      QueueConfig     `yaml:"queue" mapstructure:"queue"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Breaker    BreakerConfig   `yaml:"breaker" mapstructure:"breaker"`
	Chunk      ChunkConfig     `yaml:"chunk" mapstructure:"chunk"`
	LinkBudget int             `yaml:"link_budget" mapstructure:"link_budget"`
	Anthropic  AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Secondary  AnthropicConfig `yaml:"secondary" mapstructure:"secondary"`
	Search     SearchConfig    `yaml:"search" mapstructure:"search"`
	Pricing    PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Worker     WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Server     ServerConfig    `yaml:"server" mapstructure:"server"`
	Log        LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// QueueConfig configures the durable queue's claim and back-off behavior.
type QueueConfig struct {
	VisibilityTimeoutSecs int     `yaml:"visibility_timeout_secs" mapstructure:"visibility_timeout_secs"`
	BackoffBaseSecs       int     `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	BackoffCapSecs        int     `yaml:"backoff_cap_secs" mapstructure:"backoff_cap_secs"`
	MaxAttempts           int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	ClaimBatchSize        int     `yaml:"claim_batch_size" mapstructure:"claim_batch_size"`
	EmptyClaimSleepMillis int `yaml:"empty_claim_sleep_millis" mapstructure:"empty_claim_sleep_millis"`
}

// RateLimitConfig configures the per-vendor token-bucket gate.
type RateLimitConfig struct {
	Anthropic VendorRateConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Secondary VendorRateConfig `yaml:"secondary" mapstructure:"secondary"`
	Search    VendorRateConfig `yaml:"search" mapstructure:"search"`
	Fetch     VendorRateConfig `yaml:"fetch" mapstructure:"fetch"`
}

// VendorRateConfig configures one (vendor, resource) token bucket.
type VendorRateConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int     `yaml:"burst" mapstructure:"burst"`
}

// BreakerConfig configures the per-origin circuit breaker.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	CooldownSecs     int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
	MaxCooldownSecs  int `yaml:"max_cooldown_secs" mapstructure:"max_cooldown_secs"`
}

// ChunkConfig configures the content chunker's token budget.
type ChunkConfig struct {
	MaxTokensPerChunk int `yaml:"max_tokens_per_chunk" mapstructure:"max_tokens_per_chunk"`
}

// AnthropicConfig holds one vendor slot's model-call settings. Secondary
// reuses this shape pointed at a different model to exercise the
// structured-output caller's vendor-fallback path. BaseURL is loaded but
// not passed to the client, which always uses the SDK's default endpoint.
type AnthropicConfig struct {
	Key             string `yaml:"key" mapstructure:"key"`
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Model           string `yaml:"model" mapstructure:"model"`
	MaxOutputTokens int    `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	Concurrency     int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// SearchConfig holds the search-vendor API key used by the synchronous
// search stage.
type SearchConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PricingConfig mirrors cost.PricingConfig; kept separate to avoid an
// import cycle between config and cost.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Serper    SerperPricing           `yaml:"serper" mapstructure:"serper"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// SerperPricing holds Serper search pricing.
type SerperPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// WorkerConfig configures the stage worker pools.
type WorkerConfig struct {
	DiscoveryWorkers      int `yaml:"discovery_workers" mapstructure:"discovery_workers"`
	ProfileWorkers        int `yaml:"profile_workers" mapstructure:"profile_workers"`
	LLMConcurrencyHardCap int `yaml:"llm_concurrency_hard_cap" mapstructure:"llm_concurrency_hard_cap"`
}

// ServerConfig configures the orchestration facade's HTTP server.
type ServerConfig struct {
	Port        int    `yaml:"port" mapstructure:"port"`
	AccessToken string `yaml:"access_token" mapstructure:"access_token"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks required configuration fields for the given run mode.
// Supported modes: "serve", "worker-discovery", "worker-profile".
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.AccessToken == "" {
			errs = append(errs, "server.access_token is required")
		}
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Search.Key == "" {
			errs = append(errs, "search.key is required")
		}
	case "worker-discovery", "worker-profile":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Queue.VisibilityTimeoutSecs <= 0 {
		errs = append(errs, "queue.visibility_timeout_secs must be > 0")
	}
	if c.Worker.LLMConcurrencyHardCap <= 0 {
		errs = append(errs, "worker.llm_concurrency_hard_cap must be > 0")
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: validation failed: %s", strings.Join(errs, "; ")))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)

	v.SetDefault("queue.visibility_timeout_secs", 600)
	v.SetDefault("queue.backoff_base_secs", 30)
	v.SetDefault("queue.backoff_cap_secs", 600)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("queue.claim_batch_size", 10)
	v.SetDefault("queue.empty_claim_sleep_millis", 1000)

	v.SetDefault("rate_limit.anthropic.rate_per_second", 4)
	v.SetDefault("rate_limit.anthropic.burst", 8)
	v.SetDefault("rate_limit.secondary.rate_per_second", 4)
	v.SetDefault("rate_limit.secondary.burst", 8)
	v.SetDefault("rate_limit.search.rate_per_second", 2)
	v.SetDefault("rate_limit.search.burst", 5)
	v.SetDefault("rate_limit.fetch.rate_per_second", 5)
	v.SetDefault("rate_limit.fetch.burst", 10)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 60)
	v.SetDefault("breaker.max_cooldown_secs", 600)

	v.SetDefault("chunk.max_tokens_per_chunk", 14700)
	v.SetDefault("link_budget", 30)

	v.SetDefault("anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_output_tokens", 8192)
	v.SetDefault("anthropic.concurrency", 8)

	v.SetDefault("secondary.base_url", "https://api.anthropic.com")
	v.SetDefault("secondary.model", "claude-haiku-4-5-20251001")
	v.SetDefault("secondary.max_output_tokens", 4096)
	v.SetDefault("secondary.concurrency", 4)

	v.SetDefault("search.base_url", "https://google.serper.dev")

	v.SetDefault("pricing.serper.per_query", 0.001)

	v.SetDefault("worker.discovery_workers", 2)
	v.SetDefault("worker.profile_workers", 2)
	v.SetDefault("worker.llm_concurrency_hard_cap", 32)

	v.SetDefault("server.port", 8080)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
