package config

import (
	"errors"
	"fmt"
	"time"

	pkgconfig "github.com/utafrali/catalogsearch/pkg/config"
	"github.com/utafrali/catalogsearch/pkg/database"
	"github.com/utafrali/catalogsearch/pkg/httpclient"
	"github.com/utafrali/catalogsearch/pkg/tracing"
)

// Search engine backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"`

	// HTTP server
	HTTPPort           int           `env:"SEARCH_HTTP_PORT" envDefault:"8010"`
	RequestTimeout     time.Duration `env:"SEARCH_REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"SEARCH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	HTTPCacheMaxAge    time.Duration `env:"SEARCH_HTTP_CACHE_MAX_AGE" envDefault:"0s"`

	// Catalog metadata: attributes, stores, visibility.
	CatalogPath string `env:"CATALOG_PATH" envDefault:"configs/catalog.yaml"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine         string        `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURLs    []string      `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchIndex   string        `env:"ELASTICSEARCH_INDEX" envDefault:"catalog_search"`
	ElasticsearchTimeout time.Duration `env:"ELASTICSEARCH_TIMEOUT" envDefault:"10s"`

	ElasticsearchBreaker httpclient.BreakerConfig `envPrefix:"ELASTICSEARCH_BREAKER_"`

	// Result cache
	CacheEnabled bool                 `env:"SEARCH_CACHE_ENABLED" envDefault:"true"`
	CacheTTL     time.Duration        `env:"SEARCH_CACHE_TTL" envDefault:"5m"`
	Redis        database.RedisConfig `envPrefix:"REDIS_"`

	// Kafka
	KafkaEnabled   bool          `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers   []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID   string        `env:"KAFKA_GROUP_ID" envDefault:"catalog-search"`
	KafkaDLQPrefix string        `env:"KAFKA_DLQ_PREFIX" envDefault:"ecommerce.dlq"`
	KafkaAttempts  int           `env:"KAFKA_MAX_ATTEMPTS" envDefault:"3"`
	KafkaBackoff   time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"100ms"`
	IdempotencyTTL time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	Tracing tracing.Config `envPrefix:"OTEL_"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			errs = append(errs, errors.New("ELASTICSEARCH_URL is required"))
		}
		if r := c.ElasticsearchBreaker.FailureRatio; r <= 0 || r > 1 {
			errs = append(errs, errors.New("ELASTICSEARCH_BREAKER_FAILURE_RATIO must be in (0, 1]"))
		}
	case EngineMemory:
	default:
		errs = append(errs, fmt.Errorf("SEARCH_ENGINE must be %s or %s, got %q", EngineElasticsearch, EngineMemory, c.SearchEngine))
	}
	if c.CatalogPath == "" {
		errs = append(errs, errors.New("CATALOG_PATH is required"))
	}
	if c.CacheEnabled && c.CacheTTL <= 0 {
		errs = append(errs, errors.New("SEARCH_CACHE_TTL must be positive"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required"))
	}
	if c.KafkaEnabled && c.KafkaAttempts < 1 {
		errs = append(errs, errors.New("KAFKA_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLE_RATE must be between 0.0 and 1.0"))
	}
	return errors.Join(errs...)
}
