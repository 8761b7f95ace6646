package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/utafrali/itemsearch/internal/domain"
	pkgconfig "github.com/utafrali/itemsearch/pkg/config"
)

// Search engine backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the items service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"ITEMS_HTTP_PORT" envDefault:"8080"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine          string   `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`
	ElasticsearchURLs     []string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200" envSeparator:","`
	ElasticsearchUsername string   `env:"ELASTICSEARCH_USERNAME"`
	ElasticsearchPassword string   `env:"ELASTICSEARCH_PASSWORD"`
	ElasticsearchIndex    string   `env:"ELASTICSEARCH_INDEX" envDefault:"items_index"`

	// Circuit breaker around the Elasticsearch transport
	BreakerTimeout      time.Duration `env:"ELASTICSEARCH_BREAKER_TIMEOUT" envDefault:"30s"`
	BreakerMinRequests  uint32        `env:"ELASTICSEARCH_BREAKER_MIN_REQUESTS" envDefault:"5"`
	BreakerFailureRatio float64       `env:"ELASTICSEARCH_BREAKER_FAILURE_RATIO" envDefault:"0.5"`

	ErrorPolicy        domain.ErrorPolicy `env:"ERROR_POLICY" envDefault:"strict"`
	SeedDataPath       string             `env:"SEED_DATA_PATH"`
	SeedOnStartup      bool               `env:"SEED_ON_STARTUP" envDefault:"false"`
	SlowQueryThreshold time.Duration      `env:"SLOW_QUERY_THRESHOLD" envDefault:"500ms"`

	// Kafka ingest consumer
	KafkaEnabled    bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers    []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaItemsTopic string   `env:"KAFKA_ITEMS_TOPIC" envDefault:"items.item.created"`
	KafkaGroupID    string   `env:"KAFKA_GROUP_ID" envDefault:"item-search"`

	// Tracing
	OTelEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTelSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load items config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			return errors.New("ELASTICSEARCH_URL is required when SEARCH_ENGINE=elasticsearch")
		}
	case EngineMemory:
	default:
		return fmt.Errorf("invalid SEARCH_ENGINE %q: want %s or %s", c.SearchEngine, EngineElasticsearch, EngineMemory)
	}
	if c.ElasticsearchIndex == "" {
		return errors.New("ELASTICSEARCH_INDEX must not be empty")
	}
	if !c.ErrorPolicy.Valid() {
		return fmt.Errorf("invalid ERROR_POLICY %q: want %s or %s", c.ErrorPolicy, domain.PolicyStrict, domain.PolicyLegacy)
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("invalid ELASTICSEARCH_BREAKER_FAILURE_RATIO: %v", c.BreakerFailureRatio)
	}
	if c.SlowQueryThreshold < 0 {
		return fmt.Errorf("invalid SLOW_QUERY_THRESHOLD: %s", c.SlowQueryThreshold)
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}
	if c.OTelSampleRate < 0 || c.OTelSampleRate > 1 {
		return fmt.Errorf("invalid OTEL_SAMPLE_RATE: %v", c.OTelSampleRate)
	}
	return nil
}
