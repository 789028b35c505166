package config

import (
	"fmt"
	"strings"
	"time"

	pkgconfig "github.com/utafrali/searchsync/pkg/config"
	apperrors "github.com/utafrali/searchsync/pkg/errors"
)

// Search backends.
const (
	BackendTypesense     = "typesense"
	BackendElasticsearch = "elasticsearch"
	BackendMemory        = "memory"
)

// Config holds all configuration for the sync service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Admin HTTP server
	HTTPPort          int           `env:"SEARCHSYNC_HTTP_PORT" envDefault:"8010" validate:"gte=1,lte=65535"`
	AdminToken        string        `env:"SEARCHSYNC_ADMIN_TOKEN"`
	AdminJWTSecret    string        `env:"SEARCHSYNC_ADMIN_JWT_SECRET"`
	ReindexInterval   time.Duration `env:"SEARCHSYNC_REINDEX_INTERVAL" envDefault:"10s" validate:"gte=0"`
	ReindexBurst      int           `env:"SEARCHSYNC_REINDEX_BURST" envDefault:"3" validate:"gte=1"`
	PprofAllowedCIDRs []string      `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128" envSeparator:","`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Search engine selection
	SearchBackend     string   `env:"SEARCH_BACKEND" envDefault:"typesense" validate:"oneof=typesense elasticsearch memory"`
	TypesenseURL      string   `env:"TYPESENSE_URL" envDefault:"http://localhost:8108"`
	TypesenseAPIKey   string   `env:"TYPESENSE_API_KEY"`
	ElasticsearchURLs []string `env:"ELASTICSEARCH_URLS" envDefault:"http://localhost:9200" envSeparator:","`

	// Indexing
	PerEnvironment bool `env:"SEARCHSYNC_PER_ENVIRONMENT" envDefault:"false"`
	BatchSize      int  `env:"SEARCHSYNC_BATCH_SIZE" envDefault:"500" validate:"gte=1,lte=10000"`
	// Models lists the declared models as comma-separated name:table pairs,
	// with an optional third segment naming the id column.
	Models string `env:"MODELS"`

	// System of record
	PostgresDSN        string        `env:"POSTGRES_DSN"`
	PostgresMaxConns   int32         `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"500ms"`

	// Redis backs the binding lock and the job idempotency store. Empty
	// disables both.
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL        time.Duration `env:"SEARCHSYNC_LOCK_TTL" envDefault:"30s"`
	IdempotencyTTL time.Duration `env:"SEARCHSYNC_IDEMPOTENCY_TTL" envDefault:"24h"`

	// Kafka job queue. With KafkaEnabled the lifecycle dispatcher enqueues
	// jobs instead of syncing inline.
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID string   `env:"KAFKA_GROUP_ID" envDefault:"searchsync"`

	// Tracing
	TracingEnabled  bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TraceSampleRate float64 `env:"TRACE_SAMPLE_RATE" envDefault:"1.0" validate:"gte=0,lte=1"`
}

// ModelSource declares one model backed by a Postgres table.
type ModelSource struct {
	Name     string
	Table    string
	IDColumn string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load searchsync config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks the cross-field invariants struct tags cannot express.
func (c *Config) validate() error {
	switch c.SearchBackend {
	case BackendTypesense:
		if c.TypesenseAPIKey == "" {
			return apperrors.NotConfigured("TYPESENSE_API_KEY is required for the typesense backend")
		}
	case BackendElasticsearch:
		if len(c.ElasticsearchURLs) == 0 {
			return apperrors.NotConfigured("ELASTICSEARCH_URLS is required for the elasticsearch backend")
		}
	}

	models, err := c.ModelSources()
	if err != nil {
		return err
	}
	if len(models) > 0 && c.PostgresDSN == "" {
		return apperrors.NotConfigured("POSTGRES_DSN is required when MODELS is set")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return apperrors.NotConfigured("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	return nil
}

// ModelSources parses Models. Entries look like "Book:books" or
// "Book:catalog.books:isbn"; the id column defaults to "id".
func (c *Config) ModelSources() ([]ModelSource, error) {
	if strings.TrimSpace(c.Models) == "" {
		return nil, nil
	}

	seen := make(map[string]bool)
	var out []ModelSource
	for _, entry := range strings.Split(c.Models, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, apperrors.BadConfiguration(fmt.Sprintf("MODELS entry %q must be name:table[:id_column]", entry))
		}
		ms := ModelSource{Name: parts[0], Table: parts[1], IDColumn: "id"}
		if len(parts) == 3 {
			ms.IDColumn = parts[2]
		}
		if ms.Name == "" || ms.Table == "" || ms.IDColumn == "" {
			return nil, apperrors.BadConfiguration(fmt.Sprintf("MODELS entry %q has an empty segment", entry))
		}
		if seen[ms.Name] {
			return nil, apperrors.BadConfiguration(fmt.Sprintf("model %s is declared twice", ms.Name))
		}
		seen[ms.Name] = true
		out = append(out, ms)
	}
	return out, nil
}
