package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the schema sync tooling.
// Environment variables are automatically parsed from TYPESENSE_SYNC_ prefix
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string      `envconfig:"LOG_LEVEL" default:"info"`

	// Typesense
	TypesenseURL     string        `envconfig:"TYPESENSE_URL" default:"http://localhost:8108"`
	TypesenseAPIKey  string        `envconfig:"TYPESENSE_API_KEY" default:""`
	TypesenseTimeout time.Duration `envconfig:"TYPESENSE_TIMEOUT" default:"10s"`

	// Schema strategy. DualWrites switches migrations to alias cutovers.
	// LockTTL bounds how long a crashed run keeps its alias locked. A live
	// run renews its lease every LockTTL/3 and before each state change.
	DualWrites      bool          `envconfig:"DUAL_WRITES" default:"false"`
	VersionOrdering string        `envconfig:"VERSION_ORDERING" default:"lexical"`
	DualWriteTTL    time.Duration `envconfig:"DUAL_WRITE_TTL" default:"10m"`
	LockTTL         time.Duration `envconfig:"LOCK_TTL" default:"30m"`
	LockWait        time.Duration `envconfig:"LOCK_WAIT" default:"30s"`

	// Relational store holding the source-of-truth rows
	DBDriver    string `envconfig:"DB_DRIVER" default:"postgres"`
	PostgresDSN string `envconfig:"POSTGRES_DSN" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:""`

	// Where dual-write records and migration leases live: db | memory
	StateDriver string `envconfig:"STATE_DRIVER" default:"db"`

	ModelsFile string `envconfig:"MODELS_FILE" default:"models.yaml"`

	OrphanPageSize   int     `envconfig:"ORPHAN_PAGE_SIZE" default:"10"`
	ReindexBatchSize int     `envconfig:"REINDEX_BATCH_SIZE" default:"100"`
	ReindexWorkers   int     `envconfig:"REINDEX_WORKERS" default:"1"`
	ReindexRate      float64 `envconfig:"REINDEX_RATE" default:"0"`

	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en"`

	// Ops HTTP surface (health + metrics)
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"9464"`
	ScheduleInterval   time.Duration `envconfig:"SCHEDULE_INTERVAL" default:"0"`
	HealthInterval     time.Duration `envconfig:"HEALTH_INTERVAL" default:"15s"`
	HealthProbeTimeout time.Duration `envconfig:"HEALTH_PROBE_TIMEOUT" default:"2s"`
}

// ResolveDefaults validates driver selections and numeric bounds.
func (c *Config) ResolveDefaults() error {
	switch c.DBDriver {
	case "postgres":
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.StateDriver {
	case "", "db":
		c.StateDriver = "db"
	case "memory":
	default:
		return fmt.Errorf("unsupported STATE_DRIVER: %s", c.StateDriver)
	}

	switch c.VersionOrdering {
	case "", "lexical":
		c.VersionOrdering = "lexical"
	case "semver":
	default:
		return fmt.Errorf("unsupported VERSION_ORDERING: %s", c.VersionOrdering)
	}

	if c.OrphanPageSize <= 0 {
		c.OrphanPageSize = 10
	}
	if c.ReindexBatchSize <= 0 {
		c.ReindexBatchSize = 100
	}
	if c.ReindexWorkers <= 0 {
		c.ReindexWorkers = 1
	}
	if c.DualWriteTTL <= 0 {
		c.DualWriteTTL = 10 * time.Minute
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = 15 * time.Second
	}
	return nil
}

// New creates a new Config by parsing environment variables
// Environment variables should be prefixed with TYPESENSE_SYNC_
// Example: TYPESENSE_SYNC_TYPESENSE_URL, TYPESENSE_SYNC_DUAL_WRITES
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("TYPESENSE_SYNC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("typesense_url", cfg.TypesenseURL).
		Bool("api_key_present", cfg.TypesenseAPIKey != "").
		Bool("dual_writes", cfg.DualWrites).
		Str("version_ordering", cfg.VersionOrdering).
		Dur("dual_write_ttl", cfg.DualWriteTTL).
		Str("db_driver", cfg.DBDriver).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Str("state_driver", cfg.StateDriver).
		Str("models_file", cfg.ModelsFile).
		Int("reindex_batch", cfg.ReindexBatchSize).
		Int("reindex_workers", cfg.ReindexWorkers).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting creates a config specifically for testing
func NewForTesting() *Config {
	return &Config{
		Environment:      EnvTesting,
		LogLevel:         "debug",
		TypesenseURL:     "http://localhost:8108",
		TypesenseAPIKey:  "test-key",
		TypesenseTimeout: 5 * time.Second,
		DualWrites:       true,
		VersionOrdering:  "lexical",
		DualWriteTTL:     10 * time.Minute,
		LockTTL:          time.Minute,
		LockWait:         0,
		DBDriver:         "sqlite",
		SQLitePath:       ":memory:",
		StateDriver:      "memory",
		ModelsFile:       "models.yaml",
		OrphanPageSize:   10,
		ReindexBatchSize: 100,
		ReindexWorkers:   1,
		DefaultLocale:    "en",
		HTTPPort:         9464,
		HealthInterval:   time.Second,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// GetHTTPAddr returns the ops HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
