// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Aliases  AliasConfig    `mapstructure:"aliases"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls the HTTP trigger server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational store.
type DBConfig struct {
	// Provider selects the store backend: "postgres" or "memory".
	Provider        string        `mapstructure:"provider"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// IngestConfig governs run orchestration.
type IngestConfig struct {
	// Concurrency bounds how many source adapters run in parallel.
	Concurrency int `mapstructure:"concurrency"`
	// SourceLabel tags RunRecords created by this deployment.
	SourceLabel string `mapstructure:"source_label"`
	// DocumentDir holds YAML document fixtures served by the file source.
	// Empty disables the file source.
	DocumentDir string `mapstructure:"document_dir"`
	// ChainAggregation rebuilds summaries right after each run completes.
	ChainAggregation bool `mapstructure:"chain_aggregation"`
	// MaxReconcileAttempts bounds transaction conflict retries per document.
	MaxReconcileAttempts int `mapstructure:"max_reconcile_attempts"`
}

// CatalogConfig locates the keyword catalog file.
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// AliasConfig locates the optional location alias file. When the path is
// empty or missing the built-in UK alias table is used; when the file cannot
// be read locations fall back to trimmed originals.
type AliasConfig struct {
	Path string `mapstructure:"path"`
}

// ScheduleConfig holds cron expressions for periodic work.
type ScheduleConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	IngestSpec    string `mapstructure:"ingest_spec"`
	AggregateSpec string `mapstructure:"aggregate_spec"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("db.provider", "memory")
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.source_label", "uk_all")
	v.SetDefault("ingest.chain_aggregation", true)
	v.SetDefault("ingest.max_reconcile_attempts", 3)
	v.SetDefault("catalog.path", "config/keywords.yaml")
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.ingest_spec", "0 6 * * *")
	v.SetDefault("schedule.aggregate_spec", "30 6 * * *")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.DB.Provider {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is postgres")
		}
	default:
		return fmt.Errorf("unknown db.provider %q", c.DB.Provider)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be > 0")
	}
	if c.Ingest.MaxReconcileAttempts <= 0 {
		return fmt.Errorf("ingest.max_reconcile_attempts must be > 0")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if c.Schedule.Enabled {
		if c.Schedule.IngestSpec == "" || c.Schedule.AggregateSpec == "" {
			return fmt.Errorf("schedule specs must be set when schedule is enabled")
		}
	}
	return nil
}
