// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Providers accepted by the storage, archive, and events sections.
const (
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"
	ProviderGCS      = "gcs"
	ProviderLocal    = "local"
	ProviderPubSub   = "pubsub"
	ProviderNone     = "none"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	PDF      PDFConfig      `mapstructure:"pdf"`
	DB       DBConfig       `mapstructure:"db"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Events   EventsConfig   `mapstructure:"events"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs run pacing and ceilings.
type CrawlerConfig struct {
	BatchSize           int    `mapstructure:"batch_size"`
	BatchPauseMs        int    `mapstructure:"batch_pause_ms"`
	RunTimeoutMinutes   int    `mapstructure:"run_timeout_minutes"`
	CrawlTimeoutMinutes int    `mapstructure:"crawl_timeout_minutes"`
	StaleAfterMinutes   int    `mapstructure:"stale_after_minutes"`
	FetchTimeoutSeconds int    `mapstructure:"fetch_timeout_seconds"`
	UserAgent           string `mapstructure:"user_agent"`
}

// PDFConfig locates the deadline grid PDF.
type PDFConfig struct {
	GridURL string `mapstructure:"grid_url"`
}

// DBConfig selects and configures the persistence backend.
type DBConfig struct {
	Provider           string `mapstructure:"provider"`
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// ArchiveConfig selects where raw artifacts are archived.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// EventsConfig selects where run events are published.
type EventsConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig controls the in-process cron trigger for missing-only crawls.
type ScheduleConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment. An empty path skips the file
// and relies on defaults plus ADMIT_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADMIT")
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
	v.SetDefault("crawler.batch_size", 10)
	v.SetDefault("crawler.batch_pause_ms", 200)
	v.SetDefault("crawler.run_timeout_minutes", 15)
	v.SetDefault("crawler.crawl_timeout_minutes", 10)
	v.SetDefault("crawler.stale_after_minutes", 30)
	v.SetDefault("crawler.fetch_timeout_seconds", 30)
	v.SetDefault("db.provider", ProviderMemory)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.conn_lifetime_minutes", 30)
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.local_dir", "data/archive")
	v.SetDefault("events.provider", ProviderNone)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.cron", "0 */6 * * *")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	switch c.DB.Provider {
	case ProviderMemory:
	case ProviderPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when db.provider is %q", ProviderPostgres)
		}
	default:
		return fmt.Errorf("db.provider must be %q or %q", ProviderPostgres, ProviderMemory)
	}
	switch c.Archive.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is %q", ProviderGCS)
		}
	case ProviderLocal:
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set when archive.provider is %q", ProviderLocal)
		}
	default:
		return fmt.Errorf("archive.provider must be one of %q, %q, %q, %q", ProviderGCS, ProviderLocal, ProviderMemory, ProviderNone)
	}
	switch c.Events.Provider {
	case ProviderNone, ProviderMemory:
	case ProviderPubSub:
		if c.Events.ProjectID == "" || c.Events.Topic == "" {
			return fmt.Errorf("events.project_id and events.topic must be set when events.provider is %q", ProviderPubSub)
		}
	default:
		return fmt.Errorf("events.provider must be one of %q, %q, %q", ProviderPubSub, ProviderMemory, ProviderNone)
	}
	if c.Schedule.Enabled && strings.TrimSpace(c.Schedule.Cron) == "" {
		return fmt.Errorf("schedule.cron must be set when schedule.enabled is true")
	}
	return nil
}

// BatchPause returns the inter-batch pacing interval.
func (c CrawlerConfig) BatchPause() time.Duration {
	return time.Duration(c.BatchPauseMs) * time.Millisecond
}

// RunTimeout returns the whole-run ceiling.
func (c CrawlerConfig) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutMinutes) * time.Minute
}

// CrawlTimeout returns the college batch loop ceiling.
func (c CrawlerConfig) CrawlTimeout() time.Duration {
	return time.Duration(c.CrawlTimeoutMinutes) * time.Minute
}

// StaleAfter returns the stale-run force-finalize threshold.
func (c CrawlerConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleAfterMinutes) * time.Minute
}

// FetchTimeout returns the per-request fetch budget.
func (c CrawlerConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// ConnLifetime returns the Postgres connection lifetime cap.
func (c DBConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMinute) * time.Minute
}
