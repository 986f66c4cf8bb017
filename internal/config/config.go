// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

// Storage and archive backends.
const (
	StorageCSV      = "csv"
	StoragePostgres = "postgres"

	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveMemory = "memory"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Extract ExtractConfig `mapstructure:"extract"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the query API server.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs the scheduler and the search requests it issues.
type CrawlerConfig struct {
	Concurrency    int     `mapstructure:"concurrency"`
	QueueDepth     int     `mapstructure:"queue_depth"`
	UserAgent      string  `mapstructure:"user_agent"`
	JobFile        string  `mapstructure:"job_file"`
	PhraseTemplate string  `mapstructure:"phrase_template"`
	SearchURL      string  `mapstructure:"search_url"`
	SearchAlias    string  `mapstructure:"search_alias"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// HTTPConfig configures fetch timeouts and the per-phrase retry policy.
// MaxAttempts 0 retries until a fetch succeeds or the proxy pool is empty.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// ProxyConfig selects where proxies come from. Static entries (host:port)
// take precedence over scraping SourceURL.
type ProxyConfig struct {
	SourceURL        string   `mapstructure:"source_url"`
	Static           []string `mapstructure:"static"`
	FailureThreshold int      `mapstructure:"failure_threshold"`
	UserAgent        string   `mapstructure:"user_agent"`
}

// ExtractConfig tunes result extraction and soft-block detection.
type ExtractConfig struct {
	CanonicalHost     string `mapstructure:"canonical_host"`
	InternalPrefix    string `mapstructure:"internal_prefix"`
	NumericRating     bool   `mapstructure:"numeric_rating"`
	ChallengeSelector string `mapstructure:"challenge_selector"`
}

// StorageConfig picks the batch store.
type StorageConfig struct {
	Backend  string `mapstructure:"backend"`
	DataRoot string `mapstructure:"data_root"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	TablePrefix            string `mapstructure:"table_prefix"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// ArchiveConfig controls the optional raw CSV archive of each batch.
type ArchiveConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for batch-written notifications. Publishing is
// off while TopicName is empty.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Enabled reports whether batch events should be published.
func (c PubSubConfig) Enabled() bool {
	return c.TopicName != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("crawler.concurrency", runtime.NumCPU())
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", "Mozilla/5.0")
	v.SetDefault("crawler.job_file", "tags.yaml")
	v.SetDefault("crawler.phrase_template", crawler.DefaultPhraseTemplate)
	v.SetDefault("crawler.search_url", "https://www.amazon.com/s/ref=nb_sb_noss_2")
	v.SetDefault("crawler.search_alias", "search-alias")
	v.SetDefault("crawler.rate_per_second", 0.0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_attempts", 0)
	v.SetDefault("http.backoff_initial_ms", 0)
	v.SetDefault("http.backoff_max_ms", 0)
	v.SetDefault("proxy.source_url", "https://www.sslproxies.org/")
	v.SetDefault("proxy.static", []string{})
	v.SetDefault("proxy.failure_threshold", 1)
	v.SetDefault("proxy.user_agent", "Mozilla/5.0")
	v.SetDefault("extract.canonical_host", "https://www.amazon.com")
	v.SetDefault("extract.internal_prefix", "/gp")
	v.SetDefault("extract.numeric_rating", false)
	v.SetDefault("extract.challenge_selector", "p.a-last")
	v.SetDefault("storage.backend", StorageCSV)
	v.SetDefault("storage.data_root", "data")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table_prefix", "crawl")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime_seconds", 1800)
	v.SetDefault("archive.backend", ArchiveNone)
	v.SetDefault("archive.base_dir", "archive")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "batches")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.QueueDepth <= 0 {
		return fmt.Errorf("crawler.queue_depth must be > 0")
	}
	if c.Crawler.RatePerSecond < 0 {
		return fmt.Errorf("crawler.rate_per_second must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts < 0 {
		return fmt.Errorf("http.max_attempts must be >= 0")
	}
	if c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < 0 {
		return fmt.Errorf("http.backoff_initial_ms and http.backoff_max_ms must be >= 0")
	}
	if c.HTTP.BackoffMaxMs > 0 && c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms")
	}
	if c.Proxy.FailureThreshold <= 0 {
		return fmt.Errorf("proxy.failure_threshold must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}

	switch c.Storage.Backend {
	case StorageCSV:
		if c.Storage.DataRoot == "" {
			return fmt.Errorf("storage.data_root must be set for the csv backend")
		}
	case StoragePostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not one of csv, postgres", c.Storage.Backend)
	}

	switch c.Archive.Backend {
	case ArchiveNone, ArchiveMemory:
	case ArchiveLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set for the local archive")
		}
	case ArchiveGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs archive")
		}
	default:
		return fmt.Errorf("archive.backend %q is not one of none, local, memory, gcs", c.Archive.Backend)
	}

	if c.PubSub.Enabled() && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// FetchTimeout is the per-request timeout for search and proxy-list fetches.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// RequestTimeout bounds each API request.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// RetryPolicy converts the HTTP retry settings into the worker's policy.
func (c Config) RetryPolicy() crawler.RetryPolicy {
	return crawler.NewExponentialRetryPolicy(
		c.HTTP.MaxAttempts,
		time.Duration(c.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs)*time.Millisecond,
	)
}

// ConnLifetime returns the Postgres connection lifetime.
func (c DBConfig) ConnLifetime() time.Duration {
	return time.Duration(c.MaxConnLifetimeSeconds) * time.Second
}
