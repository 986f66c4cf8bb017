package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/keyword-crawler/internal/crawler"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.Concurrency != runtime.NumCPU() {
		t.Fatalf("expected concurrency %d, got %d", runtime.NumCPU(), cfg.Crawler.Concurrency)
	}
	if cfg.Storage.Backend != StorageCSV || cfg.Storage.DataRoot != "data" {
		t.Fatalf("unexpected storage defaults: %+v", cfg.Storage)
	}
	if cfg.Archive.Backend != ArchiveNone {
		t.Fatalf("expected archive disabled by default, got %q", cfg.Archive.Backend)
	}
	if cfg.PubSub.Enabled() {
		t.Fatal("expected pubsub disabled by default")
	}
	if cfg.Extract.ChallengeSelector != "p.a-last" || cfg.Extract.InternalPrefix != "/gp" {
		t.Fatalf("unexpected extract defaults: %+v", cfg.Extract)
	}
	if got := cfg.RetryPolicy(); got.MaxAttempts != 0 || got.BaseDelay != 0 {
		t.Fatalf("expected unbounded retry without backoff, got %+v", got)
	}
}

func TestRetryPolicyWithoutMaxDelayStaysCapped(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	cfg.HTTP.BackoffInitialMs = 100
	cfg.HTTP.BackoffMaxMs = 0
	if err := cfg.Validate(); err != nil {
		t.Fatalf("initial backoff without a max should be accepted: %v", err)
	}
	p := cfg.RetryPolicy()
	for _, attempt := range []int{30, 40, 100} {
		if d := p.Backoff(attempt); d < 0 || d > crawler.DefaultMaxDelay {
			t.Fatalf("attempt %d: backoff %v outside [0, %v]", attempt, d, crawler.DefaultMaxDelay)
		}
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
  request_timeout_seconds: 5
auth:
  enabled: true
  api_key: secret
crawler:
  concurrency: 6
  queue_depth: 8
  job_file: jobs.yaml
  phrase_template: "{modifier} {topic}"
  rate_per_second: 2.5
  burst: 3
http:
  timeout_seconds: 45
  max_attempts: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
proxy:
  static: ["1.1.1.1:80", "2.2.2.2:3128"]
  failure_threshold: 3
extract:
  numeric_rating: true
storage:
  backend: postgres
db:
  dsn: postgres://localhost/crawl
  table_prefix: kw
archive:
  backend: gcs
  gcs_bucket: bucket
pubsub:
  project_id: proj
  topic_name: batches
logging:
  development: false
  level: debug
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.RequestTimeout() != 5*time.Second {
		t.Fatalf("unexpected server config: %+v", cfg.Server)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawler.Concurrency != 6 || cfg.Crawler.JobFile != "jobs.yaml" || cfg.Crawler.Burst != 3 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if len(cfg.Proxy.Static) != 2 || cfg.Proxy.FailureThreshold != 3 {
		t.Fatalf("expected proxy overrides to apply: %+v", cfg.Proxy)
	}
	if !cfg.Extract.NumericRating {
		t.Fatal("expected numeric rating")
	}
	if cfg.Storage.Backend != StoragePostgres || cfg.DB.TablePrefix != "kw" {
		t.Fatalf("expected postgres storage: %+v %+v", cfg.Storage, cfg.DB)
	}
	if !cfg.PubSub.Enabled() {
		t.Fatal("expected pubsub enabled")
	}
	if cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config: %+v", cfg.Logging)
	}
	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 4 || policy.BaseDelay != 100*time.Millisecond || policy.MaxDelay != 500*time.Millisecond {
		t.Fatalf("unexpected retry policy: %+v", policy)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRAWLER_SERVER_PORT", "7070")
	t.Setenv("CRAWLER_STORAGE_DATA_ROOT", "/tmp/kw")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("expected env port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Storage.DataRoot != "/tmp/kw" {
		t.Fatalf("expected env data root, got %q", cfg.Storage.DataRoot)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{Concurrency: 1, QueueDepth: 1},
		HTTP:    HTTPConfig{TimeoutSeconds: 10},
		Proxy:   ProxyConfig{FailureThreshold: 1},
		Storage: StorageConfig{Backend: StorageCSV, DataRoot: "data"},
		Archive: ArchiveConfig{Backend: ArchiveNone},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"invalid concurrency", func(c *Config) { c.Crawler.Concurrency = 0 }, "crawler.concurrency"},
		{"invalid queue depth", func(c *Config) { c.Crawler.QueueDepth = 0 }, "crawler.queue_depth"},
		{"negative rate", func(c *Config) { c.Crawler.RatePerSecond = -1 }, "crawler.rate_per_second"},
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative attempts", func(c *Config) { c.HTTP.MaxAttempts = -1 }, "http.max_attempts"},
		{"negative backoff", func(c *Config) { c.HTTP.BackoffInitialMs = -1 }, "http.backoff_initial_ms"},
		{"backoff order", func(c *Config) { c.HTTP.BackoffInitialMs = 500; c.HTTP.BackoffMaxMs = 100 }, "http.backoff_max_ms"},
		{"failure threshold", func(c *Config) { c.Proxy.FailureThreshold = 0 }, "proxy.failure_threshold"},
		{"auth missing api key", func(c *Config) { c.Auth.Enabled = true }, "auth.api_key"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "s3" }, "storage.backend"},
		{"csv without root", func(c *Config) { c.Storage.DataRoot = "" }, "storage.data_root"},
		{"postgres without dsn", func(c *Config) { c.Storage.Backend = StoragePostgres }, "db.dsn"},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "ftp" }, "archive.backend"},
		{"gcs without bucket", func(c *Config) { c.Archive.Backend = ArchiveGCS }, "archive.gcs_bucket"},
		{"local without dir", func(c *Config) { c.Archive.Backend = ArchiveLocal }, "archive.base_dir"},
		{"pubsub without project", func(c *Config) { c.PubSub.TopicName = "batches" }, "pubsub.project_id"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
