// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Scraper mode values.
const (
	ScraperModeAPI    = "api"
	ScraperModeDirect = "direct"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Process     ProcessConfig     `mapstructure:"process"`
	Distributor DistributorConfig `mapstructure:"distributor"`
	Crawl       CrawlConfig       `mapstructure:"crawl"`
	Scraper     ScraperConfig     `mapstructure:"scraper"`
	DB          DBConfig          `mapstructure:"db"`
	Storage     StorageConfig     `mapstructure:"storage"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ProcessConfig governs the background monitor.
type ProcessConfig struct {
	HeartbeatTimeoutMS   int64 `mapstructure:"heartbeat_timeout_ms"`
	TaskCheckIntervalSec int64 `mapstructure:"task_check_interval_sec"`
}

// DistributorConfig selects the task distribution strategy.
type DistributorConfig struct {
	Strategy string `mapstructure:"strategy"`
}

// CrawlConfig governs session lifecycle and link following.
type CrawlConfig struct {
	SessionDurationSec int  `mapstructure:"session_duration_sec"`
	MaxURLsPerSession  int  `mapstructure:"max_urls_per_session"`
	FollowLinks        bool `mapstructure:"follow_links"`
	MaxDepth           int  `mapstructure:"max_depth"`
	SameDomainOnly     bool `mapstructure:"same_domain_only"`
}

// ScraperConfig selects and configures the scrape backend.
type ScraperConfig struct {
	Mode          string `mapstructure:"mode"`
	APIBaseURL    string `mapstructure:"api_base_url"`
	APIKey        string `mapstructure:"api_key"`
	TimeoutSec    int    `mapstructure:"timeout_sec"`
	UserAgent     string `mapstructure:"user_agent"`
	RespectRobots bool   `mapstructure:"respect_robots"`
}

// DBConfig controls access to Postgres. An empty DSN disables the content
// store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// StorageConfig sets the blob persistence target. An empty bucket disables
// blob writes.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PubSubConfig holds metadata for completion-event publishing. An empty
// project disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ROCKSCRAPER")
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
	v.SetDefault("process.heartbeat_timeout_ms", 60000)
	v.SetDefault("process.task_check_interval_sec", 10)
	v.SetDefault("distributor.strategy", "least_busy")
	v.SetDefault("crawl.session_duration_sec", 1800)
	v.SetDefault("crawl.max_urls_per_session", 100)
	v.SetDefault("crawl.follow_links", true)
	v.SetDefault("crawl.max_depth", 3)
	v.SetDefault("crawl.same_domain_only", true)
	v.SetDefault("scraper.mode", ScraperModeAPI)
	v.SetDefault("scraper.timeout_sec", 30)
	v.SetDefault("scraper.respect_robots", true)
	v.SetDefault("pubsub.topic_name", "task-completions")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Process.HeartbeatTimeoutMS <= 0 {
		return fmt.Errorf("process.heartbeat_timeout_ms must be > 0")
	}
	if c.Process.TaskCheckIntervalSec <= 0 {
		return fmt.Errorf("process.task_check_interval_sec must be > 0")
	}
	switch c.Distributor.Strategy {
	case "round_robin", "least_busy", "priority_based", "capability_match":
	default:
		return fmt.Errorf("distributor.strategy %q is not a known strategy", c.Distributor.Strategy)
	}
	switch c.Scraper.Mode {
	case ScraperModeAPI, ScraperModeDirect:
	default:
		return fmt.Errorf("scraper.mode must be %q or %q", ScraperModeAPI, ScraperModeDirect)
	}
	if c.Scraper.Mode == ScraperModeAPI && c.Scraper.APIBaseURL == "" {
		return fmt.Errorf("scraper.api_base_url must be set in api mode")
	}
	if c.Scraper.TimeoutSec <= 0 {
		return fmt.Errorf("scraper.timeout_sec must be > 0")
	}
	if c.Crawl.MaxURLsPerSession <= 0 {
		return fmt.Errorf("crawl.max_urls_per_session must be > 0")
	}
	return nil
}

// HeartbeatTimeout converts the monitor settings into durations.
func (c Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Process.HeartbeatTimeoutMS) * time.Millisecond
}

// CheckInterval returns the monitor polling interval.
func (c Config) CheckInterval() time.Duration {
	return time.Duration(c.Process.TaskCheckIntervalSec) * time.Second
}

// SessionDuration returns the crawl session lifetime.
func (c Config) SessionDuration() time.Duration {
	return time.Duration(c.Crawl.SessionDurationSec) * time.Second
}

// ScrapeTimeout returns the per-request scrape timeout.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scraper.TimeoutSec) * time.Second
}
