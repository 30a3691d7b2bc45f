// Package config loads and validates monitor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Alerts    AlertConfig     `mapstructure:"alerts"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the operational HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// CrawlerConfig governs the batch driver.
type CrawlerConfig struct {
	MaxJobsPerBatch    int     `mapstructure:"max_jobs_per_batch"`
	BatchBudgetSeconds int     `mapstructure:"batch_budget_seconds"`
	PollIntervalSec    int     `mapstructure:"poll_interval_seconds"`
	RecrawlFreqHours   int     `mapstructure:"recrawl_frequency_hours"`
	MaxAttempts        int     `mapstructure:"max_attempts"`
	ClassifyThreshold  float64 `mapstructure:"classify_confidence_threshold"`
	UserAgent          string  `mapstructure:"user_agent"`
}

// FetchConfig configures the browser fetcher.
type FetchConfig struct {
	TimeoutMs     int  `mapstructure:"timeout_ms"`
	WaitForIdle   bool `mapstructure:"wait_for_idle"`
	IncludeImages bool `mapstructure:"include_images"`
}

// RateLimitConfig bounds outbound requests per domain.
type RateLimitConfig struct {
	RequestsPerHour int     `mapstructure:"requests_per_hour"`
	LocalRPS        float64 `mapstructure:"local_rps"`
	LocalBurst      int     `mapstructure:"local_burst"`
}

// AlertConfig controls alerting behavior.
type AlertConfig struct {
	CooldownHours int `mapstructure:"cooldown_hours"`
}

// LLMConfig points the extraction engine at a chat-completions endpoint.
type LLMConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxInputBytes  int    `mapstructure:"max_input_bytes"`
}

// ArchiveConfig sets the optional raw-HTML blob archive.
type ArchiveConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for the notification enqueue topic.
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
	v.SetEnvPrefix("MONITOR")
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
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("crawler.max_jobs_per_batch", 5)
	v.SetDefault("crawler.batch_budget_seconds", 240)
	v.SetDefault("crawler.poll_interval_seconds", 30)
	v.SetDefault("crawler.recrawl_frequency_hours", 24)
	v.SetDefault("crawler.max_attempts", 3)
	v.SetDefault("crawler.classify_confidence_threshold", 0.5)
	v.SetDefault("crawler.user_agent", "rivaleye-bot/0.1")
	v.SetDefault("fetch.timeout_ms", 30000)
	v.SetDefault("fetch.wait_for_idle", true)
	v.SetDefault("fetch.include_images", false)
	v.SetDefault("rate_limit.requests_per_hour", 10)
	v.SetDefault("rate_limit.local_rps", 1)
	v.SetDefault("rate_limit.local_burst", 2)
	v.SetDefault("alerts.cooldown_hours", 1)
	v.SetDefault("llm.endpoint", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.timeout_seconds", 45)
	v.SetDefault("llm.max_input_bytes", 48000)
	v.SetDefault("archive.prefix", "targets")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.MaxJobsPerBatch <= 0 {
		return fmt.Errorf("crawler.max_jobs_per_batch must be > 0")
	}
	if c.Crawler.MaxAttempts <= 0 {
		return fmt.Errorf("crawler.max_attempts must be > 0")
	}
	if c.Fetch.TimeoutMs <= 0 {
		return fmt.Errorf("fetch.timeout_ms must be > 0")
	}
	if c.RateLimit.RequestsPerHour <= 0 {
		return fmt.Errorf("rate_limit.requests_per_hour must be > 0")
	}
	if c.Alerts.CooldownHours < 0 {
		return fmt.Errorf("alerts.cooldown_hours must be >= 0")
	}
	return nil
}

// FetchTimeout converts the configured timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutMs) * time.Millisecond
}

// BatchBudget is the wall-clock limit for one batch invocation.
func (c Config) BatchBudget() time.Duration {
	return time.Duration(c.Crawler.BatchBudgetSeconds) * time.Second
}

// RecrawlFrequency is the default gap between crawls of one target.
func (c Config) RecrawlFrequency() time.Duration {
	return time.Duration(c.Crawler.RecrawlFreqHours) * time.Hour
}

// AlertCooldown is the minimum gap between alert bursts per target.
func (c Config) AlertCooldown() time.Duration {
	return time.Duration(c.Alerts.CooldownHours) * time.Hour
}
