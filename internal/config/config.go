// Package config assembles application settings from .env files, an optional
// YAML file and environment variables. Command-line flags are applied last by
// cmd/app.
package config

import (
	"time"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
)

const (
	// AppName names the XDG config directory
	AppName = "seo-parser"

	DefaultEnv           = "development"
	DefaultLogLevel      = "info"
	DefaultPort          = "8080"
	DefaultMetricsAddr   = ":9464"
	DefaultAPIRateLimit  = 20.0
	DefaultAPIRateBurst  = 10
	DefaultAutosaveEvery = 50
	DefaultOutput        = "seo_results.xlsx"
)

// Config holds every setting the commands need
type Config struct {
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"log_level"`
	SentryDSN string `yaml:"sentry_dsn"`

	// Crawl holds the run defaults; flags override them per run
	Crawl     crawler.CrawlConfig `yaml:"crawl"`
	UserAgent string              `yaml:"user_agent"`
	Render    bool                `yaml:"render"`

	Output        string `yaml:"output"`
	Format        string `yaml:"format"`
	AutosaveEvery int    `yaml:"autosave_every"`
	AutosaveDir   string `yaml:"autosave_dir"`

	DatabaseURL     string `yaml:"database_url"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`

	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds settings of the serve command
type ServerConfig struct {
	Port            string        `yaml:"port"`
	RateLimit       float64       `yaml:"rate_limit"`
	RateBurst       int           `yaml:"rate_burst"`
	TrustProxy      bool          `yaml:"trust_proxy"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ObservabilityConfig controls tracing and metrics export
type ObservabilityConfig struct {
	Enabled      bool   `yaml:"enabled"`
	MetricsAddr  string `yaml:"metrics_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPHeaders  string `yaml:"otlp_headers"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// NewConfig returns a Config with default values
func NewConfig() *Config {
	return &Config{
		Env:           DefaultEnv,
		LogLevel:      DefaultLogLevel,
		Crawl:         crawler.DefaultCrawlConfig(""),
		UserAgent:     crawler.DefaultUserAgent,
		Output:        DefaultOutput,
		AutosaveEvery: DefaultAutosaveEvery,
		Server: ServerConfig{
			Port:            DefaultPort,
			RateLimit:       DefaultAPIRateLimit,
			RateBurst:       DefaultAPIRateBurst,
			ShutdownTimeout: 30 * time.Second,
		},
		Observability: ObservabilityConfig{
			Enabled:     true,
			MetricsAddr: DefaultMetricsAddr,
		},
	}
}

// IsDevelopment reports whether the app runs in the development environment
func (c *Config) IsDevelopment() bool {
	return c.Env == DefaultEnv
}

// Validate checks the settings that are not validated elsewhere. Crawl
// settings are checked by the crawler when a run starts.
func (c *Config) Validate() error {
	if c.AutosaveEvery < 0 {
		return ErrInvalidAutosave
	}
	if c.Server.RateLimit <= 0 || c.Server.RateBurst < 1 {
		return ErrInvalidRateLimit
	}
	if c.Server.Port == "" {
		return ErrInvalidPort
	}
	if c.Crawl.Timeout < 0 {
		return ErrInvalidTimeout
	}
	return nil
}
