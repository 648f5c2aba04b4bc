package crawler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/util"
)

const (
	DefaultUserAgent   = "SEOParser/1.0 (+https://github.com/Harvey-AU/seo-parser)"
	DefaultTimeout     = 10 * time.Second
	DefaultRateLimit   = 1.0
	DefaultConcurrency = 1
	MaxConcurrency     = 8
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// Config holds the settings of a Crawler instance that outlive a single run
type Config struct {
	UserAgent   string        // User agent string for requests
	Timeout     time.Duration // Fallback per-fetch timeout when a run sets none
	MaxBodySize int           // Bytes read per page body
	// Fetcher retrieves pages; nil means an HTTPFetcher built from this config
	Fetcher Fetcher
	// Detector fingerprints technologies when a run asks for it
	Detector TechDetector
	// Client is used for robots.txt and sitemap requests
	Client *http.Client
}

// DefaultConfig returns a Config instance with default values
func DefaultConfig() *Config {
	return &Config{
		UserAgent:   DefaultUserAgent,
		Timeout:     DefaultTimeout,
		MaxBodySize: DefaultMaxBodySize,
	}
}

// CrawlConfig describes one run. It is not modified while the run is active.
type CrawlConfig struct {
	SeedURL           string        `json:"seed_url" yaml:"seed_url"`
	MaxPages          int           `json:"max_pages" yaml:"max_pages"`
	MaxDepth          int           `json:"max_depth" yaml:"max_depth"`
	SameDomainOnly    bool          `json:"same_domain_only" yaml:"same_domain_only"`
	IncludeSubdomains bool          `json:"include_subdomains" yaml:"include_subdomains"`
	IncludePaths      []string      `json:"include_paths,omitempty" yaml:"include_paths"`
	ExcludePaths      []string      `json:"exclude_paths,omitempty" yaml:"exclude_paths"`
	RespectRobots     bool          `json:"respect_robots" yaml:"respect_robots"`
	UseSitemap        bool          `json:"use_sitemap" yaml:"use_sitemap"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout"`
	Concurrency       int           `json:"concurrency,omitempty" yaml:"concurrency"`
	// RateLimit in requests per second, 0 means DefaultRateLimit
	RateLimit          float64 `json:"rate_limit,omitempty" yaml:"rate_limit"`
	DetectTechnologies bool    `json:"detect_technologies" yaml:"detect_technologies"`
}

// DefaultCrawlConfig returns the settings used when the caller only supplies a seed.
func DefaultCrawlConfig(seedURL string) CrawlConfig {
	return CrawlConfig{
		SeedURL:        seedURL,
		MaxPages:       100,
		MaxDepth:       2,
		SameDomainOnly: true,
		RespectRobots:  true,
		Timeout:        DefaultTimeout,
		Concurrency:    DefaultConcurrency,
		RateLimit:      DefaultRateLimit,
	}
}

// Validate checks cfg and returns an error wrapping ErrInvalidConfig.
func (cfg CrawlConfig) Validate() error {
	if _, err := util.ParseSeedURL(cfg.SeedURL); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.MaxPages <= 0 {
		return fmt.Errorf("%w: max pages must be positive, got %d", ErrInvalidConfig, cfg.MaxPages)
	}
	if cfg.MaxDepth < 0 {
		return fmt.Errorf("%w: max depth must not be negative, got %d", ErrInvalidConfig, cfg.MaxDepth)
	}
	if cfg.Concurrency != 0 && (cfg.Concurrency < 1 || cfg.Concurrency > MaxConcurrency) {
		return fmt.Errorf("%w: concurrency must be between 1 and %d, got %d", ErrInvalidConfig, MaxConcurrency, cfg.Concurrency)
	}
	if cfg.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (cfg CrawlConfig) concurrency() int {
	if cfg.Concurrency == 0 {
		return DefaultConcurrency
	}
	return cfg.Concurrency
}

func (cfg CrawlConfig) rateLimit() float64 {
	if cfg.RateLimit == 0 {
		return DefaultRateLimit
	}
	return cfg.RateLimit
}
