package crawler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCrawlConfigValidate(t *testing.T) {
	valid := DefaultCrawlConfig("https://example.com")

	tests := []struct {
		name    string
		mutate  func(*CrawlConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*CrawlConfig) {}},
		{name: "zero concurrency uses default", mutate: func(c *CrawlConfig) { c.Concurrency = 0 }},
		{name: "max concurrency", mutate: func(c *CrawlConfig) { c.Concurrency = MaxConcurrency }},
		{name: "depth zero", mutate: func(c *CrawlConfig) { c.MaxDepth = 0 }},
		{name: "empty seed", mutate: func(c *CrawlConfig) { c.SeedURL = "" }, wantErr: true},
		{name: "mailto seed", mutate: func(c *CrawlConfig) { c.SeedURL = "mailto:a@b.com" }, wantErr: true},
		{name: "negative pages", mutate: func(c *CrawlConfig) { c.MaxPages = -5 }, wantErr: true},
		{name: "negative depth", mutate: func(c *CrawlConfig) { c.MaxDepth = -1 }, wantErr: true},
		{name: "negative concurrency", mutate: func(c *CrawlConfig) { c.Concurrency = -1 }, wantErr: true},
		{name: "concurrency nine", mutate: func(c *CrawlConfig) { c.Concurrency = 9 }, wantErr: true},
		{name: "negative timeout", mutate: func(c *CrawlConfig) { c.Timeout = -time.Second }, wantErr: true},
		{name: "negative rate", mutate: func(c *CrawlConfig) { c.RateLimit = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCrawlConfigDefaults(t *testing.T) {
	cfg := DefaultCrawlConfig("https://example.com")
	assert.True(t, cfg.SameDomainOnly)
	assert.True(t, cfg.RespectRobots)
	assert.False(t, cfg.UseSitemap)
	assert.Equal(t, DefaultRateLimit, cfg.rateLimit())
	assert.Equal(t, DefaultTimeout, cfg.Timeout)

	var zero CrawlConfig
	assert.Equal(t, DefaultConcurrency, zero.concurrency())
	assert.Equal(t, DefaultRateLimit, zero.rateLimit())
}
