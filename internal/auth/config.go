package auth

import (
	"fmt"
	"os"
	"strings"
)

// Config holds API token authentication configuration. Exactly one of
// Secret (HMAC signed tokens) or JWKSURL (asymmetric tokens) is used, Secret
// taking precedence.
type Config struct {
	Secret   string
	JWKSURL  string
	Issuer   string
	Audience string
}

// NewConfigFromEnv creates auth config from environment variables. It
// returns nil when no auth is configured.
func NewConfigFromEnv() *Config {
	config := &Config{
		Secret:   os.Getenv("API_JWT_SECRET"),
		JWKSURL:  strings.TrimSpace(os.Getenv("API_JWKS_URL")),
		Issuer:   os.Getenv("API_JWT_ISSUER"),
		Audience: os.Getenv("API_JWT_AUDIENCE"),
	}
	if !config.Enabled() {
		return nil
	}
	return config
}

// Enabled reports whether tokens can be verified at all
func (c *Config) Enabled() bool {
	return c != nil && (c.Secret != "" || c.JWKSURL != "")
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if !c.Enabled() {
		return fmt.Errorf("either a JWT secret or a JWKS URL is required")
	}
	if c.Secret != "" && len(c.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Secret == "" && !strings.HasPrefix(c.JWKSURL, "https://") && !strings.HasPrefix(c.JWKSURL, "http://") {
		return fmt.Errorf("JWKS URL must be http(s): %q", c.JWKSURL)
	}
	return nil
}
