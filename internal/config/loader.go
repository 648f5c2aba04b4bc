package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is searched for under the XDG config directories
var DefaultConfigFile = filepath.Join(AppName, "config.yaml")

// Load builds the configuration. .env.local and .env are loaded first (.env.local
// wins), then the YAML file at path or, when path is empty, the first
// seo-parser/config.yaml in the XDG config directories, then environment variables.
func Load(path string) (*Config, error) {
	loadDotEnv(".env.local", ".env")

	cfg := NewConfig()

	file, err := FindConfigFile(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		if err := LoadConfigFile(file, cfg); err != nil {
			return nil, err
		}
		log.Debug().Str("path", file).Msg("Loaded config file")
	}

	applyEnv(cfg)
	return cfg, nil
}

// loadDotEnv loads every file that exists. Variables already set win.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			log.Warn().Err(err).Str("file", f).Msg("Failed to load env file")
		}
	}
}

// FindConfigFile returns path when it exists, ErrConfigNotFound when it was
// given but is missing, or the XDG config file when path is empty ("" if none).
func FindConfigFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return path, nil
	}

	found, err := xdg.SearchConfigFile(DefaultConfigFile)
	if err != nil {
		return "", nil
	}
	return found, nil
}

// LoadConfigFile decodes a YAML file over cfg. Keys missing from the file
// keep their current values.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Env = getEnvWithDefault("APP_ENV", cfg.Env)
	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.SentryDSN = getEnvWithDefault("SENTRY_DSN", cfg.SentryDSN)
	cfg.UserAgent = getEnvWithDefault("SEO_USER_AGENT", cfg.UserAgent)
	cfg.DatabaseURL = getEnvWithDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.SlackWebhookURL = getEnvWithDefault("SLACK_WEBHOOK_URL", cfg.SlackWebhookURL)
	cfg.AutosaveEvery = getEnvInt("AUTOSAVE_EVERY", cfg.AutosaveEvery)

	cfg.Server.Port = getEnvWithDefault("PORT", cfg.Server.Port)
	cfg.Server.RateLimit = getEnvFloat("API_RATE_LIMIT", cfg.Server.RateLimit)
	cfg.Server.RateBurst = getEnvInt("API_RATE_BURST", cfg.Server.RateBurst)
	cfg.Server.TrustProxy = getEnvBool("TRUST_PROXY_HEADERS", cfg.Server.TrustProxy)

	cfg.Observability.Enabled = getEnvBool("OBSERVABILITY_ENABLED", cfg.Observability.Enabled)
	cfg.Observability.MetricsAddr = getEnvWithDefault("METRICS_ADDR", cfg.Observability.MetricsAddr)
	cfg.Observability.OTLPEndpoint = getEnvWithDefault("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Observability.OTLPEndpoint)
	cfg.Observability.OTLPHeaders = getEnvWithDefault("OTEL_EXPORTER_OTLP_HEADERS", cfg.Observability.OTLPHeaders)
	cfg.Observability.OTLPInsecure = getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Observability.OTLPInsecure)
}

// getEnvWithDefault retrieves an environment variable or returns a default value if not set
func getEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt retrieves an environment variable as an integer or returns a default value if not set or invalid
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
		return defaultValue
	}
	return result
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		log.Warn().
			Str("key", key).
			Str("value", value).
			Float64("default", defaultValue).
			Msg("Invalid number in environment variable, using default")
		return defaultValue
	}
	return result
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

// ParseOTLPHeaders turns "k1=v1,k2=v2" into a map, skipping malformed pairs
func ParseOTLPHeaders(raw string) map[string]string {
	headers := make(map[string]string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return headers
	}

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		headers[key] = strings.TrimSpace(value)
	}

	return headers
}
