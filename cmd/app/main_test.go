package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"APP_ENV", "LOG_LEVEL", "SENTRY_DSN", "SEO_USER_AGENT", "DATABASE_URL",
	"SLACK_WEBHOOK_URL", "AUTOSAVE_EVERY", "PORT", "API_RATE_LIMIT", "API_RATE_BURST",
	"OBSERVABILITY_ENABLED", "METRICS_ADDR", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_HEADERS", "OTEL_EXPORTER_OTLP_INSECURE",
	"API_JWT_SECRET", "API_JWKS_URL", "API_JWT_ISSUER", "API_JWT_AUDIENCE",
}

// isolate keeps the developer's env, dotenv files and config file out of a test
func isolate(t *testing.T) string {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}

	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_DIRS", filepath.Join(t.TempDir(), "none"))
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

// execute runs the root command and returns what it printed
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)

	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}

	assert.Contains(t, names, "crawl")
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "version")
}

func TestVersionCommand(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "version")
	require.NoError(t, err)

	assert.Contains(t, stdout, "seo-parser version "+getVersion())
	assert.Contains(t, stdout, "commit")
}

func TestVersionUsesLdflags(t *testing.T) {
	oldVersion, oldCommit := version, commit
	t.Cleanup(func() { version, commit = oldVersion, oldCommit })

	version, commit = "v1.2.3", "abc1234"

	assert.Equal(t, "v1.2.3", getVersion())
	assert.Equal(t, "abc1234", getCommit())
}

func TestRootRejectsBadConfig(t *testing.T) {
	isolate(t)
	t.Setenv("AUTOSAVE_EVERY", "-5")

	_, _, err := execute(t, "crawl", "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error")
}

func TestRootMissingConfigFile(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "--config", "does-not-exist.yaml", "crawl", "https://example.com")
	require.Error(t, err)
}
