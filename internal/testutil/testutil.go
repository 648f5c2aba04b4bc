// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

// DatabaseURL returns the PostgreSQL URL integration tests should use and
// skips the test when there is none. DATABASE_URL wins, then
// TEST_DATABASE_URL from the environment or the nearest .env.test file.
func DatabaseURL(t *testing.T) string {
	t.Helper()

	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}
	if testURL := os.Getenv("TEST_DATABASE_URL"); testURL != "" {
		return testURL
	}

	envPath := findEnvTestFile()
	if envPath == "" {
		t.Skip("DATABASE_URL not set and no .env.test found, skipping integration test")
	}

	envMap, err := godotenv.Read(envPath)
	if err != nil {
		t.Skipf("Failed to read %s: %v", envPath, err)
	}

	testURL := envMap["TEST_DATABASE_URL"]
	if testURL == "" {
		t.Skipf("%s has no TEST_DATABASE_URL, skipping integration test", envPath)
	}
	t.Logf("Using TEST_DATABASE_URL from %s", envPath)
	return testURL
}

// findEnvTestFile searches for .env.test in the current and parent directories
func findEnvTestFile() string {
	dir, _ := os.Getwd()

	for range 5 {
		envPath := filepath.Join(dir, ".env.test")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
