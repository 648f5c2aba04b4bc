package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func browserInstalled() bool {
	for _, name := range []string{"headless_shell", "headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "google-chrome-beta", "google-chrome-unstable"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	for _, path := range []string{"/usr/bin/google-chrome", "/snap/bin/chromium"} {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

func TestRenderFetcherWithoutBrowser(t *testing.T) {
	if runtime.GOOS != "linux" || browserInstalled() {
		t.Skip("only meaningful on linux hosts without a browser")
	}

	f := NewRenderFetcher(nil)
	defer f.Close()

	_, err := f.Fetch(context.Background(), "https://example.com/")
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)

	// The launch failure is sticky so a run aborts instead of failing every page
	_, err = f.Fetch(context.Background(), "https://example.com/other")
	assert.ErrorIs(t, err, ErrCollaboratorUnavailable)
}

func TestRenderFetcherRendersScript(t *testing.T) {
	if testing.Short() || os.Getenv("CI") != "" {
		t.Skip("skipping headless browser test in short/CI mode")
	}
	if !browserInstalled() {
		t.Skip("no browser installed")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>before</title></head><body>
<script>document.title = "after"; document.body.insertAdjacentHTML("beforeend", "<h1>Rendered</h1>");</script>
</body></html>`))
	}))
	defer srv.Close()

	f := NewRenderFetcher(&Config{UserAgent: DefaultUserAgent, Timeout: 20 * time.Second})
	defer f.Close()

	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	doc, err := Parse(resp.Body, resp.FinalURL)
	require.NoError(t, err)
	assert.Equal(t, "after", doc.Title)
	assert.Equal(t, "Rendered", doc.H1)
}
