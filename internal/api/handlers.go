// Package api serves crawl runs over HTTP: start, poll, cancel and export.
package api

import (
	"context"
	"net/http"

	"github.com/Harvey-AU/seo-parser/internal/auth"
	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/Harvey-AU/seo-parser/internal/runs"
)

// Version is the current API version (can be set via ldflags at build time)
var Version = "0.1.0"

// RunManager is the subset of *runs.Manager the handlers use
type RunManager interface {
	StartRun(ctx context.Context, cfg crawler.CrawlConfig) (*runs.Run, error)
	GetRun(id string) (*runs.Run, error)
	Results(id string, offset, limit int) ([]crawler.PageResult, error)
	ListRuns() []runs.Run
	CancelRun(ctx context.Context, id string) error
	ActiveRuns() int
}

// Handler holds dependencies for API handlers
type Handler struct {
	Runs RunManager
	// Auth guards /v1 routes when set
	Auth auth.AuthClient
}

// NewHandler creates a new API handler. authClient may be nil to leave the
// API open.
func NewHandler(manager RunManager, authClient auth.AuthClient) *Handler {
	return &Handler{
		Runs: manager,
		Auth: authClient,
	}
}

// SetupRoutes configures all API routes
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HealthCheck)

	mux.Handle("/v1/crawls", h.protect(h.CrawlsHandler))
	mux.Handle("/v1/crawls/", h.protect(h.CrawlHandler))
}

func (h *Handler) protect(next http.HandlerFunc) http.Handler {
	if h.Auth == nil {
		return next
	}
	return auth.AuthMiddlewareWithClient(h.Auth)(next)
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		MethodNotAllowed(w, r)
		return
	}

	WriteHealthy(w, r, Version, h.Runs.ActiveRuns())
}
