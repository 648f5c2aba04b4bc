package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/auth"
	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/Harvey-AU/seo-parser/internal/export"
	"github.com/Harvey-AU/seo-parser/internal/runs"
)

const (
	maxRequestBody     = 1 << 20
	defaultResultLimit = 100
	maxResultLimit     = 1000
)

// CreateCrawlRequest is the body of POST /v1/crawls. Omitted fields take the
// crawler defaults.
type CreateCrawlRequest struct {
	SeedURL            string   `json:"seed_url"`
	MaxPages           *int     `json:"max_pages,omitempty"`
	MaxDepth           *int     `json:"max_depth,omitempty"`
	SameDomainOnly     *bool    `json:"same_domain_only,omitempty"`
	IncludeSubdomains  *bool    `json:"include_subdomains,omitempty"`
	IncludePaths       []string `json:"include_paths,omitempty"`
	ExcludePaths       []string `json:"exclude_paths,omitempty"`
	RespectRobots      *bool    `json:"respect_robots,omitempty"`
	UseSitemap         *bool    `json:"use_sitemap,omitempty"`
	TimeoutSeconds     *float64 `json:"timeout_seconds,omitempty"`
	Concurrency        *int     `json:"concurrency,omitempty"`
	RateLimit          *float64 `json:"rate_limit,omitempty"`
	DetectTechnologies *bool    `json:"detect_technologies,omitempty"`
}

// CrawlConfig applies the request on top of the default configuration
func (req CreateCrawlRequest) CrawlConfig() crawler.CrawlConfig {
	cfg := crawler.DefaultCrawlConfig(strings.TrimSpace(req.SeedURL))

	if req.MaxPages != nil {
		cfg.MaxPages = *req.MaxPages
	}
	if req.MaxDepth != nil {
		cfg.MaxDepth = *req.MaxDepth
	}
	if req.SameDomainOnly != nil {
		cfg.SameDomainOnly = *req.SameDomainOnly
	}
	if req.IncludeSubdomains != nil {
		cfg.IncludeSubdomains = *req.IncludeSubdomains
	}
	if req.RespectRobots != nil {
		cfg.RespectRobots = *req.RespectRobots
	}
	if req.UseSitemap != nil {
		cfg.UseSitemap = *req.UseSitemap
	}
	if req.TimeoutSeconds != nil {
		cfg.Timeout = time.Duration(*req.TimeoutSeconds * float64(time.Second))
	}
	if req.Concurrency != nil {
		cfg.Concurrency = *req.Concurrency
	}
	if req.RateLimit != nil {
		cfg.RateLimit = *req.RateLimit
	}
	if req.DetectTechnologies != nil {
		cfg.DetectTechnologies = *req.DetectTechnologies
	}
	cfg.IncludePaths = req.IncludePaths
	cfg.ExcludePaths = req.ExcludePaths

	return cfg
}

// CrawlResponse describes a run and, on GET /v1/crawls/{id}, a page of its results
type CrawlResponse struct {
	runs.Run
	Results    []crawler.PageResult `json:"results,omitempty"`
	Pagination *Pagination          `json:"pagination,omitempty"`
}

// Pagination describes the slice of results returned
type Pagination struct {
	Offset  int  `json:"offset"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	HasNext bool `json:"has_next"`
}

// CrawlsHandler handles /v1/crawls
func (h *Handler) CrawlsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listCrawls(w, r)
	case http.MethodPost:
		h.createCrawl(w, r)
	default:
		MethodNotAllowed(w, r)
	}
}

// CrawlHandler handles /v1/crawls/{id} and /v1/crawls/{id}/export
func (h *Handler) CrawlHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/crawls/"), "/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		BadRequest(w, r, "Crawl ID is required")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.getCrawl(w, r, id)
		case http.MethodDelete:
			h.cancelCrawl(w, r, id)
		default:
			MethodNotAllowed(w, r)
		}
	case "export":
		if r.Method != http.MethodGet {
			MethodNotAllowed(w, r)
			return
		}
		h.exportCrawl(w, r, id)
	default:
		NotFound(w, r, "Unknown crawl endpoint")
	}
}

// listCrawls handles GET /v1/crawls
func (h *Handler) listCrawls(w http.ResponseWriter, r *http.Request) {
	list := h.Runs.ListRuns()
	WriteSuccess(w, r, map[string]any{
		"crawls": list,
		"total":  len(list),
	}, "")
}

// createCrawl handles POST /v1/crawls
func (h *Handler) createCrawl(w http.ResponseWriter, r *http.Request) {
	var req CreateCrawlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		BadRequest(w, r, "Invalid JSON request body")
		return
	}
	if strings.TrimSpace(req.SeedURL) == "" {
		WriteErrorMessage(w, r, "seed_url is required", http.StatusBadRequest, ErrCodeValidation)
		return
	}

	run, err := h.Runs.StartRun(r.Context(), req.CrawlConfig())
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	logger := loggerWithRequest(r)
	event := logger.Info().Str("run_id", run.ID).Str("seed", run.SeedURL)
	if user, ok := auth.GetUserFromContext(r.Context()); ok {
		event = event.Str("user", user.Subject)
	}
	event.Msg("Crawl requested")

	WriteCreated(w, r, map[string]any{
		"id":     run.ID,
		"status": run.Status,
	}, "Crawl started")
}

// getCrawl handles GET /v1/crawls/{id}
func (h *Handler) getCrawl(w http.ResponseWriter, r *http.Request, id string) {
	run, err := h.Runs.GetRun(id)
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	offset, limit := pageParams(r)
	results, err := h.Runs.Results(id, offset, limit)
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	WriteSuccess(w, r, CrawlResponse{
		Run:     *run,
		Results: results,
		Pagination: &Pagination{
			Offset:  offset,
			Limit:   limit,
			Total:   run.TotalPages,
			HasNext: offset+len(results) < run.TotalPages,
		},
	}, "")
}

// cancelCrawl handles DELETE /v1/crawls/{id}
func (h *Handler) cancelCrawl(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.Runs.CancelRun(r.Context(), id); err != nil {
		writeRunError(w, r, err)
		return
	}
	WriteAccepted(w, r, map[string]any{"id": id}, "Cancellation requested")
}

// exportCrawl handles GET /v1/crawls/{id}/export?format=
func (h *Handler) exportCrawl(w http.ResponseWriter, r *http.Request, id string) {
	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(export.FormatCSV)
	}
	format, err := export.ParseFormat(name)
	if err != nil || format == export.FormatSQLite {
		BadRequest(w, r, fmt.Sprintf("Unsupported export format %q", name))
		return
	}

	run, err := h.Runs.GetRun(id)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	results, err := h.Runs.Results(id, 0, 0)
	if err != nil {
		writeRunError(w, r, err)
		return
	}

	// Render fully before writing so a failure can still become a JSON error
	var buf bytes.Buffer
	summary := export.Summary{
		SeedURL:  run.SeedURL,
		Status:   string(run.Status),
		Duration: run.Duration().Round(time.Second).String(),
	}
	if err := export.WriteTo(&buf, format, results, summary); err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			BadRequest(w, r, err.Error())
			return
		}
		InternalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="crawl-%s.%s"`, id, format))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger := loggerWithRequest(r)
		logger.Warn().Err(err).Str("run_id", id).Msg("Export download interrupted")
	}
}

func pageParams(r *http.Request) (offset, limit int) {
	limit = defaultResultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= maxResultLimit {
			limit = parsed
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return offset, limit
}
