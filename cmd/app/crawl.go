package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/config"
	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/Harvey-AU/seo-parser/internal/export"
	"github.com/Harvey-AU/seo-parser/internal/observability"
	"github.com/Harvey-AU/seo-parser/internal/runs"
	"github.com/Harvey-AU/seo-parser/internal/techdetect"
	"github.com/briandowns/spinner"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCrawlCmd(a *app) *cobra.Command {
	defaults := config.NewConfig()
	crawlDefaults := defaults.Crawl

	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl a site and export its SEO metadata",
		Long: `Crawl visits pages breadth first from the seed URL, up to --max-pages pages
and --max-depth link hops, and exports one row per attempted page.

The export format follows the --output extension unless --format is given.
Press Ctrl+C to stop early; the pages crawled so far are still exported.

Examples:
  seo-parser crawl https://example.com
  seo-parser crawl https://example.com -p 500 -d 3 -o report.csv
  seo-parser crawl https://example.com --sitemap --exclude /tag/ --all -o out/example
  seo-parser crawl https://example.com --render --detect-tech -o report.md`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCrawl(cmd, args[0])
		},
	}

	flags := cmd.Flags()
	flags.IntP("max-pages", "p", crawlDefaults.MaxPages, "Maximum number of pages to crawl")
	flags.IntP("max-depth", "d", crawlDefaults.MaxDepth, "Maximum link hops from the seed (0 = seed only)")
	flags.Bool("same-domain", crawlDefaults.SameDomainOnly, "Only follow links on the seed's host")
	flags.Bool("include-subdomains", crawlDefaults.IncludeSubdomains, "Also follow links on subdomains of the seed")
	flags.StringSlice("include", nil, "Only follow URLs containing one of these patterns")
	flags.StringSlice("exclude", nil, "Never follow URLs containing one of these patterns")
	flags.Bool("respect-robots", crawlDefaults.RespectRobots, "Obey robots.txt of the seed host")
	flags.Bool("sitemap", crawlDefaults.UseSitemap, "Queue URLs listed in the sitemap")
	flags.Duration("timeout", crawlDefaults.Timeout, "Timeout per page fetch")
	flags.IntP("concurrency", "c", crawlDefaults.Concurrency, fmt.Sprintf("Pages fetched at once (1-%d)", crawler.MaxConcurrency))
	flags.Float64("rate-limit", crawlDefaults.RateLimit, "Requests per second")
	flags.Bool("detect-tech", crawlDefaults.DetectTechnologies, "Fingerprint technologies on each page")
	flags.Bool("render", defaults.Render, "Render pages in headless Chrome before parsing")
	flags.String("user-agent", defaults.UserAgent, "User agent sent with every request")

	flags.StringP("output", "o", defaults.Output, "Export file path")
	flags.StringP("format", "f", "", "Export format: csv, xlsx, json, md, sqlite (default: from --output)")
	flags.Bool("all", false, "Export CSV, XLSX and JSON next to --output, like the desktop export button")
	flags.Int("autosave", defaults.AutosaveEvery, "Snapshot results every N pages (0 disables)")
	flags.String("autosave-dir", "", "Directory for autosave snapshots (default: next to --output)")
	flags.String("postgres-url", "", "Also store the run in this PostgreSQL database")
	flags.String("slack-webhook", "", "Post a summary to this Slack incoming webhook")

	return cmd
}

// crawlOptions is everything the crawl command needs besides the crawl itself
type crawlOptions struct {
	output      string
	format      export.Format
	all         bool
	autosave    int
	autosaveDir string
	render      bool
	userAgent   string
}

// buildCrawlConfig layers changed flags over the configured crawl defaults
func buildCrawlConfig(cmd *cobra.Command, cfg *config.Config, seed string) (crawler.CrawlConfig, error) {
	cc := cfg.Crawl
	cc.SeedURL = strings.TrimSpace(seed)

	flags := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("max-pages", func() (e error) { cc.MaxPages, e = flags.GetInt("max-pages"); return })
	set("max-depth", func() (e error) { cc.MaxDepth, e = flags.GetInt("max-depth"); return })
	set("same-domain", func() (e error) { cc.SameDomainOnly, e = flags.GetBool("same-domain"); return })
	set("include-subdomains", func() (e error) { cc.IncludeSubdomains, e = flags.GetBool("include-subdomains"); return })
	set("include", func() (e error) { cc.IncludePaths, e = flags.GetStringSlice("include"); return })
	set("exclude", func() (e error) { cc.ExcludePaths, e = flags.GetStringSlice("exclude"); return })
	set("respect-robots", func() (e error) { cc.RespectRobots, e = flags.GetBool("respect-robots"); return })
	set("sitemap", func() (e error) { cc.UseSitemap, e = flags.GetBool("sitemap"); return })
	set("timeout", func() (e error) { cc.Timeout, e = flags.GetDuration("timeout"); return })
	set("concurrency", func() (e error) { cc.Concurrency, e = flags.GetInt("concurrency"); return })
	set("rate-limit", func() (e error) { cc.RateLimit, e = flags.GetFloat64("rate-limit"); return })
	set("detect-tech", func() (e error) { cc.DetectTechnologies, e = flags.GetBool("detect-tech"); return })

	return cc, err
}

func buildCrawlOptions(cmd *cobra.Command, cfg *config.Config) (crawlOptions, error) {
	flags := cmd.Flags()
	opts := crawlOptions{
		output:      cfg.Output,
		autosave:    cfg.AutosaveEvery,
		autosaveDir: cfg.AutosaveDir,
		render:      cfg.Render,
		userAgent:   cfg.UserAgent,
	}

	if flags.Changed("output") {
		opts.output, _ = flags.GetString("output")
	}
	if flags.Changed("autosave") {
		opts.autosave, _ = flags.GetInt("autosave")
	}
	if flags.Changed("autosave-dir") {
		opts.autosaveDir, _ = flags.GetString("autosave-dir")
	}
	if flags.Changed("render") {
		opts.render, _ = flags.GetBool("render")
	}
	if flags.Changed("user-agent") {
		opts.userAgent, _ = flags.GetString("user-agent")
	}
	opts.all, _ = flags.GetBool("all")

	if url, _ := flags.GetString("postgres-url"); url != "" {
		cfg.DatabaseURL = url
	}
	if hook, _ := flags.GetString("slack-webhook"); hook != "" {
		cfg.SlackWebhookURL = hook
	}

	if opts.autosave < 0 {
		return opts, config.ErrInvalidAutosave
	}
	if opts.output == "" {
		return opts, errors.New("--output must not be empty")
	}

	name, _ := flags.GetString("format")
	if name == "" {
		name = cfg.Format
	}
	var err error
	switch {
	case opts.all:
		// --all picks its own formats from the base name
	case name != "":
		opts.format, err = export.ParseFormat(name)
	default:
		opts.format, err = export.FormatFromPath(opts.output)
	}
	if err != nil {
		return opts, err
	}

	if opts.autosaveDir == "" {
		opts.autosaveDir = filepath.Dir(opts.output)
	}
	return opts, nil
}

func (a *app) runCrawl(cmd *cobra.Command, seed string) error {
	crawlCfg, err := buildCrawlConfig(cmd, a.cfg, seed)
	if err != nil {
		return err
	}
	if err := crawlCfg.Validate(); err != nil {
		return err
	}
	opts, err := buildCrawlOptions(cmd, a.cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Observability.Enabled && a.cfg.Observability.OTLPEndpoint != "" {
		shutdown := initTracing(ctx, a.cfg)
		defer shutdown()
	}

	hooks, closeHooks, err := finishHooks(ctx, a.cfg)
	if err != nil {
		return err
	}
	defer closeHooks()

	cr, closeCrawler := newCrawler(opts.userAgent, opts.render)
	defer closeCrawler()

	run := runs.Run{
		ID:        uuid.NewString(),
		SeedURL:   crawlCfg.SeedURL,
		Status:    runs.RunStatusRunning,
		MaxPages:  crawlCfg.MaxPages,
		Config:    crawlCfg,
		CreatedAt: time.Now().UTC(),
	}

	saver := export.NewAutosaver(opts.autosaveDir, opts.autosave)
	runErr := crawlWithProgress(ctx, cmd.ErrOrStderr(), cr, crawlCfg, saver)
	results := saver.Results()

	finishRun(&run, results, runErr)
	if errors.Is(runErr, crawler.ErrInvalidConfig) {
		return runErr
	}

	written, exportErr := writeExports(opts, results, export.Summary{
		SeedURL:  run.SeedURL,
		Status:   string(run.Status),
		Duration: run.Duration().Round(time.Millisecond).String(),
	})

	hookCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, hook := range hooks {
		hook(hookCtx, run, results)
	}

	printSummary(cmd.OutOrStdout(), run, written)

	if exportErr != nil {
		return fmt.Errorf("export failed: %w", exportErr)
	}
	if run.Status == runs.RunStatusFailed {
		sentry.CaptureException(runErr)
		return fmt.Errorf("crawl failed after %d pages: %w", run.TotalPages, runErr)
	}
	return nil
}

// newCrawler builds the crawler. Technology detection is loaded up front so
// runs can switch it on; a render crawler owns a browser until closed.
func newCrawler(userAgent string, render bool) (*crawler.Crawler, func()) {
	crawlerConfig := crawler.DefaultConfig()
	crawlerConfig.UserAgent = userAgent

	detector, err := techdetect.New()
	if err != nil {
		log.Warn().Err(err).Msg("Technology detection unavailable")
	} else {
		crawlerConfig.Detector = detector
	}

	closeFn := func() {}
	if render {
		renderer := crawler.NewRenderFetcher(crawlerConfig)
		crawlerConfig.Fetcher = renderer
		closeFn = renderer.Close
	}

	return crawler.New(crawlerConfig), closeFn
}

// crawlWithProgress runs the crawl, feeding every result to saver and
// showing "N/MaxPages url" on w.
func crawlWithProgress(ctx context.Context, w io.Writer, cr *crawler.Crawler, cfg crawler.CrawlConfig, saver *export.Autosaver) error {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " starting " + cfg.SeedURL
	s.Start()
	defer s.Stop()

	count := 0
	for result, err := range cr.Run(ctx, cfg) {
		if err != nil {
			return err
		}
		count++
		saver.Add(result)
		s.Lock()
		s.Suffix = fmt.Sprintf(" %d/%d %s", count, cfg.MaxPages, result.URL)
		s.Unlock()

		event := log.Debug().Str("url", result.URL).Int("depth", result.Depth).Int("status", result.StatusCode)
		if result.Failed() {
			event = event.Str("error", result.Error)
		}
		event.Msg("Page crawled")
	}
	return nil
}

// finishRun fills the final status and counters of a run snapshot
func finishRun(run *runs.Run, results []crawler.PageResult, runErr error) {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.TotalPages = len(results)
	run.FailedPages = 0
	for _, r := range results {
		if r.Failed() {
			run.FailedPages++
		}
	}
	if run.MaxPages > 0 {
		run.Progress = float64(run.TotalPages) / float64(run.MaxPages) * 100
	}

	switch {
	case runErr == nil:
		run.Status = runs.RunStatusCompleted
		run.Progress = 100
	case errors.Is(runErr, context.Canceled):
		run.Status = runs.RunStatusCancelled
		log.Warn().Int("pages", run.TotalPages).Msg("Crawl interrupted, exporting pages crawled so far")
	default:
		run.Status = runs.RunStatusFailed
		run.ErrorMessage = runErr.Error()
	}
}

// writeExports writes the export files and the error log and returns their paths
func writeExports(opts crawlOptions, results []crawler.PageResult, summary export.Summary) ([]string, error) {
	if opts.all {
		base := strings.TrimSuffix(opts.output, filepath.Ext(opts.output))
		return export.ExportAll(base, results, summary)
	}

	if err := export.WriteFileAs(opts.output, opts.format, results, summary); err != nil {
		return nil, err
	}
	written := []string{opts.output}

	base := strings.TrimSuffix(opts.output, filepath.Ext(opts.output))
	errorLog, err := export.WriteErrorLog(base, results)
	if err != nil {
		return written, err
	}
	if errorLog != "" {
		written = append(written, errorLog)
	}
	return written, nil
}

func printSummary(w io.Writer, run runs.Run, written []string) {
	fmt.Fprintf(w, "Crawl %s: %d pages, %d failed, %s\n",
		run.Status, run.TotalPages, run.FailedPages, run.Duration().Round(time.Millisecond))
	for _, path := range written {
		fmt.Fprintf(w, "  wrote %s\n", path)
	}
}

// initTracing exports crawl spans for the lifetime of one CLI run
func initTracing(ctx context.Context, cfg *config.Config) func() {
	providers, err := observability.Init(ctx, observabilityConfig(cfg))
	if err != nil || providers == nil {
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise tracing")
		}
		return func() {}
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
		}
	}
}

func observabilityConfig(cfg *config.Config) observability.Config {
	return observability.Config{
		Enabled:      cfg.Observability.Enabled,
		ServiceName:  config.AppName,
		Environment:  cfg.Env,
		OTLPEndpoint: strings.TrimSpace(cfg.Observability.OTLPEndpoint),
		OTLPHeaders:  config.ParseOTLPHeaders(cfg.Observability.OTLPHeaders),
		OTLPInsecure: cfg.Observability.OTLPInsecure,
	}
}
