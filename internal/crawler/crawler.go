package crawler

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/observability"
	"github.com/Harvey-AU/seo-parser/internal/util"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Crawler runs bounded breadth-first crawls. A Crawler may run several crawls
// at once; every run has its own queue, visited set and rate limiter.
type Crawler struct {
	config  *Config
	fetcher Fetcher
	client  *http.Client
}

// New creates a new Crawler instance with the given configuration.
// If config is nil, default configuration is used
func New(config *Config) *Crawler {
	if config == nil {
		config = DefaultConfig()
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}

	fetcher := config.Fetcher
	if fetcher == nil {
		fetcher = NewHTTPFetcher(config)
	}

	client := config.Client
	if client == nil {
		client = &http.Client{
			Timeout:   config.Timeout,
			Transport: observability.WrapTransport(http.DefaultTransport),
		}
	}

	return &Crawler{
		config:  config,
		fetcher: fetcher,
		client:  client,
	}
}

// Config returns the Crawler's configuration.
func (c *Crawler) Config() *Config {
	return c.config
}

// Run returns the page results of one crawl in the order pages were taken
// from the queue. Nothing happens until the sequence is ranged over, and each
// range starts a fresh crawl.
//
// A non-nil error ends the sequence: ErrInvalidConfig before any fetch,
// ErrCrawlAborted when the fetcher cannot work, or ctx.Err() on cancellation.
// Stopping the range early stops the crawl.
func (c *Crawler) Run(ctx context.Context, cfg CrawlConfig) iter.Seq2[PageResult, error] {
	return func(yield func(PageResult, error) bool) {
		if err := cfg.Validate(); err != nil {
			yield(PageResult{}, err)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		r := newRun(c, cfg)
		r.execute(ctx, yield)
	}
}

type run struct {
	crawler  *Crawler
	cfg      CrawlConfig
	seed     *url.URL
	scope    util.ScopePolicy
	frontier *frontier
	robots   *RobotsRules
	limiter  *rate.Limiter
	timeout  time.Duration
	produced int
	failed   int
}

type pageOutcome struct {
	result PageResult
	links  []string
	// abort is set when the fetcher reported it cannot work at all
	abort error
}

func newRun(c *Crawler, cfg CrawlConfig) *run {
	seedURL := util.NormaliseURL(cfg.SeedURL)
	seed, _ := url.Parse(seedURL)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}

	return &run{
		crawler: c,
		cfg:     cfg,
		seed:    seed,
		scope: util.ScopePolicy{
			SeedAuthority:     util.Authority(seedURL),
			SameDomainOnly:    cfg.SameDomainOnly,
			IncludeSubdomains: cfg.IncludeSubdomains,
		},
		frontier: newFrontier(),
		limiter:  rate.NewLimiter(rate.Limit(cfg.rateLimit()), 1),
		timeout:  timeout,
	}
}

func (r *run) execute(ctx context.Context, yield func(PageResult, error) bool) {
	start := time.Now()
	log.Info().
		Str("seed", r.seed.String()).
		Int("max_pages", r.cfg.MaxPages).
		Int("max_depth", r.cfg.MaxDepth).
		Int("concurrency", r.cfg.concurrency()).
		Msg("Starting crawl")

	r.frontier.Push(r.seed.String(), 0)
	r.prepare(ctx)

	for r.frontier.Len() > 0 && r.produced < r.cfg.MaxPages {
		if err := ctx.Err(); err != nil {
			r.finish(start, "cancelled")
			yield(PageResult{}, err)
			return
		}

		size := min(r.cfg.concurrency(), r.cfg.MaxPages-r.produced)
		batch := r.frontier.Next(size)
		outcomes := r.fetchBatch(ctx, batch)

		// Emit in dequeue order so link expansion stays deterministic
		for i, outcome := range outcomes {
			if err := ctx.Err(); err != nil {
				r.finish(start, "cancelled")
				yield(PageResult{}, err)
				return
			}
			if outcome.abort != nil {
				r.finish(start, "aborted")
				log.Error().Err(outcome.abort).Str("url", batch[i].URL).Msg("Fetcher unavailable, aborting crawl")
				yield(PageResult{}, fmt.Errorf("%w: %w", ErrCrawlAborted, outcome.abort))
				return
			}

			if !outcome.result.Failed() && batch[i].Depth < r.cfg.MaxDepth {
				r.expand(outcome.links, batch[i].Depth+1)
			}

			r.produced++
			if outcome.result.Failed() {
				r.failed++
			}
			if !yield(outcome.result, nil) {
				r.finish(start, "stopped")
				return
			}
		}
	}

	r.finish(start, "completed")
}

// prepare reads robots.txt and, when asked, seeds the queue from sitemaps.
func (r *run) prepare(ctx context.Context) {
	if !r.cfg.RespectRobots && !r.cfg.UseSitemap {
		return
	}

	rules, err := FetchRobots(ctx, r.crawler.client, r.seed.String(), r.crawler.config.UserAgent)
	if err != nil {
		log.Warn().Err(err).Str("seed", r.seed.String()).Msg("Failed to read robots.txt, proceeding with no restrictions")
		rules = &RobotsRules{}
	}

	if r.cfg.RespectRobots {
		r.robots = rules
		if interval := time.Duration(float64(time.Second) / r.cfg.rateLimit()); rules.CrawlDelay > interval {
			r.limiter.SetLimit(rate.Every(rules.CrawlDelay))
			log.Info().Dur("crawl_delay", rules.CrawlDelay).Msg("Using robots.txt crawl delay")
		}
	}

	// Sitemap pages sit one level below the seed so MaxDepth 0 still means the seed alone
	if !r.cfg.UseSitemap || r.cfg.MaxDepth < 1 {
		return
	}
	for _, location := range sitemapLocations(r.seed, rules) {
		urls, err := FetchSitemapURLs(ctx, r.crawler.client, location, r.crawler.config.UserAgent, r.cfg.MaxPages)
		if err != nil {
			log.Warn().Err(err).Str("sitemap", location).Msg("Failed to read sitemap")
			continue
		}
		added := r.expand(urls, 1)
		log.Debug().Str("sitemap", location).Int("found", len(urls)).Int("queued", added).Msg("Queued sitemap URLs")
	}
}

// expand queues every link that passes the run's filters and was not seen before.
func (r *run) expand(links []string, depth int) int {
	added := 0
	for _, link := range links {
		if r.admit(link) && r.frontier.Push(link, depth) {
			added++
		}
	}
	return added
}

func (r *run) admit(link string) bool {
	if !r.scope.InScope(link) {
		return false
	}
	if !util.MatchesPathFilters(link, r.cfg.IncludePaths, r.cfg.ExcludePaths) {
		return false
	}
	// robots.txt was read for the seed's site only
	if r.robots != nil && util.Authority(link) == r.scope.SeedAuthority && !r.robots.Allowed(link) {
		log.Debug().Str("url", link).Msg("Skipping URL disallowed by robots.txt")
		return false
	}
	return true
}

func (r *run) fetchBatch(ctx context.Context, batch []CrawlTarget) []pageOutcome {
	outcomes := make([]pageOutcome, len(batch))

	var g errgroup.Group
	g.SetLimit(r.cfg.concurrency())
	for i, target := range batch {
		g.Go(func() error {
			outcomes[i] = r.fetchPage(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (r *run) fetchPage(ctx context.Context, target CrawlTarget) pageOutcome {
	start := time.Now()
	result := PageResult{
		URL:       target.URL,
		Depth:     target.Depth,
		CrawledAt: start.UTC(),
	}

	ctx, span := observability.StartFetchSpan(ctx, observability.FetchSpanInfo{
		URL:    target.URL,
		Domain: target.Domain,
		Depth:  target.Depth,
	})
	defer span.End()

	outcome := r.fetchAndParse(ctx, target, &result)
	if outcome.abort != nil {
		span.RecordError(outcome.abort)
		span.SetStatus(codes.Error, "fetcher unavailable")
		return outcome
	}
	outcome.result = result

	status := "ok"
	if result.Failed() {
		status = string(result.ErrorKind)
		span.SetStatus(codes.Error, result.Error)
		log.Debug().
			Str("url", target.URL).
			Int("status", result.StatusCode).
			Str("error", result.Error).
			Msg("Page failed")
	} else {
		log.Debug().
			Str("url", target.URL).
			Int("depth", target.Depth).
			Int("status", result.StatusCode).
			Int("links", result.LinkCount).
			Msg("Page crawled")
	}

	observability.RecordFetch(ctx, observability.FetchMetrics{
		Domain:   target.Domain,
		Status:   status,
		Duration: time.Since(start),
	})

	return outcome
}

func (r *run) fetchAndParse(ctx context.Context, target CrawlTarget, result *PageResult) pageOutcome {
	if err := r.limiter.Wait(ctx); err != nil {
		result.Error, result.ErrorKind = classifyFetchError(err)
		return pageOutcome{}
	}
	start := time.Now()

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.crawler.fetcher.Fetch(fetchCtx, target.URL)
	if err != nil {
		if errors.Is(err, ErrCollaboratorUnavailable) {
			return pageOutcome{abort: err}
		}
		result.Error, result.ErrorKind = classifyFetchError(err)
		result.ResponseTime = time.Since(start).Milliseconds()
		return pageOutcome{}
	}

	result.StatusCode = resp.StatusCode
	result.ContentType = resp.ContentType
	result.ResponseTime = resp.ResponseTime.Milliseconds()

	observability.RecordFetchTimings(ctx, observability.FetchTimings{
		StatusCode:      resp.StatusCode,
		DNSLookup:       resp.Performance.DNSLookupTime,
		TCPConnection:   resp.Performance.TCPConnectionTime,
		TLSHandshake:    resp.Performance.TLSHandshakeTime,
		TTFB:            resp.Performance.TTFB,
		ContentTransfer: resp.Performance.ContentTransferTime,
	})

	if !isSuccess(resp.StatusCode) {
		result.Error = statusError(resp.StatusCode)
		result.ErrorKind = ErrorKindStatus
		return pageOutcome{}
	}

	if r.cfg.DetectTechnologies && r.crawler.config.Detector != nil {
		result.Technologies = r.crawler.config.Detector.Names(resp.Header, resp.Body)
	}

	if !IsHTML(resp.ContentType) {
		return pageOutcome{}
	}

	baseURL := resp.FinalURL
	if baseURL == "" {
		baseURL = target.URL
	}

	doc, err := Parse(resp.Body, baseURL)
	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = ErrorKindMalformed
		return pageOutcome{}
	}

	result.Title = doc.Title
	result.Description = doc.Description
	result.H1 = doc.H1
	result.Headers = doc.Headers
	result.Canonical = doc.Canonical
	result.MetaRobots = doc.MetaRobots
	result.LinkCount = len(doc.Links)
	result.Emails = doc.Emails

	return pageOutcome{links: doc.Links}
}

func (r *run) finish(start time.Time, status string) {
	log.Info().
		Str("seed", r.seed.String()).
		Str("status", status).
		Int("pages", r.produced).
		Int("failed", r.failed).
		Int("queued", r.frontier.Len()).
		Dur("duration", time.Since(start)).
		Msg("Crawl finished")
	observability.RecordRun(context.Background(), status)
}
