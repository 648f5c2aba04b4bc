package crawler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"sync"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/observability"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

// Fetcher retrieves one URL. Non-2xx responses are returned without error so
// the caller can record the status; a transport failure returns an error.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*Response, error)
}

// TechDetector names the technologies visible in a response.
type TechDetector interface {
	Names(headers http.Header, body []byte) []string
}

// traceKey carries a fetch's *fetchTrace on the request context.
type traceKey struct{}

// fetchTrace holds the timings of one Fetch. Each redirect hop overwrites it,
// so after the fetch it describes the request that produced the response.
type fetchTrace struct {
	mu      sync.Mutex
	metrics PerformanceMetrics
}

func (ft *fetchTrace) update(fn func(m *PerformanceMetrics)) {
	ft.mu.Lock()
	fn(&ft.metrics)
	ft.mu.Unlock()
}

func (ft *fetchTrace) snapshot() PerformanceMetrics {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.metrics
}

// tracingRoundTripper records httptrace timings into the fetchTrace found on
// the request context. Requests without one pass straight through.
type tracingRoundTripper struct {
	transport http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface with httptrace instrumentation
func (t *tracingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ft, ok := req.Context().Value(traceKey{}).(*fetchTrace)
	if !ok {
		return t.transport.RoundTrip(req)
	}

	var mu sync.Mutex
	var dnsStart, connectStart, tlsStart time.Time
	requestStart := time.Now()

	ft.update(func(m *PerformanceMetrics) { *m = PerformanceMetrics{} })

	trace := &httptrace.ClientTrace{
		DNSStart: func(httptrace.DNSStartInfo) {
			mu.Lock()
			dnsStart = time.Now()
			mu.Unlock()
		},
		DNSDone: func(httptrace.DNSDoneInfo) {
			mu.Lock()
			defer mu.Unlock()
			if !dnsStart.IsZero() {
				elapsed := time.Since(dnsStart).Milliseconds()
				ft.update(func(m *PerformanceMetrics) { m.DNSLookupTime = elapsed })
			}
		},
		ConnectStart: func(network, addr string) {
			mu.Lock()
			connectStart = time.Now()
			mu.Unlock()
		},
		ConnectDone: func(network, addr string, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil && !connectStart.IsZero() {
				elapsed := time.Since(connectStart).Milliseconds()
				ft.update(func(m *PerformanceMetrics) { m.TCPConnectionTime = elapsed })
			}
		},
		TLSHandshakeStart: func() {
			mu.Lock()
			tlsStart = time.Now()
			mu.Unlock()
		},
		TLSHandshakeDone: func(state tls.ConnectionState, err error) {
			mu.Lock()
			defer mu.Unlock()
			if err == nil && !tlsStart.IsZero() {
				elapsed := time.Since(tlsStart).Milliseconds()
				ft.update(func(m *PerformanceMetrics) { m.TLSHandshakeTime = elapsed })
			}
		},
		GotFirstResponseByte: func() {
			elapsed := time.Since(requestStart).Milliseconds()
			ft.update(func(m *PerformanceMetrics) { m.TTFB = elapsed })
		},
	}

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	return t.transport.RoundTrip(req)
}

// HTTPFetcher fetches pages with a colly collector. Each fetch runs on its own
// collector sharing one transport, so fetches are independent and may run
// concurrently.
type HTTPFetcher struct {
	userAgent   string
	timeout     time.Duration
	maxBodySize int
	transport   http.RoundTripper
}

// NewHTTPFetcher builds the default fetcher from a crawler Config.
func NewHTTPFetcher(config *Config) *HTTPFetcher {
	if config == nil {
		config = DefaultConfig()
	}

	baseTransport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConnsPerHost: 8,
		MaxConnsPerHost:     MaxConcurrency * 2,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPFetcher{
		userAgent:   config.UserAgent,
		timeout:     config.Timeout,
		maxBodySize: config.MaxBodySize,
		transport:   observability.WrapTransport(&tracingRoundTripper{transport: baseTransport}),
	}
}

func (f *HTTPFetcher) collector(ctx context.Context, timeout time.Duration) *colly.Collector {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.DetectCharset(),
		colly.UserAgent(f.userAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(f.maxBodySize),
		colly.IgnoreRobotsTxt(),
	)

	c.SetClient(&http.Client{
		Timeout:   timeout,
		Transport: f.transport,
	})

	// Browser-like headers avoid the most basic bot blocking
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")

		log.Debug().
			Str("url", r.URL.String()).
			Msg("Crawler sending request")
	})

	return c
}

// Fetch retrieves targetURL. It returns once the response arrives, the
// per-fetch timeout elapses or ctx is cancelled, whichever comes first.
func (f *HTTPFetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	res := &Response{}
	ft := &fetchTrace{}
	c := f.collector(context.WithValue(ctx, traceKey{}, ft), timeout)

	c.OnResponse(func(r *colly.Response) {
		res.StatusCode = r.StatusCode
		res.Body = r.Body
		res.Header = r.Headers.Clone()
		res.ContentType = r.Headers.Get("Content-Type")
		res.FinalURL = r.Request.URL.String()
		res.ResponseTime = time.Since(start)

		res.Performance = ft.snapshot()
		if res.Performance.TTFB > 0 {
			res.Performance.ContentTransferTime = res.ResponseTime.Milliseconds() - res.Performance.TTFB
		}
	})

	done := make(chan error, 1)

	// Visit blocks until the response is read, run it aside so ctx can win
	go func() {
		done <- c.Visit(targetURL)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		log.Debug().
			Err(ctx.Err()).
			Str("url", targetURL).
			Msg("Fetch cancelled due to context")
		return nil, ctx.Err()
	}

	if res.StatusCode == 0 {
		return nil, fmt.Errorf("%w: no response for %s", ErrFetch, targetURL)
	}

	log.Debug().
		Int("status", res.StatusCode).
		Str("url", targetURL).
		Int64("ttfb_ms", res.Performance.TTFB).
		Dur("duration", res.ResponseTime).
		Msg("Fetched page")

	return res, nil
}

// classifyFetchError maps a fetch error to the message and kind recorded on the PageResult.
func classifyFetchError(err error) (string, ErrorKind) {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout", ErrorKindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout", ErrorKindTimeout
	}

	return err.Error(), ErrorKindFetch
}

// statusError is the message recorded for a non-2xx response.
func statusError(code int) string {
	return fmt.Sprintf("non-success status code: %d", code)
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
