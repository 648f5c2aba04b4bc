package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// RenderFetcher loads pages in headless Chrome so client-rendered markup is
// visible to the parser. The browser starts on the first fetch and is shared
// by every later fetch until Close.
type RenderFetcher struct {
	userAgent string
	timeout   time.Duration

	startOnce     sync.Once
	startErr      error
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc
}

// NewRenderFetcher returns a fetcher backed by a headless browser.
func NewRenderFetcher(config *Config) *RenderFetcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &RenderFetcher{
		userAgent: config.UserAgent,
		timeout:   config.Timeout,
	}
}

func (f *RenderFetcher) start() error {
	f.startOnce.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Headless,
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(f.userAgent),
		)

		allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

		// Running with no actions launches the browser
		if err := chromedp.Run(browserCtx); err != nil {
			cancelBrowser()
			cancelAlloc()
			f.startErr = fmt.Errorf("%w: headless browser: %w", ErrCollaboratorUnavailable, err)
			return
		}

		f.browserCtx = browserCtx
		f.cancelAlloc = cancelAlloc
		f.cancelBrowser = cancelBrowser
		log.Debug().Msg("Headless browser started")
	})
	return f.startErr
}

// Fetch navigates a fresh tab to targetURL and returns the rendered document.
func (f *RenderFetcher) Fetch(ctx context.Context, targetURL string) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.start(); err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(f.browserCtx)
	defer cancelTab()

	timeout := f.timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	// chromedp contexts descend from the browser, tie the tab to the caller too
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	var (
		mu       sync.Mutex
		status   int64
		mimeType string
		finalURL string
		header   = http.Header{}
	)

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		// Redirect hops arrive first, keep the last document response
		status = e.Response.Status
		mimeType = e.Response.MimeType
		finalURL = e.Response.URL
		header = http.Header{}
		for k, v := range e.Response.Headers {
			header.Set(k, fmt.Sprint(v))
		}
	})

	start := time.Now()
	var html string
	err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(targetURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(tabCtx.Err(), context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	mu.Lock()
	defer mu.Unlock()

	contentType := header.Get("Content-Type")
	if contentType == "" {
		contentType = mimeType
	}
	if finalURL == "" {
		finalURL = targetURL
	}

	log.Debug().
		Int64("status", status).
		Str("url", targetURL).
		Dur("duration", elapsed).
		Msg("Rendered page")

	return &Response{
		StatusCode:   int(status),
		Body:         []byte(html),
		Header:       header,
		ContentType:  contentType,
		FinalURL:     finalURL,
		ResponseTime: elapsed,
	}, nil
}

// Close shuts the browser down.
func (f *RenderFetcher) Close() {
	if f.cancelBrowser != nil {
		f.cancelBrowser()
	}
	if f.cancelAlloc != nil {
		f.cancelAlloc()
	}
}
