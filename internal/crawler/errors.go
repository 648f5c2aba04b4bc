package crawler

import "errors"

var (
	// ErrInvalidConfig is yielded before any fetch when a CrawlConfig cannot be run.
	ErrInvalidConfig = errors.New("invalid crawl config")
	// ErrCrawlAborted ends a run early; results already yielded stay valid.
	ErrCrawlAborted = errors.New("crawl aborted")
	// ErrCollaboratorUnavailable is returned by a Fetcher that cannot work at all,
	// for example when no browser binary is installed.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrFetch marks a single page that could not be retrieved.
	ErrFetch = errors.New("fetch failed")
	// ErrMalformedDocument marks a body that cannot be parsed as HTML.
	ErrMalformedDocument = errors.New("malformed document")
)
