package crawler

import (
	"net/http"
	"time"
)

// ErrorKind classifies why a page failed.
type ErrorKind string

const (
	ErrorKindNone      ErrorKind = ""
	ErrorKindFetch     ErrorKind = "fetch"
	ErrorKindTimeout   ErrorKind = "timeout"
	ErrorKindStatus    ErrorKind = "status"
	ErrorKindMalformed ErrorKind = "malformed_document"
)

// CrawlTarget is a queued URL. URL is absolute and normalised.
type CrawlTarget struct {
	URL    string
	Depth  int
	Domain string
}

// PageResult is emitted once for every page the crawler attempted.
type PageResult struct {
	URL          string    `json:"url"`
	Depth        int       `json:"depth"`
	StatusCode   int       `json:"status_code,omitempty"`
	Title        string    `json:"title,omitempty"`
	Description  string    `json:"description,omitempty"`
	H1           string    `json:"h1,omitempty"`
	Headers      []string  `json:"headers,omitempty"`
	Canonical    string    `json:"canonical,omitempty"`
	MetaRobots   string    `json:"meta_robots,omitempty"`
	LinkCount    int       `json:"link_count"`
	ContentType  string    `json:"content_type,omitempty"`
	ResponseTime int64     `json:"response_time_ms"`
	Technologies []string  `json:"technologies,omitempty"`
	Emails       []string  `json:"emails,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	CrawledAt    time.Time `json:"crawled_at"`
}

// Failed reports whether the page produced an error.
func (p PageResult) Failed() bool {
	return p.Error != ""
}

// Response is what a Fetcher hands back for one URL.
type Response struct {
	StatusCode   int
	Body         []byte
	Header       http.Header
	ContentType  string
	FinalURL     string
	ResponseTime time.Duration
	Performance  PerformanceMetrics
}

// PerformanceMetrics holds httptrace timings for a request, in milliseconds.
type PerformanceMetrics struct {
	DNSLookupTime       int64 `json:"dns_lookup_time"`
	TCPConnectionTime   int64 `json:"tcp_connection_time"`
	TLSHandshakeTime    int64 `json:"tls_handshake_time"`
	TTFB                int64 `json:"ttfb"`
	ContentTransferTime int64 `json:"content_transfer_time"`
}

// Document is the SEO metadata parsed from one HTML page.
type Document struct {
	Title       string
	Description string
	Headers     []string
	H1          string
	Canonical   string
	MetaRobots  string
	// Links holds every <a href> that resolved to http(s), in document order.
	Links  []string
	Emails []string
}
