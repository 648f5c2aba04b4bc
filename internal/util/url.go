package util

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// ParseSeedURL validates a seed URL: it must be absolute, http(s) and carry a host.
func ParseSeedURL(rawURL string) (*url.URL, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return nil, fmt.Errorf("seed URL is empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("seed URL %q is malformed: %w", rawURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("seed URL %q must use http or https", rawURL)
	}
	if parsed.Host == "" || parsed.Hostname() == "" {
		return nil, fmt.Errorf("seed URL %q has no host", rawURL)
	}

	return parsed, nil
}

// NormaliseURL canonicalises an absolute http(s) URL so that equivalent URLs compare equal.
//
// Scheme and host are lower-cased, default ports removed, the fragment dropped,
// an empty path becomes "/" and a trailing slash on any other path is removed.
// The query string is left as-is. Returns "" for anything that is not an
// absolute http(s) URL.
func NormaliseURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		log.Debug().Str("url", rawURL).Err(err).Msg("Invalid URL format")
		return ""
	}

	return normaliseParsed(parsed)
}

// ResolveURL resolves href against base and normalises the result.
// Returns "" when href cannot be parsed or does not resolve to http(s).
func ResolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil || href == "" {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}

	return normaliseParsed(base.ResolveReference(ref))
}

func normaliseParsed(parsed *url.URL) string {
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}
	if parsed.Host == "" {
		return ""
	}

	u := *parsed
	u.Scheme = scheme
	u.Host = normaliseHostPort(strings.ToLower(u.Host), scheme)
	u.Fragment = ""
	u.RawFragment = ""
	u.User = nil

	// Trailing slashes are trimmed on the escaped form so an encoded %2F survives
	if u.Path == "" {
		u.Path = "/"
		u.RawPath = ""
	} else if escaped := u.EscapedPath(); len(escaped) > 1 && strings.HasSuffix(escaped, "/") {
		trimmed := strings.TrimRight(escaped, "/")
		if trimmed == "" {
			trimmed = "/"
		}
		if path, err := url.PathUnescape(trimmed); err == nil {
			u.Path = path
			u.RawPath = trimmed
		}
	}

	return u.String()
}

// Authority returns the normalised host[:port] of a URL, or "" when it cannot be parsed.
func Authority(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return normaliseHostPort(strings.ToLower(parsed.Host), strings.ToLower(parsed.Scheme))
}

// normaliseHostPort removes default ports (80 for HTTP, 443 for HTTPS) and
// an empty port from host.
func normaliseHostPort(host, scheme string) string {
	host = strings.TrimSuffix(host, ":")
	if scheme == "http" && strings.HasSuffix(host, ":80") {
		return strings.TrimSuffix(host, ":80")
	}
	if scheme == "https" && strings.HasSuffix(host, ":443") {
		return strings.TrimSuffix(host, ":443")
	}
	return host
}

// ScopePolicy decides whether a discovered URL belongs to the crawl.
type ScopePolicy struct {
	// SeedAuthority is the normalised host[:port] of the seed URL.
	SeedAuthority string
	// SameDomainOnly restricts the crawl to SeedAuthority.
	SameDomainOnly bool
	// IncludeSubdomains also admits hosts under the seed host.
	IncludeSubdomains bool
}

// InScope reports whether the normalised URL u passes the policy.
func (p ScopePolicy) InScope(u string) bool {
	if !p.SameDomainOnly {
		return true
	}

	authority := Authority(u)
	if authority == "" {
		return false
	}
	if authority == p.SeedAuthority {
		return true
	}
	if !p.IncludeSubdomains {
		return false
	}

	// Subdomain matching compares bare hosts, the seed's port still has to match
	host, port := splitAuthority(authority)
	seedHost, seedPort := splitAuthority(p.SeedAuthority)
	if port != seedPort {
		return false
	}
	seedHost = strings.TrimPrefix(seedHost, "www.")

	return host == seedHost || strings.HasSuffix(host, "."+seedHost)
}

func splitAuthority(authority string) (host, port string) {
	if i := strings.LastIndex(authority, ":"); i != -1 && !strings.HasSuffix(authority, "]") {
		return authority[:i], authority[i+1:]
	}
	return authority, ""
}

// ExtractPathFromURL returns the path and query of a URL, "/" when there is none
func ExtractPathFromURL(fullURL string) string {
	parsed, err := url.Parse(fullURL)
	if err != nil {
		return "/"
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}

	return path
}

// MatchesPathFilters applies include/exclude substring filters to a URL.
// With include patterns the URL must contain at least one of them; any
// exclude match rejects it.
func MatchesPathFilters(u string, includePaths, excludePaths []string) bool {
	if len(includePaths) > 0 {
		included := false
		for _, pattern := range includePaths {
			if pattern != "" && strings.Contains(u, pattern) {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	for _, pattern := range excludePaths {
		if pattern != "" && strings.Contains(u, pattern) {
			return false
		}
	}

	return true
}
