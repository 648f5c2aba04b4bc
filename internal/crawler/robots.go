package crawler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/util"
	"github.com/rs/zerolog/log"
)

const maxRobotsSize = 512 * 1024

// RobotsRules holds the robots.txt directives that apply to this crawler
type RobotsRules struct {
	// CrawlDelay is zero when the file sets none
	CrawlDelay time.Duration
	// Sitemaps lists every Sitemap line, they are not tied to a user agent
	Sitemaps         []string
	DisallowPatterns []string
	AllowPatterns    []string
}

// similarBots are SEO crawlers whose groups we follow when the file has no
// group for our own agent.
var similarBots = []string{
	"ahrefsbot",
	"ahrefssiteaudit",
	"mj12bot",
	"semrushbot",
	"dotbot",
	"rogerbot",
	"screaming frog",
	"sitebot",
}

// FetchRobots downloads and parses robots.txt for the site of siteURL.
// A missing file (4xx) yields empty rules; 5xx and transport errors return an
// error so the caller can decide, the crawler treats them as no restrictions.
func FetchRobots(ctx context.Context, client *http.Client, siteURL, userAgent string) (*RobotsRules, error) {
	parsed, err := url.Parse(siteURL)
	if err != nil {
		return nil, fmt.Errorf("invalid site URL: %w", err)
	}
	robotsURL := (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}).String()

	log.Debug().
		Str("robots_url", robotsURL).
		Msg("Fetching robots.txt")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch robots.txt: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		log.Debug().Int("status", resp.StatusCode).Msg("No robots.txt found, no restrictions apply")
		return &RobotsRules{}, nil
	default:
		return nil, fmt.Errorf("robots.txt returned status %d", resp.StatusCode)
	}

	return parseRobotsTxt(io.LimitReader(resp.Body, maxRobotsSize), userAgent)
}

type robotsGroup struct {
	agents     []string
	crawlDelay time.Duration
	disallow   []string
	allow      []string
}

// parseRobotsTxt picks one group in order of precedence: our own agent, a
// similar SEO crawler, then "*".
func parseRobotsTxt(r io.Reader, userAgent string) (*RobotsRules, error) {
	rules := &RobotsRules{}
	var groups []*robotsGroup
	var current *robotsGroup
	lastWasAgent := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i != -1 {
			line = line[:i]
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			// Consecutive User-agent lines share one group
			if current == nil || !lastWasAgent {
				current = &robotsGroup{}
				groups = append(groups, current)
			}
			current.agents = append(current.agents, strings.ToLower(value))
			lastWasAgent = true
			continue
		case "sitemap":
			if value != "" {
				rules.Sitemaps = append(rules.Sitemaps, value)
			}
		case "crawl-delay":
			if current != nil {
				if secs, err := strconv.ParseFloat(value, 64); err == nil && secs > 0 {
					current.crawlDelay = time.Duration(secs * float64(time.Second))
				}
			}
		case "disallow":
			if current != nil && value != "" {
				current.disallow = append(current.disallow, value)
			}
		case "allow":
			if current != nil && value != "" {
				current.allow = append(current.allow, value)
			}
		}
		lastWasAgent = false
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading robots.txt: %w", err)
	}

	if group := selectRobotsGroup(groups, userAgent); group != nil {
		rules.CrawlDelay = group.crawlDelay
		rules.DisallowPatterns = group.disallow
		rules.AllowPatterns = group.allow
	}

	log.Debug().
		Dur("crawl_delay", rules.CrawlDelay).
		Int("sitemaps", len(rules.Sitemaps)).
		Int("disallow_patterns", len(rules.DisallowPatterns)).
		Int("allow_patterns", len(rules.AllowPatterns)).
		Msg("Parsed robots.txt rules")

	return rules, nil
}

func selectRobotsGroup(groups []*robotsGroup, userAgent string) *robotsGroup {
	// "SEOParser/1.0 (+https://...)" -> "seoparser"
	botName := strings.ToLower(strings.TrimSpace(strings.Split(userAgent, "/")[0]))

	match := func(accept func(agent string) bool) *robotsGroup {
		for _, g := range groups {
			for _, agent := range g.agents {
				if accept(agent) {
					return g
				}
			}
		}
		return nil
	}

	if botName != "" {
		if g := match(func(agent string) bool { return agent != "*" && strings.Contains(agent, botName) }); g != nil {
			return g
		}
	}
	if g := match(func(agent string) bool {
		for _, bot := range similarBots {
			if strings.Contains(agent, bot) {
				return true
			}
		}
		return false
	}); g != nil {
		return g
	}
	return match(func(agent string) bool { return agent == "*" })
}

// Allowed reports whether rawURL may be crawled. The longest matching pattern
// wins and Allow wins a tie.
func (r *RobotsRules) Allowed(rawURL string) bool {
	if r == nil || len(r.DisallowPatterns) == 0 {
		return true
	}

	return IsPathAllowed(r, util.ExtractPathFromURL(rawURL))
}

// IsPathAllowed checks a path (with query) against the rules
func IsPathAllowed(rules *RobotsRules, path string) bool {
	if rules == nil {
		return true
	}

	longestAllow, longestDisallow := -1, -1
	for _, pattern := range rules.AllowPatterns {
		if len(pattern) > longestAllow && matchesRobotsPattern(path, pattern) {
			longestAllow = len(pattern)
		}
	}
	for _, pattern := range rules.DisallowPatterns {
		if len(pattern) > longestDisallow && matchesRobotsPattern(path, pattern) {
			longestDisallow = len(pattern)
		}
	}

	return longestDisallow == -1 || longestAllow >= longestDisallow
}

// matchesRobotsPattern matches path against a robots.txt pattern where *
// matches any run of characters and a trailing $ anchors the end.
func matchesRobotsPattern(path, pattern string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	pattern = strings.TrimSuffix(pattern, "$")

	parts := strings.Split(pattern, "*")
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	rest := path[len(parts[0]):]

	if len(parts) == 1 {
		return !anchored || rest == ""
	}

	for i, part := range parts[1:] {
		last := i == len(parts)-2
		if last && anchored {
			return strings.HasSuffix(rest, part)
		}
		idx := strings.Index(rest, part)
		if idx == -1 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return true
}
