package crawler

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Harvey-AU/seo-parser/internal/util"
	"github.com/rs/zerolog/log"
)

const (
	maxSitemapSize  = 50 * 1024 * 1024
	maxSitemapDepth = 3
)

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// sitemapLocations returns the sitemaps to read for a site: those listed in
// robots.txt, or /sitemap.xml when robots.txt lists none.
func sitemapLocations(seed *url.URL, rules *RobotsRules) []string {
	seen := make(map[string]bool)
	var locations []string
	if rules != nil {
		for _, s := range rules.Sitemaps {
			if n := util.NormaliseURL(s); n != "" && !seen[n] {
				seen[n] = true
				locations = append(locations, n)
			}
		}
	}
	if len(locations) == 0 {
		locations = append(locations, (&url.URL{Scheme: seed.Scheme, Host: seed.Host, Path: "/sitemap.xml"}).String())
	}
	return locations
}

// FetchSitemapURLs reads a sitemap, following sitemap indexes, and returns at
// most limit normalised page URLs. limit <= 0 means no limit.
func FetchSitemapURLs(ctx context.Context, client *http.Client, sitemapURL, userAgent string, limit int) ([]string, error) {
	var urls []string
	err := readSitemap(ctx, client, sitemapURL, userAgent, limit, 0, &urls)
	return urls, err
}

func readSitemap(ctx context.Context, client *http.Client, sitemapURL, userAgent string, limit, depth int, urls *[]string) error {
	if depth >= maxSitemapDepth {
		log.Warn().Str("url", sitemapURL).Msg("Sitemap index nesting too deep, skipping")
		return nil
	}

	body, err := fetchSitemapBody(ctx, client, sitemapURL, userAgent)
	if err != nil {
		return err
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil {
		for _, child := range index.Sitemaps {
			if limit > 0 && len(*urls) >= limit {
				return nil
			}
			childURL := util.NormaliseURL(child.Loc)
			if childURL == "" {
				continue
			}
			if err := readSitemap(ctx, client, childURL, userAgent, limit, depth+1, urls); err != nil {
				log.Warn().Err(err).Str("url", childURL).Msg("Failed to parse child sitemap")
			}
		}
		return nil
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("sitemap %s is neither a urlset nor a sitemapindex: %w", sitemapURL, err)
	}

	for _, entry := range set.URLs {
		if limit > 0 && len(*urls) >= limit {
			break
		}
		if u := util.NormaliseURL(entry.Loc); u != "" {
			*urls = append(*urls, u)
		} else {
			log.Debug().Str("invalid_url", entry.Loc).Msg("Skipping invalid URL from sitemap")
		}
	}

	log.Debug().
		Str("sitemap_url", sitemapURL).
		Int("url_count", len(set.URLs)).
		Msg("Parsed sitemap")

	return nil
}

func fetchSitemapBody(ctx context.Context, client *http.Client, sitemapURL, userAgent string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sitemapURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch sitemap: %d", resp.StatusCode)
	}

	var r io.Reader = resp.Body
	if strings.HasSuffix(strings.ToLower(req.URL.Path), ".gz") || strings.Contains(resp.Header.Get("Content-Type"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("sitemap gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	return io.ReadAll(io.LimitReader(r, maxSitemapSize))
}
