package crawler

import (
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchSitemapURLs(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap_index.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%[1]s/posts.xml</loc></sitemap>
  <sitemap><loc>%[1]s/pages.xml.gz</loc></sitemap>
  <sitemap><loc>%[1]s/missing.xml</loc></sitemap>
</sitemapindex>`, srv.URL)
		case "/posts.xml":
			fmt.Fprintf(w, `<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc> %[1]s/post-1/ </loc></url>
  <url><loc>%[1]s/post-2#comments</loc></url>
  <url><loc>not a url</loc></url>
</urlset>`, srv.URL)
		case "/pages.xml.gz":
			gz := gzip.NewWriter(w)
			fmt.Fprintf(gz, `<urlset><url><loc>%s/about</loc></url></urlset>`, srv.URL)
			_ = gz.Close()
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	urls, err := FetchSitemapURLs(context.Background(), srv.Client(), srv.URL+"/sitemap_index.xml", DefaultUserAgent, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		srv.URL + "/post-1",
		srv.URL + "/post-2",
		srv.URL + "/about",
	}, urls)

	limited, err := FetchSitemapURLs(context.Background(), srv.Client(), srv.URL+"/sitemap_index.xml", DefaultUserAgent, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestFetchSitemapURLsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad.xml" {
			_, _ = w.Write([]byte("<html>not a sitemap</html>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := FetchSitemapURLs(context.Background(), srv.Client(), srv.URL+"/sitemap.xml", DefaultUserAgent, 0)
	assert.Error(t, err)

	_, err = FetchSitemapURLs(context.Background(), srv.Client(), srv.URL+"/bad.xml", DefaultUserAgent, 0)
	assert.Error(t, err)
}

func TestSitemapLocations(t *testing.T) {
	seed, err := url.Parse("https://example.com/start")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://example.com/sitemap.xml"}, sitemapLocations(seed, nil))

	rules := &RobotsRules{Sitemaps: []string{
		"https://example.com/a.xml",
		"https://EXAMPLE.com/a.xml",
		"https://example.com/b.xml",
	}}
	assert.Equal(t, []string{"https://example.com/a.xml", "https://example.com/b.xml"}, sitemapLocations(seed, rules))
}
