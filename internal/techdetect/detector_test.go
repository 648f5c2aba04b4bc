package techdetect

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)
	assert.NotNil(t, detector.client)
}

func TestDetectEmptyInputs(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	result := detector.Detect(nil, nil)

	require.NotNil(t, result)
	assert.Empty(t, result.Technologies)
	assert.Nil(t, result.Names())
}

func TestDetectCloudflareHeaders(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	headers := make(http.Header)
	headers.Set("CF-Ray", "1234567890abcdef-SYD")
	headers.Set("CF-Cache-Status", "HIT")
	headers.Set("Server", "cloudflare")

	names := detector.Names(headers, nil)

	assert.Contains(t, names, "Cloudflare")
	assert.IsIncreasing(t, names)
}

func TestDetectShopifySignatures(t *testing.T) {
	detector, err := New()
	require.NoError(t, err)

	headers := make(http.Header)
	headers.Set("X-ShopId", "12345678")
	headers.Set("X-Shopify-Stage", "production")
	headers.Set("Content-Type", "text/html; charset=utf-8")

	body := []byte(`<!DOCTYPE html><html><head><link rel="preconnect" href="https://cdn.shopify.com"></head><body data-shopify="true"></body></html>`)

	result := detector.Detect(headers, body)

	categories, ok := result.Technologies["Shopify"]
	require.True(t, ok, "Shopify should be detected")
	assert.NotEmpty(t, categories)
}

func TestResultNamesSorted(t *testing.T) {
	r := &Result{Technologies: map[string][]string{"Nginx": nil, "Cloudflare": nil, "HSTS": nil}}
	assert.Equal(t, []string{"Cloudflare", "HSTS", "Nginx"}, r.Names())

	var nilResult *Result
	assert.Nil(t, nilResult.Names())
}
