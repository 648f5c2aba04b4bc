package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitDisabled(t *testing.T) {
	prov, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, prov)
}

func TestWrapHandlerWithoutProviders(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	wrapped := WrapHandler(h, nil)

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestStartFetchSpanWithoutInit(t *testing.T) {
	ctx, span := StartFetchSpan(context.Background(), FetchSpanInfo{URL: "https://example.com/", Domain: "example.com"})
	defer span.End()

	assert.NotNil(t, ctx)
	RecordFetch(ctx, FetchMetrics{Domain: "example.com", Status: "ok", Duration: time.Millisecond})
}

func TestInitEnabledServesCrawlMetrics(t *testing.T) {
	ctx := context.Background()
	prov, err := Init(ctx, Config{Enabled: true, ServiceName: "seo-parser-test", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, prov)
	defer func() { _ = prov.Shutdown(ctx) }()

	RecordFetch(ctx, FetchMetrics{Domain: "example.com", Status: "ok", Duration: 25 * time.Millisecond})
	RecordRun(ctx, "completed")

	rec := httptest.NewRecorder()
	prov.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "seo_crawler_pages")
	assert.Contains(t, body, "seo_crawler_fetch_duration")
	assert.Contains(t, body, "seo_crawler_runs")
}

func TestWrapTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: WrapTransport(http.DefaultTransport)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRecordFetchTimingsAnnotatesSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "fetch")
	RecordFetchTimings(ctx, FetchTimings{StatusCode: 200, DNSLookup: 3, TTFB: 42, ContentTransfer: 7})
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 1)

	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range ended[0].Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(200), attrs["http.status_code"].AsInt64())
	assert.Equal(t, int64(3), attrs["http.dns_lookup_ms"].AsInt64())
	assert.Equal(t, int64(42), attrs["http.ttfb_ms"].AsInt64())
	assert.Equal(t, int64(7), attrs["http.content_transfer_ms"].AsInt64())
}

func TestRecordFetchTimingsWithoutSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordFetchTimings(context.Background(), FetchTimings{TTFB: 1})
	})
}
