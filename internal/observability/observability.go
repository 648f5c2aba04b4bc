package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "seo-parser/crawler"

// Config controls observability initialisation.
type Config struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	OTLPHeaders  map[string]string
	OTLPInsecure bool
}

// Providers exposes configured telemetry providers.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Propagator     propagation.TextMapPropagator
	MetricsHandler http.Handler
	Shutdown       func(ctx context.Context) error
	Config         Config
}

var (
	instrumentsMu sync.RWMutex

	crawlTracer trace.Tracer

	fetchDuration metric.Float64Histogram
	pagesTotal    metric.Int64Counter
	runsTotal     metric.Int64Counter
)

// Init configures tracing and metrics exporters. When cfg.Enabled is false the function is a no-op.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "seo-parser"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.DeploymentEnvironment(cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	var spanExporter sdktrace.SpanExporter
	if cfg.OTLPEndpoint != "" {
		clientOpts := []otlptracehttp.Option{
			getOTLPEndpointOption(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}
		if len(cfg.OTLPHeaders) > 0 {
			clientOpts = append(clientOpts, otlptracehttp.WithHeaders(cfg.OTLPHeaders))
		}

		exp, err := otlptracehttp.New(ctx, clientOpts...)
		if err != nil {
			// Tracing is optional, keep going without it
			log.Warn().Err(err).Str("endpoint", cfg.OTLPEndpoint).Msg("Failed to create OTLP trace exporter, traces disabled")
		} else {
			spanExporter = exp
			log.Info().Str("endpoint", cfg.OTLPEndpoint).Msg("OTLP trace exporter initialised")
		}
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	if spanExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExporter))
	}

	tracerProvider := sdktrace.NewTracerProvider(traceOpts...)
	otel.SetTracerProvider(tracerProvider)

	prop := propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
	otel.SetTextMapPropagator(prop)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	promExporter, err := otelprom.New(
		otelprom.WithRegisterer(registry),
	)
	if err != nil {
		_ = tracerProvider.Shutdown(ctx)
		return nil, fmt.Errorf("create Prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
	)
	otel.SetMeterProvider(meterProvider)

	if err := initCrawlInstruments(tracerProvider, meterProvider); err != nil {
		_ = tracerProvider.Shutdown(ctx)
		_ = meterProvider.Shutdown(ctx)
		return nil, fmt.Errorf("create crawl instruments: %w", err)
	}

	shutdown := func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var allErr error
		if err := meterProvider.Shutdown(ctx); err != nil {
			allErr = errors.Join(allErr, fmt.Errorf("metric provider shutdown: %w", err))
		}
		if err := tracerProvider.Shutdown(ctx); err != nil {
			allErr = errors.Join(allErr, fmt.Errorf("trace provider shutdown: %w", err))
		}
		return allErr
	}

	return &Providers{
		TracerProvider: tracerProvider,
		MeterProvider:  meterProvider,
		Propagator:     prop,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Shutdown:       shutdown,
		Config:         cfg,
	}, nil
}

func getOTLPEndpointOption(endpoint string) otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return otlptracehttp.WithEndpointURL(endpoint)
	}
	return otlptracehttp.WithEndpoint(endpoint)
}

// WrapHandler applies OpenTelemetry instrumentation to an http.Handler when the providers are active.
func WrapHandler(handler http.Handler, prov *Providers) http.Handler {
	if prov == nil || prov.TracerProvider == nil {
		return handler
	}

	options := []otelhttp.Option{
		otelhttp.WithTracerProvider(prov.TracerProvider),
		otelhttp.WithPropagators(prov.Propagator),
		otelhttp.WithMeterProvider(prov.MeterProvider),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return fmt.Sprintf("%s %s", r.Method, r.URL.Path)
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health"
		}),
	}

	return otelhttp.NewHandler(handler, "http.server", options...)
}

// WrapTransport instruments outbound crawler requests. It uses the global
// providers, so it is safe to call before or without Init.
func WrapTransport(rt http.RoundTripper) http.RoundTripper {
	return otelhttp.NewTransport(rt,
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return "crawler.http " + r.Method
		}),
	)
}

func initCrawlInstruments(tp *sdktrace.TracerProvider, mp *sdkmetric.MeterProvider) error {
	meter := mp.Meter(instrumentationName)

	duration, err := meter.Float64Histogram(
		"seo.crawler.fetch.duration_ms",
		metric.WithUnit("ms"),
		metric.WithDescription("Time taken to fetch and parse one page"),
	)
	if err != nil {
		return err
	}

	pages, err := meter.Int64Counter(
		"seo.crawler.pages.total",
		metric.WithDescription("Counts page outcomes produced by crawl runs"),
	)
	if err != nil {
		return err
	}

	runs, err := meter.Int64Counter(
		"seo.crawler.runs.total",
		metric.WithDescription("Counts finished crawl runs by final status"),
	)
	if err != nil {
		return err
	}

	instrumentsMu.Lock()
	defer instrumentsMu.Unlock()
	crawlTracer = tp.Tracer(instrumentationName)
	fetchDuration = duration
	pagesTotal = pages
	runsTotal = runs
	return nil
}

// FetchSpanInfo describes the attributes used when starting a page fetch span.
type FetchSpanInfo struct {
	URL    string
	Domain string
	Depth  int
}

// FetchMetrics describes a fetched page for metric recording.
type FetchMetrics struct {
	Domain   string
	Status   string
	Duration time.Duration
}

// StartFetchSpan starts a span for a single page fetch.
func StartFetchSpan(ctx context.Context, info FetchSpanInfo) (context.Context, trace.Span) {
	instrumentsMu.RLock()
	t := crawlTracer
	instrumentsMu.RUnlock()
	if t == nil {
		t = otel.Tracer(instrumentationName)
	}

	attrs := []attribute.KeyValue{
		attribute.String("page.url", info.URL),
		attribute.String("page.domain", info.Domain),
		attribute.Int("page.depth", info.Depth),
	}

	return t.Start(ctx, "crawler.fetch_page", trace.WithAttributes(attrs...))
}

// FetchTimings are the connection phase timings of one fetch, in milliseconds.
type FetchTimings struct {
	StatusCode      int
	DNSLookup       int64
	TCPConnection   int64
	TLSHandshake    int64
	TTFB            int64
	ContentTransfer int64
}

// RecordFetchTimings attaches timings to the span carried by ctx.
func RecordFetchTimings(ctx context.Context, t FetchTimings) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	span.SetAttributes(
		attribute.Int("http.status_code", t.StatusCode),
		attribute.Int64("http.dns_lookup_ms", t.DNSLookup),
		attribute.Int64("http.tcp_connection_ms", t.TCPConnection),
		attribute.Int64("http.tls_handshake_ms", t.TLSHandshake),
		attribute.Int64("http.ttfb_ms", t.TTFB),
		attribute.Int64("http.content_transfer_ms", t.ContentTransfer),
	)
}

// RecordFetch emits page metrics when instrumentation is initialised.
func RecordFetch(ctx context.Context, m FetchMetrics) {
	instrumentsMu.RLock()
	duration, total := fetchDuration, pagesTotal
	instrumentsMu.RUnlock()

	attrs := metric.WithAttributes(attribute.String("page.domain", m.Domain), attribute.String("page.status", m.Status))
	if duration != nil {
		duration.Record(ctx, float64(m.Duration.Milliseconds()), attrs)
	}
	if total != nil {
		total.Add(ctx, 1, attrs)
	}
}

// RecordRun counts a finished run by its final status.
func RecordRun(ctx context.Context, status string) {
	instrumentsMu.RLock()
	runs := runsTotal
	instrumentsMu.RUnlock()

	if runs != nil {
		runs.Add(ctx, 1, metric.WithAttributes(attribute.String("run.status", status)))
	}
}
