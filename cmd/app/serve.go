package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/api"
	"github.com/Harvey-AU/seo-parser/internal/auth"
	"github.com/Harvey-AU/seo-parser/internal/config"
	"github.com/Harvey-AU/seo-parser/internal/observability"
	"github.com/Harvey-AU/seo-parser/internal/runs"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the crawl API server",
		Long: `Serve starts an HTTP API for starting, watching, cancelling and exporting
crawls. Runs live in memory; set DATABASE_URL to keep them in PostgreSQL.

Set API_JWT_SECRET or API_JWKS_URL to require bearer tokens on /v1 routes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if port, _ := cmd.Flags().GetString("port"); cmd.Flags().Changed("port") {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context())
		},
	}

	cmd.Flags().String("port", config.DefaultPort, "Port to listen on")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	cfg := a.cfg
	api.Version = getVersion()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var obsProviders *observability.Providers
	if cfg.Observability.Enabled {
		var err error
		obsProviders, err = observability.Init(ctx, observabilityConfig(cfg))
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialise observability providers")
		} else if obsProviders != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := obsProviders.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to flush telemetry providers cleanly")
				}
			}()

			if obsProviders.MetricsHandler != nil && cfg.Observability.MetricsAddr != "" {
				metricsSrv := startMetricsServer(cfg.Observability.MetricsAddr, obsProviders.MetricsHandler)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Warn().Err(err).Msg("Graceful shutdown of metrics server failed")
					}
				}()
			}
		}
	}

	hooks, closeHooks, err := finishHooks(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHooks()

	cr, closeCrawler := newCrawler(cfg.UserAgent, cfg.Render)
	defer closeCrawler()

	manager := runs.NewManager(cr, hooks...)

	authClient, err := newAuthClient()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newHandler(cfg, manager, authClient, obsProviders),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("env", cfg.Env).Msg("Starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			sentry.CaptureException(err)
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info().Int("active_runs", manager.ActiveRuns()).Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sentry.CaptureException(err)
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Crawl runs did not stop before the shutdown timeout")
	}

	log.Info().Msg("Server stopped")
	return nil
}

// newHandler wires the API routes and the middleware stack. /metrics is
// served on the API port when no separate metrics address is set.
func newHandler(cfg *config.Config, manager api.RunManager, authClient auth.AuthClient, obsProviders *observability.Providers) http.Handler {
	mux := http.NewServeMux()
	api.NewHandler(manager, authClient).SetupRoutes(mux)

	if obsProviders != nil && obsProviders.MetricsHandler != nil && cfg.Observability.MetricsAddr == "" {
		mux.Handle("/metrics", obsProviders.MetricsHandler)
	}

	limiter := api.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, api.WithTrustedProxy(cfg.Server.TrustProxy))

	// Outermost last
	var handler http.Handler = limiter.Middleware(mux)
	handler = api.LoggingMiddleware(handler)
	handler = api.RequestIDMiddleware(handler)
	handler = api.SecurityHeadersMiddleware(handler)
	handler = api.CrossOriginProtectionMiddleware(handler)
	handler = api.CORSMiddleware(handler)
	return observability.WrapHandler(handler, obsProviders)
}

// newAuthClient returns nil when no token settings are present
func newAuthClient() (auth.AuthClient, error) {
	authConfig := auth.NewConfigFromEnv()
	if authConfig == nil {
		log.Warn().Msg("API authentication not configured, /v1 routes are open")
		return nil, nil
	}
	client, err := auth.NewTokenAuthClient(authConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid auth configuration: %w", err)
	}
	return client, nil
}

func startMetricsServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.CaptureException(err)
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return srv
}
