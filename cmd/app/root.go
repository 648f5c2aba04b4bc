package main

import (
	"fmt"
	"os"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/config"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app carries state shared by every command once the root has loaded it
type app struct {
	cfg *config.Config
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "seo-parser",
		Short: "Crawl a website and export its SEO metadata",
		Long: `seo-parser crawls a website breadth first from a seed URL and records the
title, meta description, headers, canonical, meta robots and link count of
every page it visits. Results are exported to CSV, XLSX, JSON, Markdown or
SQLite, optionally stored in PostgreSQL and announced on Slack.

Settings are read from .env.local/.env, then $XDG_CONFIG_HOME/seo-parser/config.yaml
(or --config), then environment variables, then flags.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	cmd.PersistentFlags().String("config", "", "Config file path (default: $XDG_CONFIG_HOME/seo-parser/config.yaml)")
	cmd.PersistentFlags().String("log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().String("env", "", "Environment: development or production")

	cmd.AddCommand(newCrawlCmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// load reads the configuration and sets up logging and error reporting
func (a *app) load(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if env, _ := cmd.Flags().GetString("env"); env != "" {
		cfg.Env = env
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	setupLogging(cfg)
	initSentry(cfg)

	a.cfg = cfg
	return nil
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	err := NewRootCmd().Execute()
	sentry.Flush(2 * time.Second)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setupLogging configures the logging system. Logs go to stderr so stdout
// only carries command output.
func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		return
	}

	log.Logger = zerolog.New(os.Stderr).
		With().
		Timestamp().
		Str("service", config.AppName).
		Logger()
}

// initSentry enables error reporting when a DSN is configured
func initSentry(cfg *config.Config) {
	if cfg.SentryDSN == "" {
		log.Debug().Msg("Sentry DSN not configured, error tracking disabled")
		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Env,
		Release:     getVersion(),
		TracesSampleRate: func() float64 {
			if cfg.Env == "production" {
				return 0.1
			}
			return 1.0
		}(),
		AttachStacktrace: true,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialise Sentry")
		return
	}
	log.Info().Str("environment", cfg.Env).Msg("Sentry initialised")
}
