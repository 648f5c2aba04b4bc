package main

import (
	"context"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/config"
	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/Harvey-AU/seo-parser/internal/db"
	"github.com/Harvey-AU/seo-parser/internal/notifications"
	"github.com/Harvey-AU/seo-parser/internal/runs"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"
)

// finishHooks builds what runs after a crawl stops: the PostgreSQL sink when
// a database URL is set and Slack when a webhook is set. The returned close
// function releases the database.
func finishHooks(ctx context.Context, cfg *config.Config) ([]runs.FinishFunc, func(), error) {
	var hooks []runs.FinishFunc
	closeFn := func() {}

	if cfg.DatabaseURL != "" {
		pgDB, err := db.Connect(ctx, &db.Config{DatabaseURL: cfg.DatabaseURL}, db.DefaultRetryConfig())
		if err != nil {
			return nil, closeFn, err
		}
		closeFn = func() {
			if err := pgDB.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}
		hooks = append(hooks, postgresHook(pgDB))
	}

	if cfg.SlackWebhookURL != "" {
		slackChannel, err := notifications.NewSlackChannel(cfg.SlackWebhookURL)
		if err != nil {
			closeFn()
			return nil, func() {}, err
		}
		hooks = append(hooks, notifications.NewService(slackChannel).NotifyRunFinished)
	}

	return hooks, closeFn, nil
}

// runSaver is the part of *db.DB the sink needs
type runSaver interface {
	SaveRun(ctx context.Context, run db.RunRecord, pages []crawler.PageResult) error
}

func postgresHook(store runSaver) runs.FinishFunc {
	return func(ctx context.Context, run runs.Run, results []crawler.PageResult) {
		if err := store.SaveRun(ctx, runRecord(run), results); err != nil {
			sentry.CaptureException(err)
			log.Error().Err(err).Str("run_id", run.ID).Msg("Failed to save crawl run to PostgreSQL")
		}
	}
}

func runRecord(run runs.Run) db.RunRecord {
	record := db.RunRecord{
		ID:        run.ID,
		SeedURL:   run.SeedURL,
		Status:    string(run.Status),
		MaxPages:  run.MaxPages,
		MaxDepth:  run.Config.MaxDepth,
		Error:     run.ErrorMessage,
		StartedAt: run.CreatedAt,
	}
	if run.CompletedAt != nil {
		record.CompletedAt = *run.CompletedAt
	} else {
		record.CompletedAt = time.Now().UTC()
	}
	return record
}
