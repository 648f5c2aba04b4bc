package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// RunRecord describes one crawl run as stored in crawl_runs
type RunRecord struct {
	ID          string
	SeedURL     string
	Status      string
	MaxPages    int
	MaxDepth    int
	Error       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// SaveRun stores a run and its page results in a single transaction, in
// emission order. Saving the same run again replaces its pages.
func (d *DB) SaveRun(ctx context.Context, run RunRecord, pages []crawler.PageResult) error {
	tx, err := d.client.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				log.Warn().Err(rbErr).Str("run_id", run.ID).Msg("Failed to roll back run save")
			}
		}
	}()

	failed := 0
	for _, p := range pages {
		if p.Failed() {
			failed++
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crawl_runs (id, seed_url, status, max_pages, max_depth, total_pages, failed_pages, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_pages = EXCLUDED.total_pages,
			failed_pages = EXCLUDED.failed_pages,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, run.ID, run.SeedURL, run.Status, run.MaxPages, run.MaxDepth, len(pages), failed,
		nullString(run.Error), run.StartedAt, nullTime(run.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to save crawl run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM page_results WHERE run_id = $1`, run.ID); err != nil {
		return fmt.Errorf("failed to clear previous page results: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO page_results (
			run_id, position, url, depth, status_code, title, description, h1, headers,
			canonical, meta_robots, link_count, content_type, response_time_ms,
			technologies, error, error_kind, crawled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare page result insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range pages {
		_, err := stmt.ExecContext(ctx,
			run.ID,
			i+1,
			p.URL,
			p.Depth,
			sql.NullInt64{Int64: int64(p.StatusCode), Valid: p.StatusCode > 0},
			p.Title,
			p.Description,
			p.H1,
			pq.Array(p.Headers),
			p.Canonical,
			p.MetaRobots,
			p.LinkCount,
			p.ContentType,
			p.ResponseTime,
			pq.Array(p.Technologies),
			nullString(p.Error),
			nullString(string(p.ErrorKind)),
			p.CrawledAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert page result %s: %w", p.URL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run save: %w", err)
	}
	committed = true

	log.Info().
		Str("run_id", run.ID).
		Int("pages", len(pages)).
		Int("failed", failed).
		Msg("Saved crawl run to PostgreSQL")

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
