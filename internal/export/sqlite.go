package export

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	_ "modernc.org/sqlite" // SQLite driver
)

// WriteSQLite writes results into a fresh SQLite database at path, table
// page_results, one row per result in emission order.
func WriteSQLite(path string, results []crawler.PageResult) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS page_results (
		position INTEGER PRIMARY KEY,
		url TEXT NOT NULL UNIQUE,
		status_code INTEGER,
		title TEXT,
		description TEXT,
		h1 TEXT,
		headers TEXT,
		header_count INTEGER,
		canonical TEXT,
		meta_robots TEXT,
		link_count INTEGER,
		depth INTEGER,
		content_type TEXT,
		response_time_ms INTEGER,
		technologies TEXT,
		error TEXT,
		error_kind TEXT,
		crawled_at DATETIME
	)`); err != nil {
		return fmt.Errorf("failed to create page_results table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO page_results (
		position, url, status_code, title, description, h1, headers, header_count,
		canonical, meta_robots, link_count, depth, content_type, response_time_ms,
		technologies, error, error_kind, crawled_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		_, err := stmt.ExecContext(ctx,
			i+1,
			r.URL,
			sql.NullInt64{Int64: int64(r.StatusCode), Valid: r.StatusCode > 0},
			r.Title,
			r.Description,
			r.H1,
			strings.Join(r.Headers, HeaderSeparator),
			len(r.Headers),
			r.Canonical,
			r.MetaRobots,
			r.LinkCount,
			r.Depth,
			r.ContentType,
			r.ResponseTime,
			strings.Join(r.Technologies, ", "),
			r.Error,
			string(r.ErrorKind),
			r.CrawledAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s: %w", r.URL, err)
		}
	}

	return tx.Commit()
}
