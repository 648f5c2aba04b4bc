package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
)

// DB represents a PostgreSQL database connection used to store crawl runs
type DB struct {
	client *sql.DB
	config *Config
}

// GetConfig returns the original DB connection settings
func (d *DB) GetConfig() *Config {
	return d.config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	DatabaseURL        string        // postgres:// URL or key=value DSN
	MaxIdleConns       int           // Maximum number of idle connections
	MaxOpenConns       int           // Maximum number of open connections
	MaxLifetime        time.Duration // Maximum lifetime of a connection
	StatementTimeoutMs int           // Server-side statement timeout
}

// ConnectionString returns the PostgreSQL connection string
func (c *Config) ConnectionString() string {
	return AugmentDSNWithTimeout(c.DatabaseURL, c.StatementTimeoutMs)
}

// New creates a new PostgreSQL database connection and makes sure the
// crawl tables exist.
func New(ctx context.Context, config *Config) (*DB, error) {
	if config == nil || config.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	// A crawl writes from one goroutine, a small pool is plenty
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 2
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxLifetime == 0 {
		config.MaxLifetime = 20 * time.Minute
	}

	client, err := sql.Open("pgx", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	client.SetMaxOpenConns(config.MaxOpenConns)
	client.SetMaxIdleConns(config.MaxIdleConns)
	client.SetConnMaxLifetime(config.MaxLifetime)

	if err := client.PingContext(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := setupSchema(ctx, client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to setup schema: %w", err)
	}

	log.Info().Int("max_open_conns", config.MaxOpenConns).Msg("Connected to PostgreSQL")

	return &DB{client: client, config: config}, nil
}

// NewWithClient wraps an already opened connection. The schema is not touched.
func NewWithClient(client *sql.DB) *DB {
	return &DB{client: client, config: &Config{}}
}

// InitFromEnv connects using DATABASE_URL
func InitFromEnv(ctx context.Context) (*DB, error) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return New(ctx, &Config{DatabaseURL: url})
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.client.Close()
}

// setupSchema creates the crawl tables in PostgreSQL
func setupSchema(ctx context.Context, client *sql.DB) error {
	_, err := client.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS crawl_runs (
			id TEXT PRIMARY KEY,
			seed_url TEXT NOT NULL,
			status TEXT NOT NULL,
			max_pages INTEGER NOT NULL,
			max_depth INTEGER NOT NULL,
			total_pages INTEGER NOT NULL DEFAULT 0,
			failed_pages INTEGER NOT NULL DEFAULT 0,
			error TEXT,
			started_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create crawl_runs table: %w", err)
	}

	_, err = client.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS page_results (
			id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			url TEXT NOT NULL,
			depth INTEGER NOT NULL,
			status_code INTEGER,
			title TEXT,
			description TEXT,
			h1 TEXT,
			headers TEXT[],
			canonical TEXT,
			meta_robots TEXT,
			link_count INTEGER NOT NULL DEFAULT 0,
			content_type TEXT,
			response_time_ms BIGINT,
			technologies TEXT[],
			error TEXT,
			error_kind TEXT,
			crawled_at TIMESTAMP NOT NULL,
			UNIQUE(run_id, url)
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create page_results table: %w", err)
	}

	_, err = client.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_page_results_run_position ON page_results(run_id, position)`)
	if err != nil {
		return fmt.Errorf("failed to create page_results index: %w", err)
	}

	return nil
}
