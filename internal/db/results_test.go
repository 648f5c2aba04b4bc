package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePages() []crawler.PageResult {
	crawledAt := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	return []crawler.PageResult{
		{
			URL:        "https://example.com/",
			Depth:      0,
			StatusCode: 200,
			Title:      "Home",
			Headers:    []string{"Welcome", "News"},
			H1:         "Welcome",
			LinkCount:  2,
			CrawledAt:  crawledAt,
		},
		{
			URL:       "https://example.com/slow",
			Depth:     1,
			Error:     "timeout",
			ErrorKind: crawler.ErrorKindTimeout,
			CrawledAt: crawledAt,
		},
	}
}

func sampleRun() RunRecord {
	return RunRecord{
		ID:          "run-1",
		SeedURL:     "https://example.com/",
		Status:      "completed",
		MaxPages:    10,
		MaxDepth:    2,
		StartedAt:   time.Date(2025, 3, 1, 9, 59, 0, 0, time.UTC),
		CompletedAt: time.Date(2025, 3, 1, 10, 1, 0, 0, time.UTC),
	}
}

func TestSaveRun(t *testing.T) {
	client, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer client.Close()

	run := sampleRun()
	pages := samplePages()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(run.ID, run.SeedURL, run.Status, run.MaxPages, run.MaxDepth, 2, 1,
			sqlmock.AnyArg(), run.StartedAt, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM page_results").
		WithArgs(run.ID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO page_results")
	prep.ExpectExec().
		WithArgs(run.ID, 1, pages[0].URL, 0, sqlmock.AnyArg(), "Home", "", "Welcome", sqlmock.AnyArg(),
			"", "", 2, "", int64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), pages[0].CrawledAt).
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(run.ID, 2, pages[1].URL, 1, sqlmock.AnyArg(), "", "", "", sqlmock.AnyArg(),
			"", "", 0, "", int64(0), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), pages[1].CrawledAt).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err = NewWithClient(client).SaveRun(context.Background(), run, pages)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunRollsBackOnInsertFailure(t *testing.T) {
	client, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer client.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO crawl_runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM page_results").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO page_results")
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = NewWithClient(client).SaveRun(context.Background(), sampleRun(), samplePages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert page result https://example.com/")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRunBeginFailure(t *testing.T) {
	client, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer client.Close()

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err = NewWithClient(client).SaveRun(context.Background(), sampleRun(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	assert.Error(t, err)

	_, err = New(context.Background(), nil)
	assert.Error(t, err)
}

func TestInitFromEnvWithoutURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := InitFromEnv(context.Background())
	assert.Error(t, err)
}
