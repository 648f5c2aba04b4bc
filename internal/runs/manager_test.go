package runs

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	results []crawler.PageResult
	err     error
	block   bool
}

func (f *fakeRunner) Run(ctx context.Context, cfg crawler.CrawlConfig) iter.Seq2[crawler.PageResult, error] {
	return func(yield func(crawler.PageResult, error) bool) {
		for _, r := range f.results {
			if !yield(r, nil) {
				return
			}
		}
		if f.block {
			<-ctx.Done()
			yield(crawler.PageResult{}, ctx.Err())
			return
		}
		if f.err != nil {
			yield(crawler.PageResult{}, f.err)
		}
	}
}

type hookRecorder struct {
	mu      sync.Mutex
	runs    []Run
	results [][]crawler.PageResult
}

func (h *hookRecorder) record(ctx context.Context, run Run, results []crawler.PageResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, run)
	h.results = append(h.results, results)
}

func pages(n int) []crawler.PageResult {
	out := make([]crawler.PageResult, n)
	for i := range out {
		out[i] = crawler.PageResult{URL: fmt.Sprintf("https://example.com/%d", i), StatusCode: 200}
	}
	return out
}

func testConfig() crawler.CrawlConfig {
	return crawler.DefaultCrawlConfig("https://example.com/")
}

func waitFor(t *testing.T, m *Manager, id string) *Run {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx, id))
	run, err := m.GetRun(id)
	require.NoError(t, err)
	return run
}

func TestStartRunRejectsInvalidConfig(t *testing.T) {
	m := NewManager(&fakeRunner{})

	cfg := testConfig()
	cfg.MaxPages = 0
	_, err := m.StartRun(context.Background(), cfg)

	assert.ErrorIs(t, err, crawler.ErrInvalidConfig)
	assert.Empty(t, m.ListRuns())
}

func TestRunCompletes(t *testing.T) {
	results := pages(3)
	results[1].Error = "timeout"
	results[1].ErrorKind = crawler.ErrorKindTimeout

	hooks := &hookRecorder{}
	m := NewManager(&fakeRunner{results: results}, hooks.record)

	started, err := m.StartRun(context.Background(), testConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, started.ID)
	assert.Equal(t, RunStatusRunning, started.Status)

	run := waitFor(t, m, started.ID)
	assert.Equal(t, RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.TotalPages)
	assert.Equal(t, 1, run.FailedPages)
	assert.Equal(t, float64(100), run.Progress)
	require.NotNil(t, run.CompletedAt)

	got, err := m.Results(started.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, results, got)

	hooks.mu.Lock()
	defer hooks.mu.Unlock()
	require.Len(t, hooks.runs, 1)
	assert.Equal(t, RunStatusCompleted, hooks.runs[0].Status)
	assert.Len(t, hooks.results[0], 3)
}

func TestRunFails(t *testing.T) {
	runErr := fmt.Errorf("%w: %w", crawler.ErrCrawlAborted, crawler.ErrCollaboratorUnavailable)
	m := NewManager(&fakeRunner{results: pages(1), err: runErr})

	started, err := m.StartRun(context.Background(), testConfig())
	require.NoError(t, err)

	run := waitFor(t, m, started.ID)
	assert.Equal(t, RunStatusFailed, run.Status)
	assert.Contains(t, run.ErrorMessage, "crawl aborted")
	assert.Equal(t, 1, run.TotalPages, "partial results stay")
}

func TestCancelRun(t *testing.T) {
	m := NewManager(&fakeRunner{results: pages(2), block: true})

	started, err := m.StartRun(context.Background(), testConfig())
	require.NoError(t, err)

	require.NoError(t, m.CancelRun(context.Background(), started.ID))

	run := waitFor(t, m, started.ID)
	assert.Equal(t, RunStatusCancelled, run.Status)
	assert.Empty(t, run.ErrorMessage)

	err = m.CancelRun(context.Background(), started.ID)
	assert.ErrorIs(t, err, ErrRunFinished)
}

func TestUnknownRun(t *testing.T) {
	m := NewManager(&fakeRunner{})

	_, err := m.GetRun("missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = m.Results("missing", 0, 0)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, m.CancelRun(context.Background(), "missing"), ErrRunNotFound)
	assert.ErrorIs(t, m.Wait(context.Background(), "missing"), ErrRunNotFound)
}

func TestResultsPaging(t *testing.T) {
	m := NewManager(&fakeRunner{results: pages(5)})

	started, err := m.StartRun(context.Background(), testConfig())
	require.NoError(t, err)
	waitFor(t, m, started.ID)

	tests := []struct {
		name   string
		offset int
		limit  int
		want   []string
	}{
		{"all", 0, 0, []string{"0", "1", "2", "3", "4"}},
		{"window", 1, 2, []string{"1", "2"}},
		{"tail", 3, 10, []string{"3", "4"}},
		{"past end", 9, 0, []string{}},
		{"negative offset", -1, 1, []string{"0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Results(started.ID, tt.offset, tt.limit)
			require.NoError(t, err)
			ids := make([]string, len(got))
			for i, r := range got {
				ids[i] = r.URL[len("https://example.com/"):]
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	m := NewManager(&fakeRunner{})

	first, err := m.StartRun(context.Background(), testConfig())
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := m.StartRun(context.Background(), testConfig())
	require.NoError(t, err)

	list := m.ListRuns()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestShutdownCancelsRuns(t *testing.T) {
	m := NewManager(&fakeRunner{block: true})

	started, err := m.StartRun(context.Background(), testConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, m.ActiveRuns())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	run, err := m.GetRun(started.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCancelled, run.Status)

	assert.Zero(t, m.ActiveRuns())

	_, err = m.StartRun(context.Background(), testConfig())
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestStartRunConcurrentWithShutdown(t *testing.T) {
	m := NewManager(&fakeRunner{block: true})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		started []string
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run, err := m.StartRun(context.Background(), testConfig())
			if err != nil {
				assert.ErrorIs(t, err, ErrManagerClosed)
				return
			}
			mu.Lock()
			started = append(started, run.ID)
			mu.Unlock()
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	wg.Wait()

	// Every run accepted before Shutdown returned has been waited for
	mu.Lock()
	defer mu.Unlock()
	for _, id := range started {
		run, err := m.GetRun(id)
		require.NoError(t, err)
		assert.Equal(t, RunStatusCancelled, run.Status, id)
	}
	assert.Zero(t, m.ActiveRuns())
}

func TestRunDuration(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	completed := created.Add(90 * time.Second)

	run := Run{CreatedAt: created, CompletedAt: &completed}
	assert.Equal(t, 90*time.Second, run.Duration())
	assert.True(t, RunStatusCancelled.Finished())
	assert.False(t, RunStatusRunning.Finished())
}
