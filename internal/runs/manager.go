package runs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CrawlRunner runs a single crawl. *crawler.Crawler satisfies it.
type CrawlRunner interface {
	Run(ctx context.Context, cfg crawler.CrawlConfig) iter.Seq2[crawler.PageResult, error]
}

// FinishFunc is called once per run after it stops, with every result it produced
type FinishFunc func(ctx context.Context, run Run, results []crawler.PageResult)

// finishTimeout bounds the time finish hooks get
const finishTimeout = 30 * time.Second

type entry struct {
	run     Run
	results []crawler.PageResult
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager starts crawl runs in the background and keeps their results in
// memory for the lifetime of the process.
type Manager struct {
	runner   CrawlRunner
	onFinish []FinishFunc

	baseCtx    context.Context
	cancelBase context.CancelFunc

	mu   sync.RWMutex
	runs map[string]*entry
	wg   sync.WaitGroup
}

// NewManager creates a run manager. Hooks run in order when a run finishes.
func NewManager(runner CrawlRunner, onFinish ...FinishFunc) *Manager {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:     runner,
		onFinish:   onFinish,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		runs:       make(map[string]*entry),
	}
}

// StartRun validates cfg and starts a crawl in the background. The run
// outlives ctx; use CancelRun to stop it.
func (m *Manager) StartRun(ctx context.Context, cfg crawler.CrawlConfig) (*Run, error) {
	span := sentry.StartSpan(ctx, "manager.start_run")
	defer span.Finish()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(m.baseCtx)
	e := &entry{
		run: Run{
			ID:        uuid.NewString(),
			SeedURL:   cfg.SeedURL,
			Status:    RunStatusRunning,
			MaxPages:  cfg.MaxPages,
			Config:    cfg,
			CreatedAt: time.Now().UTC(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	span.SetTag("run_id", e.run.ID)

	// Shutdown cancels baseCtx under m.mu, so no run can be added once it waits
	m.mu.Lock()
	if m.baseCtx.Err() != nil {
		m.mu.Unlock()
		cancel()
		return nil, ErrManagerClosed
	}
	m.runs[e.run.ID] = e
	m.wg.Add(1)
	run := e.run
	m.mu.Unlock()

	go m.execute(runCtx, e, cfg)

	log.Info().
		Str("run_id", run.ID).
		Str("seed", cfg.SeedURL).
		Msg("Started crawl run")

	return &run, nil
}

func (m *Manager) execute(ctx context.Context, e *entry, cfg crawler.CrawlConfig) {
	defer m.wg.Done()
	defer close(e.done)
	defer e.cancel()

	var runErr error
	for result, err := range m.runner.Run(ctx, cfg) {
		if err != nil {
			runErr = err
			break
		}
		m.mu.Lock()
		e.results = append(e.results, result)
		e.run.TotalPages++
		if result.Failed() {
			e.run.FailedPages++
		}
		if e.run.MaxPages > 0 {
			e.run.Progress = float64(e.run.TotalPages) / float64(e.run.MaxPages) * 100
		}
		m.mu.Unlock()
	}

	m.mu.Lock()
	now := time.Now().UTC()
	e.run.CompletedAt = &now
	switch {
	case runErr == nil:
		e.run.Status = RunStatusCompleted
		e.run.Progress = 100
	case errors.Is(runErr, context.Canceled):
		e.run.Status = RunStatusCancelled
	default:
		e.run.Status = RunStatusFailed
		e.run.ErrorMessage = runErr.Error()
	}
	run := e.run
	results := append([]crawler.PageResult(nil), e.results...)
	m.mu.Unlock()

	if run.Status == RunStatusFailed {
		sentry.CaptureException(runErr)
		log.Error().Err(runErr).Str("run_id", run.ID).Msg("Crawl run failed")
	} else {
		log.Info().
			Str("run_id", run.ID).
			Str("status", string(run.Status)).
			Int("pages", run.TotalPages).
			Int("failed", run.FailedPages).
			Msg("Crawl run finished")
	}

	hookCtx, cancel := context.WithTimeout(context.Background(), finishTimeout)
	defer cancel()
	for _, fn := range m.onFinish {
		fn(hookCtx, run, results)
	}
}

// GetRun returns a snapshot of a run
func (m *Manager) GetRun(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	run := e.run
	return &run, nil
}

// Results returns up to limit results of a run starting at offset. limit <= 0
// returns everything from offset on.
func (m *Manager) Results(id string, offset, limit int) ([]crawler.PageResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}

	if offset < 0 {
		offset = 0
	}
	if offset >= len(e.results) {
		return []crawler.PageResult{}, nil
	}
	end := len(e.results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]crawler.PageResult(nil), e.results[offset:end]...), nil
}

// ActiveRuns counts runs that have not finished yet
func (m *Manager) ActiveRuns() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, e := range m.runs {
		if !e.run.Status.Finished() {
			active++
		}
	}
	return active
}

// ListRuns returns every run, newest first
func (m *Manager) ListRuns() []Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Run, 0, len(m.runs))
	for _, e := range m.runs {
		list = append(list, e.run)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
	return list
}

// CancelRun asks a running crawl to stop. The run reaches the cancelled
// status once the crawler notices.
func (m *Manager) CancelRun(ctx context.Context, id string) error {
	span := sentry.StartSpan(ctx, "manager.cancel_run")
	defer span.Finish()
	span.SetTag("run_id", id)

	m.mu.RLock()
	e, ok := m.runs[id]
	var status RunStatus
	if ok {
		status = e.run.Status
	}
	m.mu.RUnlock()

	if !ok {
		return ErrRunNotFound
	}
	if status.Finished() {
		return fmt.Errorf("%w: %s", ErrRunFinished, status)
	}

	e.cancel()
	log.Debug().Str("run_id", id).Msg("Cancellation requested")
	return nil
}

// Wait blocks until the run finishes or ctx is done
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return ErrRunNotFound
	}

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every running crawl and waits for them to finish
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.cancelBase()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
