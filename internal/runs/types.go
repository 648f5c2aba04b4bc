package runs

import (
	"errors"
	"time"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
)

// RunStatus represents the current status of a crawl run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Finished reports whether the run has stopped for good
func (s RunStatus) Finished() bool {
	return s != RunStatusRunning
}

var (
	// ErrRunNotFound is returned for unknown run IDs
	ErrRunNotFound = errors.New("run not found")
	// ErrRunFinished is returned when cancelling a run that already stopped
	ErrRunFinished = errors.New("run already finished")
	// ErrManagerClosed is returned by StartRun after Shutdown
	ErrManagerClosed = errors.New("run manager is shut down")
)

// Run is a snapshot of one crawl run
type Run struct {
	ID           string              `json:"id"`
	SeedURL      string              `json:"seed_url"`
	Status       RunStatus           `json:"status"`
	Progress     float64             `json:"progress"`
	TotalPages   int                 `json:"total_pages"`
	FailedPages  int                 `json:"failed_pages"`
	MaxPages     int                 `json:"max_pages"`
	Config       crawler.CrawlConfig `json:"config"`
	CreatedAt    time.Time           `json:"created_at"`
	CompletedAt  *time.Time          `json:"completed_at,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
}

// Duration returns how long the run took, or has taken so far
func (r Run) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.CreatedAt)
	}
	return time.Since(r.CreatedAt)
}
