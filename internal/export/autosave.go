package export

import (
	"path/filepath"
	"sync"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/rs/zerolog/log"
)

// DefaultAutosaveEvery is how many results pass between snapshots
const DefaultAutosaveEvery = 50

// Autosaver keeps the results of a running crawl and snapshots them to
// autosave.csv and autosave.xlsx in a directory every N results, so a crash
// loses at most N pages.
type Autosaver struct {
	dir   string
	every int

	mu      sync.Mutex
	results []crawler.PageResult
	saves   int
}

// NewAutosaver snapshots into dir every n results. n <= 0 disables snapshots
// while still collecting results.
func NewAutosaver(dir string, n int) *Autosaver {
	return &Autosaver{dir: dir, every: n}
}

// Add records a result and writes a snapshot when one is due. A failed
// snapshot is logged, the crawl carries on.
func (a *Autosaver) Add(result crawler.PageResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.results = append(a.results, result)
	if a.every <= 0 || len(a.results)%a.every != 0 {
		return
	}

	if err := a.save(); err != nil {
		log.Warn().Err(err).Int("results", len(a.results)).Msg("Autosave failed")
		return
	}
	a.saves++
	log.Debug().Int("results", len(a.results)).Str("dir", a.dir).Msg("Autosaved results")
}

// Results returns a copy of everything added so far
func (a *Autosaver) Results() []crawler.PageResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]crawler.PageResult(nil), a.results...)
}

// Saves returns how many snapshots were written
func (a *Autosaver) Saves() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.saves
}

func (a *Autosaver) save() error {
	base := filepath.Join(a.dir, "autosave")
	if err := WriteFileAs(base+".csv", FormatCSV, a.results, Summary{}); err != nil {
		return err
	}
	return WriteFileAs(base+".xlsx", FormatXLSX, a.results, Summary{})
}
