package crawler

import "github.com/Harvey-AU/seo-parser/internal/util"

// VisitedSet records every normalised URL a run has queued.
type VisitedSet map[string]struct{}

// Add inserts u and reports whether it was new.
func (v VisitedSet) Add(u string) bool {
	if _, ok := v[u]; ok {
		return false
	}
	v[u] = struct{}{}
	return true
}

// Contains reports whether u has been queued.
func (v VisitedSet) Contains(u string) bool {
	_, ok := v[u]
	return ok
}

// frontier is the FIFO queue of a run plus its VisitedSet. It is owned by the
// run's coordinator goroutine and is not safe for concurrent use.
type frontier struct {
	queue   []CrawlTarget
	visited VisitedSet
}

func newFrontier() *frontier {
	return &frontier{visited: make(VisitedSet)}
}

// Push queues a normalised URL unless it was queued before.
func (f *frontier) Push(u string, depth int) bool {
	if !f.visited.Add(u) {
		return false
	}
	f.queue = append(f.queue, CrawlTarget{URL: u, Depth: depth, Domain: util.Authority(u)})
	return true
}

// Next removes up to n targets from the head of the queue.
func (f *frontier) Next(n int) []CrawlTarget {
	if n > len(f.queue) {
		n = len(f.queue)
	}
	batch := make([]CrawlTarget, n)
	copy(batch, f.queue[:n])

	// Drop references so the backing array does not pin old targets
	clear(f.queue[:n])
	f.queue = f.queue[n:]
	return batch
}

func (f *frontier) Len() int {
	return len(f.queue)
}
