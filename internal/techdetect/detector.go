// Package techdetect fingerprints the technologies behind a crawled page
// (CMS, CDN, frameworks, analytics) using wappalyzergo.
package techdetect

import (
	"net/http"
	"slices"
	"sync"

	wappalyzer "github.com/projectdiscovery/wappalyzergo"
	"github.com/rs/zerolog/log"
)

// Result maps technology name to its categories,
// e.g. {"WordPress": ["CMS"], "Cloudflare": ["CDN"]}
type Result struct {
	Technologies map[string][]string `json:"technologies"`
}

// Names returns the detected technology names in sorted order.
func (r *Result) Names() []string {
	if r == nil || len(r.Technologies) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.Technologies))
	for name := range r.Technologies {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Detector provides technology detection capabilities
type Detector struct {
	client *wappalyzer.Wappalyze
	mu     sync.RWMutex
}

var categoryNames map[int]string
var categoryNamesOnce sync.Once

// New loads the fingerprint database. It is expensive, build one per process.
func New() (*Detector, error) {
	client, err := wappalyzer.New()
	if err != nil {
		return nil, err
	}

	categoryNamesOnce.Do(func() {
		categoryNames = make(map[int]string)
		for id, cat := range wappalyzer.GetCategoriesMapping() {
			categoryNames[id] = cat.Name
		}
	})

	return &Detector{
		client: client,
	}, nil
}

// Detect identifies technologies from response headers and body
func (d *Detector) Detect(headers http.Header, body []byte) *Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := &Result{
		Technologies: make(map[string][]string),
	}

	for tech, catInfo := range d.client.FingerprintWithCats(headers, body) {
		categories := make([]string, 0, len(catInfo.Cats))
		for _, catID := range catInfo.Cats {
			if name, ok := categoryNames[catID]; ok {
				categories = append(categories, name)
			}
		}
		slices.Sort(categories)
		result.Technologies[tech] = categories
	}

	log.Debug().
		Int("tech_count", len(result.Technologies)).
		Msg("Technology detection completed")

	return result
}

// Names fingerprints a page and returns only the sorted technology names.
func (d *Detector) Names(headers http.Header, body []byte) []string {
	return d.Detect(headers, body).Names()
}
