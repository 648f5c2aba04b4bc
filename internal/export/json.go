package export

import (
	"encoding/json"
	"io"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
)

// WriteJSON writes results as an indented JSON array
func WriteJSON(w io.Writer, results []crawler.PageResult) error {
	if results == nil {
		results = []crawler.PageResult{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(results)
}
