package export

import (
	"encoding/csv"
	"io"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
)

// WriteCSV writes the header row followed by one row per result
func WriteCSV(w io.Writer, results []crawler.PageResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range results {
		if err := cw.Write(Row(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
