package export

import (
	"io"
	"strconv"
	"strings"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/nao1215/markdown"
)

// Columns shown in the Markdown report. The full set is too wide to read.
var markdownColumns = []int{0, 1, 2, 4, 9, 10, 14}

// WriteMarkdown writes a report with a run summary, the results table and a
// list of failed pages.
func WriteMarkdown(w io.Writer, results []crawler.PageResult, summary Summary) error {
	md := markdown.NewMarkdown(w)

	md.H1("SEO Crawl Report")
	md.PlainText("")

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	rows := [][]string{
		{"Pages", strconv.Itoa(len(results))},
		{"Failed", strconv.Itoa(failed)},
	}
	if summary.SeedURL != "" {
		rows = append([][]string{{"Seed URL", "`" + summary.SeedURL + "`"}}, rows...)
	}
	if summary.Status != "" {
		rows = append(rows, []string{"Status", summary.Status})
	}
	if summary.Duration != "" {
		rows = append(rows, []string{"Duration", summary.Duration})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	md.H2("Pages")
	md.PlainText("")
	if len(results) == 0 {
		md.PlainText("No pages were crawled.")
	} else {
		header := make([]string, len(markdownColumns))
		for i, col := range markdownColumns {
			header[i] = Columns[col]
		}
		tableRows := make([][]string, 0, len(results))
		for _, r := range results {
			cells := Row(r)
			row := make([]string, len(markdownColumns))
			for i, col := range markdownColumns {
				row[i] = markdownCell(cells[col])
			}
			tableRows = append(tableRows, row)
		}
		md.Table(markdown.TableSet{Header: header, Rows: tableRows})
	}

	if failed > 0 {
		md.PlainText("")
		md.H2("Errors")
		md.PlainText("")
		items := make([]string, 0, failed)
		for _, r := range results {
			if r.Failed() {
				items = append(items, "`"+r.URL+"`: "+r.Error)
			}
		}
		md.BulletList(items...)
	}

	return md.Build()
}

func markdownCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
