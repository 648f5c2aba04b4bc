// Package export writes crawl results to spreadsheets and other tabular files.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/rs/zerolog/log"
)

// Format identifies an output format
type Format string

const (
	FormatCSV      Format = "csv"
	FormatXLSX     Format = "xlsx"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatSQLite   Format = "sqlite"
)

// ErrUnsupportedFormat is returned for formats with no writer
var ErrUnsupportedFormat = errors.New("unsupported export format")

// HeaderSeparator joins a page's headers into a single cell
const HeaderSeparator = " | "

// Columns is the fixed column set of every tabular export
var Columns = []string{
	"URL",
	"Status",
	"Title",
	"Description",
	"H1",
	"Headers",
	"Header Count",
	"Canonical",
	"Meta Robots",
	"Links",
	"Depth",
	"Content Type",
	"Response Time (ms)",
	"Technologies",
	"Error",
}

// Row renders a result as cells in Columns order. Status is empty when the
// page never got a response.
func Row(p crawler.PageResult) []string {
	status := ""
	if p.StatusCode > 0 {
		status = strconv.Itoa(p.StatusCode)
	}

	return []string{
		p.URL,
		status,
		p.Title,
		p.Description,
		p.H1,
		strings.Join(p.Headers, HeaderSeparator),
		strconv.Itoa(len(p.Headers)),
		p.Canonical,
		p.MetaRobots,
		strconv.Itoa(p.LinkCount),
		strconv.Itoa(p.Depth),
		p.ContentType,
		strconv.FormatInt(p.ResponseTime, 10),
		strings.Join(p.Technologies, ", "),
		p.Error,
	}
}

// ParseFormat accepts a format name with or without a leading dot
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(name, ".")) {
	case "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "sqlite", "db":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, name)
}

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", fmt.Errorf("%w: %s has no extension", ErrUnsupportedFormat, path)
	}
	return ParseFormat(ext)
}

// ContentType returns the MIME type served for a format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatSQLite:
		return "application/vnd.sqlite3"
	}
	return "application/octet-stream"
}

// Summary describes the run a set of results came from. It is only used by
// formats that carry more than the table.
type Summary struct {
	SeedURL  string
	Status   string
	Duration string
}

// WriteTo streams results in the given format. SQLite needs a file and is
// rejected here, use WriteFile.
func WriteTo(w io.Writer, format Format, results []crawler.PageResult, summary Summary) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, results)
	case FormatXLSX:
		return WriteXLSX(w, results)
	case FormatJSON:
		return WriteJSON(w, results)
	case FormatMarkdown:
		return WriteMarkdown(w, results, summary)
	}
	return fmt.Errorf("%w: %q cannot be streamed", ErrUnsupportedFormat, format)
}

// WriteFile writes results to path in the format given by its extension.
// The file is written to a temporary name first so a failed export never
// leaves a truncated file behind.
func WriteFile(path string, results []crawler.PageResult, summary Summary) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	return WriteFileAs(path, format, results, summary)
}

// WriteFileAs writes results to path in an explicit format
func WriteFileAs(path string, format Format, results []crawler.PageResult, summary Summary) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	if format == FormatSQLite {
		return WriteSQLite(path, results)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	if err := WriteTo(f, format, results, summary); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	log.Debug().Str("path", path).Str("format", string(format)).Int("rows", len(results)).Msg("Exported results")
	return nil
}

// ExportAll writes <base>.csv, <base>.xlsx and <base>.json and, when any
// page failed, the <base>_errors.log error log. It returns the written paths.
func ExportAll(base string, results []crawler.PageResult, summary Summary) ([]string, error) {
	var written []string
	for _, format := range []Format{FormatCSV, FormatXLSX, FormatJSON} {
		path := base + "." + string(format)
		if err := WriteFileAs(path, format, results, summary); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	errorLog, err := WriteErrorLog(base, results)
	if err != nil {
		return written, err
	}
	if errorLog != "" {
		written = append(written, errorLog)
	}

	return written, nil
}

// WriteErrorLog writes the failed pages as CSV to <base>_errors.log. It
// writes nothing and returns "" when no page failed.
func WriteErrorLog(base string, results []crawler.PageResult) (string, error) {
	var failed []crawler.PageResult
	for _, r := range results {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	if len(failed) == 0 {
		return "", nil
	}

	path := base + "_errors.log"
	if err := WriteFileAs(path, FormatCSV, failed, Summary{}); err != nil {
		return "", err
	}
	return path, nil
}
