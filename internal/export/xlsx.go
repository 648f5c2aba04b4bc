package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Harvey-AU/seo-parser/internal/crawler"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the results
const SheetName = "Results"

// Numeric columns are written as numbers so spreadsheets can sort them
var numericColumns = map[int]bool{1: true, 6: true, 9: true, 10: true, 12: true}

// WriteXLSX writes results as an Excel workbook with a bold header row
func WriteXLSX(w io.Writer, results []crawler.PageResult) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to open stream writer: %w", err)
	}

	// URL, Title, Description and Headers get wide columns
	for _, c := range []struct {
		col   int
		width float64
	}{{1, 60}, {3, 40}, {4, 60}, {6, 60}} {
		if err := sw.SetColWidth(c.col, c.col, c.width); err != nil {
			return err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]any, len(Columns))
	for i, name := range Columns {
		header[i] = excelize.Cell{StyleID: bold, Value: name}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, r := range results {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, xlsxRow(Row(r))); err != nil {
			return err
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	return f.Write(w)
}

func xlsxRow(cells []string) []any {
	row := make([]any, len(cells))
	for i, v := range cells {
		if numericColumns[i] && v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				row[i] = n
				continue
			}
		}
		row[i] = v
	}
	return row
}
