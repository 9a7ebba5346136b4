package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Renderer writes a table in one file format.
type Renderer interface {
	Format() string
	ContentType() string
	Render(w io.Writer, t Table) error
}

// RendererFor returns the renderer registered for format.
func RendererFor(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "csv":
		return CSVRenderer{}, nil
	case "xlsx":
		return XLSXRenderer{}, nil
	}
	return nil, fmt.Errorf("unsupported report format %q", format)
}

// =============================================================================
// CSV
// =============================================================================

// CSVRenderer writes UTF-8 CSV with a BOM so spreadsheet software picks
// the right encoding. Text cells are written as ="value".
type CSVRenderer struct{}

func (CSVRenderer) Format() string      { return "csv" }
func (CSVRenderer) ContentType() string { return "text/csv; charset=utf-8" }

func (CSVRenderer) Render(w io.Writer, t Table) error {
	if _, err := w.Write([]byte{0xEF, 0xBB, 0xBF}); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Header
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range t.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			if i < len(t.Columns) && t.Columns[i].Text && v != "" {
				v = `="` + v + `"`
			}
			record[i] = v
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// =============================================================================
// XLSX
// =============================================================================

// XLSXRenderer writes a one-sheet workbook. Text columns become string
// cells; other cells that are plain integers become numbers.
type XLSXRenderer struct{}

func (XLSXRenderer) Format() string { return "xlsx" }
func (XLSXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// maxSheetName is the sheet name limit of the xlsx format.
const maxSheetName = 31

func (XLSXRenderer) Render(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Name
	if len(sheet) > maxSheetName {
		sheet = sheet[:maxSheetName]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for i, c := range t.Columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheet, cell, c.Header); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for i, v := range row {
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return err
			}
			text := i < len(t.Columns) && t.Columns[i].Text
			if n, convErr := strconv.Atoi(v); convErr == nil && !text {
				err = f.SetCellInt(sheet, cell, n)
			} else {
				err = f.SetCellStr(sheet, cell, v)
			}
			if err != nil {
				return err
			}
		}
	}

	for i, c := range t.Columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(len([]rune(c.Header)) + 4)
		if width < 12 {
			width = 12
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return err
		}
	}
	return f.Write(w)
}
