package excel

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet holds the parsed content of a workbook's first sheet. Header cells
// are trimmed and blank headers are dropped together with their column.
type Sheet struct {
	Headers []string
	Rows    []map[string]string
}

// Parse reads the first sheet of an .xlsx/.xls workbook. The first row is
// the header row; all cell values are carried as text.
func Parse(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close() //nolint:errcheck

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheets[0])
	}

	headers := make([]string, 0, len(rows[0]))
	columns := make([]int, 0, len(rows[0]))
	for i, h := range rows[0] {
		trimmed := strings.TrimSpace(h)
		if trimmed == "" {
			continue
		}
		headers = append(headers, trimmed)
		columns = append(columns, i)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("header row has no usable columns")
	}

	data := make([]map[string]string, 0, len(rows)-1)
	for _, raw := range rows[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for j, col := range columns {
			value := ""
			if col < len(raw) {
				value = strings.TrimSpace(raw[col])
			}
			if value != "" {
				empty = false
			}
			row[headers[j]] = value
		}
		if empty {
			continue
		}
		data = append(data, row)
	}

	return &Sheet{Headers: headers, Rows: data}, nil
}

// Template renders a single-sheet workbook whose first row contains the
// provided column labels, suitable as an import template download.
func Template(labels []string) ([]byte, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("template requires at least one column")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck
	sheet := f.GetSheetName(0)
	for i, label := range labels {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("resolve cell: %w", err)
		}
		if err := f.SetCellStr(sheet, cell, label); err != nil {
			return nil, fmt.Errorf("write header cell: %w", err)
		}
	}
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	return buf.Bytes(), nil
}

// Workbook renders tabular data into a workbook, one row per record.
func Workbook(headers []string, rows []map[string]string) ([]byte, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("workbook requires at least one header")
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck
	sheet := f.GetSheetName(0)
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, fmt.Errorf("resolve cell: %w", err)
		}
		if err := f.SetCellStr(sheet, cell, header); err != nil {
			return nil, fmt.Errorf("write header cell: %w", err)
		}
	}
	for r, row := range rows {
		for c, header := range headers {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, fmt.Errorf("resolve cell: %w", err)
			}
			if err := f.SetCellStr(sheet, cell, row[header]); err != nil {
				return nil, fmt.Errorf("write data cell: %w", err)
			}
		}
	}
	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}
