package excel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellStr(sheet, cell, value))
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, f.Write(buf))
	return buf.Bytes()
}

func TestParseFiltersBlankHeaders(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"Full Name", "", "Grade"},
		{"Sara Ahmadi", "ignored", "4"},
		{"Reza Karimi", "ignored", "5"},
	})

	sheet, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"Full Name", "Grade"}, sheet.Headers)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "Sara Ahmadi", sheet.Rows[0]["Full Name"])
	assert.Equal(t, "4", sheet.Rows[0]["Grade"])
	_, hasBlank := sheet.Rows[0][""]
	assert.False(t, hasBlank)
}

func TestParseRejectsAllBlankHeaderRow(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"", "  ", ""},
		{"a", "b", "c"},
	})

	_, err := Parse(bytes.NewReader(data))
	require.Error(t, err)
}

func TestParseSkipsEmptyRows(t *testing.T) {
	data := buildWorkbook(t, [][]string{
		{"Name"},
		{"First"},
		{""},
		{"Second"},
	})

	sheet, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
}

func TestTemplateRoundTrip(t *testing.T) {
	data, err := Template([]string{"Full Name", "Grade"})
	require.NoError(t, err)

	sheet, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"Full Name", "Grade"}, sheet.Headers)
	assert.Empty(t, sheet.Rows)
}

func TestWorkbookRendersRows(t *testing.T) {
	data, err := Workbook([]string{"Student", "Status"}, []map[string]string{
		{"Student": "Sara", "Status": "absent"},
		{"Student": "Reza", "Status": "late"},
	})
	require.NoError(t, err)

	sheet, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, "absent", sheet.Rows[0]["Status"])
}
