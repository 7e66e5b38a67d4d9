// Package sheet reads uploaded spreadsheets into a header-plus-rows table.
package sheet

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
)

const op = "sheet.Read"

// PreviewSize is the number of rows echoed back for review.
const PreviewSize = 5

// Format is a supported spreadsheet encoding.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Table is the first sheet of a workbook. Headers are unique and non-blank.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Row returns data row i keyed by header. Blank cells map to nil and numeric
// cells to float64.
func (t *Table) Row(i int) map[string]interface{} {
	row := t.Rows[i]
	out := make(map[string]interface{}, len(t.Headers))
	for j, h := range t.Headers {
		var cell string
		if j < len(row) {
			cell = row[j]
		}
		out[h] = cellValue(cell)
	}
	return out
}

// Preview returns the first min(n, Len()) rows.
func (t *Table) Preview(n int) []map[string]interface{} {
	if n > t.Len() {
		n = t.Len()
	}
	out := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.Row(i))
	}
	return out
}

// DetectFormat picks the format from the file extension, falling back to
// the leading bytes.
func DetectFormat(data []byte, filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	case ".csv", ".txt":
		return FormatCSV
	}
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(data, oleMagic):
		return FormatXLS
	default:
		return FormatCSV
	}
}

// Read decodes data as a spreadsheet. Decoding failures are InputErrors.
func Read(data []byte, filename string) (*Table, error) {
	if len(data) == 0 {
		return nil, domain.Input(op, "empty file", nil)
	}

	var (
		rows [][]string
		err  error
	)
	format := DetectFormat(data, filename)
	switch format {
	case FormatXLSX:
		rows, err = readXLSX(data)
	case FormatXLS:
		rows, err = readXLS(data)
	default:
		rows, err = readCSV(data)
	}
	if err != nil {
		return nil, domain.Input(op, fmt.Sprintf("cannot decode %s file %q", format, filename), err)
	}

	t, err := newTable(rows)
	if err != nil {
		return nil, domain.Input(op, filename, err)
	}
	return t, nil
}

func newTable(rows [][]string) (*Table, error) {
	start := -1
	for i, r := range rows {
		if !isBlank(r) {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, fmt.Errorf("no header row")
	}

	width := 0
	for _, r := range rows[start:] {
		if n := len(trimTrailing(r)); n > width {
			width = n
		}
	}

	t := &Table{Headers: normalizeHeaders(rows[start], width)}
	for _, r := range rows[start+1:] {
		if isBlank(r) {
			continue
		}
		t.Rows = append(t.Rows, r)
	}
	return t, nil
}

// normalizeHeaders names blank headers "Unnamed: <i>" and suffixes repeated
// names with ".1", ".2" and so on.
func normalizeHeaders(raw []string, width int) []string {
	headers := make([]string, width)
	used := make(map[string]bool, width)
	suffix := make(map[string]int)
	for i := 0; i < width; i++ {
		var h string
		if i < len(raw) {
			h = strings.TrimSpace(raw[i])
		}
		if h == "" {
			h = fmt.Sprintf("Unnamed: %d", i)
		}
		name := h
		if used[name] {
			n := suffix[h]
			for {
				n++
				name = fmt.Sprintf("%s.%d", h, n)
				if !used[name] {
					break
				}
			}
			suffix[h] = n
		}
		used[name] = true
		headers[i] = name
	}
	return headers
}

func trimTrailing(row []string) []string {
	n := len(row)
	for n > 0 && strings.TrimSpace(row[n-1]) == "" {
		n--
	}
	return row[:n]
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cellValue(s string) interface{} {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return f
	}
	return s
}
