package sheet

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"

	"github.com/dvloznov/moneychat-nlp/internal/domain"
)

func buildXLSX(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := r
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestRead_XLSX(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{
		{"일자", "금액", "내용"},
		{"2024-06-01", 12000, "점심"},
	})

	tbl, err := Read(data, "가계부.xlsx")
	require.NoError(t, err)

	assert.Equal(t, []string{"일자", "금액", "내용"}, tbl.Headers)
	assert.Equal(t, 1, tbl.Len())

	preview := tbl.Preview(PreviewSize)
	require.Len(t, preview, 1)
	assert.Equal(t, "2024-06-01", preview[0]["일자"])
	assert.Equal(t, 12000.0, preview[0]["금액"])
	assert.Equal(t, "점심", preview[0]["내용"])
}

func TestRead_XLSX_SniffedWithoutExtension(t *testing.T) {
	data := buildXLSX(t, [][]interface{}{{"a"}, {"1"}})

	tbl, err := Read(data, "upload")
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Len())
}

func TestRead_CSV(t *testing.T) {
	data := []byte("\xEF\xBB\xBF날짜,금액,,금액\n\n2024-06-01,5000,x,1\n,,,\n2024-06-02,\"1,200\",,2\n")

	tbl, err := Read(data, "export.csv")
	require.NoError(t, err)

	assert.Equal(t, []string{"날짜", "금액", "Unnamed: 2", "금액.1"}, tbl.Headers)
	assert.Equal(t, 2, tbl.Len())

	row := tbl.Row(1)
	assert.Equal(t, "2024-06-02", row["날짜"])
	assert.Equal(t, "1,200", row["금액"])
	assert.Nil(t, row["Unnamed: 2"])
	assert.Equal(t, 2.0, row["금액.1"])
}

func TestRead_CSV_EUCKR(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().Bytes([]byte("내용,금액\n커피,4500\n"))
	require.NoError(t, err)

	tbl, err := Read(encoded, "bank.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"내용", "금액"}, tbl.Headers)
	assert.Equal(t, "커피", tbl.Row(0)["내용"])
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
	}{
		{name: "empty", data: nil, filename: "a.xlsx"},
		{name: "garbage xlsx", data: []byte("not a zip"), filename: "a.xlsx"},
		{name: "garbage xls", data: []byte("not an ole file"), filename: "a.xls"},
		{name: "blank csv", data: []byte("\n,,\n"), filename: "a.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.data, tt.filename)
			require.Error(t, err)
			assert.Equal(t, domain.KindInput, domain.KindOf(err))
		})
	}
}

func TestPreview_Bounds(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("n\n")
	for i := 0; i < 8; i++ {
		buf.WriteString("1\n")
	}

	tbl, err := Read(buf.Bytes(), "n.csv")
	require.NoError(t, err)
	assert.Equal(t, 8, tbl.Len())
	assert.Len(t, tbl.Preview(PreviewSize), PreviewSize)
	assert.Len(t, tbl.Preview(100), 8)
}

func TestNormalizeHeaders(t *testing.T) {
	got := normalizeHeaders([]string{"a", "", "a", "a.1", "a"}, 6)
	assert.Equal(t, []string{"a", "Unnamed: 1", "a.1", "a.1.1", "a.2", "Unnamed: 5"}, got)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatXLSX, DetectFormat(nil, "x.XLSX"))
	assert.Equal(t, FormatXLS, DetectFormat(nil, "x.xls"))
	assert.Equal(t, FormatCSV, DetectFormat(nil, "x.csv"))
	assert.Equal(t, FormatXLS, DetectFormat(oleMagic, "blob"))
	assert.Equal(t, FormatCSV, DetectFormat([]byte("a,b"), "blob"))
}
