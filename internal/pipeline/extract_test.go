package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fomm/internal"
)

func TestExtractSheetsFindsHeaderBelowPreamble(t *testing.T) {
	file := sheetFile(t, "week41.xlsx",
		[]any{"Leverancier: Acme BV"},
		[]any{},
		[]any{"PO", "EAN CODES", "ORDERED", "PACKED"},
		[]any{4500123, "8712345678906", 10, 12},
		[]any{},
		[]any{4500124, "8712345678913", 5, 5},
	)

	res := ExtractSheets(file)
	require.Len(t, res, 1)
	require.True(t, res[0].OK())
	assert.Equal(t, "Blad1", res[0].Sheet)
	assert.Equal(t, []string{"PO", "EAN CODES", "ORDERED", "PACKED"}, res[0].Table.Columns)
	assert.Len(t, res[0].Table.Rows, 2)
	assert.Equal(t, []string{"4500123", "4500124"}, column(res[0].Table, "PO"))
}

func TestExtractSheetsMarkerIsCaseInsensitiveSubstring(t *testing.T) {
	file := sheetFile(t, "a.xlsx",
		[]any{"Order", "Barcode (ean)", "Packed"},
		[]any{1, "871", 2},
	)
	res := ExtractSheets(file)
	require.Len(t, res, 1)
	require.True(t, res[0].OK())
	assert.Equal(t, []string{"Order", "Barcode (ean)", "Packed"}, res[0].Table.Columns)
}

func TestExtractSheetsSkipsSheetWithoutHeader(t *testing.T) {
	file := internal.InputFile{Name: "mixed.xlsx", Content: mkXLSX(t,
		testSheet{name: "Notities", rows: [][]any{{"geen data hier"}}},
		testSheet{name: "Lijst", rows: [][]any{{"PO", "EAN", "PACKED"}, {1, "871", 3}}},
	)}

	res := ExtractSheets(file)
	require.Len(t, res, 2)
	assert.False(t, res[0].OK())
	assert.Equal(t, internal.SkipNoHeader, res[0].Outcome.Reason)
	assert.Equal(t, "Notities", res[0].Outcome.Sheet)
	assert.True(t, res[1].OK())
	assert.Equal(t, "Lijst", res[1].Sheet)
}

func TestExtractSheetsForcedSheetWins(t *testing.T) {
	file := internal.InputFile{Name: "forced.xlsx", Content: mkXLSX(t,
		testSheet{name: "Overzicht", rows: [][]any{{"PO", "EAN", "PACKED"}, {1, "111", 1}}},
		testSheet{name: ForcedSheet, rows: [][]any{{"PO", "Code", "PACKED"}, {2, "222", 2}}},
	)}

	res := ExtractSheets(file)
	require.Len(t, res, 1)
	assert.Equal(t, ForcedSheet, res[0].Sheet)
	assert.Equal(t, []string{"PO", "Code", "PACKED"}, res[0].Table.Columns)
	assert.Equal(t, []string{"2"}, column(res[0].Table, "PO"))
}

func TestExtractSheetsUnsupportedAndCorruptFiles(t *testing.T) {
	res := ExtractSheets(internal.InputFile{Name: "notes.txt", Content: []byte("hello")})
	require.Len(t, res, 1)
	assert.Equal(t, internal.OutcomeSkipped, res[0].Outcome.Status)
	assert.Equal(t, internal.SkipUnsupportedFormat, res[0].Outcome.Reason)
	assert.Empty(t, res[0].Outcome.Sheet)

	res = ExtractSheets(internal.InputFile{Name: "broken.xlsx", Content: []byte("PK\x03\x04garbage")})
	require.Len(t, res, 1)
	assert.Equal(t, internal.SkipUnreadableFile, res[0].Outcome.Reason)
	assert.NotEmpty(t, res[0].Outcome.Detail)
}

func TestHeaderNames(t *testing.T) {
	header := []internal.Cell{
		internal.TextCell("EAN"),
		{},
		internal.TextCell("EAN"),
		internal.TextCell(" PACKED "),
		internal.TextCell("EAN"),
	}
	got := headerNames(header, 6)
	assert.Equal(t, []string{"EAN", "Unnamed: 1", "EAN.1", "PACKED", "EAN.2", "Unnamed: 5"}, got)
}

func TestFindHeaderRow(t *testing.T) {
	rows := [][]internal.Cell{
		{},
		{internal.TextCell("Datum"), internal.NumberCell(45931)},
		{internal.TextCell("po"), internal.TextCell("ean codes")},
	}
	assert.Equal(t, 2, findHeaderRow(rows))
	assert.Equal(t, -1, findHeaderRow(rows[:2]))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "xlsx", detectFormat(internal.InputFile{Name: "x.bin", Content: []byte("PK\x03\x04rest")}))
	assert.Equal(t, "xls", detectFormat(internal.InputFile{Name: "x", Content: oleMagic}))
	assert.Equal(t, "xls", detectFormat(internal.InputFile{Name: "OLD.XLS"}))
	assert.Equal(t, "", detectFormat(internal.InputFile{Name: "x.csv", Content: []byte("a,b")}))

	assert.True(t, IsSpreadsheetName(" lijst.XLSX "))
	assert.False(t, IsSpreadsheetName("lijst.pdf"))
}

func TestXLSCell(t *testing.T) {
	assert.Equal(t, internal.TextCell("871"), xlsCell("*record.LabelSSt", "871", 0))
	assert.Equal(t, internal.NumberCell(12), xlsCell("*record.Rk", "12", 12))
	assert.Equal(t, internal.Cell{}, xlsCell("*record.Blank", "", 0))
}
