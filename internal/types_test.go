package internal

import (
	"math"
	"testing"
)

func TestCellString(t *testing.T) {
	cases := map[string]Cell{
		"8712345678906": NumberCell(8712345678906),
		"12.5":          NumberCell(12.5),
		"-3":            IntCell(-3),
		"TRUE":          BoolCell(true),
		"abc":           TextCell("abc"),
		"":              NumberCell(math.NaN()),
	}
	for want, c := range cases {
		if got := c.String(); got != want {
			t.Fatalf("String() = %q want %q", got, want)
		}
	}
}

func TestTableRecordsPadsShortRows(t *testing.T) {
	tbl := Table{
		Columns: []string{"PO", "EAN CODES", "PACKED"},
		Rows:    [][]Cell{{IntCell(1), TextCell("871")}, {IntCell(2), TextCell("872"), IntCell(4)}},
	}
	recs := tbl.Head(1).Records()
	if len(recs) != 2 || len(recs[1]) != 3 || recs[1][2] != "" {
		t.Fatalf("records = %#v", recs)
	}
	if tbl.ColumnIndex("PACKED") != 2 || tbl.ColumnIndex("x") != -1 {
		t.Fatal("column index")
	}
	if tbl.Cell(0, 2) != (Cell{}) {
		t.Fatal("short row should read as empty cell")
	}
}
