package pipeline

import (
	"bytes"
	"testing"

	"github.com/jhillyerd/enmime"
	"github.com/xuri/excelize/v2"

	"fomm/internal"
)

type testSheet struct {
	name string
	rows [][]any
}

// mkXLSX builds a workbook in memory; nil values leave the cell empty.
func mkXLSX(t *testing.T, sheets ...testSheet) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), s.name); err != nil {
				t.Fatal(err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			t.Fatal(err)
		}
		for r, row := range s.rows {
			for c, v := range row {
				if v == nil {
					continue
				}
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				if err := f.SetCellValue(s.name, cell, v); err != nil {
					t.Fatal(err)
				}
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func sheetFile(t *testing.T, name string, rows ...[]any) internal.InputFile {
	return internal.InputFile{Name: name, Content: mkXLSX(t, testSheet{name: "Blad1", rows: rows})}
}

type testAttachment struct {
	name        string
	contentType string
	content     []byte
}

func mkEML(t *testing.T, subject string, attachments ...testAttachment) []byte {
	t.Helper()
	b := enmime.Builder().
		From("Supplier", "orders@supplier.test").
		To("Inkoop", "inkoop@fomm.test").
		Subject(subject).
		Text([]byte("Zie bijlage."))
	for _, a := range attachments {
		b = b.AddAttachment(a.content, a.contentType, a.name)
	}
	part, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	buf := bytes.NewBuffer(nil)
	if err := part.Encode(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func column(t internal.Table, name string) []string {
	idx := t.ColumnIndex(name)
	out := make([]string, 0, len(t.Rows))
	for r := range t.Rows {
		out = append(out, t.Cell(r, idx).String())
	}
	return out
}
