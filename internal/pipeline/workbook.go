package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"

	"fomm/internal"
)

var ErrUnsupportedFormat = errors.New("unsupported workbook format")

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
)

// Workbook gives ordered, headerless access to the sheets of one file.
type Workbook interface {
	SheetNames() []string
	ReadSheet(name string) (internal.RawSheet, error)
	Close() error
}

func OpenWorkbook(file internal.InputFile) (Workbook, error) {
	switch detectFormat(file) {
	case "xlsx":
		return openXLSX(file.Content)
	case "xls":
		return openXLS(file.Content)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, file.Name)
	}
}

func detectFormat(file internal.InputFile) string {
	if bytes.HasPrefix(file.Content, zipMagic) {
		return "xlsx"
	}
	if bytes.HasPrefix(file.Content, oleMagic) {
		return "xls"
	}
	switch strings.ToLower(filepath.Ext(file.Name)) {
	case ".xlsx", ".xlsm":
		return "xlsx"
	case ".xls":
		return "xls"
	}
	return ""
}

// IsSpreadsheetName reports whether a file name looks like a supported workbook.
func IsSpreadsheetName(name string) bool {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".xlsx", ".xlsm", ".xls":
		return true
	}
	return false
}

type xlsxWorkbook struct {
	f *excelize.File
}

func openXLSX(content []byte) (*xlsxWorkbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	return &xlsxWorkbook{f: f}, nil
}

func (w *xlsxWorkbook) SheetNames() []string {
	return w.f.GetSheetList()
}

func (w *xlsxWorkbook) ReadSheet(name string) (internal.RawSheet, error) {
	rows, err := w.f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return internal.RawSheet{}, err
	}

	out := internal.RawSheet{Name: name, Rows: make([][]internal.Cell, len(rows))}
	for r, row := range rows {
		cells := make([]internal.Cell, len(row))
		for c, raw := range row {
			if raw == "" {
				continue
			}
			ref, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return internal.RawSheet{}, err
			}
			typ, err := w.f.GetCellType(name, ref)
			if err != nil {
				return internal.RawSheet{}, err
			}
			cells[c] = xlsxCell(typ, raw)
		}
		out.Rows[r] = cells
	}
	return out, nil
}

func (w *xlsxWorkbook) Close() error {
	return w.f.Close()
}

func xlsxCell(typ excelize.CellType, raw string) internal.Cell {
	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula, excelize.CellTypeError:
		return internal.TextCell(raw)
	case excelize.CellTypeBool:
		return internal.BoolCell(raw == "1" || strings.EqualFold(raw, "true"))
	}
	// Unset and number types both store plain numbers.
	if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
		return internal.NumberCell(v)
	}
	return internal.TextCell(raw)
}

type xlsWorkbook struct {
	names  []string
	sheets map[string]internal.RawSheet
}

func openXLS(content []byte) (wb *xlsWorkbook, err error) {
	// xlsReader panics on some truncated streams.
	defer func() {
		if r := recover(); r != nil {
			wb, err = nil, fmt.Errorf("read xls: %v", r)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	wb = &xlsWorkbook{sheets: map[string]internal.RawSheet{}}
	for i := 0; i < book.GetNumberSheets(); i++ {
		sheet, err := book.GetSheet(i)
		if err != nil {
			return nil, err
		}
		raw := internal.RawSheet{Name: sheet.GetName()}
		for r := 0; r < sheet.GetNumberRows(); r++ {
			row, err := sheet.GetRow(r)
			if err != nil {
				raw.Rows = append(raw.Rows, nil)
				continue
			}
			cols := row.GetCols()
			cells := make([]internal.Cell, len(cols))
			for c, col := range cols {
				if col == nil {
					continue
				}
				cells[c] = xlsCell(col.GetType(), col.GetString(), col.GetFloat64())
			}
			raw.Rows = append(raw.Rows, cells)
		}
		wb.names = append(wb.names, raw.Name)
		wb.sheets[raw.Name] = raw
	}
	return wb, nil
}

func (w *xlsWorkbook) SheetNames() []string {
	return append([]string(nil), w.names...)
}

func (w *xlsWorkbook) ReadSheet(name string) (internal.RawSheet, error) {
	sheet, ok := w.sheets[name]
	if !ok {
		return internal.RawSheet{}, fmt.Errorf("sheet %q not found", name)
	}
	return sheet, nil
}

func (w *xlsWorkbook) Close() error { return nil }

// xlsCell maps a BIFF record to a cell. Label records are text, numeric
// records (Number, Rk, MulRk) are numbers, blanks are empty.
func xlsCell(recordType, text string, num float64) internal.Cell {
	if text == "" {
		return internal.Cell{}
	}
	if strings.Contains(recordType, "Label") {
		return internal.TextCell(text)
	}
	if strings.Contains(recordType, "Number") || strings.Contains(recordType, "Rk") {
		return internal.NumberCell(num)
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
		return internal.NumberCell(v)
	}
	return internal.TextCell(text)
}
