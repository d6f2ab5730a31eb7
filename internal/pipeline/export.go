package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"fomm/internal"
)

const (
	PackedFileName     = "Inputfile.csv"
	DeviationsFileName = "Afwijkende-percentages.csv"
	XLSXFileName       = "fomm-reports.xlsx"

	PackedEmptyMessage     = "No valid PO/EAN CODES/PACKED data found in uploaded files."
	DeviationsEmptyMessage = "No rows with PERCENTAGE below -5% found."
)

var ErrEmptyReport = errors.New("report has no rows")

// WriteCSV writes the table with a header row and no index column. An
// encoding of "windows-1252" transcodes the output; anything else is UTF-8.
func WriteCSV(w io.Writer, t internal.Table, enc string) error {
	var flush io.Closer
	if isWindows1252(enc) {
		tw := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()).Writer(w)
		flush, _ = tw.(io.Closer)
		w = tw
	}
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if flush != nil {
		return flush.Close()
	}
	return nil
}

func isWindows1252(enc string) bool {
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "windows-1252", "cp1252", "latin1":
		return true
	}
	return false
}

// ExportCSV writes a non-empty table to outputPath.
func ExportCSV(t internal.Table, outputPath, enc string) error {
	if t.Empty() {
		return ErrEmptyReport
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, t, enc); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type ExportOptions struct {
	Encoding string
	XLSX     bool
}

// ExportSummary lists written paths; a report with no rows has an empty path
// and its "no data" message instead.
type ExportSummary struct {
	PackedPath        string
	DeviationsPath    string
	XLSXPath          string
	PackedMessage     string
	DeviationsMessage string
}

func ExportReports(packed, deviations internal.Table, dir string, opts ExportOptions) (ExportSummary, error) {
	summary := ExportSummary{}

	if packed.Empty() {
		summary.PackedMessage = PackedEmptyMessage
	} else {
		path := filepath.Join(dir, PackedFileName)
		if err := ExportCSV(packed, path, opts.Encoding); err != nil {
			return summary, err
		}
		summary.PackedPath = path
	}

	if deviations.Empty() {
		summary.DeviationsMessage = DeviationsEmptyMessage
	} else {
		path := filepath.Join(dir, DeviationsFileName)
		if err := ExportCSV(deviations, path, opts.Encoding); err != nil {
			return summary, err
		}
		summary.DeviationsPath = path
	}

	if opts.XLSX && (!packed.Empty() || !deviations.Empty()) {
		path := filepath.Join(dir, XLSXFileName)
		if err := ExportReportsToXLSX(packed, deviations, path); err != nil {
			return summary, err
		}
		summary.XLSXPath = path
	}
	return summary, nil
}

// ExportReportsToXLSX writes each non-empty report to its own sheet.
func ExportReportsToXLSX(packed, deviations internal.Table, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	first := f.GetSheetName(0)
	used := false
	for _, rep := range []struct {
		name  string
		table internal.Table
	}{
		{"Inputfile", packed},
		{"Afwijkende percentages", deviations},
	} {
		if rep.table.Empty() {
			continue
		}
		if !used {
			if err := f.SetSheetName(first, rep.name); err != nil {
				return err
			}
			used = true
		} else if _, err := f.NewSheet(rep.name); err != nil {
			return err
		}
		if err := writeSheet(f, rep.name, rep.table); err != nil {
			return err
		}
	}
	if !used {
		return ErrEmptyReport
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeSheet(f *excelize.File, sheet string, t internal.Table) error {
	for i, h := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for r, row := range t.Rows {
		for c := range t.Columns {
			if c >= len(row) || row[c].IsBlank() {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, cellValue(row[c])); err != nil {
				return err
			}
		}
	}
	return nil
}

func cellValue(c internal.Cell) any {
	switch c.Kind {
	case internal.CellNumber:
		if c.Num == float64(int64(c.Num)) {
			return int64(c.Num)
		}
		return c.Num
	case internal.CellBool:
		return c.Num != 0
	default:
		return c.String()
	}
}
