package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"fomm/internal"
	"fomm/internal/util"
)

const (
	// HeaderMarker identifies the header row of a packing list sheet.
	HeaderMarker = "EAN"
	// ForcedSheet is read directly with its first row as header, and when
	// present it is the only sheet read from the workbook.
	ForcedSheet = "EAN Codes"
)

// SheetResult is the extraction result for one sheet, or for the whole file
// when the file could not be opened.
type SheetResult struct {
	Sheet   string
	Table   internal.Table
	Outcome internal.Outcome
}

func (r SheetResult) OK() bool {
	return r.Outcome.Status == internal.OutcomeOK
}

// ExtractSheets opens a workbook and returns a normalized table for every
// sheet with a detected (or forced) header, in workbook order. Failures are
// reported as skipped results and never abort the file.
func ExtractSheets(file internal.InputFile) []SheetResult {
	wb, err := OpenWorkbook(file)
	if err != nil {
		reason := internal.SkipUnreadableFile
		if errors.Is(err, ErrUnsupportedFormat) {
			reason = internal.SkipUnsupportedFormat
		}
		return []SheetResult{skipped(file.Name, "", reason, err)}
	}
	defer wb.Close()

	names := wb.SheetNames()
	for _, name := range names {
		if name == ForcedSheet {
			return []SheetResult{extractForced(file.Name, wb)}
		}
	}

	out := make([]SheetResult, 0, len(names))
	for _, name := range names {
		raw, err := wb.ReadSheet(name)
		if err != nil {
			out = append(out, skipped(file.Name, name, internal.SkipUnreadableSheet, err))
			continue
		}
		idx := findHeaderRow(raw.Rows)
		if idx < 0 {
			out = append(out, skipped(file.Name, name, internal.SkipNoHeader, fmt.Errorf("no row contains %q", HeaderMarker)))
			continue
		}
		out = append(out, SheetResult{
			Sheet:   name,
			Table:   tableWithHeader(raw.Rows, idx),
			Outcome: internal.Outcome{File: file.Name, Sheet: name, Status: internal.OutcomeOK},
		})
	}
	return out
}

func extractForced(fileName string, wb Workbook) SheetResult {
	raw, err := wb.ReadSheet(ForcedSheet)
	if err != nil {
		// The forced sheet replaces every other sheet, so its failure skips the file.
		return skipped(fileName, ForcedSheet, internal.SkipUnreadableFile, err)
	}
	if len(raw.Rows) == 0 {
		return SheetResult{
			Sheet:   ForcedSheet,
			Outcome: internal.Outcome{File: fileName, Sheet: ForcedSheet, Status: internal.OutcomeOK},
		}
	}
	return SheetResult{
		Sheet:   ForcedSheet,
		Table:   tableWithHeader(raw.Rows, 0),
		Outcome: internal.Outcome{File: fileName, Sheet: ForcedSheet, Status: internal.OutcomeOK},
	}
}

func skipped(fileName, sheet string, reason internal.SkipReason, err error) SheetResult {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	return SheetResult{
		Sheet: sheet,
		Outcome: internal.Outcome{
			File:   fileName,
			Sheet:  sheet,
			Status: internal.OutcomeSkipped,
			Reason: reason,
			Detail: detail,
		},
	}
}

// findHeaderRow returns the index of the first non-blank row holding a cell
// that contains the marker, case-insensitively, or -1.
func findHeaderRow(rows [][]internal.Cell) int {
	for i, row := range rows {
		if isBlankRow(row) {
			continue
		}
		for _, c := range row {
			if util.ContainsFold(c.String(), HeaderMarker) {
				return i
			}
		}
	}
	return -1
}

func isBlankRow(row []internal.Cell) bool {
	for _, c := range row {
		if !c.IsBlank() {
			return false
		}
	}
	return true
}

// tableWithHeader uses rows[idx] as header and the rows below it as data.
// Blank data rows are dropped and column names are trimmed.
func tableWithHeader(rows [][]internal.Cell, idx int) internal.Table {
	width := 0
	for _, row := range rows[idx:] {
		if len(row) > width {
			width = len(row)
		}
	}

	t := internal.Table{Columns: headerNames(rows[idx], width)}
	for _, row := range rows[idx+1:] {
		if isBlankRow(row) {
			continue
		}
		cells := make([]internal.Cell, width)
		copy(cells, row)
		t.Rows = append(t.Rows, cells)
	}
	return t
}

// headerNames names blank header cells "Unnamed: <n>" and suffixes repeated
// names with ".1", ".2", ... before trimming surrounding whitespace.
func headerNames(header []internal.Cell, width int) []string {
	names := make([]string, width)
	seen := map[string]int{}
	for i := 0; i < width; i++ {
		name := ""
		if i < len(header) && !header[i].IsBlank() {
			name = header[i].String()
		}
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		names[i] = strings.TrimSpace(name)
	}
	return names
}
