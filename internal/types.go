package internal

import (
	"math"
	"strconv"
	"strings"
)

type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
	CellBool
)

// Cell is a loosely typed spreadsheet value.
type Cell struct {
	Kind CellKind
	Text string
	Num  float64
}

func TextCell(s string) Cell {
	return Cell{Kind: CellText, Text: s}
}

func NumberCell(v float64) Cell {
	return Cell{Kind: CellNumber, Num: v}
}

func IntCell(v int64) Cell {
	return Cell{Kind: CellNumber, Num: float64(v)}
}

func BoolCell(v bool) Cell {
	c := Cell{Kind: CellBool}
	if v {
		c.Num = 1
	}
	return c
}

func (c Cell) IsBlank() bool {
	return c.Kind == CellEmpty
}

// String renders the cell the way it is written to CSV. Integral numbers
// never carry a fractional part.
func (c Cell) String() string {
	switch c.Kind {
	case CellText:
		return c.Text
	case CellNumber:
		if math.IsNaN(c.Num) || math.IsInf(c.Num, 0) {
			return ""
		}
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellBool:
		if c.Num != 0 {
			return "TRUE"
		}
		return "FALSE"
	default:
		return ""
	}
}

// RawSheet is a headerless sheet as read from a workbook.
type RawSheet struct {
	Name string
	Rows [][]Cell
}

// Table is a sheet (or report) with named columns.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t Table) Cell(row, col int) Cell {
	if row < 0 || row >= len(t.Rows) || col < 0 || col >= len(t.Rows[row]) {
		return Cell{}
	}
	return t.Rows[row][col]
}

func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// Head returns a copy holding at most n rows.
func (t Table) Head(n int) Table {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return Table{Columns: append([]string(nil), t.Columns...), Rows: t.Rows[:n]}
}

// Records renders the table as string records, header first.
func (t Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, append([]string(nil), t.Columns...))
	for _, row := range t.Rows {
		rec := make([]string, len(t.Columns))
		for i := range t.Columns {
			if i < len(row) {
				rec[i] = row[i].String()
			}
		}
		out = append(out, rec)
	}
	return out
}

type InputFile struct {
	Name    string
	Content []byte
}

type OutcomeStatus string

const (
	OutcomeOK      OutcomeStatus = "ok"
	OutcomeSkipped OutcomeStatus = "skipped"
)

type SkipReason string

const (
	SkipNone              SkipReason = ""
	SkipUnreadableFile    SkipReason = "unreadable_file"
	SkipUnreadableSheet   SkipReason = "unreadable_sheet"
	SkipNoHeader          SkipReason = "no_header"
	SkipUnsupportedFormat SkipReason = "unsupported_format"
)

// Outcome records what happened to one file or sheet. Sheet is empty when
// the whole file was skipped.
type Outcome struct {
	File          string        `json:"file"`
	Sheet         string        `json:"sheet,omitempty"`
	Status        OutcomeStatus `json:"status"`
	Reason        SkipReason    `json:"reason,omitempty"`
	Detail        string        `json:"detail,omitempty"`
	PackedRows    int           `json:"packedRows"`
	DeviationRows int           `json:"deviationRows"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type RunRow struct {
	ID            int
	TraceID       string
	Source        string
	EmailID       *int
	Files         int
	PackedRows    int
	DeviationRows int
	CreatedAt     string
}

// NormalizeSpaces collapses runs of whitespace and trims.
func NormalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
