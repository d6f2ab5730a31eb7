package pipeline

import (
	"fomm/internal"
	"fomm/internal/util"
)

// DeviationThreshold is inclusive: a row at exactly -5% is a deviation.
const DeviationThreshold = -0.05

var packedFieldOrder = []Field{FieldPO, FieldEAN, FieldOrdered, FieldPacked}

// ExtractPacked builds the packed quantity rows of one sheet. The second
// return value is false when the sheet lacks an EAN or PACKED column.
func ExtractPacked(t internal.Table) (internal.Table, bool) {
	m := MapFields(t.Columns)
	if !m.Has(FieldEAN) || !m.Has(FieldPacked) {
		return internal.Table{}, false
	}

	fields := make([]Field, 0, len(packedFieldOrder))
	out := internal.Table{}
	for _, f := range packedFieldOrder {
		if m.Has(f) {
			fields = append(fields, f)
			out.Columns = append(out.Columns, string(f))
		}
	}

	col := func(f Field) int {
		if !m.Has(f) {
			return -1
		}
		return t.ColumnIndex(m[f])
	}
	poIdx, eanIdx, orderedIdx, packedIdx := col(FieldPO), col(FieldEAN), col(FieldOrdered), col(FieldPacked)

	for r := range t.Rows {
		var po int64
		if poIdx >= 0 {
			v, ok := util.ToInt(t.Cell(r, poIdx))
			if !ok {
				continue
			}
			po = v
		}
		packed := util.IntOrZero(t.Cell(r, packedIdx))
		if packed == 0 {
			continue
		}

		row := make([]internal.Cell, 0, len(fields))
		for _, f := range fields {
			switch f {
			case FieldPO:
				row = append(row, internal.IntCell(po))
			case FieldEAN:
				row = append(row, internal.TextCell(util.CleanCode(t.Cell(r, eanIdx).String())))
			case FieldOrdered:
				if v, ok := util.ToInt(t.Cell(r, orderedIdx)); ok {
					row = append(row, internal.IntCell(v))
				} else {
					row = append(row, internal.Cell{})
				}
			case FieldPacked:
				row = append(row, internal.IntCell(packed))
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, true
}

// ExtractDeviations keeps the rows whose percentage is at or below the
// threshold, with the percentage cell rewritten in canonical form. It needs
// a percentage column and at least one of PO or EAN.
func ExtractDeviations(t internal.Table) (internal.Table, bool) {
	m := MapFields(t.Columns)
	if !m.Has(FieldPercentage) || (!m.Has(FieldPO) && !m.Has(FieldEAN)) {
		return internal.Table{}, false
	}

	pctIdx := t.ColumnIndex(m[FieldPercentage])
	poIdx := -1
	if m.Has(FieldPO) {
		poIdx = t.ColumnIndex(m[FieldPO])
	}

	out := internal.Table{Columns: append([]string(nil), t.Columns...)}
	for r, src := range t.Rows {
		if poIdx >= 0 {
			if _, ok := util.ToNumber(t.Cell(r, poIdx)); !ok {
				continue
			}
		}
		v, ok := util.ParsePercentage(t.Cell(r, pctIdx))
		if !ok || v > DeviationThreshold {
			continue
		}
		row := make([]internal.Cell, len(t.Columns))
		copy(row, src)
		row[pctIdx] = internal.TextCell(util.FormatPercentage(v, ok))
		out.Rows = append(out.Rows, row)
	}
	return out, true
}
