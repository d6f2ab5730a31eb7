package pipeline

import "fomm/internal"

// Concat stacks tables in order. The result has the union of their columns
// in first-seen order; cells of columns a table lacks are left empty.
func Concat(tables []internal.Table) internal.Table {
	out := internal.Table{}
	index := map[string]int{}
	for _, t := range tables {
		for _, c := range t.Columns {
			if _, ok := index[c]; !ok {
				index[c] = len(out.Columns)
				out.Columns = append(out.Columns, c)
			}
		}
	}

	for _, t := range tables {
		for _, src := range t.Rows {
			row := make([]internal.Cell, len(out.Columns))
			for i, c := range t.Columns {
				if i < len(src) {
					row[index[c]] = src[i]
				}
			}
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
