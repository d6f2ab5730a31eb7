package pipeline

import "fomm/internal/util"

type Field string

const (
	FieldPO         Field = "PO"
	FieldEAN        Field = "EAN CODES"
	FieldPacked     Field = "PACKED"
	FieldOrdered    Field = "ORDERED"
	FieldPercentage Field = "PERCENTAGE"
)

type fieldVariants struct {
	field    Field
	variants []string
}

// Variants are tried in order; the first one present in the sheet wins.
var fieldAliases = []fieldVariants{
	{FieldPO, []string{"PO"}},
	{FieldEAN, []string{"EAN CODES", "EAN"}},
	{FieldPacked, []string{"PACKED"}},
	{FieldOrdered, []string{"ORDERED"}},
	{FieldPercentage, []string{"PERCENTAGE", "RATIO"}},
}

// FieldMapping maps a canonical field to the column name used by one sheet.
type FieldMapping map[Field]string

func (m FieldMapping) Has(f Field) bool {
	_, ok := m[f]
	return ok
}

// MapFields resolves canonical fields against a sheet's column names.
// Missing fields are simply absent from the result.
func MapFields(columns []string) FieldMapping {
	lookup := make(map[string]string, len(columns))
	for _, col := range columns {
		key := util.NormalizeKey(col)
		if key == "" {
			continue
		}
		if _, exists := lookup[key]; !exists {
			lookup[key] = col
		}
	}

	out := FieldMapping{}
	for _, fv := range fieldAliases {
		for _, variant := range fv.variants {
			if actual, ok := lookup[util.NormalizeKey(variant)]; ok {
				out[fv.field] = actual
				break
			}
		}
	}
	return out
}
