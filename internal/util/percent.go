package util

import (
	"math"
	"strconv"
	"strings"

	"fomm/internal"
)

// ParsePercentage turns a locale formatted percentage into a signed fraction:
// "-14,29%" -> -0.1429. Numeric cells are taken to be fractions already.
// Text without a percent sign is returned unscaled, so "-5" parses as -5.
func ParsePercentage(c internal.Cell) (float64, bool) {
	switch c.Kind {
	case internal.CellNumber, internal.CellBool:
		if math.IsNaN(c.Num) {
			return 0, false
		}
		return c.Num, true
	case internal.CellText:
	default:
		return 0, false
	}

	s := strings.ReplaceAll(c.Text, "%", "")
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	if strings.Contains(c.Text, "%") {
		return v / 100, true
	}
	return v, true
}

// FormatPercentage renders a fraction with two decimals, a decimal comma and
// a percent sign: -0.1429 -> "-14,29%".
func FormatPercentage(v float64, ok bool) string {
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return strings.Replace(strconv.FormatFloat(v*100, 'f', 2, 64), ".", ",", 1) + "%"
}
