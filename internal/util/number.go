package util

import (
	"math"
	"strconv"
	"strings"

	"fomm/internal"
)

// ToNumber coerces a cell to a float the way a lenient numeric column cast
// does: numbers and booleans pass, text must parse as a plain number, and
// anything else (including NaN and infinities) is not numeric.
func ToNumber(c internal.Cell) (float64, bool) {
	var v float64
	switch c.Kind {
	case internal.CellNumber, internal.CellBool:
		v = c.Num
	case internal.CellText:
		s := strings.TrimSpace(c.Text)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		v = parsed
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// ToInt truncates a numeric cell toward zero.
func ToInt(c internal.Cell) (int64, bool) {
	v, ok := ToNumber(c)
	if !ok {
		return 0, false
	}
	return int64(v), true
}

// IntOrZero is ToInt with a zero fallback.
func IntOrZero(c internal.Cell) int64 {
	v, _ := ToInt(c)
	return v
}
