package util

import (
	"strings"
	"unicode"
)

// NormalizeKey strips everything but letters and digits and upper-cases the
// rest, so "Ean-codes " and "EAN CODES" compare equal.
func NormalizeKey(input string) string {
	var b strings.Builder
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

func ContainsFold(s, token string) bool {
	return strings.Contains(strings.ToUpper(s), strings.ToUpper(token))
}

// CleanCode removes the ".0" a float round-trip leaves on numeric codes.
func CleanCode(s string) string {
	s = strings.TrimSuffix(s, ".0")
	return strings.TrimSpace(s)
}
