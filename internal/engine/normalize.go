package engine

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

var foldCaser = cases.Fold()

// normalizeText case-folds and collapses runs of whitespace, so "NET 30"
// and "net  30" compare equal.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(foldCaser.String(s)), " ")
}

// normalizeIdentifier case-folds and strips all whitespace and common
// identifier separators, so "DE 123-456-789" equals "de123456789".
func normalizeIdentifier(s string) string {
	folded := foldCaser.String(s)
	var b strings.Builder
	for _, r := range folded {
		switch r {
		case ' ', '\t', '-', '.', '/':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseAmount extracts a numeric amount from free text such as "$1,200.50"
// or "USD 1 200.50". Returns false when the text holds no parsable number.
func parseAmount(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
