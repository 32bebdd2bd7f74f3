package catalog

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey folds free text into the form used for text lookups:
// NFKC (full-width letters become ASCII), trimmed, inner whitespace
// collapsed to single spaces, then Unicode case folded.
//
// The result is deterministic for every input; "" maps to "".
func NormalizeKey(text string) string {
	s := norm.NFKC.String(text)
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// A Caser is stateful, so each call gets its own.
	return cases.Fold().String(s)
}
