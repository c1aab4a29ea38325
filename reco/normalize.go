package reco

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey canonicalizes a free-text label into a vocabulary token:
// accented characters decompose to their ASCII base letters, characters with
// no ASCII representation are dropped, the result is upper-cased, trimmed,
// and internal spaces become underscores. Empty input normalizes to "".
//
// The function is pure and idempotent. Training and prediction share its
// output as the feature-column and class-label namespace, so any change here
// invalidates previously persisted artifacts.
func NormalizeKey(s string) string {
	if s == "" {
		return ""
	}
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(t, s)
	if err != nil {
		decomposed = s
	}
	var b strings.Builder
	for _, r := range decomposed {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	out := strings.TrimSpace(strings.ToUpper(b.String()))
	return strings.ReplaceAll(out, " ", "_")
}

// normalizeHistory folds raw history counts onto canonical keys. Counts for
// keys that normalize to the same token are summed.
func normalizeHistory(hist map[string]int) map[string]int {
	out := make(map[string]int, len(hist))
	for k, v := range hist {
		out[NormalizeKey(k)] += v
	}
	return out
}
