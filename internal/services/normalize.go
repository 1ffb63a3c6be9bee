package services

import (
	"regexp"
	"strings"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// NormalizeProductName returns the canonical form used to detect duplicate
// product names. It strips at most one plural suffix, so "Apples", "apple"
// and "APPLE" collide, as do "Knives" and "knife". It is a heuristic, never
// what gets stored.
func NormalizeProductName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))

	switch {
	case strings.HasSuffix(normalized, "ies"):
		normalized = strings.TrimSuffix(normalized, "ies") + "y"
	case strings.HasSuffix(normalized, "ves"):
		// knives -> knife, wolves -> wolf
		stem := strings.TrimSuffix(normalized, "ves")
		if strings.HasSuffix(stem, "i") {
			normalized = stem + "fe"
		} else {
			normalized = stem + "f"
		}
	case hasSibilantPlural(normalized):
		normalized = strings.TrimSuffix(normalized, "es")
	case strings.HasSuffix(normalized, "s") && !strings.HasSuffix(normalized, "ss"):
		normalized = strings.TrimSuffix(normalized, "s")
	}

	normalized = nonAlphanumeric.ReplaceAllString(normalized, "")
	normalized = whitespaceRun.ReplaceAllString(normalized, " ")
	return strings.TrimSpace(normalized)
}

// hasSibilantPlural matches "boxes", "dishes", "glasses": plurals that add "es".
func hasSibilantPlural(s string) bool {
	if !strings.HasSuffix(s, "es") {
		return false
	}
	stem := strings.TrimSuffix(s, "es")
	for _, suffix := range []string{"x", "z", "ch", "sh", "ss"} {
		if strings.HasSuffix(stem, suffix) {
			return true
		}
	}
	return false
}
