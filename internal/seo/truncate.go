package seo

import "strings"

const (
	titleMaxLen   = 60
	titleWalkBack = 40

	descMaxLen   = 160
	descWalkBack = 140
	descMinLen   = 120

	ellipsis = "…"
)

// truncateBoundary applies the walk-back truncation rule: cut at the hard
// limit, then retreat to the nearest earlier space when one exists at or past
// the walk-back threshold. The ellipsis rune is appended on any truncation
// and counts against the limit.
func truncateBoundary(s string, limit, walkBack int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= limit {
		return string(runes)
	}
	cut := runes[:limit-len([]rune(ellipsis))]
	boundary := -1
	for i, r := range cut {
		if r == ' ' {
			boundary = i
		}
	}
	if boundary >= walkBack {
		cut = cut[:boundary]
	}
	return strings.TrimRight(string(cut), " ,.;:-") + ellipsis
}

// NormalizeTitle caps an SEO title at 60 characters with a 40-character
// walk-back threshold.
func NormalizeTitle(s string) string {
	return truncateBoundary(s, titleMaxLen, titleWalkBack)
}

// NormalizeDescription caps a meta description at 160 characters with a
// 140-character walk-back threshold. Descriptions under 120 characters are
// padded from the category description up to the cap, re-applying the rule.
func NormalizeDescription(s, categoryDescription string) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) < descMinLen && categoryDescription != "" {
		pad := strings.Join(strings.Fields(categoryDescription), " ")
		if s == "" {
			s = pad
		} else {
			s = strings.TrimRight(s, " .") + ". " + pad
		}
	}
	return truncateBoundary(s, descMaxLen, descWalkBack)
}
