// Package seo derives URL slugs and provider-limited SEO metadata from
// generated titles and descriptions.
package seo

import (
	"strings"
	"unicode"
)

const (
	slugMaxLen   = 80
	slugWalkBack = 40
)

// translit maps non-Latin characters onto ASCII. The table is fixed: slugs
// must be stable across releases or published URLs would drift.
var translit = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "e",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "y", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "ts", 'ч': "ch", 'ш': "sh", 'щ': "sch",
	'ъ': "", 'ы': "y", 'ь': "", 'э': "e", 'ю': "yu", 'я': "ya",
	'ä': "a", 'ö': "o", 'ü': "u", 'ß': "ss",
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'å': "a",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o",
	'ù': "u", 'ú': "u", 'û': "u",
	'ç': "c", 'ñ': "n", 'ý': "y",
}

// Transliterate lowers the input and replaces every mapped rune with its
// ASCII expansion. Unmapped non-ASCII letters are dropped later by Slug.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if repl, ok := translit[r]; ok {
			b.WriteString(repl)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Slug derives a boundary-safe URL slug: transliterated, lowercase,
// [a-z0-9-] only, collapsed hyphens, hard-capped at 80 characters with a
// walk-back to the nearest hyphen when at least 40 characters remain.
func Slug(s string) string {
	t := Transliterate(s)
	var b strings.Builder
	b.Grow(len(t))
	lastHyphen := false
	for _, r := range t {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case unicode.IsSpace(r), r == '-', r == '_', r == '/':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			// URL-unsafe punctuation and unmapped runes are stripped.
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) <= slugMaxLen {
		return slug
	}
	cut := slug[:slugMaxLen]
	if idx := strings.LastIndexByte(cut, '-'); idx >= slugWalkBack {
		cut = cut[:idx]
	}
	return strings.Trim(cut, "-")
}
