package textgen

import (
	"bytes"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/postsmith/postsmith/internal/models"
)

// Trailer patterns are deliberately tolerant: models drift on casing,
// whitespace and the exact label, and a miss only costs a synthesized field.
var (
	titleTrailerRe = regexp.MustCompile(`(?im)^[\s*#>]*(?:seo[ -]?)?title\s*[:：]\s*(.+?)\s*$`)
	descTrailerRe  = regexp.MustCompile(`(?im)^[\s*#>]*(?:meta[ -]?)?description\s*[:：]\s*(.+?)\s*$`)
	tagStripRe     = regexp.MustCompile(`<[^>]*>`)
	mdHeadingRe    = regexp.MustCompile(`(?m)^#{1,6}\s`)
)

// Extract scans raw model output for the two trailer fields, removes the
// trailer lines from the body, normalizes the body to HTML and fills any
// missing metadata deterministically from the fallback inputs.
func Extract(raw string, fb Fallback) models.GeneratedArticle {
	body := strings.TrimSpace(raw)

	var article models.GeneratedArticle
	if m := titleTrailerRe.FindStringSubmatch(body); m != nil {
		article.SEOTitle = strings.Trim(m[1], `"* `)
		body = strings.Replace(body, m[0], "", 1)
	} else {
		article.SEOTitle = FallbackTitle(fb)
		article.TitleSynthesized = true
	}
	if m := descTrailerRe.FindStringSubmatch(body); m != nil {
		article.MetaDescription = strings.Trim(m[1], `"* `)
		body = strings.Replace(body, m[0], "", 1)
	} else {
		article.MetaDescription = FallbackDescription(fb)
		article.DescSynthesized = true
	}

	article.HTML = normalizeHTML(strings.TrimSpace(body))
	article.WordCount = countWords(article.HTML)
	return article
}

// FallbackTitle synthesizes a title from keyword, city and company.
func FallbackTitle(fb Fallback) string {
	title := capitalize(fb.Keyword)
	if fb.City != "" {
		title = fmt.Sprintf("%s in %s", title, fb.City)
	}
	if fb.Company != "" {
		title = fmt.Sprintf("%s — %s", title, fb.Company)
	}
	return title
}

// FallbackDescription synthesizes a meta description in the same spirit.
func FallbackDescription(fb Fallback) string {
	desc := capitalize(fb.Keyword)
	if fb.City != "" {
		desc += " in " + fb.City
	}
	desc += ": prices, reviews and practical advice"
	if fb.Company != "" {
		desc += " from " + fb.Company
	}
	return desc + "."
}

// normalizeHTML renders the body with goldmark when it still looks like
// Markdown; models asked for HTML occasionally answer in Markdown anyway.
func normalizeHTML(body string) string {
	if !mdHeadingRe.MatchString(body) {
		return body
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &buf); err != nil {
		log.Printf("[textgen] markdown conversion failed, keeping raw body: %v", err)
		return body
	}
	return strings.TrimSpace(buf.String())
}

// countWords reports the visible word count. Informational only: cost is
// fixed before generation and never re-billed from this number.
func countWords(html string) int {
	return len(strings.Fields(tagStripRe.ReplaceAllString(html, " ")))
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	runes := []rune(s)
	return strings.ToUpper(string(runes[0])) + string(runes[1:])
}
