// Package compose assembles the structured generation request sent to the
// text model. Sampling is intentionally randomized so repeat generations on
// the same category diverge.
package compose

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/postsmith/postsmith/internal/models"
)

const (
	maxReviews      = 3
	minPriceRows    = 3
	maxPriceRows    = 7
	highTierOdds    = 0.8
	lowTierOdds     = 0.25
	descPhrasesMin  = 1
	descPhrasesMax  = 2
	minHeadings     = 5
	maxHeadings     = 8
	trailerTitleTag = "TITLE:"
	trailerDescTag  = "DESCRIPTION:"
)

const systemInstruction = "You are a senior SEO copywriter. Write complete, publication-ready HTML articles. " +
	"Follow the structural requirements exactly and never explain your work."

// bannedPhrases the model is told to avoid; generic filler that search
// engines and readers both punish.
var bannedPhrases = []string{
	"in today's fast-paced world",
	"look no further",
	"unlock the potential",
	"it goes without saying",
	"game-changer",
}

// Prompt is one composed request: a system instruction plus one large
// structured user prompt.
type Prompt struct {
	System  string
	User    string
	Keyword string
}

// Composer samples business context into prompts. The rand source is
// injected so tests can pin the sampling.
type Composer struct {
	rng *rand.Rand
}

func New(seed int64) *Composer {
	return &Composer{rng: rand.New(rand.NewSource(seed))}
}

func NewWithRand(rng *rand.Rand) *Composer {
	return &Composer{rng: rng}
}

// Compose builds the generation prompt from the request plus the reviews the
// store drew for this run. The returned Keyword is the topic actually used,
// auto-picked from the keyword pool when the request leaves it unset.
func (c *Composer) Compose(req models.GenerationRequest, reviews []models.Review) (Prompt, error) {
	keyword := strings.TrimSpace(req.TopicKeyword)
	if keyword == "" {
		if len(req.Category.Keywords) == 0 {
			return Prompt{}, fmt.Errorf("no topic keyword and empty keyword pool")
		}
		keyword = req.Category.Keywords[c.rng.Intn(len(req.Category.Keywords))]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write an SEO article about: %s\n", keyword)
	if req.Category.City != "" {
		fmt.Fprintf(&b, "Target city: %s\n", req.Category.City)
	}
	if req.Category.Company != "" {
		fmt.Fprintf(&b, "The article is published by: %s\n", req.Category.Company)
	}
	if req.Style.WordCountMin > 0 || req.Style.WordCountMax > 0 {
		fmt.Fprintf(&b, "Length: %d-%d words.\n", req.Style.WordCountMin, req.Style.WordCountMax)
	}
	if req.Style.TextStyle != "" {
		fmt.Fprintf(&b, "Writing style: %s\n", req.Style.TextStyle)
	}
	if req.Style.HTMLStyle != "" {
		fmt.Fprintf(&b, "HTML style: %s\n", req.Style.HTMLStyle)
	}

	c.writePhrases(&b, req.Category.Description)
	c.writePriceRows(&b, req.Category.PriceRows)
	writeReviews(&b, reviews)
	c.writeLinks(&b, req.Category.Links)
	writeSections(&b)
	writeDirectives(&b)

	b.WriteString("\nFinish the article with exactly two trailer lines:\n")
	fmt.Fprintf(&b, "%s <the SEO title>\n", trailerTitleTag)
	fmt.Fprintf(&b, "%s <the meta description>\n", trailerDescTag)

	return Prompt{System: systemInstruction, User: b.String(), Keyword: keyword}, nil
}

// writePhrases samples 1-2 sentences from the category description.
func (c *Composer) writePhrases(b *strings.Builder, description string) {
	phrases := SplitPhrases(description)
	if len(phrases) == 0 {
		return
	}
	n := descPhrasesMin
	if len(phrases) > 1 && c.rng.Intn(2) == 1 {
		n = descPhrasesMax
	}
	b.WriteString("\nWork these business facts into the copy:\n")
	for _, i := range c.rng.Perm(len(phrases))[:n] {
		fmt.Fprintf(b, "- %s\n", phrases[i])
	}
}

// writePriceRows samples a bounded subset of the pricing table: 3-7 rows,
// or all of them when the table is smaller.
func (c *Composer) writePriceRows(b *strings.Builder, rows []models.PriceRow) {
	if len(rows) == 0 {
		return
	}
	picked := rows
	if len(rows) > minPriceRows {
		n := minPriceRows + c.rng.Intn(maxPriceRows-minPriceRows+1)
		if n > len(rows) {
			n = len(rows)
		}
		picked = make([]models.PriceRow, 0, n)
		for _, i := range c.rng.Perm(len(rows))[:n] {
			picked = append(picked, rows[i])
		}
	}
	b.WriteString("\nPricing data for the pricing table:\n")
	for _, row := range picked {
		if row.Unit != "" {
			fmt.Fprintf(b, "- %s: %s per %s\n", row.Item, row.Price, row.Unit)
		} else {
			fmt.Fprintf(b, "- %s: %s\n", row.Item, row.Price)
		}
	}
}

func writeReviews(b *strings.Builder, reviews []models.Review) {
	if len(reviews) == 0 {
		return
	}
	if len(reviews) > maxReviews {
		reviews = reviews[:maxReviews]
	}
	b.WriteString("\nCustomer reviews to quote verbatim:\n")
	for _, r := range reviews {
		fmt.Fprintf(b, "- %s: %q\n", r.Author, r.Body)
	}
}

// writeLinks includes high-tier internal links far more often than low-tier
// ones; social links are always listed.
func (c *Composer) writeLinks(b *strings.Builder, links models.LinkSet) {
	var picked []models.Link
	for _, l := range links.High {
		if c.rng.Float64() < highTierOdds {
			picked = append(picked, l)
		}
	}
	for _, l := range links.Low {
		if c.rng.Float64() < lowTierOdds {
			picked = append(picked, l)
		}
	}
	if len(picked) > 0 {
		b.WriteString("\nLink to these internal pages where relevant:\n")
		for _, l := range picked {
			fmt.Fprintf(b, "- %s (%s)\n", l.Title, l.URL)
		}
	}
	if len(links.Social) > 0 {
		b.WriteString("\nSocial profiles for the footer:\n")
		for _, l := range links.Social {
			fmt.Fprintf(b, "- %s (%s)\n", l.Title, l.URL)
		}
	}
}

func writeSections(b *strings.Builder) {
	b.WriteString("\nRequired structure, in order:\n")
	for _, s := range []string{
		"opening summary paragraph",
		"table of contents with anchor links",
		"pricing table built from the pricing data",
		"FAQ section with at least four questions",
		"comparison table of alternatives",
		"company/author footer with contacts",
	} {
		fmt.Fprintf(b, "- %s\n", s)
	}
}

func writeDirectives(b *strings.Builder) {
	fmt.Fprintf(b, "\nUse between %d and %d <h2> section headings.\n", minHeadings, maxHeadings)
	b.WriteString("Bold at most one phrase per paragraph; never bold whole sentences.\n")
	b.WriteString("Avoid these phrases entirely:\n")
	for _, p := range bannedPhrases {
		fmt.Fprintf(b, "- %s\n", p)
	}
}

// SplitPhrases breaks a category description into candidate sentences.
func SplitPhrases(description string) []string {
	var out []string
	for _, p := range strings.FieldsFunc(description, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	}) {
		if p = strings.TrimSpace(p); len(p) > 10 {
			out = append(out, p)
		}
	}
	return out
}
