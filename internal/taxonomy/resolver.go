// Package taxonomy maps desired category and tag names onto the target
// site's existing taxonomy, creating entities only when no rule matches.
package taxonomy

import (
	"context"
	"fmt"
	"strings"

	"github.com/postsmith/postsmith/internal/cms"
	"github.com/postsmith/postsmith/internal/models"
)

// significantWordLen: tokens longer than this take part in fuzzy matching.
const significantWordLen = 4

// Directory is the slice of the CMS client the resolver needs.
type Directory interface {
	Categories(ctx context.Context) ([]cms.Term, error)
	Tags(ctx context.Context) ([]cms.Term, error)
	CreateCategory(ctx context.Context, name string) (cms.Term, error)
	CreateTag(ctx context.Context, name string) (cms.Term, error)
}

// Resolver resolves names against a freshly fetched taxonomy snapshot.
// Keywords widen the overlap rule: intersecting words that are also account
// keywords score double.
type Resolver struct {
	dir      Directory
	keywords map[string]struct{}
}

func NewResolver(dir Directory, keywords []string) *Resolver {
	kw := map[string]struct{}{}
	for _, k := range keywords {
		for _, w := range significantWords(k) {
			kw[w] = struct{}{}
		}
	}
	return &Resolver{dir: dir, keywords: kw}
}

// rule is one entry of the ranked match list. Order is part of the contract:
// reordering changes matching outcomes.
type rule struct {
	name  string
	match func(r *Resolver, desired string, candidates []cms.Term) (cms.Term, bool)
}

var rules = []rule{
	{"exact", (*Resolver).matchExact},
	{"word-subset", (*Resolver).matchSubset},
	{"best-overlap", (*Resolver).matchOverlap},
}

// ResolveCategory picks exactly one primary category. Labels are tried in
// order; the first one any rule resolves wins. When nothing resolves, a new
// category is created from the first label.
func (r *Resolver) ResolveCategory(ctx context.Context, labels []string) (models.TaxonomyEntity, error) {
	labels = nonEmpty(labels)
	if len(labels) == 0 {
		return models.TaxonomyEntity{}, fmt.Errorf("no category labels configured")
	}
	candidates, err := r.dir.Categories(ctx)
	if err != nil {
		return models.TaxonomyEntity{}, fmt.Errorf("fetch categories: %w", err)
	}
	for _, label := range labels {
		if term, ok := r.resolve(label, candidates); ok {
			return models.TaxonomyEntity{DesiredName: label, ResolvedID: term.ID}, nil
		}
	}
	created, err := r.dir.CreateCategory(ctx, labels[0])
	if err != nil {
		return models.TaxonomyEntity{}, fmt.Errorf("create category %q: %w", labels[0], err)
	}
	return models.TaxonomyEntity{DesiredName: labels[0], ResolvedID: created.ID, WasCreated: true}, nil
}

// ResolveTags resolves every desired tag name, creating the ones no rule
// matches. Every resolved or created id is returned, deduplicated.
func (r *Resolver) ResolveTags(ctx context.Context, names []string) ([]models.TaxonomyEntity, error) {
	names = nonEmpty(names)
	if len(names) == 0 {
		return nil, nil
	}
	candidates, err := r.dir.Tags(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch tags: %w", err)
	}
	seen := map[int64]struct{}{}
	var out []models.TaxonomyEntity
	for _, name := range names {
		if term, ok := r.resolve(name, candidates); ok {
			if _, dup := seen[term.ID]; dup {
				continue
			}
			seen[term.ID] = struct{}{}
			out = append(out, models.TaxonomyEntity{DesiredName: name, ResolvedID: term.ID})
			continue
		}
		created, err := r.dir.CreateTag(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("create tag %q: %w", name, err)
		}
		seen[created.ID] = struct{}{}
		out = append(out, models.TaxonomyEntity{DesiredName: name, ResolvedID: created.ID, WasCreated: true})
		// later names can match the entity just created
		candidates = append(candidates, created)
	}
	return out, nil
}

func (r *Resolver) resolve(desired string, candidates []cms.Term) (cms.Term, bool) {
	for _, rl := range rules {
		if term, ok := rl.match(r, desired, candidates); ok {
			return term, true
		}
	}
	return cms.Term{}, false
}

func (r *Resolver) matchExact(desired string, candidates []cms.Term) (cms.Term, bool) {
	for _, c := range candidates {
		if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(desired)) {
			return c, true
		}
	}
	return cms.Term{}, false
}

// matchSubset accepts a candidate whose significant words cover every
// significant word of the desired name.
func (r *Resolver) matchSubset(desired string, candidates []cms.Term) (cms.Term, bool) {
	for _, c := range candidates {
		cand := wordSet(c.Name)
		if len(cand) == 0 {
			continue
		}
		if subset(cand, wordSet(desired)) {
			return c, true
		}
	}
	return cms.Term{}, false
}

// matchOverlap scores |significant intersection| + 2x|keyword intersection|
// and accepts the best candidate scoring at least 1.
func (r *Resolver) matchOverlap(desired string, candidates []cms.Term) (cms.Term, bool) {
	desiredSet := wordSet(desired)
	best := cms.Term{}
	bestScore := 0
	for _, c := range candidates {
		score := 0
		for w := range wordSet(c.Name) {
			if _, ok := desiredSet[w]; !ok {
				continue
			}
			score++
			if _, kw := r.keywords[w]; kw {
				score += 2
			}
		}
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, bestScore >= 1
}

func significantWords(s string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ",.;:!?()\"'")
		if len([]rune(w)) > significantWordLen {
			out = append(out, w)
		}
	}
	return out
}

func wordSet(s string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, w := range significantWords(s) {
		set[w] = struct{}{}
	}
	return set
}

// subset reports whether every desired word appears in the candidate set.
func subset(cand, desired map[string]struct{}) bool {
	if len(desired) == 0 {
		return false
	}
	for w := range desired {
		if _, ok := cand[w]; !ok {
			return false
		}
	}
	return true
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
