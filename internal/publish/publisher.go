// Package publish uploads generated assets and creates the remote content
// item. It issues exactly one create call; a remote failure is a pipeline
// failure but already-created taxonomy entities are left in place.
package publish

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/postsmith/postsmith/internal/cms"
	"github.com/postsmith/postsmith/internal/models"
)

// Site is the slice of the CMS client the publisher needs.
type Site interface {
	Me(ctx context.Context) (cms.Author, error)
	UploadMedia(ctx context.Context, filename string, data []byte, alt string) (cms.Media, error)
	CreatePost(ctx context.Context, in cms.PostInput) (cms.Post, error)
}

type Publisher struct {
	site Site
}

func New(site Site) *Publisher {
	return &Publisher{site: site}
}

// Verify probes the target site with the identity endpoint. Bad credentials
// or an unreachable site surface here, before any budget is spent.
func (p *Publisher) Verify(ctx context.Context) error {
	if _, err := p.site.Me(ctx); err != nil {
		return fmt.Errorf("site probe: %w", err)
	}
	return nil
}

// Input is everything one publish needs; the orchestrator owns assembling it.
type Input struct {
	Article  models.GeneratedArticle
	Cover    models.ImageAsset
	Body     []models.ImageAsset
	Slug     string
	Category models.TaxonomyEntity
	Tags     []models.TaxonomyEntity
	Site     models.TargetSite
	Keyword  string
}

// Uploaded holds the remote ids of a finished asset upload.
type Uploaded struct {
	FeaturedID int64
	BodyURLs   []string
}

// UploadAssets sends the cover first (it becomes the featured asset), then
// the body images. A failed body upload is logged and skipped, mirroring a
// failed generation; a failed cover upload is fatal.
func (p *Publisher) UploadAssets(ctx context.Context, cover models.ImageAsset, body []models.ImageAsset) (Uploaded, error) {
	featured, err := p.site.UploadMedia(ctx, cover.Filename, cover.Buffer, cover.AltText)
	if err != nil {
		return Uploaded{}, fmt.Errorf("upload cover: %w", err)
	}
	up := Uploaded{FeaturedID: featured.ID}
	for _, img := range body {
		media, err := p.site.UploadMedia(ctx, img.Filename, img.Buffer, img.AltText)
		if err != nil {
			log.Printf("[publish] body image %s skipped: %v", img.Filename, err)
			continue
		}
		up.BodyURLs = append(up.BodyURLs, media.SourceURL)
	}
	return up, nil
}

// CreateItem assembles the single create-content-item request and issues it.
func (p *Publisher) CreateItem(ctx context.Context, in Input, up Uploaded) (models.PublishResult, error) {
	html := SpliceImages(in.Article.HTML, up.BodyURLs, in.Keyword)

	tagIDs := make([]int64, 0, len(in.Tags))
	for _, t := range in.Tags {
		tagIDs = append(tagIDs, t.ResolvedID)
	}

	meta := cms.SEOMeta{
		Title:       in.Article.SEOTitle,
		Description: in.Article.MetaDescription,
		Robots:      in.Site.Robots,
		SchemaType:  in.Site.SchemaType,
	}
	if in.Site.CanonicalBase != "" {
		meta.Canonical = strings.TrimSuffix(in.Site.CanonicalBase, "/") + "/" + in.Slug
	}

	post, err := p.site.CreatePost(ctx, cms.PostInput{
		Title:         in.Article.SEOTitle,
		Content:       html,
		Excerpt:       in.Article.MetaDescription,
		Status:        "publish",
		Slug:          in.Slug,
		Author:        in.Site.AuthorID,
		FeaturedMedia: up.FeaturedID,
		Categories:    []int64{in.Category.ResolvedID},
		Tags:          tagIDs,
		Meta:          meta,
	})
	if err != nil {
		return models.PublishResult{}, err
	}
	return models.PublishResult{
		Success:   true,
		RemoteURL: post.Link,
		RemoteID:  post.ID,
		WordCount: in.Article.WordCount,
	}, nil
}

// Publish runs both halves back to back.
func (p *Publisher) Publish(ctx context.Context, in Input) (models.PublishResult, error) {
	up, err := p.UploadAssets(ctx, in.Cover, in.Body)
	if err != nil {
		return models.PublishResult{}, err
	}
	return p.CreateItem(ctx, in, up)
}

var headingCloseRe = regexp.MustCompile(`(?i)</h2>`)

// SpliceImages inserts body images immediately after every second section
// heading, skipping the first, so the visual rhythm stays even.
func SpliceImages(html string, urls []string, alt string) string {
	if len(urls) == 0 {
		return html
	}
	locs := headingCloseRe.FindAllStringIndex(html, -1)
	if len(locs) == 0 {
		return html
	}
	var b strings.Builder
	last := 0
	next := 0
	for i, loc := range locs {
		b.WriteString(html[last:loc[1]])
		last = loc[1]
		if (i+1)%2 == 0 && next < len(urls) {
			fmt.Fprintf(&b, "\n<figure><img src=%q alt=%q></figure>", urls[next], alt)
			next++
		}
	}
	b.WriteString(html[last:])
	return b.String()
}
