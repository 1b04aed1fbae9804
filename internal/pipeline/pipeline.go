// Package pipeline sequences content generation and publishing: budget
// reservation, prompt composition, text and image generation, taxonomy
// resolution, upload and the single remote create call. Every terminal
// failure resolves the budget reservation exactly once.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/postsmith/postsmith/internal/cache"
	"github.com/postsmith/postsmith/internal/compose"
	"github.com/postsmith/postsmith/internal/drafts"
	"github.com/postsmith/postsmith/internal/imagegen"
	"github.com/postsmith/postsmith/internal/ledger"
	"github.com/postsmith/postsmith/internal/models"
	"github.com/postsmith/postsmith/internal/progress"
	"github.com/postsmith/postsmith/internal/publish"
	"github.com/postsmith/postsmith/internal/seo"
	"github.com/postsmith/postsmith/internal/store"
	"github.com/postsmith/postsmith/internal/textgen"
)

// Failure kinds of the caller contract. Raw transport errors never cross
// this boundary.
const (
	KindInsufficientFunds = "insufficient_funds"
	KindConfiguration     = "configuration_error"
	KindTextGeneration    = "text_generation_failure"
	KindCoverImage        = "cover_image_failure"
	KindPublish           = "publish_failure"
)

// Stages are the ordered human-readable progress strings of one run.
var Stages = []string{
	"Checking target site configuration",
	"Reserving generation budget",
	"Preparing category context",
	"Composing generation prompt",
	"Generating article text",
	"Normalizing SEO metadata",
	"Generating cover image",
	"Generating body images",
	"Resolving categories and tags",
	"Uploading images",
	"Publishing content item",
	"Finalizing budget and review pool",
}

const maxReviewsPerRun = 3

// TextGenerator produces an article from a composed prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt compose.Prompt, fb textgen.Fallback) (models.GeneratedArticle, error)
}

// ImageGenerator produces the cover and body image sets.
type ImageGenerator interface {
	GenerateCover(ctx context.Context, spec imagegen.SetSpec) (models.ImageAsset, error)
	GenerateBodies(ctx context.Context, spec imagegen.SetSpec, rng *rand.Rand) []models.ImageAsset
}

// Resolver maps desired taxonomy names onto the target site.
type Resolver interface {
	ResolveCategory(ctx context.Context, labels []string) (models.TaxonomyEntity, error)
	ResolveTags(ctx context.Context, names []string) ([]models.TaxonomyEntity, error)
}

// ResolverFactory builds a resolver seeded with the category's keywords.
type ResolverFactory func(keywords []string) Resolver

// ContentPublisher is the verify/upload/create surface of the publisher.
type ContentPublisher interface {
	Verify(ctx context.Context) error
	UploadAssets(ctx context.Context, cover models.ImageAsset, body []models.ImageAsset) (publish.Uploaded, error)
	CreateItem(ctx context.Context, in publish.Input, up publish.Uploaded) (models.PublishResult, error)
}

// TargetFactory builds the site-scoped collaborators for one request. Each
// request carries its own CMS credentials, so the publisher and the taxonomy
// resolver cannot be process-wide singletons.
type TargetFactory func(site models.TargetSite) (ContentPublisher, ResolverFactory, error)

// Pipeline owns one account-facing generation flow. Collaborators are
// injected; Cache, Reporter and Archiver are optional.
type Pipeline struct {
	Ledger   ledger.Ledger
	Store    store.Store
	Cache    *cache.ContextCache
	Text     TextGenerator
	Images   ImageGenerator
	Targets  TargetFactory
	Reporter progress.Reporter
	Archiver drafts.Archiver

	// Seed feeds the per-request sampling rand; injectable for tests.
	Seed func() int64
}

// runState carries everything a terminal path needs to settle.
type runState struct {
	req         models.GenerationRequest
	reservation *ledger.Reservation
	article     *models.GeneratedArticle
	slug        string
	cover       *models.ImageAsset
	body        []models.ImageAsset
	stages      []string
}

// Run executes the whole pipeline and always returns a PublishResult. Once
// the budget is reserved there is no cancellation: the run proceeds to a
// terminal outcome, success or refund.
func (p *Pipeline) Run(ctx context.Context, req models.GenerationRequest) models.PublishResult {
	if req.RequestID == uuid.Nil {
		req.RequestID = uuid.New()
	}
	st := &runState{req: req}
	defer st.releaseBuffers()

	seed := time.Now().UnixNano()
	if p.Seed != nil {
		seed = p.Seed()
	}
	rng := rand.New(rand.NewSource(seed))

	// stage 1: pre-flight, no side effects
	p.report(ctx, st, 0)
	if !req.Site.Configured() {
		return p.fail(ctx, st, KindConfiguration, errors.New("target site credentials missing"))
	}
	publisher, resolvers, err := p.Targets(req.Site)
	if err != nil {
		return p.fail(ctx, st, KindConfiguration, fmt.Errorf("target site: %w", err))
	}
	if err := publisher.Verify(ctx); err != nil {
		return p.fail(ctx, st, KindConfiguration, fmt.Errorf("target site: %w", err))
	}

	// stage 2: the only debit of the run
	p.report(ctx, st, 1)
	total := ledger.Cost(req.Style.TargetWords(), req.Style.ImageCount)
	reservation, err := p.Ledger.Reserve(ctx, req.AccountID, total)
	if err != nil {
		if errors.Is(err, ledger.ErrInsufficientFunds) {
			return p.fail(ctx, st, KindInsufficientFunds, fmt.Errorf("balance below %d credits", total))
		}
		return p.fail(ctx, st, KindConfiguration, fmt.Errorf("budget reservation: %w", err))
	}
	st.reservation = &reservation

	// stage 3: per-request context snapshot
	p.report(ctx, st, 2)
	cc, err := p.loadContext(ctx, req)
	if err != nil {
		return p.fail(ctx, st, KindConfiguration, err)
	}
	reviews, err := p.Store.DrawReviews(ctx, req.AccountID, cc.Name, maxReviewsPerRun)
	if err != nil {
		log.Printf("[pipeline] review draw failed, generating without reviews: %v", err)
		reviews = nil
	}

	// stage 4
	p.report(ctx, st, 3)
	composer := compose.NewWithRand(rng)
	prompt, err := composer.Compose(requestWithContext(req, cc), reviews)
	if err != nil {
		return p.fail(ctx, st, KindConfiguration, err)
	}
	fb := textgen.Fallback{Keyword: prompt.Keyword, City: cc.City, Company: cc.Company}

	// stage 5
	p.report(ctx, st, 4)
	article, err := p.Text.Generate(ctx, prompt, fb)
	if err != nil {
		return p.fail(ctx, st, KindTextGeneration, err)
	}

	// stage 6: provider caps and the boundary-safe slug
	p.report(ctx, st, 5)
	article.SEOTitle = seo.NormalizeTitle(article.SEOTitle)
	article.MetaDescription = seo.NormalizeDescription(article.MetaDescription, cc.Description)
	st.article = &article
	st.slug = seo.Slug(article.SEOTitle)

	imgSpec := imagegen.SetSpec{
		Keyword: prompt.Keyword,
		Style:   req.Style.ImageStyle,
		Format:  req.Style.ImageFormat,
		Aspect:  req.Style.PreviewAspect,
		Phrases: compose.SplitPhrases(cc.Description),
		Count:   req.Style.ImageCount,
	}

	// stage 7: the cover is mandatory
	p.report(ctx, st, 6)
	cover, err := p.Images.GenerateCover(ctx, imgSpec)
	if err != nil {
		return p.fail(ctx, st, KindCoverImage, err)
	}
	st.cover = &cover

	// stage 8: body images are best-effort
	p.report(ctx, st, 7)
	st.body = p.Images.GenerateBodies(ctx, imgSpec, rng)

	// stage 9
	p.report(ctx, st, 8)
	resolver := resolvers(cc.Keywords)
	labels := req.Site.CategoryLabels
	if len(labels) == 0 {
		labels = []string{cc.Name}
	}
	category, err := resolver.ResolveCategory(ctx, labels)
	if err != nil {
		return p.fail(ctx, st, KindPublish, err)
	}
	tagNames := req.Site.TagNames
	if len(tagNames) == 0 {
		tagNames = cc.Keywords
	}
	tags, err := resolver.ResolveTags(ctx, tagNames)
	if err != nil {
		return p.fail(ctx, st, KindPublish, err)
	}

	// stage 10
	p.report(ctx, st, 9)
	uploaded, err := publisher.UploadAssets(ctx, cover, st.body)
	if err != nil {
		return p.fail(ctx, st, KindPublish, err)
	}

	// stage 11: the single remote create call. Buffers are done once the
	// upload finishes; the create call works with remote ids only.
	in := publish.Input{
		Article:  article,
		Cover:    cover,
		Body:     st.body,
		Slug:     st.slug,
		Category: category,
		Tags:     tags,
		Site:     req.Site,
		Keyword:  prompt.Keyword,
	}
	st.releaseBuffers()
	in.Cover.Buffer = nil

	p.report(ctx, st, 10)
	result, err := publisher.CreateItem(ctx, in, uploaded)
	if err != nil {
		return p.fail(ctx, st, KindPublish, err)
	}

	// stage 12: consume drawn reviews, then commit. Review consumption is
	// not atomic with the remote publish; a crash in between can leave a
	// review reusable.
	p.report(ctx, st, 11)
	if len(reviews) > 0 {
		ids := make([]int64, 0, len(reviews))
		for _, r := range reviews {
			ids = append(ids, r.ID)
		}
		if err := p.Store.ConsumeReviews(ctx, ids); err != nil {
			log.Printf("[pipeline] review consumption failed after publish: %v", err)
		}
	}
	if err := p.Ledger.Commit(ctx, reservation.ID); err != nil {
		log.Printf("[pipeline] commit failed for reservation %s: %v", reservation.ID, err)
	}

	result.Stages = st.stages
	log.Printf("[pipeline] request=%s published url=%s words=%d", req.RequestID, result.RemoteURL, result.WordCount)
	return result
}

// loadContext returns the request's category context, preferring an inline
// one, then the keyed cache, then the store. The snapshot is taken once per
// request.
func (p *Pipeline) loadContext(ctx context.Context, req models.GenerationRequest) (models.CategoryContext, error) {
	if req.Category.Description != "" || len(req.Category.PriceRows) > 0 || len(req.Category.Keywords) > 0 {
		return req.Category, nil
	}
	name := req.Category.Name
	if name == "" {
		return models.CategoryContext{}, errors.New("category name required")
	}
	if p.Cache != nil {
		if hit, err := p.Cache.Get(ctx, req.AccountID, name); err != nil {
			log.Printf("[pipeline] cache read failed: %v", err)
		} else if hit != nil {
			return *hit, nil
		}
	}
	cc, err := p.Store.CategoryContext(ctx, req.AccountID, name)
	if err != nil {
		return models.CategoryContext{}, fmt.Errorf("load category context: %w", err)
	}
	if p.Cache != nil {
		if err := p.Cache.Put(ctx, req.AccountID, cc); err != nil {
			log.Printf("[pipeline] cache write failed: %v", err)
		}
	}
	return cc, nil
}

// fail settles a terminal failure: refund when reserved, archive a
// recoverable draft on publish failures, clear buffers, report the outcome.
func (p *Pipeline) fail(ctx context.Context, st *runState, kind string, cause error) models.PublishResult {
	st.releaseBuffers()

	result := models.PublishResult{
		Success: false,
		Kind:    kind,
		Error:   cause.Error(),
		Stages:  st.stages,
	}
	if st.article != nil {
		result.WordCount = st.article.WordCount
	}

	// Archive before refunding so a crash mid-settlement cannot lose the
	// finished article.
	if kind == KindPublish && st.article != nil {
		draft := models.RecoverableDraft{
			RequestID:       st.req.RequestID,
			AccountID:       st.req.AccountID,
			HTML:            st.article.HTML,
			SEOTitle:        st.article.SEOTitle,
			MetaDescription: st.article.MetaDescription,
			Slug:            st.slug,
			Reason:          cause.Error(),
			CreatedAt:       time.Now().UTC(),
		}
		result.Draft = &draft
		if p.Archiver != nil {
			if err := p.Archiver.Archive(ctx, draft); err != nil {
				log.Printf("[pipeline] draft archive failed: %v", err)
			}
		}
	}

	if st.reservation != nil {
		if err := p.Ledger.Refund(ctx, st.reservation.ID); err != nil {
			log.Printf("[pipeline] refund failed for reservation %s: %v", st.reservation.ID, err)
		}
	}

	log.Printf("[pipeline] request=%s failed kind=%s: %v", st.req.RequestID, kind, cause)
	return result
}

// report records a stage and pushes it to the reporter. Reporting is
// advisory: a failed update never aborts the run.
func (p *Pipeline) report(ctx context.Context, st *runState, index int) {
	stage := Stages[index]
	st.stages = append(st.stages, stage)
	if p.Reporter == nil {
		return
	}
	ev := progress.Event{
		RequestID: st.req.RequestID,
		AccountID: st.req.AccountID,
		Stage:     stage,
		Index:     index + 1,
		Total:     len(Stages),
		Ts:        time.Now().UTC(),
	}
	if err := p.Reporter.Report(ctx, ev); err != nil {
		log.Printf("[pipeline] progress report failed at %q: %v", stage, err)
	}
}

func (st *runState) releaseBuffers() {
	if st.cover != nil {
		st.cover.Buffer = nil
	}
	for i := range st.body {
		st.body[i].Buffer = nil
	}
}

// requestWithContext swaps the loaded context into the request copy handed
// to the composer.
func requestWithContext(req models.GenerationRequest, cc models.CategoryContext) models.GenerationRequest {
	req.Category = cc
	return req
}
