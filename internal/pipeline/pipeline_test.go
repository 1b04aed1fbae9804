package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postsmith/postsmith/internal/compose"
	"github.com/postsmith/postsmith/internal/imagegen"
	"github.com/postsmith/postsmith/internal/ledger"
	"github.com/postsmith/postsmith/internal/models"
	"github.com/postsmith/postsmith/internal/publish"
	"github.com/postsmith/postsmith/internal/store"
	"github.com/postsmith/postsmith/internal/textgen"
)

type fakeText struct {
	article models.GeneratedArticle
	err     error
	calls   int
}

func (f *fakeText) Generate(ctx context.Context, prompt compose.Prompt, fb textgen.Fallback) (models.GeneratedArticle, error) {
	f.calls++
	if f.err != nil {
		return models.GeneratedArticle{}, f.err
	}
	return f.article, nil
}

type fakeImages struct {
	coverErr  error
	bodyCount int
	calls     int
}

func (f *fakeImages) GenerateCover(ctx context.Context, spec imagegen.SetSpec) (models.ImageAsset, error) {
	f.calls++
	if f.coverErr != nil {
		return models.ImageAsset{}, f.coverErr
	}
	return models.ImageAsset{Buffer: []byte("cover"), Format: "webp", Role: models.RoleCover, Filename: "cover.webp"}, nil
}

func (f *fakeImages) GenerateBodies(ctx context.Context, spec imagegen.SetSpec, rng *rand.Rand) []models.ImageAsset {
	body := make([]models.ImageAsset, 0, f.bodyCount)
	for i := 0; i < f.bodyCount; i++ {
		body = append(body, models.ImageAsset{Buffer: []byte("body"), Format: "webp", Role: models.RoleBody})
	}
	return body
}

type fakeResolver struct{ err error }

func (f *fakeResolver) ResolveCategory(ctx context.Context, labels []string) (models.TaxonomyEntity, error) {
	if f.err != nil {
		return models.TaxonomyEntity{}, f.err
	}
	return models.TaxonomyEntity{DesiredName: labels[0], ResolvedID: 7}, nil
}

func (f *fakeResolver) ResolveTags(ctx context.Context, names []string) ([]models.TaxonomyEntity, error) {
	out := make([]models.TaxonomyEntity, 0, len(names))
	for i, n := range names {
		out = append(out, models.TaxonomyEntity{DesiredName: n, ResolvedID: int64(100 + i)})
	}
	return out, nil
}

type fakePublisher struct {
	verifyErr   error
	uploadErr   error
	createErr   error
	uploadCalls int
	createCalls int
	lastInput   publish.Input
}

func (f *fakePublisher) Verify(ctx context.Context) error {
	return f.verifyErr
}

func (f *fakePublisher) UploadAssets(ctx context.Context, cover models.ImageAsset, body []models.ImageAsset) (publish.Uploaded, error) {
	f.uploadCalls++
	if f.uploadErr != nil {
		return publish.Uploaded{}, f.uploadErr
	}
	urls := make([]string, len(body))
	for i := range body {
		urls[i] = "https://cdn.example/body.webp"
	}
	return publish.Uploaded{FeaturedID: 42, BodyURLs: urls}, nil
}

func (f *fakePublisher) CreateItem(ctx context.Context, in publish.Input, up publish.Uploaded) (models.PublishResult, error) {
	f.createCalls++
	f.lastInput = in
	if f.createErr != nil {
		return models.PublishResult{}, f.createErr
	}
	return models.PublishResult{
		Success:   true,
		RemoteURL: "https://shop.example/" + in.Slug,
		RemoteID:  314,
		WordCount: in.Article.WordCount,
	}, nil
}

type fixture struct {
	pipeline *Pipeline
	ledger   *ledger.MemoryLedger
	store    *store.MemoryStore
	text     *fakeText
	images   *fakeImages
	pub      *fakePublisher
	account  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	account := uuid.New()

	led := ledger.NewMemoryLedger()
	led.SetBalance(account, 1000)

	st := store.NewMemoryStore()
	st.SeedCategory(account, models.CategoryContext{
		Name:        "Wall Panels",
		Description: "Durable panels. Quick installation. Free delivery",
		Keywords:    []string{"panels", "interior"},
		City:        "Riga",
		Company:     "PanelPro",
		Reviews: []models.Review{
			{ID: 1, Author: "Anna", Body: "Great work"},
			{ID: 2, Author: "Igor", Body: "Fast and clean"},
		},
	})

	text := &fakeText{article: models.GeneratedArticle{
		HTML:            "<h2>One</h2><p>a</p><h2>Two</h2><p>b</p><h2>Three</h2><p>c</p><h2>Four</h2><p>d</p>",
		SEOTitle:        "Wall Panels in Riga",
		MetaDescription: "Order durable wall panels with quick installation and free delivery across the city from a local team.",
		WordCount:       1500,
	}}
	images := &fakeImages{bodyCount: 3}
	pub := &fakePublisher{}

	return &fixture{
		pipeline: &Pipeline{
			Ledger: led,
			Store:  st,
			Text:   text,
			Images: images,
			Targets: func(site models.TargetSite) (ContentPublisher, ResolverFactory, error) {
				return pub, func(keywords []string) Resolver { return &fakeResolver{} }, nil
			},
			Seed: func() int64 { return 1 },
		},
		ledger:  led,
		store:   st,
		text:    text,
		images:  images,
		pub:     pub,
		account: account,
	}
}

func (f *fixture) request() models.GenerationRequest {
	return models.GenerationRequest{
		RequestID:    uuid.New(),
		AccountID:    f.account,
		TopicKeyword: "wall panels",
		Category:     models.CategoryContext{Name: "Wall Panels"},
		Style:        models.StyleConfig{WordCountMin: 1500, WordCountMax: 1500, ImageCount: 3},
		Site: models.TargetSite{
			BaseURL:     "https://shop.example",
			Username:    "editor",
			AppPassword: "secret",
		},
	}
}

func TestRunSuccessCommitsBudget(t *testing.T) {
	f := newFixture(t)

	res := f.pipeline.Run(context.Background(), f.request())

	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	assert.Equal(t, "https://shop.example/wall-panels-in-riga", res.RemoteURL)
	assert.Equal(t, 1500, res.WordCount)
	assert.Len(t, res.Stages, len(Stages))

	// 1500 words and 3 body images cost 150 + 120 credits.
	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(730), balance)

	assert.Equal(t, 1, f.pub.uploadCalls)
	assert.Equal(t, 1, f.pub.createCalls)
	assert.Equal(t, int64(7), f.pub.lastInput.Category.ResolvedID)
}

func TestRunInsufficientFundsSkipsGeneration(t *testing.T) {
	f := newFixture(t)
	f.ledger.SetBalance(f.account, 100)

	res := f.pipeline.Run(context.Background(), f.request())

	require.False(t, res.Success)
	assert.Equal(t, KindInsufficientFunds, res.Kind)
	assert.Zero(t, f.text.calls)
	assert.Zero(t, f.images.calls)

	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestRunUnconfiguredSiteFailsBeforeReserve(t *testing.T) {
	f := newFixture(t)
	req := f.request()
	req.Site.AppPassword = ""

	res := f.pipeline.Run(context.Background(), req)

	require.False(t, res.Success)
	assert.Equal(t, KindConfiguration, res.Kind)

	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestRunSiteProbeFailureStopsBeforeReserve(t *testing.T) {
	f := newFixture(t)
	f.pub.verifyErr = errors.New("site probe: site rejected request: 401")

	res := f.pipeline.Run(context.Background(), f.request())

	require.False(t, res.Success)
	assert.Equal(t, KindConfiguration, res.Kind)
	assert.Zero(t, f.text.calls)

	// the probe runs before the debit, so nothing needs refunding
	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestRunTextFailureRefunds(t *testing.T) {
	f := newFixture(t)
	f.text.err = errors.New("completion empty after retries")

	res := f.pipeline.Run(context.Background(), f.request())

	require.False(t, res.Success)
	assert.Equal(t, KindTextGeneration, res.Kind)
	assert.Zero(t, f.pub.createCalls)

	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestRunCoverFailureRefundsWithoutPublish(t *testing.T) {
	f := newFixture(t)
	f.images.coverErr = errors.New("cover image: imagegen rejected request")

	res := f.pipeline.Run(context.Background(), f.request())

	require.False(t, res.Success)
	assert.Equal(t, KindCoverImage, res.Kind)
	assert.Zero(t, f.pub.uploadCalls)
	assert.Zero(t, f.pub.createCalls)

	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestRunPartialBodySetStillPublishes(t *testing.T) {
	f := newFixture(t)
	f.images.bodyCount = 2 // one of three body images failed upstream

	res := f.pipeline.Run(context.Background(), f.request())

	require.True(t, res.Success, "unexpected failure: %s", res.Error)
	assert.Len(t, f.pub.lastInput.Body, 2)

	// The reservation is priced up front; a skipped body image does not
	// change the committed amount.
	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(730), balance)
}

func TestRunPublishFailureRefundsAndAttachesDraft(t *testing.T) {
	f := newFixture(t)
	f.pub.createErr = errors.New("site unavailable: 502 Bad Gateway")

	res := f.pipeline.Run(context.Background(), f.request())

	require.False(t, res.Success)
	assert.Equal(t, KindPublish, res.Kind)
	require.NotNil(t, res.Draft)
	assert.Equal(t, f.account, res.Draft.AccountID)
	assert.Equal(t, "wall-panels-in-riga", res.Draft.Slug)
	assert.NotEmpty(t, res.Draft.HTML)

	balance, err := f.ledger.Balance(context.Background(), f.account)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), balance)
}

func TestRunConsumesDrawnReviewsAfterPublish(t *testing.T) {
	f := newFixture(t)

	res := f.pipeline.Run(context.Background(), f.request())
	require.True(t, res.Success)

	// Both seeded reviews were drawn and must not be offered again.
	reviews, err := f.store.DrawReviews(context.Background(), f.account, "Wall Panels", 3)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

func TestRunLeavesReviewPoolOnFailure(t *testing.T) {
	f := newFixture(t)
	f.pub.createErr = errors.New("site unavailable: 502 Bad Gateway")

	res := f.pipeline.Run(context.Background(), f.request())
	require.False(t, res.Success)

	reviews, err := f.store.DrawReviews(context.Background(), f.account, "Wall Panels", 3)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)
}
