package models

import (
	"time"

	"github.com/google/uuid"
)

// PriceRow is one line of a category's pricing table.
type PriceRow struct {
	Item  string `json:"item"`
	Price string `json:"price"`
	Unit  string `json:"unit,omitempty"`
}

// Review is a customer review attached to a category. Reviews are drawn from
// the pool without replacement and consumed only after a confirmed publish.
type Review struct {
	ID     int64  `json:"id"`
	Author string `json:"author"`
	Body   string `json:"body"`
}

// Link is a titled URL included in generated copy.
type Link struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// LinkSet splits internal links into priority tiers plus external social links.
type LinkSet struct {
	High   []Link `json:"high,omitempty"`
	Low    []Link `json:"low,omitempty"`
	Social []Link `json:"social,omitempty"`
}

// CategoryContext is the business context one article is generated from.
type CategoryContext struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Keywords    []string   `json:"keywords,omitempty"`
	City        string     `json:"city,omitempty"`
	Company     string     `json:"company,omitempty"`
	PriceRows   []PriceRow `json:"priceRows,omitempty"`
	Reviews     []Review   `json:"reviews,omitempty"`
	Links       LinkSet    `json:"links"`
}

// StyleConfig carries the account's generation preferences.
type StyleConfig struct {
	WordCountMin  int    `json:"wordCountMin"`
	WordCountMax  int    `json:"wordCountMax"`
	TextStyle     string `json:"textStyle,omitempty"`
	HTMLStyle     string `json:"htmlStyle,omitempty"`
	ImageCount    int    `json:"imageCount"`
	ImageFormat   string `json:"imageFormat,omitempty"`
	ImageStyle    string `json:"imageStyle,omitempty"`
	PreviewAspect string `json:"previewAspect,omitempty"`
}

// TargetWords is the word count the request is billed against. It is fixed
// before generation and never re-billed from actual output length.
func (s StyleConfig) TargetWords() int {
	switch {
	case s.WordCountMin > 0 && s.WordCountMax > 0:
		return (s.WordCountMin + s.WordCountMax) / 2
	case s.WordCountMax > 0:
		return s.WordCountMax
	default:
		return s.WordCountMin
	}
}

// TargetSite identifies the CMS the finished item is published to.
type TargetSite struct {
	BaseURL        string   `json:"baseUrl"`
	Username       string   `json:"username"`
	AppPassword    string   `json:"appPassword"`
	CategoryLabels []string `json:"categoryLabels,omitempty"`
	TagNames       []string `json:"tagNames,omitempty"`
	AuthorID       int64    `json:"authorId,omitempty"`
	SchemaType     string   `json:"schemaType,omitempty"`
	Robots         string   `json:"robots,omitempty"`
	CanonicalBase  string   `json:"canonicalBase,omitempty"`
}

// Configured reports whether the site carries enough credentials to publish.
func (t TargetSite) Configured() bool {
	return t.BaseURL != "" && t.Username != "" && t.AppPassword != ""
}

// GenerationRequest is the immutable input of one pipeline invocation.
type GenerationRequest struct {
	RequestID    uuid.UUID       `json:"requestId"`
	AccountID    uuid.UUID       `json:"accountId"`
	TopicKeyword string          `json:"topicKeyword,omitempty"`
	Category     CategoryContext `json:"category"`
	Style        StyleConfig     `json:"style"`
	Site         TargetSite      `json:"site"`
}

// GeneratedArticle is the text half of a pipeline run. The Synthesized flags
// mark fields the model omitted and that were filled deterministically.
type GeneratedArticle struct {
	HTML             string `json:"html"`
	SEOTitle         string `json:"seoTitle"`
	MetaDescription  string `json:"metaDescription"`
	WordCount        int    `json:"wordCount"`
	TitleSynthesized bool   `json:"titleSynthesized"`
	DescSynthesized  bool   `json:"descSynthesized"`
}

// ImageRole distinguishes the mandatory cover from optional body images.
type ImageRole string

const (
	RoleCover ImageRole = "cover"
	RoleBody  ImageRole = "body"
)

// ImageAsset is an ephemeral generated image. Buffers are cleared on upload
// or on any terminal pipeline outcome and are never persisted.
type ImageAsset struct {
	Buffer   []byte    `json:"-"`
	Format   string    `json:"format"`
	Role     ImageRole `json:"role"`
	Filename string    `json:"filename"`
	AltText  string    `json:"altText,omitempty"`
}

// TaxonomyEntity records how one desired category or tag name resolved
// against the target site's taxonomy.
type TaxonomyEntity struct {
	DesiredName string `json:"desiredName"`
	ResolvedID  int64  `json:"resolvedId"`
	WasCreated  bool   `json:"wasCreated"`
}

// RecoverableDraft preserves already-produced content when the remote create
// call fails, so the caller can retry manually without a second charge.
type RecoverableDraft struct {
	RequestID       uuid.UUID `json:"requestId"`
	AccountID       uuid.UUID `json:"accountId"`
	HTML            string    `json:"html"`
	SEOTitle        string    `json:"seoTitle"`
	MetaDescription string    `json:"metaDescription"`
	Slug            string    `json:"slug"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PublishResult is the pipeline's caller contract. It is always produced,
// success or failure.
type PublishResult struct {
	Success   bool              `json:"success"`
	RemoteURL string            `json:"url,omitempty"`
	RemoteID  int64             `json:"remoteId,omitempty"`
	WordCount int               `json:"wordCount"`
	Error     string            `json:"error,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Draft     *RecoverableDraft `json:"draft,omitempty"`
	Stages    []string          `json:"stages,omitempty"`
}
