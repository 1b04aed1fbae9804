// Package imagegen requests generated images over HTTP. The response is an
// opaque binary buffer; buffers live only for the duration of one pipeline
// call.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/postsmith/postsmith/internal/models"
)

const defaultAspect = "16:9"

// maxImageBytes caps a single downloaded buffer.
const maxImageBytes = 16 << 20

type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("imagegen base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		timeout: timeout,
	}, nil
}

// Generate requests one image for the prompt and aspect-ratio token.
func (c *Client) Generate(ctx context.Context, prompt, aspect string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{
		"prompt":       prompt,
		"aspect_ratio": aspect,
	})
	if err != nil {
		return nil, fmt.Errorf("imagegen marshal request: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/v1/images", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("imagegen build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen rejected request: %s", resp.Status)
	}
	buf, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("imagegen read body: %w", err)
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("imagegen returned empty buffer")
	}
	return buf, nil
}

// SetSpec describes the image set one article needs.
type SetSpec struct {
	Keyword string
	Style   string
	Format  string
	Aspect  string
	Phrases []string
	Count   int
}

// bodyRoles vary each body image prompt so the set does not look uniform.
var bodyRoles = []string{"close-up detail shot", "work in progress shot", "finished result shot"}

// GenerateCover produces the mandatory featured image. A cover failure is
// returned as an error because no content item can be published without it.
func (c *Client) GenerateCover(ctx context.Context, spec SetSpec) (models.ImageAsset, error) {
	format := spec.format()
	aspect := spec.Aspect
	if aspect == "" {
		aspect = defaultAspect
	}
	buf, err := c.Generate(ctx, coverPrompt(spec), aspect)
	if err != nil {
		return models.ImageAsset{}, fmt.Errorf("cover image: %w", err)
	}
	return models.ImageAsset{
		Buffer:   buf,
		Format:   format,
		Role:     models.RoleCover,
		Filename: fmt.Sprintf("cover.%s", format),
		AltText:  spec.Keyword,
	}, nil
}

// GenerateBodies produces up to Count body images. A body-image failure is
// logged and skipped; the article still publishes with whatever succeeded.
func (c *Client) GenerateBodies(ctx context.Context, spec SetSpec, rng *rand.Rand) []models.ImageAsset {
	format := spec.format()
	var body []models.ImageAsset
	for i := 0; i < spec.Count; i++ {
		prompt := bodyPrompt(spec, i, rng)
		buf, err := c.Generate(ctx, prompt, defaultAspect)
		if err != nil {
			log.Printf("[imagegen] body image %d/%d skipped: %v", i+1, spec.Count, err)
			continue
		}
		body = append(body, models.ImageAsset{
			Buffer:   buf,
			Format:   format,
			Role:     models.RoleBody,
			Filename: fmt.Sprintf("body-%d.%s", i+1, format),
			AltText:  spec.Keyword,
		})
	}
	return body
}

// GenerateSet produces the cover plus the body images in one call.
func (c *Client) GenerateSet(ctx context.Context, spec SetSpec, rng *rand.Rand) (models.ImageAsset, []models.ImageAsset, error) {
	cover, err := c.GenerateCover(ctx, spec)
	if err != nil {
		return models.ImageAsset{}, nil, err
	}
	return cover, c.GenerateBodies(ctx, spec, rng), nil
}

func (s SetSpec) format() string {
	if s.Format == "" {
		return "webp"
	}
	return s.Format
}

func coverPrompt(spec SetSpec) string {
	prompt := spec.Keyword + ", wide cover photo"
	if spec.Style != "" {
		prompt += ", " + spec.Style
	}
	return prompt
}

// bodyPrompt varies the prompt by role and optionally blends in a second
// random descriptive phrase.
func bodyPrompt(spec SetSpec, i int, rng *rand.Rand) string {
	prompt := fmt.Sprintf("%s, %s", spec.Keyword, bodyRoles[i%len(bodyRoles)])
	if spec.Style != "" {
		prompt += ", " + spec.Style
	}
	if len(spec.Phrases) > 0 && rng != nil && rng.Intn(2) == 1 {
		prompt += ", " + spec.Phrases[rng.Intn(len(spec.Phrases))]
	}
	return prompt
}
