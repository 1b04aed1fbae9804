// Package cms is a REST client for the target content-management system.
// Every method converts transport and status errors into wrapped errors at
// this boundary; callers never see a raw *url.Error.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const apiBase = "/wp-json/wp/v2"

type Config struct {
	BaseURL     string
	Username    string
	AppPassword string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	timeout  time.Duration
}

// Term is a taxonomy entity (category or tag) on the target site.
type Term struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Author is a site user posts can be attributed to.
type Author struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Media is an uploaded asset.
type Media struct {
	ID        int64  `json:"id"`
	SourceURL string `json:"source_url"`
}

// Post is a created content item.
type Post struct {
	ID     int64  `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

// PostInput is the single create-content-item request.
type PostInput struct {
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Excerpt       string  `json:"excerpt,omitempty"`
	Status        string  `json:"status"`
	Slug          string  `json:"slug,omitempty"`
	Author        int64   `json:"author,omitempty"`
	FeaturedMedia int64   `json:"featured_media,omitempty"`
	Categories    []int64 `json:"categories,omitempty"`
	Tags          []int64 `json:"tags,omitempty"`
	Meta          SEOMeta `json:"meta,omitempty"`
}

// SEOMeta carries the SEO-plugin fields attached to a post.
type SEOMeta struct {
	Title       string `json:"seo_title,omitempty"`
	Description string `json:"seo_description,omitempty"`
	Canonical   string `json:"canonical_url,omitempty"`
	Robots      string `json:"robots,omitempty"`
	SchemaType  string `json:"schema_type,omitempty"`
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("cms base url required")
	}
	if cfg.Username == "" || cfg.AppPassword == "" {
		return nil, fmt.Errorf("cms credentials required")
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
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.AppPassword,
		client:   client,
		timeout:  timeout,
	}, nil
}

// Me fetches the current identity and doubles as the connectivity probe.
func (c *Client) Me(ctx context.Context) (Author, error) {
	var out Author
	if err := c.getJSON(ctx, "/users/me?context=edit", &out); err != nil {
		return Author{}, err
	}
	return out, nil
}

func (c *Client) Categories(ctx context.Context) ([]Term, error) {
	var out []Term
	if err := c.getJSON(ctx, "/categories?per_page=100", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tags(ctx context.Context) ([]Term, error) {
	var out []Term
	if err := c.getJSON(ctx, "/tags?per_page=100", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateCategory(ctx context.Context, name string) (Term, error) {
	return c.createTerm(ctx, "/categories", name)
}

func (c *Client) CreateTag(ctx context.Context, name string) (Term, error) {
	return c.createTerm(ctx, "/tags", name)
}

func (c *Client) Authors(ctx context.Context) ([]Author, error) {
	var out []Author
	if err := c.getJSON(ctx, "/users?per_page=100", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UploadMedia sends one binary asset as multipart form data with its
// filename and alt text.
func (c *Client) UploadMedia(ctx context.Context, filename string, data []byte, alt string) (Media, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return Media{}, fmt.Errorf("cms build upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Media{}, fmt.Errorf("cms build upload: %w", err)
	}
	if alt != "" {
		if err := writer.WriteField("alt_text", alt); err != nil {
			return Media{}, fmt.Errorf("cms build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return Media{}, fmt.Errorf("cms build upload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+apiBase+"/media", &body)
	if err != nil {
		return Media{}, fmt.Errorf("cms build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetBasicAuth(c.username, c.password)

	var out Media
	if err := c.do(req, &out); err != nil {
		return Media{}, fmt.Errorf("cms upload media %s: %w", filename, err)
	}
	return out, nil
}

func (c *Client) CreatePost(ctx context.Context, in PostInput) (Post, error) {
	if in.Status == "" {
		in.Status = "publish"
	}
	var out Post
	if err := c.postJSON(ctx, "/posts", in, &out); err != nil {
		return Post{}, fmt.Errorf("cms create post: %w", err)
	}
	return out, nil
}

func (c *Client) createTerm(ctx context.Context, path, name string) (Term, error) {
	var out Term
	err := c.postJSON(ctx, path, map[string]string{"name": name}, &out)
	if err != nil {
		return Term{}, fmt.Errorf("cms create term %q: %w", name, err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("cms build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	if err := c.do(req, out); err != nil {
		return fmt.Errorf("cms get %s: %w", path, err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out interface{}) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("cms marshal request: %w", err)
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+apiBase+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("cms build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("site unavailable: %s", resp.Status)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("site rejected request: %s: %s", resp.Status, strings.TrimSpace(string(snippet)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
