// Package textgen calls the text model with bounded retry and turns its raw
// output into a GeneratedArticle. The pipeline is never blocked on missing
// metadata: absent trailer fields are synthesized deterministically.
package textgen

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/openai/openai-go"

	"github.com/postsmith/postsmith/internal/compose"
	"github.com/postsmith/postsmith/internal/models"
	"github.com/postsmith/postsmith/internal/retry"
)

const (
	maxAttempts    = 3
	initialBackoff = 10 * time.Second
)

// ErrEmptyCompletion marks a response with no usable text; it is retryable.
var ErrEmptyCompletion = errors.New("model returned empty completion")

// Client is the raw completion surface; OpenAIClient implements it, tests
// substitute mocks.
type Client interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Fallback carries the deterministic inputs used when the model omits the
// title or description trailer.
type Fallback struct {
	Keyword string
	City    string
	Company string
}

type Generator struct {
	client Client
	policy retry.Policy
}

// Option tweaks the generator; used by tests to remove real delays.
type Option func(*Generator)

// WithSleep replaces the backoff sleep function.
func WithSleep(sleep func(time.Duration)) Option {
	return func(g *Generator) { g.policy.Sleep = sleep }
}

func NewGenerator(client Client, opts ...Option) *Generator {
	g := &Generator{
		client: client,
		policy: retry.Policy{
			MaxAttempts:    maxAttempts,
			InitialBackoff: initialBackoff,
			Multiplier:     2,
			Retryable:      IsRetryable,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate runs the composed prompt through the model. Up to 3 attempts with
// exponential backoff from 10s; auth and config errors fail immediately.
func (g *Generator) Generate(ctx context.Context, prompt compose.Prompt, fb Fallback) (models.GeneratedArticle, error) {
	var raw string
	err := g.policy.Do(ctx, func(ctx context.Context) error {
		out, err := g.client.Complete(ctx, prompt.System, prompt.User)
		if err != nil {
			return err
		}
		if len(out) == 0 {
			return ErrEmptyCompletion
		}
		raw = out
		return nil
	})
	if err != nil {
		return models.GeneratedArticle{}, fmt.Errorf("text generation: %w", err)
	}

	article := Extract(raw, fb)
	if article.TitleSynthesized || article.DescSynthesized {
		log.Printf("[textgen] synthesized metadata title=%v desc=%v keyword=%q",
			article.TitleSynthesized, article.DescSynthesized, fb.Keyword)
	}
	return article, nil
}

// IsRetryable classifies completion errors: empty output, upstream overload
// and timeouts are retried; auth and configuration errors are terminal.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrEmptyCompletion) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
