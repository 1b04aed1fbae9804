package textgen

import (
	"context"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIClient implements Client over the official SDK's chat completions.
type OpenAIClient struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &OpenAIClient{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
	}
}

func (o *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	resp, err := o.client.Chat.Completions.New(reqCtx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
