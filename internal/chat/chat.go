// Package chat talks to an OpenAI-compatible chat completion server such as LM Studio.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// Defaults.
const (
	DefaultModel       = "openai/gpt-oss-20b"
	DefaultTemperature = 0.2
	placeholderAPIKey  = "lm-studio"
	completionsSuffix  = "chat/completions"
	repetitionPenalty  = "repetition_penalty"
)

// Static errors.
var (
	ErrEmptyReply    = errors.New("chat completion returned no content")
	ErrEmptyEndpoint = errors.New("chat endpoint is empty")
)

// Prompt is a single system+user exchange.
type Prompt struct {
	System            string
	User              string
	Temperature       float64
	MaxTokens         int64
	RepetitionPenalty float64
}

// Client completes prompts against one model.
type Client struct {
	api   openai.Client
	model string
}

// NewClient creates a Client. endpoint may be the server root (".../v1") or
// the full completions URL (".../api/v0/chat/completions"); the suffix is
// stripped. apiKey may be empty for local servers.
func NewClient(endpoint, apiKey, model string, timeout time.Duration) (*Client, error) {
	baseURL := BaseURL(endpoint)
	if baseURL == "" {
		return nil, ErrEmptyEndpoint
	}

	if apiKey == "" {
		apiKey = placeholderAPIKey
	}

	if model == "" {
		model = DefaultModel
	}

	api := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: timeout}),
		option.WithMaxRetries(0),
	)

	return &Client{api: api, model: model}, nil
}

// Model returns the model name sent with every request.
func (c *Client) Model() string {
	return c.model
}

// BaseURL strips a trailing "chat/completions" and guarantees a trailing slash.
func BaseURL(endpoint string) string {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		return ""
	}

	trimmed = strings.TrimRight(trimmed, "/")
	trimmed = strings.TrimSuffix(trimmed, completionsSuffix)

	return strings.TrimRight(trimmed, "/") + "/"
}

// Complete returns the text of the first choice.
func (c *Client) Complete(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if prompt.System != "" {
		messages = append(messages, openai.SystemMessage(prompt.System))
	}

	messages = append(messages, openai.UserMessage(prompt.User))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    messages,
		Temperature: openai.Float(prompt.Temperature),
	}

	if prompt.MaxTokens > 0 {
		params.MaxTokens = openai.Int(prompt.MaxTokens)
	}

	var opts []option.RequestOption
	if prompt.RepetitionPenalty > 0 {
		opts = append(opts, option.WithJSONSet(repetitionPenalty, prompt.RepetitionPenalty))
	}

	completion, err := c.api.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", fmt.Errorf("chat completion with %s failed: %w", c.model, err)
	}

	for _, choice := range completion.Choices {
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}

	return "", ErrEmptyReply
}
