// Package genai provides GenAI-enhanced operations using the OpenAI API.
package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/coachwell/coachd/internal/models"
)

// Error variables for better error handling and testability.
var (
	ErrAPIKeyNotSet      = errors.New("OPENAI_API_KEY not set")
	ErrNoChoicesReturned = errors.New("no choices returned")
)

// ChatClient is the minimal chat interface consumed by the pipeline
// components. Model identity is an opaque string; only the returned content
// is interpreted.
type ChatClient interface {
	Chat(ctx context.Context, messages []models.ContractMessage, system, model string) (string, error)
}

// chatService defines the minimal interface for chat completions, satisfied
// by *openai.ChatCompletionService and by test fakes.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat chatService
}

// Option configures the client during construction.
type Option func(*options)

type options struct {
	apiKey  string
	baseURL string
}

// WithAPIKey sets an explicit API key instead of reading the environment.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// NewClient initializes a GenAI client. Falls back to the OPENAI_API_KEY
// environment variable when no key option is given.
func NewClient(opts ...Option) (*Client, error) {
	var cfg options
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	cli := openai.NewClient(reqOpts...)
	slog.Debug("genai.NewClient: client initialized", "customBaseURL", cfg.baseURL != "")
	return &Client{chat: &cli.Chat.Completions}, nil
}

// Chat sends one chat completion request. The system instruction is prepended
// as a system message, followed by the conversation window in order.
func (c *Client) Chat(ctx context.Context, messages []models.ContractMessage, system, model string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: buildMessages(messages, system),
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		slog.Error("genai.Chat: completion request failed", "model", model, "error", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Error("genai.Chat: response contained no choices", "model", model)
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// buildMessages converts the window into OpenAI message params.
func buildMessages(messages []models.ContractMessage, system string) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.SystemMessage(system))
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
