package llmservice

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"document-chat/internal/config"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

var errEmptyResponse = errors.New("model returned no choices")

// Client sends chat requests to the configured model.
type Client struct {
	llm     llms.Model
	timeout time.Duration
}

// New builds a client for the provider named in cfg.
func New(cfg config.LLMConfig) (*Client, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Str("base_url", cfg.BaseURL).Msg("Creating chat client")
	httpClient := &http.Client{Timeout: cfg.Timeout}

	var (
		llm llms.Model
		err error
	)
	switch cfg.Provider {
	case config.ProviderOllama, "":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
			ollama.WithHTTPClient(httpClient),
		)
	case config.ProviderOpenAI:
		llm, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
			openai.WithHTTPClient(httpClient),
		)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return NewWithModel(llm, cfg.Timeout), nil
}

// NewWithModel wraps an existing langchaingo model. A zero timeout means no
// per-call deadline.
func NewWithModel(llm llms.Model, timeout time.Duration) *Client {
	return &Client{llm: llm, timeout: timeout}
}

// BuildMessages returns a system message followed by a user message carrying
// the images.
func BuildMessages(system, user string, images []Image) []llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, llms.BinaryPart(img.MIMEType, img.Data))
	}
	parts = append(parts, llms.TextPart(user))

	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		{Role: llms.ChatMessageTypeHuman, Parts: parts},
	}
}

// Complete returns the full model answer.
func (c *Client) Complete(ctx context.Context, system, user string, images ...Image) (string, error) {
	return c.generate(ctx, BuildMessages(system, user, images))
}

// Stream calls onToken for each streamed fragment and returns the joined answer.
func (c *Client) Stream(ctx context.Context, system, user string, images []Image, onToken func(string) error) (string, error) {
	return c.generate(ctx, BuildMessages(system, user, images), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		return onToken(string(chunk))
	}))
}

func (c *Client) generate(ctx context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}
	return resp.Choices[0].Content, nil
}
