package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
)

// OpenAI forwards the prompt as a single user message to an
// OpenAI-compatible upstream.
type OpenAI struct {
	client *goopenai.Client
	model  string
}

// NewOpenAI constructs an OpenAI backend. An empty baseURL uses the
// public OpenAI endpoint.
func NewOpenAI(baseURL, apiKey, model string, timeout time.Duration, proxyURL string) *OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: newTransport(proxyURL),
	}
	return &OpenAI{client: goopenai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAI) Name() string { return KindOpenAI }

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: o.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", apierrors.ErrBackendResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
