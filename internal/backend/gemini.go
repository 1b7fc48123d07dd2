package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
)

// Gemini calls GenerateContent on the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini constructs a Gemini backend. baseURL overrides the API host
// when non-empty.
func NewGemini(ctx context.Context, baseURL, apiKey, model string, timeout time.Duration, proxyURL string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(proxyURL),
		},
		HTTPOptions: genai.HTTPOptions{BaseURL: baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Name() string { return KindGemini }

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", apierrors.ErrBackendResponse)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: candidate has no text", apierrors.ErrBackendResponse)
	}
	return text, nil
}
