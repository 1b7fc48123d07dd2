package openai

import (
	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
	"github.com/zhengjr9/chat-gateway/internal/tokens"
)

// Defaults applied when the caller omits a generation parameter.
const (
	DefaultMaxTokens   = 1000
	DefaultTemperature = 1.0
	DefaultTopP        = 1.0
	DefaultN           = 1
)

// PromptInput is a validated request reduced to what the backend and the
// composers need.
type PromptInput struct {
	Model        string
	Prompt       string
	Stream       bool
	PromptTokens int

	MaxTokens   int
	Temperature float64
	TopP        float64
	N           int
	Stop        []string
}

// Normalize selects the most recent user turn as the prompt and validates the
// generation parameters. A request without a usable user turn, including one
// with no messages at all, fails with ErrNoUserMessage before any parameter
// is checked. Every failure is a *errors.ValidationError.
func Normalize(req *ChatCompletionRequest) (*PromptInput, error) {
	prompt, ok := lastUserContent(req.Messages)
	if !ok {
		return nil, apierrors.ErrNoUserMessage
	}

	if req.MaxTokens != nil && *req.MaxTokens <= 0 {
		return nil, &apierrors.ValidationError{Detail: "max_tokens must be a positive integer"}
	}
	if req.Temperature != nil && *req.Temperature < 0 {
		return nil, &apierrors.ValidationError{Detail: "temperature must be greater than or equal to 0"}
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		return nil, &apierrors.ValidationError{Detail: "top_p must be between 0 and 1"}
	}
	if req.N != nil && *req.N <= 0 {
		return nil, &apierrors.ValidationError{Detail: "n must be a positive integer"}
	}

	contents := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		contents[i] = string(m.Content)
	}

	return &PromptInput{
		Model:        req.Model,
		Prompt:       prompt,
		Stream:       req.Stream,
		PromptTokens: tokens.PromptTokens(contents...),
		MaxTokens:    intOr(req.MaxTokens, DefaultMaxTokens),
		Temperature:  floatOr(req.Temperature, DefaultTemperature),
		TopP:         floatOr(req.TopP, DefaultTopP),
		N:            intOr(req.N, DefaultN),
		Stop:         req.Stop,
	}, nil
}

// lastUserContent returns the content of the newest user message. An empty
// newest user turn counts as missing; older user turns are not consulted.
func lastUserContent(msgs []Message) (string, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != RoleUser {
			continue
		}
		content := string(msgs[i].Content)
		return content, content != ""
	}
	return "", false
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
