package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
)

// Response fields understood by the HTTP backend.
const (
	FieldClean      = "clean"
	FieldAnonymized = "anonymized"
	FieldBoth       = "both"
)

// bothFormat renders FieldBoth: the anonymized reply first, then the raw one.
const bothFormat = "**Réponse anonymisée**\n\n%s\n\n**Réponse non anonymisée**\n\n%s"

// ResponseFields lists every accepted ResponseField value.
var ResponseFields = []string{FieldClean, FieldAnonymized, FieldBoth}

// httpReply is the payload returned by the message relay endpoint.
type httpReply struct {
	Status             string  `json:"status"`
	ResponseClean      *string `json:"response_clean"`
	ResponseAnonymized *string `json:"response_anonymized"`
}

// HTTP posts the prompt as the "message" query parameter to a relay endpoint
// and reads the answer from its JSON reply.
type HTTP struct {
	endpoint   string
	field      string
	httpClient *http.Client
}

// NewHTTP constructs an HTTP backend. field defaults to FieldClean.
func NewHTTP(endpoint, field string, timeout time.Duration, proxyURL string) (*HTTP, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("http backend url: %w", err)
	}
	if field == "" {
		field = FieldClean
	}
	return &HTTP{
		endpoint: endpoint,
		field:    field,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(proxyURL),
		},
	}, nil
}

func (h *HTTP) Name() string { return KindHTTP }

func (h *HTTP) Generate(ctx context.Context, prompt string) (string, error) {
	u, err := url.Parse(h.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	q.Set("message", prompt)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: %d: %s", apierrors.ErrBackendStatus, resp.StatusCode, string(raw))
	}

	var reply httpReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return h.pick(reply)
}

func (h *HTTP) pick(reply httpReply) (string, error) {
	switch h.field {
	case FieldAnonymized:
		if reply.ResponseAnonymized == nil {
			return "", fmt.Errorf("%w: missing response_anonymized", apierrors.ErrBackendResponse)
		}
		return *reply.ResponseAnonymized, nil
	case FieldBoth:
		if reply.ResponseAnonymized == nil || reply.ResponseClean == nil {
			return "", fmt.Errorf("%w: missing response_clean or response_anonymized", apierrors.ErrBackendResponse)
		}
		return fmt.Sprintf(bothFormat, *reply.ResponseAnonymized, *reply.ResponseClean), nil
	default:
		if reply.ResponseClean == nil {
			return "", fmt.Errorf("%w: missing response_clean", apierrors.ErrBackendResponse)
		}
		return *reply.ResponseClean, nil
	}
}
