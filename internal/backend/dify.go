package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
)

// difyRequest is sent to POST /v1/chat-messages.
type difyRequest struct {
	Inputs       map[string]any `json:"inputs"`
	Query        string         `json:"query"`
	ResponseMode string         `json:"response_mode"`
	User         string         `json:"user"`
}

// difyReply is the Dify response for response_mode=blocking.
type difyReply struct {
	MessageID      string `json:"message_id"`
	ConversationID string `json:"conversation_id"`
	Answer         string `json:"answer"`
}

// Dify sends the prompt to a Dify chat app in blocking mode.
type Dify struct {
	// chatURL is the full URL of the chat-messages endpoint. A bare base
	// URL gets "/v1/chat-messages" appended.
	chatURL    string
	apiKey     string
	user       string
	httpClient *http.Client
}

func NewDify(baseURL, apiKey, user string, timeout time.Duration, proxyURL string) *Dify {
	chatURL := strings.TrimRight(baseURL, "/")
	if !strings.HasSuffix(chatURL, "/v1/chat-messages") {
		chatURL += "/v1/chat-messages"
	}
	return &Dify{
		chatURL: chatURL,
		apiKey:  apiKey,
		user:    user,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: newTransport(proxyURL),
		},
	}
}

func (d *Dify) Name() string { return KindDify }

func (d *Dify) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(difyRequest{
		Inputs:       map[string]any{},
		Query:        prompt,
		ResponseMode: "blocking",
		User:         d.user,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.chatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dify request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: dify %d: %s", apierrors.ErrBackendStatus, resp.StatusCode, string(raw))
	}

	var reply difyReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if reply.Answer == "" {
		return "", fmt.Errorf("%w: empty dify answer", apierrors.ErrBackendResponse)
	}
	return reply.Answer, nil
}
