package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhengjr9/chat-gateway/internal/backend"
	"github.com/zhengjr9/chat-gateway/internal/config"
)

type stubBackend struct {
	text  string
	err   error
	calls int
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Generate(context.Context, string) (string, error) {
	s.calls++
	return s.text, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr:     ":0",
		RequestTimeout: 5 * time.Second,
		Backend:        backend.Config{Kind: backend.KindStatic},
		MetricsEnabled: true,
		MetricsPath:    "/metrics",
	}
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	s, _ := body["detail"].(string)
	return s
}

func TestChat_Blocking(t *testing.T) {
	h := New(testConfig(), &stubBackend{text: "y z"}).Handler()
	rec := serve(h, http.MethodPost, "/v1/chat/completions",
		`{"model":"m","messages":[{"role":"system","content":"x"},{"role":"user","content":"a b c"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Model   string `json:"model"`
		Choices []struct {
			FinishReason string `json:"finish_reason"`
			Message      struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") || resp.Object != "chat.completion" || resp.Model != "m" {
		t.Errorf("envelope = %+v", resp)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].FinishReason != "stop" || resp.Choices[0].Message.Content != "y z" {
		t.Errorf("choices = %+v", resp.Choices)
	}
	if resp.Usage.PromptTokens != 4 || resp.Usage.CompletionTokens != 0 || resp.Usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChat_Streaming(t *testing.T) {
	h := New(testConfig(), &stubBackend{text: "full text"}).Handler()
	rec := serve(h, http.MethodPost, "/v1/chat/completions",
		`{"model":"m","stream":true,"messages":[{"role":"user","content":"hi"}]}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	frames := strings.SplitAfter(rec.Body.String(), "\n\n")
	if frames[len(frames)-1] == "" {
		frames = frames[:len(frames)-1]
	}
	if len(frames) != 2 || frames[1] != "data: [DONE]\n\n" {
		t.Fatalf("frames = %q", frames)
	}
	if !strings.Contains(frames[0], `"content":"full text"`) || !strings.Contains(frames[0], `"finish_reason":null`) {
		t.Errorf("content frame = %q", frames[0])
	}
}

func TestChat_NoUserMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"system only", `{"model":"m","messages":[{"role":"system","content":"x"}]}`},
		{"empty messages", `{"model":"m","messages":[]}`},
		{"missing messages", `{"model":"m"}`},
		{"system only with bad temperature", `{"model":"m","temperature":-1,"messages":[{"role":"system","content":"x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubBackend{text: "unused"}
			h := New(testConfig(), stub).Handler()
			rec := serve(h, http.MethodPost, "/v1/chat/completions", tt.body)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := detail(t, rec); got != "No user message found in the request" {
				t.Errorf("detail = %q", got)
			}
			if stub.calls != 0 {
				t.Errorf("backend called %d times", stub.calls)
			}
		})
	}
}

func TestChat_MalformedBody(t *testing.T) {
	h := New(testConfig(), &stubBackend{}).Handler()
	rec := serve(h, http.MethodPost, "/v1/chat/completions", `{"model":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := detail(t, rec); !strings.HasPrefix(got, "malformed request body") {
		t.Errorf("detail = %q", got)
	}

	metrics := serve(h, http.MethodGet, "/metrics", "")
	if !strings.Contains(metrics.Body.String(), `chat_gateway_requests_total{state="rejected",stream="false"} 1`) {
		t.Errorf("malformed body not counted as rejected:\n%s", metrics.Body)
	}
}

func TestChat_BackendFailure(t *testing.T) {
	for _, stream := range []bool{false, true} {
		stub := &stubBackend{err: errors.New("upstream exploded")}
		h := New(testConfig(), stub).Handler()
		body := `{"model":"m","stream":` + map[bool]string{true: "true", false: "false"}[stream] +
			`,"messages":[{"role":"user","content":"hi"}]}`
		rec := serve(h, http.MethodPost, "/v1/chat/completions", body)

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("stream=%v: status = %d", stream, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("stream=%v: Content-Type = %q", stream, ct)
		}
		if got := detail(t, rec); got != "Error from API: upstream exploded" {
			t.Errorf("stream=%v: detail = %q", stream, got)
		}
		if stub.calls != 1 {
			t.Errorf("stream=%v: backend calls = %d, want 1", stream, stub.calls)
		}
	}
}

func TestChat_MethodNotAllowed(t *testing.T) {
	h := New(testConfig(), &stubBackend{}).Handler()
	rec := serve(h, http.MethodGet, "/v1/chat/completions", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := New(testConfig(), &stubBackend{text: "x"}).Handler()
	serve(h, http.MethodPost, "/v1/chat/completions", `{"model":"m","messages":[{"role":"user","content":"hi"}]}`)

	if rec := serve(h, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body)
	}
	rec := serve(h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `chat_gateway_requests_total{state="sent",stream="false"} 1`) {
		t.Errorf("metrics body missing sent counter:\n%s", rec.Body)
	}
}

func TestMetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	h := New(cfg, &stubBackend{}).Handler()
	if rec := serve(h, http.MethodGet, "/metrics", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
