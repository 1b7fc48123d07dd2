// Package backend holds the single downstream inference call made per
// chat completion. A Client is invoked at most once per request and is never
// retried; callers wrap its errors before they reach the HTTP layer.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Backend kinds accepted by New.
const (
	KindStatic = "static"
	KindHTTP   = "http"
	KindDify   = "dify"
	KindOpenAI = "openai"
	KindGemini = "gemini"
)

// Kinds lists every supported backend kind.
var Kinds = []string{KindStatic, KindHTTP, KindDify, KindOpenAI, KindGemini}

// Client turns a prompt into completion text.
type Client interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Generate performs the downstream call. It may block until ctx is done.
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config selects and configures a backend.
type Config struct {
	Kind     string
	URL      string
	APIKey   string
	Model    string
	ProxyURL string
	User     string
	Timeout  time.Duration

	// StaticText is returned by the static backend.
	StaticText string
	// ResponseField selects the http backend payload field.
	ResponseField string
}

// New constructs the backend named by cfg.Kind.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Kind {
	case KindStatic, "":
		return NewStatic(cfg.StaticText), nil
	case KindHTTP:
		return NewHTTP(cfg.URL, cfg.ResponseField, cfg.Timeout, cfg.ProxyURL)
	case KindDify:
		return NewDify(cfg.URL, cfg.APIKey, cfg.User, cfg.Timeout, cfg.ProxyURL), nil
	case KindOpenAI:
		return NewOpenAI(cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout, cfg.ProxyURL), nil
	case KindGemini:
		return NewGemini(ctx, cfg.URL, cfg.APIKey, cfg.Model, cfg.Timeout, cfg.ProxyURL)
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}

// newTransport returns a transport that honours proxyURL, or the environment
// proxy settings when proxyURL is empty or unusable.
func newTransport(proxyURL string) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if proxyURL == "" {
		return transport
	}
	parsed, err := url.Parse(proxyURL)
	if err != nil || parsed.Host == "" {
		slog.Warn("ignoring invalid backend proxy url", "proxy_url", proxyURL)
		return transport
	}
	transport.Proxy = http.ProxyURL(parsed)
	return transport
}
