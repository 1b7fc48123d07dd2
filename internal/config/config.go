package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/zhengjr9/chat-gateway/internal/backend"
)

type Config struct {
	ListenAddr     string
	RequestTimeout time.Duration
	Backend        backend.Config
	// StreamChunkWords splits streamed content; 0 sends it in one chunk.
	StreamChunkWords int
	RateLimitRPS     float64
	RateLimitBurst   int
	MetricsEnabled   bool
	MetricsPath      string
	LogLevel         string
	LogFormat        string
	// A2A
	A2AEnabled bool
	A2APort    int
	AgentName  string
	AgentDesc  string
}

// DefaultRelayURL is the http backend endpoint used when backend-url is unset.
const DefaultRelayURL = "http://localhost:7001/send-to-websocket/"

// envOverrides maps flags whose environment variable is not simply the
// upper-cased flag name.
var envOverrides = map[string]string{
	"metrics": "METRICS_ENABLED",
	"a2a":     "A2A_ENABLED",
}

// RegisterFlags defines every configuration flag on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Optional YAML config file")
	fs.String("listen-addr", ":7002", "Gateway listen address")
	fs.Duration("request-timeout", 120*time.Second, "Backend round-trip timeout")

	fs.String("backend", backend.KindStatic, "Backend kind: "+strings.Join(backend.Kinds, ", "))
	fs.String("backend-url", "", "Backend endpoint URL (http default: "+DefaultRelayURL+")")
	fs.String("backend-api-key", "", "Backend API key (dify, openai, gemini)")
	fs.String("backend-model", "", "Backend model (openai, gemini)")
	fs.String("backend-proxy-url", "", "HTTP/HTTPS proxy URL for backend requests (e.g. http://proxy:8080)")
	fs.String("backend-user", "chat-gateway", "User field for Dify requests")
	fs.String("static-response", "test", "Text returned by the static backend")
	fs.String("response-field", backend.FieldClean, "HTTP backend reply field: "+strings.Join(backend.ResponseFields, ", "))

	fs.Int("stream-chunk-words", 0, "Words per streamed chunk (0 = whole completion in one chunk)")
	fs.Float64("rate-limit-rps", 0, "Global request rate limit per second (0 = unlimited)")
	fs.Int("rate-limit-burst", 0, "Rate limiter burst size (0 = ceil(rps))")
	fs.Bool("metrics", true, "Expose Prometheus metrics")
	fs.String("metrics-path", "/metrics", "Prometheus metrics path")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text, json")

	fs.Bool("a2a", false, "Enable A2A server alongside the gateway")
	fs.Int("a2a-port", 8000, "A2A server listen port")
	fs.String("agent-name", "chat-gateway", "A2A AgentCard name")
	fs.String("agent-desc", "Chat gateway backend exposed via A2A protocol", "A2A AgentCard description")
}

// Load resolves configuration from parsed flags, the environment and an
// optional config file, in that order of precedence, then validates it.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range envOverrides {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	timeout := v.GetDuration("request-timeout")
	cfg := &Config{
		ListenAddr:     v.GetString("listen-addr"),
		RequestTimeout: timeout,
		Backend: backend.Config{
			Kind:          v.GetString("backend"),
			URL:           v.GetString("backend-url"),
			APIKey:        v.GetString("backend-api-key"),
			Model:         v.GetString("backend-model"),
			ProxyURL:      v.GetString("backend-proxy-url"),
			User:          v.GetString("backend-user"),
			Timeout:       timeout,
			StaticText:    v.GetString("static-response"),
			ResponseField: v.GetString("response-field"),
		},
		StreamChunkWords: v.GetInt("stream-chunk-words"),
		RateLimitRPS:     v.GetFloat64("rate-limit-rps"),
		RateLimitBurst:   v.GetInt("rate-limit-burst"),
		MetricsEnabled:   v.GetBool("metrics"),
		MetricsPath:      v.GetString("metrics-path"),
		LogLevel:         v.GetString("log-level"),
		LogFormat:        v.GetString("log-format"),
		A2AEnabled:       v.GetBool("a2a"),
		A2APort:          v.GetInt("a2a-port"),
		AgentName:        v.GetString("agent-name"),
		AgentDesc:        v.GetString("agent-desc"),
	}
	if cfg.Backend.Kind == backend.KindHTTP && cfg.Backend.URL == "" {
		cfg.Backend.URL = DefaultRelayURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request-timeout must be positive, got %s", c.RequestTimeout))
	}
	if !slices.Contains(backend.Kinds, c.Backend.Kind) {
		errs = append(errs, fmt.Errorf("invalid backend: %q", c.Backend.Kind))
	}
	switch c.Backend.Kind {
	case backend.KindDify:
		if c.Backend.URL == "" {
			errs = append(errs, fmt.Errorf("backend %s requires backend-url", c.Backend.Kind))
		}
	case backend.KindOpenAI, backend.KindGemini:
		if c.Backend.Model == "" {
			errs = append(errs, fmt.Errorf("backend %s requires backend-model", c.Backend.Kind))
		}
	}
	if p := c.Backend.ProxyURL; p != "" {
		if u, err := url.Parse(p); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid backend-proxy-url: %q", p))
		}
	}
	if c.Backend.Kind == backend.KindHTTP && !slices.Contains(backend.ResponseFields, c.Backend.ResponseField) {
		errs = append(errs, fmt.Errorf("invalid response-field: %q", c.Backend.ResponseField))
	}
	if c.StreamChunkWords < 0 {
		errs = append(errs, errors.New("stream-chunk-words must not be negative"))
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		errs = append(errs, errors.New("rate limit values must not be negative"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("invalid log-format: %q", c.LogFormat))
	}
	if c.MetricsEnabled && !strings.HasPrefix(c.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("metrics-path must start with '/': %q", c.MetricsPath))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log-level: %q", c.LogLevel)
	}
	return l, nil
}
