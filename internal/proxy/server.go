package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/zhengjr9/chat-gateway/internal/backend"
	"github.com/zhengjr9/chat-gateway/internal/completion"
	"github.com/zhengjr9/chat-gateway/internal/config"
	apierrors "github.com/zhengjr9/chat-gateway/internal/errors"
	"github.com/zhengjr9/chat-gateway/internal/metrics"
	"github.com/zhengjr9/chat-gateway/internal/openai"
)

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config and backend.
func New(cfg *config.Config, client backend.Client) *Server {
	var (
		collector *metrics.Collector
		recorder  completion.Recorder
	)
	if cfg.MetricsEnabled {
		collector = metrics.NewCollector(nil)
		recorder = collector
	}
	service := completion.NewService(client, openai.NewComposer(cfg.StreamChunkWords), recorder)

	router := mux.NewRouter()
	limit := rateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst)
	router.Handle("/v1/chat/completions", limit(newChatHandler(service, cfg.RequestTimeout))).Methods(http.MethodPost)
	router.HandleFunc("/healthz", healthHandler).Methods(http.MethodGet)
	if collector != nil {
		router.Handle(cfg.MetricsPath, collector.Handler()).Methods(http.MethodGet)
	}
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteDetail(w, http.StatusNotFound, "Not Found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteDetail(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	var handler http.Handler = router
	handler = cors.AllowAll().Handler(handler)
	handler = LoggingMiddleware(handler)
	handler = recoveryMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: cfg.RequestTimeout + 10*time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
