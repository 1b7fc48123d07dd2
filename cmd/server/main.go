package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"github.com/volcengine/veadk-go/apps"
	"github.com/volcengine/veadk-go/apps/a2a_app"
	"google.golang.org/adk/agent"

	"github.com/zhengjr9/chat-gateway/internal/a2a"
	"github.com/zhengjr9/chat-gateway/internal/backend"
	"github.com/zhengjr9/chat-gateway/internal/config"
	"github.com/zhengjr9/chat-gateway/internal/proxy"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "chat-gateway",
		Short:         "OpenAI-compatible chat completion gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(root.Flags())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})
	return root
}

func setupLogging(cfg *config.Config) {
	level, _ := cfg.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(parent context.Context, cfg *config.Config) error {
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := backend.New(ctx, cfg.Backend)
	if err != nil {
		slog.Error("failed to create backend", "backend", cfg.Backend.Kind, "error", err)
		return err
	}

	slog.Info("starting chat-gateway",
		"version", version,
		"listen", cfg.ListenAddr,
		"backend", client.Name(),
		"metrics", cfg.MetricsEnabled,
		"a2a_enabled", cfg.A2AEnabled,
	)

	// Always start the gateway server.
	srv := proxy.New(cfg, client)
	proxyErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			proxyErr <- err
		}
	}()

	// Optionally start the A2A server.
	a2aErr := make(chan error, 1)
	if cfg.A2AEnabled {
		backendAgent, err := a2a.New(a2a.AgentConfig{
			Name:        cfg.AgentName,
			Description: cfg.AgentDesc,
			Backend:     client,
		})
		if err != nil {
			slog.Error("failed to create A2A agent", "error", err)
			return err
		}

		slog.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)

		inner := a2a_app.NewAgentkitA2AServerApp(
			apps.DefaultApiConfig().SetPort(cfg.A2APort),
		)
		wrapped := &loggedA2AApp{BasicApp: inner}

		go func() {
			if err := wrapped.Run(ctx, &apps.RunConfig{
				AgentLoader: agent.NewSingleLoader(backendAgent),
			}); err != nil {
				a2aErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("gateway shutdown error", "error", err)
		}
	case err := <-proxyErr:
		slog.Error("gateway server error", "error", err)
		return err
	case err := <-a2aErr:
		slog.Error("A2A server error", "error", err)
		return err
	}

	slog.Info("server stopped")
	return nil
}

// loggedA2AApp wraps a BasicApp so the A2A router logs requests the same
// way the gateway does.
type loggedA2AApp struct {
	apps.BasicApp
}

// Run overrides the embedded Run so that apps.Run receives `w` as the app
// argument. Without this, the embedded Run calls apps.Run with the inner app
// and the SetupRouters override below would never be registered.
func (w *loggedA2AApp) Run(ctx context.Context, config *apps.RunConfig) error {
	return apps.Run(ctx, config, w)
}

func (w *loggedA2AApp) SetupRouters(router *mux.Router, config *apps.RunConfig) error {
	if err := w.BasicApp.SetupRouters(router, config); err != nil {
		return err
	}
	router.Use(proxy.LoggingMiddleware)
	return nil
}
