package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencore-ai/opencore/internal/agent"
	"github.com/opencore-ai/opencore/internal/auth"
	"github.com/opencore-ai/opencore/internal/bus"
	"github.com/opencore-ai/opencore/internal/compaction"
	"github.com/opencore-ai/opencore/internal/config"
	"github.com/opencore-ai/opencore/internal/message"
	"github.com/opencore-ai/opencore/internal/observability"
	"github.com/opencore-ai/opencore/internal/orchestrator"
	"github.com/opencore-ai/opencore/internal/provider"
	"github.com/opencore-ai/opencore/internal/server"
	"github.com/opencore-ai/opencore/internal/session"
	"github.com/opencore-ai/opencore/internal/storage"
	"github.com/opencore-ai/opencore/internal/tool"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the opencore HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", os.Getenv("OPENCORE_CONFIG"), "path to config file")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	store, err := newStore(cfg.Storage)
	if err != nil {
		return err
	}

	b := bus.New()
	msgs := message.NewStore(store, b)
	sessions := session.NewStore(store, msgs, b)

	providers := provider.NewRegistry()
	registerProviders(providers, cfg.Providers, logger)

	agents := agent.NewRegistry()
	questions := tool.NewQuestionChannel(b)
	tools := tool.NewRegistry()
	tools.Register(tool.NewQuestionTool(questions))
	tools.Register(tool.NewTodoTool(store))
	tools.Register(tool.NewWebSearchTool())
	tools.Register(tool.NewWebFetchTool())
	tools.Register(tool.NewSkillTool())

	metrics := observability.NewMetrics()
	orch := orchestrator.New(orchestrator.Options{
		Sessions:          sessions,
		Messages:          msgs,
		Providers:         providers,
		Agents:            agents,
		Tools:             tools,
		Bus:               b,
		Metrics:           metrics,
		Tracer:            observability.NewTracer(),
		Logger:            logger,
		DefaultProviderID: cfg.Defaults.ProviderID,
		DefaultModelID:    cfg.Defaults.ModelID,
	})
	compactor := compaction.New(sessions, msgs, providers, agents, b, logger)

	srv := server.New(server.Options{
		Sessions:     sessions,
		Messages:     msgs,
		Orchestrator: orch,
		Compactor:    compactor,
		Agents:       agents,
		Providers:    providers,
		Questions:    questions,
		Bus:          b,
		Metrics:      metrics,
		JWT:          auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.Expiry),
		Logger:       logger,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// newStore builds the persistence backend. With a storage path, session
// and message records go to SQLite while auxiliary keys (todo lists)
// stay in memory; without one everything is in memory.
func newStore(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Path == "" {
		return storage.NewMemoryStore(), nil
	}
	sqlite, err := storage.NewSQLiteStore(cfg.Path)
	if err != nil {
		return nil, err
	}
	return storage.NewSplitStore(sqlite, storage.NewMemoryStore(), "session", "message"), nil
}

// registerProviders wires every backend that has credentials. The
// gateway is always registered so prefixed model IDs route somewhere.
func registerProviders(providers *provider.Registry, cfg config.ProvidersConfig, logger *slog.Logger) {
	if cfg.Anthropic.APIKey != "" {
		providers.Register(provider.NewAnthropic(provider.AnthropicConfig{
			APIKey:  cfg.Anthropic.APIKey,
			BaseURL: cfg.Anthropic.BaseURL,
		}))
		logger.Info("provider registered", "provider", "anthropic")
	}
	if cfg.OpenAI.APIKey != "" {
		providers.Register(provider.NewOpenAI(cfg.OpenAI.APIKey))
		logger.Info("provider registered", "provider", "openai")
	}
	providers.Register(provider.NewGateway(provider.GatewayConfig{
		GeminiAPIKey:     cfg.Gemini.APIKey,
		GroqAPIKey:       cfg.Groq.APIKey,
		DeepSeekAPIKey:   cfg.DeepSeek.APIKey,
		OpenRouterAPIKey: cfg.OpenRouter.APIKey,
		ZaiAPIKey:        cfg.Zai.APIKey,
		ZaiBaseURL:       cfg.Zai.BaseURL,
	}))
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
