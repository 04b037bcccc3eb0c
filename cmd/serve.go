package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/app"
	"github.com/mochaeng/payment-sandbox/internal/config"
	"github.com/mochaeng/payment-sandbox/internal/models"
	"github.com/mochaeng/payment-sandbox/internal/services"
	"github.com/mochaeng/payment-sandbox/internal/simulator"
	"github.com/mochaeng/payment-sandbox/internal/store"
	"github.com/mochaeng/payment-sandbox/internal/webhook"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the sandbox HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg *config.Config) error {
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	sim, err := newSimulator(cfg)
	if err != nil {
		return err
	}

	policy := models.RetryPolicy{
		MaxAttempts:       cfg.WebhookMaxAttempts,
		BaseDelay:         cfg.WebhookBaseDelay,
		BackoffMultiplier: cfg.WebhookBackoffMultiplier,
	}.Normalize()

	dispatcher := webhook.NewDispatcher(st, webhook.Config{
		Workers:       cfg.WebhookWorkers,
		QueueSize:     cfg.MaxQueueSize,
		Timeout:       cfg.WebhookTimeout,
		DefaultPolicy: policy,
		Client: &fasthttp.Client{
			MaxConnsPerHost:     512,
			MaxIdleConnDuration: 30 * time.Second,
			ReadTimeout:         cfg.WebhookTimeout,
			WriteTimeout:        cfg.WebhookTimeout,
		},
		Logger: logger,
	})

	svc := services.NewServices(services.Deps{
		Store:              st,
		Simulator:          sim,
		Notifier:           dispatcher,
		Deliverer:          dispatcher,
		Logger:             logger,
		BaseURL:            cfg.BaseURL,
		SessionTTL:         cfg.SessionTTL,
		SweepInterval:      cfg.SweepInterval,
		DefaultRetryPolicy: policy,
	})

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go svc.Sweeper.Start(ctx)

	application := app.NewApp(cfg, svc, st, logger)
	server := application.Mount()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(server)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("failed to shut down server", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("failed to drain webhook queue", "error", err)
	}
	return nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.RedisURL == "" {
		logger.Warn("REDIS_URL not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	st, err := store.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return st, nil
}

func newSimulator(cfg *config.Config) (*simulator.Simulator, error) {
	simCfg := simulator.Config{NodeID: cfg.NodeID}
	if cfg.SimulateLatency {
		simCfg.Latency = simulator.DefaultLatency()
	}

	if cfg.ScenariosFile != "" {
		f, err := os.Open(cfg.ScenariosFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open scenarios file: %w", err)
		}
		defer f.Close()

		if simCfg.Scenarios, err = simulator.LoadScenarios(f); err != nil {
			return nil, err
		}
	}

	return simulator.New(simCfg)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
