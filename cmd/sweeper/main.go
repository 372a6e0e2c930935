package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/passwordless/config"
	"github.com/ErlanBelekov/passwordless/internal/health"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure"
	ctxlog "github.com/ErlanBelekov/passwordless/internal/log"
	"github.com/ErlanBelekov/passwordless/internal/metrics"
	"github.com/ErlanBelekov/passwordless/internal/scheduler"
	"github.com/ErlanBelekov/passwordless/internal/usecase"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Store == infrastructure.StoreMemory {
		log.Fatalf("config: sweeper needs a shared store, got STORE=%s", cfg.Store)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	stores, err := infrastructure.Open(ctx, cfg.Store, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer stores.Close()

	logger.Info("store connected", "store", cfg.Store)

	metrics.Register(prometheus.DefaultRegisterer)
	checker := health.NewChecker(stores.Pinger, cfg.Store, logger, prometheus.DefaultRegisterer)

	tokenService := usecase.NewTokenService(stores.Tokens, logger)

	sweeper, err := scheduler.NewSweeper(tokenService, logger, cfg.CleanupSchedule)
	if err != nil {
		stop()
		log.Fatalf("sweeper: %v", err)
	}
	go sweeper.Start(ctx)

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("sweeper stopped")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
