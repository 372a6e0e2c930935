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
	"github.com/ErlanBelekov/passwordless/internal/email"
	"github.com/ErlanBelekov/passwordless/internal/health"
	"github.com/ErlanBelekov/passwordless/internal/infrastructure"
	ctxlog "github.com/ErlanBelekov/passwordless/internal/log"
	"github.com/ErlanBelekov/passwordless/internal/metrics"
	"github.com/ErlanBelekov/passwordless/internal/scheduler"
	"github.com/ErlanBelekov/passwordless/internal/session"
	httptransport "github.com/ErlanBelekov/passwordless/internal/transport/http"
	"github.com/ErlanBelekov/passwordless/internal/transport/http/handler"
	"github.com/ErlanBelekov/passwordless/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	if cfg.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	stores, err := infrastructure.Open(ctx, cfg.Store, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("store: %v", err)
	}
	defer stores.Close()

	logger.Info("store connected", "store", cfg.Store)

	// Tokens
	tokenService := usecase.NewTokenService(stores.Tokens, logger)
	sessions := session.NewCookieAuth(tokenService, cfg.CookieSecure, logger)

	// Auth
	authUsecase := usecase.NewAuthUsecase(
		stores.Users,
		tokenService,
		email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger),
		usecase.AuthConfig{
			LoginTTL:          cfg.LoginTTL(),
			AllowRegistration: cfg.AllowRegistration,
			VerifyURL:         cfg.VerifyURL(),
		},
		logger,
	)
	authHandler := handler.NewAuthHandler(authUsecase, sessions, handler.AuthHandlerConfig{
		SessionTTL:      cfg.AuthTTL(),
		DefaultRedirect: cfg.DefaultRedirect,
		SecureCookies:   cfg.CookieSecure,
	}, logger)

	metrics.Register(prometheus.DefaultRegisterer)
	checker := health.NewChecker(stores.Pinger, cfg.Store, logger, prometheus.DefaultRegisterer)

	// The memory store lives in this process, so nothing else can sweep it.
	if cfg.Store == infrastructure.StoreMemory {
		sweeper, err := scheduler.NewSweeper(tokenService, logger, cfg.CleanupSchedule)
		if err != nil {
			stop()
			log.Fatalf("sweeper: %v", err)
		}
		go sweeper.Start(ctx)
	}

	srv := http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httptransport.NewRouter(logger, authHandler, sessions),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.NewServer(":"+cfg.MetricsPort, checker)

	go func() {
		logger.Info("server started", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}
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
