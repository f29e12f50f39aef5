// Command server starts the social-hunt HTTP server.
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

	"github.com/fairyhunter13/social-hunt/internal/adapter/facerestore"
	"github.com/fairyhunter13/social-hunt/internal/adapter/httpclient"
	httpserver "github.com/fairyhunter13/social-hunt/internal/adapter/httpserver"
	"github.com/fairyhunter13/social-hunt/internal/adapter/observability"
	"github.com/fairyhunter13/social-hunt/internal/adapter/provider"
	"github.com/fairyhunter13/social-hunt/internal/adapter/registry"
	"github.com/fairyhunter13/social-hunt/internal/adapter/repo/memory"
	"github.com/fairyhunter13/social-hunt/internal/app"
	"github.com/fairyhunter13/social-hunt/internal/config"
	"github.com/fairyhunter13/social-hunt/internal/domain"
	"github.com/fairyhunter13/social-hunt/internal/service/ratelimiter"
	"github.com/fairyhunter13/social-hunt/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, provider, and job instrumentation.
	observability.InitMetrics()

	// Outbound HTTP: pooled direct transport plus SOCKS5 routing for
	// .onion providers.
	factory, err := httpclient.New(cfg.TorProxyURL)
	if err != nil {
		slog.Error("http client setup failed", slog.Any("error", err))
		os.Exit(1)
	}

	limiter := ratelimiter.New(cfg.MaxConcurrency, cfg.HostRPS, cfg.HostBurst,
		ratelimiter.WithAcquireTimeout(cfg.AcquireTimeout))

	env := provider.Env{Client: factory, Limiter: limiter, Log: logger}

	// Provider registry: code drivers first, then the YAML pack.
	reg := registry.New(cfg.ProvidersYAML, func(spec *registry.Spec) domain.Provider {
		return provider.NewPattern(spec, env)
	}, logger)
	reg.Register("github", func(*registry.Spec) domain.Provider { return provider.NewGitHub(env) })
	reg.Register("reddit", func(*registry.Spec) domain.Provider { return provider.NewReddit(env) })
	reg.Register("hibp", func(*registry.Spec) domain.Provider {
		return provider.NewHIBP(provider.HIBPConfig{
			APIKey:       cfg.HIBPAPIKey,
			UserAgent:    cfg.HIBPUserAgent,
			AllowHandles: cfg.HIBPAllowHandles,
		}, env)
	})
	reg.Register("breach_vip", func(*registry.Spec) domain.Provider { return provider.NewBreachVIP(env) })
	if err := reg.Load(); err != nil {
		slog.Error("provider registry load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("provider registry loaded", slog.Int("providers", len(reg.Names())))

	store := memory.NewJobsRepo(cfg.JobCapacity, cfg.JobTTL)
	restorer := facerestore.New(cfg.FaceRestoreURL, cfg.FaceRestoreTimeout)

	scanSvc := usecase.NewScanService(reg, store, factory, nil, restorer, usecase.ScanConfig{
		MaxConcurrency:    cfg.MaxConcurrency,
		JobDeadline:       cfg.JobDeadline,
		DhashThreshold:    cfg.DhashThreshold,
		FaceMatchDistance: cfg.FaceMatchDistance,
		AvatarMaxBytes:    cfg.AvatarMaxBytes,
	}, logger)

	srv := httpserver.NewServer(cfg, scanSvc, reg)
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
