package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/surveyforge/api-gateway/internal/auth"
	"github.com/surveyforge/api-gateway/internal/config"
	"github.com/surveyforge/api-gateway/internal/controlplane"
	"github.com/surveyforge/api-gateway/internal/proxy"
	"github.com/surveyforge/api-gateway/internal/registry"
	"github.com/surveyforge/api-gateway/internal/respond"
	"github.com/surveyforge/api-gateway/internal/server"
	"github.com/surveyforge/api-gateway/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdownTracer, err := telemetry.InitTracer(server.ServiceName, cfg.Env, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	var store *registry.Store
	if cfg.Registry.Path != "" {
		store, err = registry.Open(cfg.Registry.Path)
		if err != nil {
			log.Fatalf("Failed to open service registry: %v", err)
		}
		defer store.Close()
	}

	reg, err := registry.New(store, cfg.Routes, logger)
	if err != nil {
		log.Fatalf("Failed to build service registry: %v", err)
	}

	responder := respond.New(logger, !cfg.IsProduction())
	dispatcher := proxy.NewDispatcher(logger, responder, cfg.Proxy.Timeout)

	table, err := proxy.NewTable(dispatcher, reg.Routes())
	if err != nil {
		log.Fatalf("Failed to build route table: %v", err)
	}

	var revoker auth.RevocationChecker
	if cfg.Auth.ServiceURL != "" {
		revoker = auth.NewHTTPRevocationChecker(cfg.Auth.ServiceURL, cfg.Auth.RevocationTimeout)
	}
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, revoker, logger)

	admin := controlplane.New(reg, table, responder, logger)

	srv := server.New(cfg, logger, verifier, table, admin)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go srv.Limiter().Run(ctx)

	// Hot-reload the static route table on config file changes. Dynamic
	// registrations survive a reload.
	if _, err := os.Stat(config.DefaultConfigFile); err == nil {
		go func() {
			err := config.Watch(ctx, config.DefaultConfigFile, logger, func(next *config.Config) {
				routes := reg.SetBase(next.Routes)
				if err := table.Replace(routes); err != nil {
					logger.Error("route table reload failed", slog.String("error", err.Error()))
					return
				}
				logger.Info("route table reloaded", slog.Int("routes", len(routes)))
			})
			if err != nil && err != context.Canceled {
				logger.Error("config watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Server failed: %v", err)
		}
		return
	case sig := <-sigChan:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("gateway shutdown complete")
}
