// Package app wires configuration, clients and services into the runnable BFF.
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/loresmith/internal/config"
	httpx "github.com/yungbote/loresmith/internal/http"
	"github.com/yungbote/loresmith/internal/observability"
	"github.com/yungbote/loresmith/internal/platform/logger"
)

// Version is stamped at build time with -ldflags "-X .../internal/app.Version=...".
var Version = "dev"

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	Clients  Clients
	Services Services
	Server   *httpx.Server
	Metrics  *observability.Metrics

	shutdownOtel func(context.Context) error
}

// New loads configuration and builds every component. Nothing is started yet.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return NewWithConfig(ctx, cfg, log)
}

func NewWithConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "loresmith",
		Environment: cfg.Env,
		Version:     Version,
	})
	metrics := observability.Init(log)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	services, err := wireServices(log, cfg, clients, metrics)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}
	handlers := wireHandlers(log, clients, services, metrics)
	server := httpx.NewServer(httpx.ServerConfig{
		Addr:              cfg.HTTP.Addr,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout.Duration,
		IdleTimeout:       cfg.HTTP.IdleTimeout.Duration,
	}, wireRouter(log, cfg, handlers, metrics))

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Services:     services,
		Server:       server,
		Metrics:      metrics,
		shutdownOtel: shutdownOtel,
	}, nil
}

// Run serves HTTP and forwards realtime messages until ctx is cancelled, then shuts the
// server down gracefully.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return errors.New("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	if err := a.Clients.Bus.StartForwarder(gctx, a.Services.Hub.Broadcast); err != nil {
		return fmt.Errorf("start realtime forwarder: %w", err)
	}
	a.Metrics.StartRedisCollector(gctx, a.Log, a.Clients.Redis)

	g.Go(func() error {
		a.Log.Info("http server listening", "addr", a.Server.Addr(), "version", Version)
		return a.Server.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.Cfg.HTTP.ShutdownTimeout.Duration)
		defer cancel()
		a.Services.Hub.CloseAll()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			a.Log.Warn("http shutdown incomplete", "error", err)
		}
		return nil
	})
	return g.Wait()
}

// Close tears down sessions, background publishers and clients. It is safe to call
// after Run returns.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	a.Services.Close(ctx, a.Log)
	a.Clients.Close()
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
