package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"MarketPulse/internal/service/marketcache"
	"MarketPulse/internal/service/stream"
	"MarketPulse/internal/usecase"
	"MarketPulse/pkg/cache"
	pkgch "MarketPulse/pkg/clickhouse"
	"MarketPulse/pkg/config"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	recorder   *usecase.TickRecorder
	streams    *stream.Service
	marketData *marketcache.Cache
	store      cache.Service
	chClient   *pkgch.Client
}

// New creates a new App instance with all dependencies. recorder and chClient may be nil.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	recorder *usecase.TickRecorder,
	streams *stream.Service,
	marketData *marketcache.Cache,
	store cache.Service,
	chClient *pkgch.Client,
) *App {
	return &App{
		cfg:        cfg,
		log:        log.Component("app"),
		httpServer: httpServer,
		recorder:   recorder,
		streams:    streams,
		marketData: marketData,
		store:      store,
		chClient:   chClient,
	}
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.Shutdown(context.Background())
}

// Start launches the cache sweeper, the tick recorder and the HTTP server.
// Everything started here stops when ctx is done or Shutdown is called.
func (a *App) Start(ctx context.Context) error {
	if a.marketData != nil {
		go a.marketData.Run(ctx)
	}

	if a.recorder != nil && a.recorder.Enabled() {
		if err := a.recorder.Start(ctx); err != nil {
			return fmt.Errorf("start recorder: %w", err)
		}
	}

	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops all services. It returns the first error but always runs every step.
func (a *App) Shutdown(ctx context.Context) error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			keep(err)
		}
	}

	if a.recorder != nil {
		rctx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
		if err := a.recorder.Shutdown(rctx); err != nil {
			a.log.Warn("recorder stop error", applogger.Error(err))
			keep(err)
		}
		cancel()
	}

	if a.streams != nil {
		a.streams.Close()
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("cache close error", applogger.Error(err))
			keep(err)
		}
	}

	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.log.Warn("clickhouse close error", applogger.Error(err))
			keep(err)
		}
	}

	a.log.Info("shutdown complete")
	return first
}
